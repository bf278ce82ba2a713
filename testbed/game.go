package testbed

import (
	"fmt"

	"github.com/spaghettifunk/simcam/engine"
	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/math"
	"github.com/spaghettifunk/simcam/engine/renderer/frame"
	"github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/scene"
)

const (
	groundExtent   float32 = 40
	boostFactor    float32 = 3
	spinRate       float32 = 0.5
	orbitYawRate   float32 = 0.2
	markerEmissive float32 = 12
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	scene  *scene.Scene
	rig    *scene.Rig
	meshes []*scene.DeviceMesh

	// index of the drawable spun every update
	spinning int
	spin     float32

	width  uint32
	height uint32
}

func NewTestGame(config *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State: &gameState{
				scene: &scene.Scene{},
				rig:   scene.NewRig(),
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Initialize(device metadata.Device) error {
	core.LogDebug("TestGame Initialize fn....")
	state := g.State.(*gameState)
	cfg := g.ApplicationConfig.Config

	if err := g.buildScene(device); err != nil {
		return err
	}

	front := scene.NewCamera(math.NewVec3(0, 1.6, 9), cfg.Camera.FovDeg, cfg.Camera.Near, cfg.Camera.Far)
	front.LookAt(math.NewVec3(0, 1, 0))
	orbit := scene.NewCamera(math.NewVec3(12, 4, 12), cfg.Camera.FovDeg, cfg.Camera.Near, cfg.Camera.Far)
	orbit.LookAt(math.NewVec3Zero())
	if err := state.rig.Add("front", front, scene.ControlKeyboard); err != nil {
		return err
	}
	if err := state.rig.Add("orbit", orbit, scene.ControlRemote); err != nil {
		return err
	}

	core.EventRegister(core.EVENT_CODE_ASSET_CHANGED, g, g.onAssetChanged)
	return nil
}

func (g *TestGame) buildScene(device metadata.Device) error {
	state := g.State.(*gameState)
	s := state.scene

	ground, err := scene.NewPlaneMesh(device, "ground", groundExtent, math.NewVec3(0.45, 0.45, 0.42))
	if err != nil {
		return err
	}
	state.meshes = append(state.meshes, ground)
	s.Add(scene.Drawable{Name: "ground", Transform: math.NewMat4Identity(), Mesh: ground})

	box, err := scene.NewBoxMesh(device, "box", math.NewVec3(1, 1, 1), math.NewVec3(0.7, 0.3, 0.2))
	if err != nil {
		return err
	}
	tall, err := scene.NewBoxMesh(device, "pillar", math.NewVec3(0.6, 3, 0.6), math.NewVec3(0.25, 0.4, 0.7))
	if err != nil {
		return err
	}
	marker, err := scene.NewBoxMesh(device, "marker", math.NewVec3(0.2, 0.2, 0.2), math.NewVec3(1, 1, 1))
	if err != nil {
		return err
	}
	state.meshes = append(state.meshes, box, tall, marker)

	state.spinning = len(s.Drawables)
	s.Add(scene.Drawable{Name: "box", Transform: math.NewMat4Translation(math.NewVec3(0, 0.5, 0)), Mesh: box})
	s.Add(scene.Drawable{Name: "box.left", Transform: math.NewMat4Translation(math.NewVec3(-3, 0.5, -2)), Mesh: box})
	s.Add(scene.Drawable{Name: "box.right", Transform: math.NewMat4Translation(math.NewVec3(3.5, 0.5, 1)), Mesh: box})
	for i, x := range []float32{-6, -2, 2, 6} {
		s.Add(scene.Drawable{
			Name:      fmt.Sprintf("pillar.%d", i),
			Transform: math.NewMat4Translation(math.NewVec3(x, 1.5, -6)),
			Mesh:      tall,
		})
	}
	s.Add(scene.Drawable{
		Name:      "marker",
		Transform: math.NewMat4Translation(math.NewVec3(1.5, 2.5, -1)),
		Mesh:      marker,
		Emissive:  math.NewVec3(1, 0.8, 0.4).MulScalar(markerEmissive),
	})

	s.Sun = scene.DirectionalLight{
		Direction: math.NewVec3(-0.4, -1, -0.3).Normalized(),
		Colour:    math.NewVec3(1, 0.95, 0.85),
		Intensity: 3,
	}
	s.Ambient = math.NewVec4(0.55, 0.65, 0.8, 0.15)
	s.AddPointLight(scene.PointLight{Position: math.NewVec3(1.5, 2.5, -1), Colour: math.NewVec3(1, 0.8, 0.4), Intensity: 4})
	s.AddPointLight(scene.PointLight{Position: math.NewVec3(-4, 1, 2), Colour: math.NewVec3(0.3, 0.5, 1), Intensity: 2})
	s.AddPointLight(scene.PointLight{Position: math.NewVec3(5, 1.5, -4), Colour: math.NewVec3(1, 0.3, 0.3), Intensity: 2})

	core.LogInfo("testbed scene: %d drawables, %d point lights", len(s.Drawables), len(s.PointLights))
	return nil
}

func (g *TestGame) Update(input *core.InputState, deltaTime float64) error {
	state := g.State.(*gameState)
	dt := float32(deltaTime)

	if input.Pressed(core.KEY_TAB) {
		if c := state.rig.Next(); c != nil {
			core.LogInfo("camera %q active", c.Name)
		}
	}
	if input.Pressed(core.KEY_C) {
		if c := state.rig.Active(); c != nil {
			p := c.Camera.Position
			core.LogInfo("%s: pos [%.2f %.2f %.2f] yaw %.1f pitch %.1f", c.Name, p.X, p.Y, p.Z,
				math.RadToDeg(c.Camera.Yaw), math.RadToDeg(c.Camera.Pitch))
		}
	}

	cfg := g.ApplicationConfig.Config
	keyboard := KeyboardTwist(input, cfg.Camera.Speed, cfg.Camera.TurnRate)
	// stands in for an external velocity command source
	remote := scene.Twist{Angular: math.NewVec3(0, 0, orbitYawRate)}
	state.rig.Update(keyboard, remote, dt)

	state.spin += spinRate * dt
	d := &state.scene.Drawables[state.spinning]
	d.Transform = math.NewMat4EulerY(state.spin).Mul(math.NewMat4Translation(math.NewVec3(0, 0.5, 0)))
	return nil
}

/**
 * @brief Maps the keyboard to a camera velocity command: W/S forward and
 * back, A/D strafe, Q/E down and up, arrows turn. Shift moves faster.
 */
func KeyboardTwist(input *core.InputState, speed, turnRate float32) scene.Twist {
	axis := func(pos, neg core.KeyCode) float32 {
		var v float32
		if input.IsKeyDown(pos) {
			v++
		}
		if input.IsKeyDown(neg) {
			v--
		}
		return v
	}
	if input.IsKeyDown(core.KEY_LSHIFT) {
		speed *= boostFactor
	}
	return scene.Twist{
		Linear: math.NewVec3(
			axis(core.KEY_W, core.KEY_S),
			axis(core.KEY_A, core.KEY_D),
			axis(core.KEY_E, core.KEY_Q),
		).MulScalar(speed),
		Angular: math.NewVec3(
			0,
			axis(core.KEY_DOWN, core.KEY_UP),
			axis(core.KEY_LEFT, core.KEY_RIGHT),
		).MulScalar(turnRate),
	}
}

func (g *TestGame) Render(request *frame.FrameRequest, deltaTime float64) error {
	state := g.State.(*gameState)
	active := state.rig.Active()
	if active == nil {
		return fmt.Errorf("the camera rig is empty")
	}
	aspect := float32(1)
	if state.height > 0 {
		aspect = float32(state.width) / float32(state.height)
	}

	s := state.scene
	request.Inputs.View = active.Camera.View()
	request.Inputs.Projection = active.Camera.Projection(aspect)
	request.Inputs.Sun = s.Sun
	request.Inputs.Ambient = s.Ambient
	request.Inputs.PointLights = s.PointLights
	request.Inputs.Drawables = s.Drawables
	request.Inputs.Dt = float32(deltaTime)
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown(device metadata.Device) error {
	state := g.State.(*gameState)
	core.EventUnregister(core.EVENT_CODE_ASSET_CHANGED, g)
	for _, m := range state.meshes {
		m.Destroy(device)
	}
	state.meshes = nil
	state.scene.Drawables = nil
	return nil
}

func (g *TestGame) onAssetChanged(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	core.LogDebug("reloaded %s", data.Data.C)
	return false
}
