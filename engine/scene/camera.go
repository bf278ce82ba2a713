package scene

import (
	"github.com/spaghettifunk/simcam/engine/math"
)

/**
 * @brief A velocity command in the camera's own frame: Linear X forward,
 * Y left, Z up (m/s); Angular Z yaw to the left, Y pitch down (rad/s).
 */
type Twist struct {
	Linear  math.Vec3
	Angular math.Vec3
}

func (t Twist) IsZero() bool {
	return t.Linear == math.Vec3{} && t.Angular == math.Vec3{}
}

const maxPitch = 1.5

/**
 * @brief A perspective camera. At zero yaw and pitch it looks down -Z with +Y up.
 */
type Camera struct {
	Position math.Vec3
	Yaw      float32
	Pitch    float32
	FovDeg   float32
	Near     float32
	Far      float32
}

func NewCamera(position math.Vec3, fovDeg, near, far float32) *Camera {
	return &Camera{
		Position: position,
		FovDeg:   fovDeg,
		Near:     near,
		Far:      far,
	}
}

func (c *Camera) Forward() math.Vec3 {
	cp := math.Cos(c.Pitch)
	return math.NewVec3(-math.Sin(c.Yaw)*cp, math.Sin(c.Pitch), -math.Cos(c.Yaw)*cp)
}

// Left is the horizontal left vector.
func (c *Camera) Left() math.Vec3 {
	return math.NewVec3(-math.Cos(c.Yaw), 0, math.Sin(c.Yaw))
}

func (c *Camera) View() math.Mat4 {
	return math.NewMat4LookAt(c.Position, c.Position.Add(c.Forward()), math.NewVec3Up())
}

func (c *Camera) Projection(aspect float32) math.Mat4 {
	return math.NewMat4Perspective(math.DegToRad(c.FovDeg), aspect, c.Near, c.Far)
}

// LookAt points the camera at target.
func (c *Camera) LookAt(target math.Vec3) {
	d := target.Sub(c.Position).Normalized()
	c.Pitch = math.Clamp(math.Asin(d.Y), -maxPitch, maxPitch)
	c.Yaw = math.Atan2(-d.X, -d.Z)
}

/**
 * @brief Integrates a velocity command over dt. Translation stays in the
 * horizontal plane except for the up component.
 */
func (c *Camera) Apply(cmd Twist, dt float32) {
	c.Yaw += cmd.Angular.Z * dt
	c.Pitch = math.Clamp(c.Pitch-cmd.Angular.Y*dt, -maxPitch, maxPitch)

	flat := math.NewVec3(-math.Sin(c.Yaw), 0, -math.Cos(c.Yaw))
	move := flat.MulScalar(cmd.Linear.X).
		Add(c.Left().MulScalar(cmd.Linear.Y)).
		Add(math.NewVec3Up().MulScalar(cmd.Linear.Z))
	c.Position = c.Position.Add(move.MulScalar(dt))
}
