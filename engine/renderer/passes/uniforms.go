package passes

import (
	"encoding/binary"
	m "math"

	"github.com/spaghettifunk/simcam/engine/math"
	"github.com/spaghettifunk/simcam/engine/scene"
)

/**
 * @brief Everything the pipeline needs from the outside world for one frame.
 */
type FrameInputs struct {
	View        math.Mat4
	Projection  math.Mat4
	Sun         scene.DirectionalLight
	Ambient     math.Vec4
	PointLights []scene.PointLight
	Drawables   []scene.Drawable
	/** @brief Seconds since the previous frame. */
	Dt float32
}

type PointLightUniform struct {
	Position math.Vec4
	/** @brief w is intensity. */
	Colour math.Vec4
}

/**
 * @brief The per-frame uniform block, rebuilt from scratch every frame.
 * Encoded with std140 layout.
 */
type SceneUniforms struct {
	Projection    math.Mat4
	View          math.Mat4
	InverseView   math.Mat4
	LightViewProj math.Mat4
	/** @brief rgb colour, w intensity. */
	Ambient      math.Vec4
	SunDirection math.Vec4
	/** @brief rgb colour, w intensity. */
	SunColour math.Vec4
	/** @brief xy sun position in uv, z 1 when the sun disc is on screen, w facing factor. */
	SunScreen math.Vec4
	/** @brief x current exposure, y target exposure, z dt. */
	Exposure    math.Vec4
	PointLights [scene.MaxPointLights]PointLightUniform
	NumLights   int32
}

const (
	// UniformExposureOffset is the byte offset of the exposure vec4 in the encoded block.
	UniformExposureOffset = 320
	uniformLightsOffset   = 336
	// UniformSize is the encoded size of SceneUniforms.
	UniformSize = uniformLightsOffset + scene.MaxPointLights*32 + 16
)

const (
	sunDistance = 10000.0
	sunCosSize  = 0.995
)

/**
 * @brief Builds the uniform block for a frame. The exposure is the value to
 * use for tone mapping; same-frame feedback patches it later with
 * PatchExposure.
 */
func BuildSceneUniforms(in *FrameInputs, lightViewProj math.Mat4, exposure float32) SceneUniforms {
	inv, _ := in.View.Inverse()
	u := SceneUniforms{
		Projection:    in.Projection,
		View:          in.View,
		InverseView:   inv,
		LightViewProj: lightViewProj,
		Ambient:       in.Ambient,
		Exposure:      math.NewVec4(exposure, exposure, in.Dt, 0),
	}
	l := in.Sun.Direction.Normalized()
	u.SunDirection = l.ToVec4(0)
	u.SunColour = in.Sun.Colour.ToVec4(in.Sun.Intensity)

	uv, visible, factor := SunScreen(in.View, in.Projection, inv, l)
	vis := float32(0)
	if visible {
		vis = 1
	}
	u.SunScreen = math.NewVec4(uv.X, uv.Y, vis, factor)

	for i, pl := range in.PointLights {
		if i == scene.MaxPointLights {
			break
		}
		u.PointLights[i] = PointLightUniform{
			Position: pl.Position.ToVec4(1),
			Colour:   pl.Colour.ToVec4(pl.Intensity),
		}
		u.NumLights++
	}
	return u
}

/**
 * @brief Projects the sun into the camera. The sun sits far away against the
 * light direction; it counts as visible when its disc (cosine 0.995) touches
 * the screen. factor fades the flare in as the camera turns towards the sun.
 */
func SunScreen(view, proj, invView math.Mat4, lightDir math.Vec3) (uv math.Vec2, visible bool, factor float32) {
	camPos := invView.Translation()
	forward := math.NewVec3(-invView.Data[8], -invView.Data[9], -invView.Data[10]).Normalized()
	toSun := lightDir.Negate()

	factor = math.Smoothstep(0.70, 0.95, math.Clamp(forward.Dot(toSun), 0, 1))

	sunWorld := camPos.Add(toSun.MulScalar(sunDistance))
	clip := view.Mul(proj).MulVec4(sunWorld.ToVec4(1))
	uv = math.NewVec2(0.5, 0.5)
	if clip.W <= 0 {
		return uv, false, factor
	}
	uv = math.NewVec2(clip.X/clip.W*0.5+0.5, clip.Y/clip.W*0.5+0.5)

	tanTheta := math.Tan(math.Acos(sunCosSize))
	rx := tanTheta * math.Abs(proj.Data[0]) * 0.5
	ry := tanTheta * math.Abs(proj.Data[5]) * 0.5
	visible = uv.X >= -rx && uv.X <= 1+rx && uv.Y >= -ry && uv.Y <= 1+ry
	return uv, visible, factor
}

func (u *SceneUniforms) Encode() []byte {
	out := make([]byte, 0, UniformSize)
	f := func(v float32) {
		out = binary.LittleEndian.AppendUint32(out, m.Float32bits(v))
	}
	mat := func(mt math.Mat4) {
		for _, v := range mt.Data {
			f(v)
		}
	}
	vec := func(v math.Vec4) {
		f(v.X)
		f(v.Y)
		f(v.Z)
		f(v.W)
	}
	mat(u.Projection)
	mat(u.View)
	mat(u.InverseView)
	mat(u.LightViewProj)
	vec(u.Ambient)
	vec(u.SunDirection)
	vec(u.SunColour)
	vec(u.SunScreen)
	vec(u.Exposure)
	for _, pl := range u.PointLights {
		vec(pl.Position)
		vec(pl.Colour)
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(u.NumLights))
	for len(out) < UniformSize {
		out = append(out, 0)
	}
	return out
}

// PatchExposure encodes the exposure vec4 for writing at UniformExposureOffset.
func PatchExposure(current, target, dt float32) []byte {
	out := make([]byte, 0, 16)
	for _, v := range [...]float32{current, target, dt, 0} {
		out = binary.LittleEndian.AppendUint32(out, m.Float32bits(v))
	}
	return out
}

// DecodeUniforms reads back the fields the device programs consume.
func DecodeUniforms(data []byte) SceneUniforms {
	var u SceneUniforms
	if len(data) < UniformSize {
		return u
	}
	f := func(off int) float32 {
		return m.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
	}
	mat := func(off int) math.Mat4 {
		var mt math.Mat4
		for i := range mt.Data {
			mt.Data[i] = f(off + i*4)
		}
		return mt
	}
	vec := func(off int) math.Vec4 {
		return math.NewVec4(f(off), f(off+4), f(off+8), f(off+12))
	}
	u.Projection = mat(0)
	u.View = mat(64)
	u.InverseView = mat(128)
	u.LightViewProj = mat(192)
	u.Ambient = vec(256)
	u.SunDirection = vec(272)
	u.SunColour = vec(288)
	u.SunScreen = vec(304)
	u.Exposure = vec(UniformExposureOffset)
	for i := range u.PointLights {
		off := uniformLightsOffset + i*32
		u.PointLights[i] = PointLightUniform{Position: vec(off), Colour: vec(off + 16)}
	}
	u.NumLights = int32(binary.LittleEndian.Uint32(data[uniformLightsOffset+scene.MaxPointLights*32:]))
	return u
}
