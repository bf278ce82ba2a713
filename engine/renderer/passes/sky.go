package passes

import (
	"github.com/spaghettifunk/simcam/engine/math"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

var (
	skyZenith  = math.NewVec3(0.15, 0.30, 0.65)
	skyHorizon = math.NewVec3(0.55, 0.65, 0.80)
	skyGround  = math.NewVec3(0.25, 0.22, 0.20)
)

const (
	sunDiscGain     = 20.0
	sunGlowExponent = 64.0
	sunGlowGain     = 0.5
)

// PointLightMarkerRadius is the world-space radius of a point light marker.
const PointLightMarkerRadius = 0.1

/**
 * @brief Returns the HDR sky colour seen along dir: a horizon to zenith
 * gradient, a darker ground below the horizon, and the sun disc plus its glow
 * around toSun. sun is the sun colour scaled by its intensity.
 */
func SkyRadiance(dir, toSun, sun math.Vec3) math.Vec3 {
	d := dir.Normalized()
	var c math.Vec3
	if d.Y >= 0 {
		t := math.Sqrt(d.Y)
		c = skyHorizon.MulScalar(1 - t).Add(skyZenith.MulScalar(t))
	} else {
		t := math.Clamp(-d.Y*4, 0, 1)
		c = skyHorizon.MulScalar(1 - t).Add(skyGround.MulScalar(t))
	}
	cosSun := d.Dot(toSun.Normalized())
	c = c.Add(sun.MulScalar(math.Pow(math.Max(cosSun, 0), sunGlowExponent) * sunGlowGain))
	if cosSun >= sunCosSize {
		c = c.Add(sun.MulScalar(sunDiscGain))
	}
	return c
}

/**
 * @brief Returns the world-space view direction through the far plane at uv,
 * given the inverse of view times projection and the camera position.
 */
func SkyDirection(uv math.Vec2, invViewProj math.Mat4, camPos math.Vec3) math.Vec3 {
	p := invViewProj.MulVec4(math.NewVec4(uv.X*2-1, uv.Y*2-1, 1, 1))
	world := math.NewVec3(p.X/p.W, p.Y/p.W, p.Z/p.W)
	return world.Sub(camPos).Normalized()
}

/**
 * @brief Returns the clip-space position and light index of one vertex of
 * the point light marker fans. Every marker is a camera-facing fan of
 * PointLightMarkerSegments triangles around the light.
 */
func PointLightMarkerVertex(index uint32, u *SceneUniforms) (clip math.Vec4, light int) {
	light = int(index / md.PointLightMarkerVertices)
	local := index % md.PointLightMarkerVertices
	tri, corner := local/3, local%3
	centre := u.View.MulVec4(u.PointLights[light].Position.ToVec3().ToVec4(1))
	if corner != 0 {
		step := 2 * math.K_PI / float32(md.PointLightMarkerSegments)
		angle := float32(tri+corner-1) * step
		centre.X += math.Cos(angle) * PointLightMarkerRadius
		centre.Y += math.Sin(angle) * PointLightMarkerRadius
	}
	return u.Projection.MulVec4(centre), light
}

// PointLightMarkerColour is the colour a marker is drawn with.
func PointLightMarkerColour(pl PointLightUniform) math.Vec3 {
	return pl.Colour.ToVec3().MulScalar(pl.Colour.W)
}
