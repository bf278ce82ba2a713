package passes

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/math"
)

/**
 * @brief One optical surface. Radius is signed, 0 means flat. IOR is the
 * index of the medium behind the surface.
 */
type LensSurface struct {
	Radius   float32
	Z        float32
	IOR      float32
	Aperture float32
	Stop     bool
}

/**
 * @brief An ordered list of surfaces, front to back, plus the sensor.
 */
type LensSystem struct {
	Name     string
	Surfaces []LensSurface
	SensorZ  float32
	SensorW  float32
	SensorH  float32
}

const (
	lensSurfaceStride = 32
	maxLensSurfaces   = 32
)

/**
 * @brief A small double-Gauss-like system with one aperture stop, in metres,
 * on a 36x24 mm sensor.
 */
func DefaultLensSystem() *LensSystem {
	return &LensSystem{
		Name: "default",
		Surfaces: []LensSurface{
			{Radius: 0.050, Z: 0.000, IOR: 1.5, Aperture: 0.020},
			{Radius: -0.050, Z: 0.010, IOR: 1.0, Aperture: 0.020},
			{Radius: 0.030, Z: 0.020, IOR: 1.6, Aperture: 0.018},
			{Radius: -0.030, Z: 0.028, IOR: 1.0, Aperture: 0.018},
			{Radius: 0, Z: 0.035, IOR: 1.0, Aperture: 0.012, Stop: true},
			{Radius: 0.040, Z: 0.040, IOR: 1.5, Aperture: 0.020},
			{Radius: -0.040, Z: 0.050, IOR: 1.0, Aperture: 0.020},
		},
		SensorZ: 0.060,
		SensorW: 0.036,
		SensorH: 0.024,
	}
}

func (l *LensSystem) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: lens %q: %s", core.ErrAssetInvalid, l.Name, fmt.Sprintf(format, args...))
	}
	if len(l.Surfaces) < 2 || len(l.Surfaces) > maxLensSurfaces {
		return invalid("%d surfaces, need 2 to %d", len(l.Surfaces), maxLensSurfaces)
	}
	stops := 0
	for i, s := range l.Surfaces {
		if s.Aperture <= 0 {
			return invalid("surface %d has aperture %g", i, s.Aperture)
		}
		if s.IOR < 1 {
			return invalid("surface %d has index %g", i, s.IOR)
		}
		if i > 0 && s.Z < l.Surfaces[i-1].Z {
			return invalid("surface %d at z %g lies before surface %d", i, s.Z, i-1)
		}
		if s.Stop {
			stops++
		}
	}
	if stops != 1 {
		return invalid("%d aperture stops, need exactly one", stops)
	}
	if l.SensorZ <= l.Surfaces[len(l.Surfaces)-1].Z {
		return invalid("sensor at z %g is not behind the last surface", l.SensorZ)
	}
	if l.SensorW <= 0 || l.SensorH <= 0 {
		return invalid("sensor size %gx%g", l.SensorW, l.SensorH)
	}
	return nil
}

func (l *LensSystem) Stop() LensSurface {
	for _, s := range l.Surfaces {
		if s.Stop {
			return s
		}
	}
	return LensSurface{}
}

// EncodeSurfaces packs the surfaces as {float radius, z, ior, aperture; int stop, pad[3]}.
func (l *LensSystem) EncodeSurfaces() []byte {
	out := make([]byte, 0, len(l.Surfaces)*lensSurfaceStride)
	for _, s := range l.Surfaces {
		out = appendFloats(out, s.Radius, s.Z, s.IOR, s.Aperture)
		stop := uint32(0)
		if s.Stop {
			stop = 1
		}
		out = binary.LittleEndian.AppendUint32(out, stop)
		out = append(out, make([]byte, 12)...)
	}
	return out
}

func DecodeLensSurfaces(data []byte, count int) []LensSurface {
	count = min(count, len(data)/lensSurfaceStride)
	out := make([]LensSurface, count)
	for i := range out {
		b := data[i*lensSurfaceStride:]
		f := DecodeFloats(b[:16])
		out[i] = LensSurface{
			Radius:   f[0],
			Z:        f[1],
			IOR:      f[2],
			Aperture: f[3],
			Stop:     binary.LittleEndian.Uint32(b[16:]) != 0,
		}
	}
	return out
}

/**
 * @brief Per-frame lens parameters.
 */
type LensParams struct {
	Count   int32
	SensorZ float32
	SensorW float32
	SensorH float32
}

func (l *LensSystem) Params() LensParams {
	return LensParams{Count: int32(len(l.Surfaces)), SensorZ: l.SensorZ, SensorW: l.SensorW, SensorH: l.SensorH}
}

func (p LensParams) Encode() []byte {
	out := binary.LittleEndian.AppendUint32(make([]byte, 0, 16), uint32(p.Count))
	return appendFloats(out, p.SensorZ, p.SensorW, p.SensorH)
}

func DecodeLensParams(data []byte) LensParams {
	if len(data) < 16 {
		return LensParams{}
	}
	f := DecodeFloats(data[4:16])
	return LensParams{Count: int32(binary.LittleEndian.Uint32(data)), SensorZ: f[0], SensorW: f[1], SensorH: f[2]}
}

/**
 * @brief A ghost image of the sun on the sensor, in uv units.
 */
type Ghost struct {
	Center    math.Vec2
	Radius    math.Vec2
	Intensity float32
	Tint      math.Vec3
	/** @brief Width of the edge falloff as a fraction of the radius; 1 is a soft glow. */
	Softness float32
}

// abcd is a paraxial ray transfer matrix acting on (height, angle).
type abcd struct {
	a, b, c, d float32
}

func (m abcd) then(n abcd) abcd {
	return abcd{
		a: n.a*m.a + n.b*m.c,
		b: n.a*m.b + n.b*m.d,
		c: n.c*m.a + n.d*m.c,
		d: n.c*m.b + n.d*m.d,
	}
}

func translate(t float32) abcd {
	return abcd{1, t, 0, 1}
}

func refract(radius, n1, n2 float32) abcd {
	c := float32(0)
	if radius != 0 {
		c = (n1 - n2) / (n2 * radius)
	}
	return abcd{1, 0, c, n1 / n2}
}

func reflect(radius float32) abcd {
	c := float32(0)
	if radius != 0 {
		c = 2 / radius
	}
	return abcd{1, 0, c, 1}
}

func mediumBefore(s []LensSurface, k int) float32 {
	if k == 0 {
		return 1
	}
	return s[k-1].IOR
}

// fresnel is the normal-incidence reflectance of surface k.
func fresnel(s []LensSurface, k int) float32 {
	n1, n2 := mediumBefore(s, k), s[k].IOR
	r := (n1 - n2) / (n1 + n2)
	return r * r
}

// forward propagates from surface from (inclusive) to the sensor.
func forward(s []LensSurface, from int, sensorZ float32) abcd {
	m := abcd{1, 0, 0, 1}
	for k := from; k < len(s); k++ {
		m = m.then(refract(s[k].Radius, mediumBefore(s, k), s[k].IOR))
		next := sensorZ
		if k+1 < len(s) {
			next = s[k+1].Z
		}
		m = m.then(translate(next - s[k].Z))
	}
	return m
}

// ghostPath follows a ray reflected at j back to i and forward again to the sensor.
func ghostPath(s []LensSurface, i, j int, sensorZ float32) abcd {
	m := abcd{1, 0, 0, 1}
	for k := 0; k < j; k++ {
		m = m.then(refract(s[k].Radius, mediumBefore(s, k), s[k].IOR))
		m = m.then(translate(s[k+1].Z - s[k].Z))
	}
	m = m.then(reflect(s[j].Radius))
	m = m.then(translate(s[j].Z - s[j-1].Z))
	for k := j - 1; k > i; k-- {
		m = m.then(refract(-s[k].Radius, s[k].IOR, mediumBefore(s, k)))
		m = m.then(translate(s[k].Z - s[k-1].Z))
	}
	m = m.then(reflect(-s[i].Radius))
	m = m.then(translate(s[i+1].Z - s[i].Z))
	return m.then(forward(s, i+1, sensorZ))
}

const (
	ghostMinRadius     = 0.01
	ghostMaxRadius     = 0.6
	ghostMaxGain       = 100
	haloIntensityScale = 0.05
	haloRadius         = 0.08
)

/**
 * @brief Traces the paraxial ghosts of every pair of reflecting surfaces
 * (the stop does not reflect) for a sun at sunScreen (uv, visible, factor).
 * Ghosts mirror the sun through the image centre scaled by their
 * magnification; their size comes from the stop aperture. The first entry
 * is a soft halo around the sun itself. Nothing is returned when the sun is
 * not visible.
 */
func ComputeGhosts(surfaces []LensSurface, params LensParams, sunScreen math.Vec4, sunColour math.Vec4) []Ghost {
	weight := sunScreen.Z * sunScreen.W * sunColour.W
	if weight <= 0 || len(surfaces) < 2 {
		return nil
	}
	var aperture float32
	for _, s := range surfaces {
		if s.Stop {
			aperture = s.Aperture
		}
	}
	sun := math.NewVec2(sunScreen.X, sunScreen.Y)
	colour := sunColour.ToVec3()

	ghosts := []Ghost{{
		Center:    sun,
		Radius:    math.NewVec2(haloRadius*params.SensorH/params.SensorW, haloRadius),
		Intensity: weight * haloIntensityScale,
		Tint:      colour,
		Softness:  1,
	}}

	main := forward(surfaces, 0, params.SensorZ)
	scale := main.b
	if math.Abs(scale) < 1e-6 {
		scale = 1
	}
	var reflectors []int
	for k, s := range surfaces {
		if !s.Stop {
			reflectors = append(reflectors, k)
		}
	}
	total := len(reflectors) * (len(reflectors) - 1) / 2
	n := 0
	for a := 0; a < len(reflectors); a++ {
		for b := a + 1; b < len(reflectors); b++ {
			i, j := reflectors[a], reflectors[b]
			g := ghostPath(surfaces, i, j, params.SensorZ)
			mag := g.b / scale
			spread := math.Abs(g.a) * aperture
			rx := math.Clamp(spread/params.SensorW, ghostMinRadius, ghostMaxRadius)
			ry := math.Clamp(spread/params.SensorH, ghostMinRadius, ghostMaxRadius)
			gain := math.Clamp(1/(g.a*g.a+1e-6), 0, ghostMaxGain)

			t := float32(n) / float32(total)
			tint := math.NewVec3(
				0.6+0.4*math.Cos(2*math.K_PI*t),
				0.6+0.4*math.Cos(2*math.K_PI*(t+0.33)),
				0.6+0.4*math.Cos(2*math.K_PI*(t+0.67)),
			).Mul(colour)

			ghosts = append(ghosts, Ghost{
				Center: math.NewVec2(
					0.5+(sun.X-0.5)*mag,
					0.5+(sun.Y-0.5)*mag,
				),
				Radius:    math.NewVec2(rx, ry),
				Intensity: weight * fresnel(surfaces, i) * fresnel(surfaces, j) * gain,
				Tint:      tint,
				Softness:  0.2,
			})
			n++
		}
	}
	return ghosts
}

/**
 * @brief Evaluates the flare radiance at uv.
 */
func FlareAt(ghosts []Ghost, uv math.Vec2) math.Vec3 {
	var out math.Vec3
	for _, g := range ghosts {
		dx := (uv.X - g.Center.X) / g.Radius.X
		dy := (uv.Y - g.Center.Y) / g.Radius.Y
		d := math.Sqrt(dx*dx + dy*dy)
		if d >= 1 {
			continue
		}
		w := 1 - math.Smoothstep(1-g.Softness, 1, d)
		out = out.Add(g.Tint.MulScalar(g.Intensity * w))
	}
	return out
}
