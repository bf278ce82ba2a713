package scene

import (
	"github.com/spaghettifunk/simcam/engine/math"
	"github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

/** @brief The maximum number of point lights passed to the shaders. */
const MaxPointLights = 10

/**
 * @brief An object to draw: a device mesh placed by a model transform, with
 * an optional emissive colour added to its lit colour.
 */
type Drawable struct {
	Name      string
	Transform math.Mat4
	Mesh      metadata.Mesh
	Emissive  math.Vec3
}

// BoundingSphere returns the world-space sphere enclosing the mesh bounds.
func (d *Drawable) BoundingSphere() (math.Vec3, float32) {
	b := d.Mesh.Bounds()
	center := b.Min.Add(b.Max).MulScalar(0.5)
	radius := b.Max.Sub(center).Length()
	worldCenter := d.Transform.TransformPoint(center)
	// Largest axis scale of the transform.
	sx := math.NewVec3(d.Transform.Data[0], d.Transform.Data[1], d.Transform.Data[2]).Length()
	sy := math.NewVec3(d.Transform.Data[4], d.Transform.Data[5], d.Transform.Data[6]).Length()
	sz := math.NewVec3(d.Transform.Data[8], d.Transform.Data[9], d.Transform.Data[10]).Length()
	return worldCenter, radius * math.Max(sx, math.Max(sy, sz))
}

/**
 * @brief The sun. Direction is the direction the light travels in.
 */
type DirectionalLight struct {
	Direction math.Vec3
	Colour    math.Vec3
	Intensity float32
}

type PointLight struct {
	Position  math.Vec3
	Colour    math.Vec3
	Intensity float32
}

/**
 * @brief The pre-built scene consumed by the frame pipeline. Scene loading
 * happens elsewhere; nothing here is validated.
 */
type Scene struct {
	Drawables   []Drawable
	Sun         DirectionalLight
	Ambient     math.Vec4
	PointLights []PointLight
}

func (s *Scene) Add(d Drawable) {
	s.Drawables = append(s.Drawables, d)
}

// AddPointLight adds a light; lights beyond MaxPointLights are ignored and false is returned.
func (s *Scene) AddPointLight(l PointLight) bool {
	if len(s.PointLights) >= MaxPointLights {
		return false
	}
	s.PointLights = append(s.PointLights, l)
	return true
}
