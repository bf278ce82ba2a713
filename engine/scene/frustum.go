package scene

import "github.com/spaghettifunk/simcam/engine/math"

/**
 * @brief Six normalized planes (xyz normal, w distance) with the normals
 * pointing inwards. Order: left, right, bottom, top, near, far.
 */
type Frustum struct {
	Planes [6]math.Vec4
}

/**
 * @brief Extracts the frustum of a view-projection matrix whose clip space
 * has depth in [0, 1].
 */
func NewFrustum(viewProj math.Mat4) Frustum {
	c0 := viewProj.Column(0)
	c1 := viewProj.Column(1)
	c2 := viewProj.Column(2)
	c3 := viewProj.Column(3)

	f := Frustum{Planes: [6]math.Vec4{
		c3.Add(c0),
		c3.Add(c0.MulScalar(-1)),
		c3.Add(c1),
		c3.Add(c1.MulScalar(-1)),
		c2,
		c3.Add(c2.MulScalar(-1)),
	}}
	for i := range f.Planes {
		p := f.Planes[i]
		l := p.ToVec3().Length()
		if l > 0 {
			f.Planes[i] = p.MulScalar(1 / l)
		}
	}
	return f
}

// IntersectsSphere reports whether any part of the sphere is inside the frustum.
func (f *Frustum) IntersectsSphere(center math.Vec3, radius float32) bool {
	for _, p := range f.Planes {
		if p.ToVec3().Dot(center)+p.W < -radius {
			return false
		}
	}
	return true
}
