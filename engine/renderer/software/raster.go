package software

import (
	"fmt"

	"github.com/spaghettifunk/simcam/engine/math"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

// varying is a vertex after the vertex stage.
type varying struct {
	clip   math.Vec4
	world  math.Vec3
	normal math.Vec3
	colour math.Vec3
}

func (x *exec) target() (colour, depth *image, extent md.Extent2D, err error) {
	if x.pass == nil {
		return nil, nil, md.Extent2D{}, fmt.Errorf("draw outside a render pass")
	}
	if x.pipe == nil || x.pipe.desc.Kind != md.PipelineGraphics {
		return nil, nil, md.Extent2D{}, fmt.Errorf("draw without a graphics pipeline")
	}
	if len(x.pass.Color) > 0 {
		colour = x.d.images[x.pass.Color[0].Image]
	}
	if x.pass.Depth != nil {
		depth = x.d.images[x.pass.Depth.Image]
	}
	return colour, depth, x.pass.Extent, nil
}

/**
 * @brief Runs the bound full-screen program once per pixel of the render
 * pass, sampling at pixel centres.
 */
func (x *exec) drawFullscreen() error {
	colour, _, extent, err := x.target()
	if err != nil {
		return err
	}
	if colour == nil {
		return fmt.Errorf("full-screen draw without a colour attachment")
	}
	shade, err := fragmentPrograms[x.pipe.desc.Program](x)
	if err != nil {
		return fmt.Errorf("%s: %w", x.pipe.desc.Program, err)
	}
	texel := extent.Texel()
	for py := 0; py < int(extent.Height); py++ {
		for px := 0; px < int(extent.Width); px++ {
			uv := math.NewVec2((float32(px)+0.5)*texel.X, (float32(py)+0.5)*texel.Y)
			colour.set(px, py, shade(uv))
		}
	}
	return nil
}

func (x *exec) drawMesh(vb, ib md.BufferHandle, count uint32) error {
	colour, depth, extent, err := x.target()
	if err != nil {
		return err
	}
	vbuf, ok1 := x.d.buffers[vb]
	ibuf, ok2 := x.d.buffers[ib]
	if !ok1 || !ok2 {
		return fmt.Errorf("draw with destroyed mesh buffers")
	}
	vertices := md.DecodeVertices(vbuf.data)
	indices := md.DecodeIndices(ibuf.data)
	if int(count) > len(indices) {
		return fmt.Errorf("draw of %d indices from a buffer of %d", count, len(indices))
	}
	vertex, fragment, err := meshPrograms[x.pipe.desc.Program](x)
	if err != nil {
		return fmt.Errorf("%s: %w", x.pipe.desc.Program, err)
	}
	r := rasterizer{
		desc:     &x.pipe.desc,
		colour:   colour,
		depth:    depth,
		extent:   extent,
		fragment: fragment,
	}
	for i := 0; i+2 < int(count); i += 3 {
		var tri [3]varying
		for k := 0; k < 3; k++ {
			idx := indices[i+k]
			if int(idx) >= len(vertices) {
				return fmt.Errorf("index %d out of range", idx)
			}
			tri[k] = vertex(vertices[idx])
		}
		r.triangle(tri)
	}
	return nil
}

/**
 * @brief Runs the bound procedural program over count vertices taken three
 * at a time as triangles.
 */
func (x *exec) drawProcedural(count uint32) error {
	colour, depth, extent, err := x.target()
	if err != nil {
		return err
	}
	vertex, fragment, err := proceduralPrograms[x.pipe.desc.Program](x)
	if err != nil {
		return fmt.Errorf("%s: %w", x.pipe.desc.Program, err)
	}
	r := rasterizer{
		desc:     &x.pipe.desc,
		colour:   colour,
		depth:    depth,
		extent:   extent,
		fragment: fragment,
	}
	for i := uint32(0); i+2 < count; i += 3 {
		r.triangle([3]varying{vertex(i), vertex(i + 1), vertex(i + 2)})
	}
	return nil
}

type rasterizer struct {
	desc     *md.PipelineDesc
	colour   *image
	depth    *image
	extent   md.Extent2D
	fragment func(v varying) math.Vec4
}

func edge(a, b, p math.Vec2) float32 {
	return (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
}

func depthPasses(op md.CompareOp, z, current float32) bool {
	switch op {
	case md.CompareNever:
		return false
	case md.CompareLess:
		return z < current
	case md.CompareLessOrEqual:
		return z <= current
	}
	return true
}

/**
 * @brief Rasterizes one triangle with perspective-correct interpolation.
 * Triangles that reach behind the eye are dropped rather than clipped.
 */
func (r *rasterizer) triangle(v [3]varying) {
	var screen [3]math.Vec2
	var z, invW [3]float32
	w, h := float32(r.extent.Width), float32(r.extent.Height)
	for k := range v {
		c := v[k].clip
		if c.W <= 1e-6 {
			return
		}
		invW[k] = 1 / c.W
		screen[k] = math.NewVec2((c.X*invW[k]*0.5+0.5)*w, (c.Y*invW[k]*0.5+0.5)*h)
		z[k] = c.Z * invW[k]
	}
	area := edge(screen[0], screen[1], screen[2])
	if math.Abs(area) < 1e-9 {
		return
	}
	// Framebuffer y points down, so counter-clockwise triangles have negative area.
	front := area < 0
	switch r.desc.CullMode {
	case md.FaceCullModeBack:
		if !front {
			return
		}
	case md.FaceCullModeFront:
		if front {
			return
		}
	case md.FaceCullModeFrontAndBack:
		return
	}

	minX := math.Max(int(math.Floor(math.Min3(screen[0].X, screen[1].X, screen[2].X))), 0)
	maxX := math.Min(int(math.Floor(math.Max3(screen[0].X, screen[1].X, screen[2].X))), int(r.extent.Width)-1)
	minY := math.Max(int(math.Floor(math.Min3(screen[0].Y, screen[1].Y, screen[2].Y))), 0)
	maxY := math.Min(int(math.Floor(math.Max3(screen[0].Y, screen[1].Y, screen[2].Y))), int(r.extent.Height)-1)

	for py := minY; py <= maxY; py++ {
		for px := minX; px <= maxX; px++ {
			p := math.NewVec2(float32(px)+0.5, float32(py)+0.5)
			b0 := edge(screen[1], screen[2], p) / area
			b1 := edge(screen[2], screen[0], p) / area
			b2 := edge(screen[0], screen[1], p) / area
			if b0 < 0 || b1 < 0 || b2 < 0 {
				continue
			}
			depth := b0*z[0] + b1*z[1] + b2*z[2]
			if depth < 0 || depth > 1 {
				continue
			}
			if r.depth != nil && r.desc.DepthTest {
				if !depthPasses(r.desc.DepthCompare, depth, r.depth.at(px, py).X) {
					continue
				}
			}
			if r.depth != nil && r.desc.DepthWrite {
				r.depth.set(px, py, math.NewVec4(depth, 0, 0, 0))
			}
			if r.fragment == nil || r.colour == nil {
				continue
			}
			// perspective-correct weights
			p0, p1, p2 := b0*invW[0], b1*invW[1], b2*invW[2]
			sum := p0 + p1 + p2
			p0, p1, p2 = p0/sum, p1/sum, p2/sum
			mix := func(a, b, c math.Vec3) math.Vec3 {
				return a.MulScalar(p0).Add(b.MulScalar(p1)).Add(c.MulScalar(p2))
			}
			r.colour.set(px, py, r.fragment(varying{
				world:  mix(v[0].world, v[1].world, v[2].world),
				normal: mix(v[0].normal, v[1].normal, v[2].normal),
				colour: mix(v[0].colour, v[1].colour, v[2].colour),
			}))
		}
	}
}

/**
 * @brief Samples at uv with clamp-to-edge addressing, bilinear for linear
 * samplers and nearest otherwise.
 */
func (i *image) sample(uv math.Vec2) math.Vec4 {
	w, h := float32(i.desc.Extent.Width), float32(i.desc.Extent.Height)
	if i.desc.Sampler != md.SamplerLinearClamp {
		return i.at(int(math.Floor(uv.X*w)), int(math.Floor(uv.Y*h)))
	}
	fx, fy := uv.X*w-0.5, uv.Y*h-0.5
	x0, y0 := math.Floor(fx), math.Floor(fy)
	tx, ty := fx-x0, fy-y0
	ix, iy := int(x0), int(y0)
	lerp := func(a, b math.Vec4, t float32) math.Vec4 {
		return a.MulScalar(1 - t).Add(b.MulScalar(t))
	}
	top := lerp(i.at(ix, iy), i.at(ix+1, iy), tx)
	bottom := lerp(i.at(ix, iy+1), i.at(ix+1, iy+1), tx)
	return lerp(top, bottom, ty)
}
