package software

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/simcam/engine/math"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

type op func(x *exec) error

/**
 * @brief Recorded commands plus every handle they reference, so Submit can
 * reject stale work and the host can be told what is in flight.
 */
type commandBuffer struct {
	slot   int
	label  string
	ops    []op
	ended  bool
	inPass bool

	pipes   map[md.PipelineHandle]bool
	sets    map[md.BindingSetHandle]bool
	images  map[md.ImageHandle]bool
	buffers map[md.BufferHandle]bool
}

func newCommandBuffer(slot int, label string) *commandBuffer {
	return &commandBuffer{
		slot:    slot,
		label:   label,
		pipes:   make(map[md.PipelineHandle]bool),
		sets:    make(map[md.BindingSetHandle]bool),
		images:  make(map[md.ImageHandle]bool),
		buffers: make(map[md.BufferHandle]bool),
	}
}

// exec is the state of a command buffer while it runs.
type exec struct {
	d    *Device
	pipe *pipeline
	set  *bindingSet
	push []byte
	pass *md.RenderPassBegin
}

func (c *commandBuffer) execute(d *Device) error {
	x := &exec{d: d}
	for _, o := range c.ops {
		if err := o(x); err != nil {
			return err
		}
	}
	return nil
}

func (c *commandBuffer) record(o op) {
	c.ops = append(c.ops, o)
}

func (c *commandBuffer) BeginRenderPass(begin md.RenderPassBegin) {
	c.inPass = true
	attachments := append([]md.Attachment(nil), begin.Color...)
	if begin.Depth != nil {
		attachments = append(attachments, *begin.Depth)
	}
	for _, a := range attachments {
		c.images[a.Image] = true
	}
	c.record(func(x *exec) error {
		for _, a := range attachments {
			img, ok := x.d.images[a.Image]
			if !ok {
				return fmt.Errorf("render pass %s: attachment %d destroyed", begin.Name, a.Image)
			}
			if img.layout != a.Layout {
				x.d.violate("render pass %s: %s is %s, want %s", begin.Name, img.desc.Name, img.layout, a.Layout)
			}
			if img.desc.Extent != begin.Extent {
				x.d.violate("render pass %s: %s is %s, pass is %s", begin.Name, img.desc.Name, img.desc.Extent, begin.Extent)
			}
			if a.Load != md.LoadOperationClear {
				continue
			}
			clear := a.ClearColor
			if img.desc.Format.IsDepth() {
				clear = math.NewVec4(a.ClearDepth, 0, 0, 0)
			}
			for i := range img.pixels {
				img.pixels[i] = clear
			}
		}
		x.pass = &begin
		return nil
	})
}

func (c *commandBuffer) EndRenderPass() {
	c.inPass = false
	c.record(func(x *exec) error {
		x.pass = nil
		return nil
	})
}

func (c *commandBuffer) BindPipeline(h md.PipelineHandle) {
	c.pipes[h] = true
	c.record(func(x *exec) error {
		p, ok := x.d.pipes[h]
		if !ok {
			return fmt.Errorf("pipeline %d destroyed", h)
		}
		x.pipe = p
		return nil
	})
}

func (c *commandBuffer) BindSet(h md.BindingSetHandle) {
	c.sets[h] = true
	c.record(func(x *exec) error {
		s, ok := x.d.sets[h]
		if !ok {
			return fmt.Errorf("binding set %d destroyed", h)
		}
		x.set = s
		return nil
	})
}

func (c *commandBuffer) PushConstants(data []byte) {
	push := append([]byte(nil), data...)
	c.record(func(x *exec) error {
		x.push = push
		return nil
	})
}

func (c *commandBuffer) Draw(vertexCount uint32) {
	c.record(func(x *exec) error {
		if x.pipe != nil && x.pipe.desc.ProceduralVertices {
			return x.drawProcedural(vertexCount)
		}
		return x.drawFullscreen()
	})
}

func (c *commandBuffer) DrawMesh(mesh md.Mesh) {
	vb, ib, count := mesh.VertexBuffer(), mesh.IndexBuffer(), mesh.IndexCount()
	c.buffers[vb] = true
	c.buffers[ib] = true
	c.record(func(x *exec) error {
		return x.drawMesh(vb, ib, count)
	})
}

func (c *commandBuffer) Dispatch(gx, gy, gz uint32) {
	c.record(func(x *exec) error {
		return x.dispatch(gx, gy, gz)
	})
}

func (c *commandBuffer) PipelineBarrier(barriers ...md.Barrier) {
	bs := append([]md.Barrier(nil), barriers...)
	for _, b := range bs {
		if b.Image != 0 {
			c.images[b.Image] = true
		} else {
			c.buffers[b.Buffer] = true
		}
	}
	c.record(func(x *exec) error {
		for _, b := range bs {
			if b.Image == 0 {
				continue
			}
			img, ok := x.d.images[b.Image]
			if !ok {
				return fmt.Errorf("barrier on destroyed image %d", b.Image)
			}
			if b.OldLayout != md.LayoutUndefined && b.OldLayout != img.layout {
				x.d.violate("barrier on %s from %s, image is %s", img.desc.Name, b.OldLayout, img.layout)
			}
			img.layout = b.NewLayout
		}
		return nil
	})
}

func (c *commandBuffer) FillBuffer(h md.BufferHandle, offset, size uint64, value uint32) {
	c.buffers[h] = true
	c.record(func(x *exec) error {
		b, ok := x.d.buffers[h]
		if !ok {
			return fmt.Errorf("fill of destroyed buffer %d", h)
		}
		if offset+size > b.desc.Size {
			return fmt.Errorf("fill of %q out of range", b.desc.Name)
		}
		for i := offset; i+4 <= offset+size; i += 4 {
			binary.LittleEndian.PutUint32(b.data[i:], value)
		}
		return nil
	})
}

func (c *commandBuffer) CopyBuffer(src, dst md.BufferHandle, srcOffset, dstOffset, size uint64) {
	c.buffers[src] = true
	c.buffers[dst] = true
	c.record(func(x *exec) error {
		s, ok1 := x.d.buffers[src]
		t, ok2 := x.d.buffers[dst]
		if !ok1 || !ok2 {
			return fmt.Errorf("copy between destroyed buffers %d -> %d", src, dst)
		}
		if srcOffset+size > s.desc.Size || dstOffset+size > t.desc.Size {
			return fmt.Errorf("copy %q -> %q out of range", s.desc.Name, t.desc.Name)
		}
		copy(t.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
		return nil
	})
}

func (c *commandBuffer) CopyImageToBuffer(src md.ImageHandle, dst md.BufferHandle) {
	c.images[src] = true
	c.buffers[dst] = true
	c.record(func(x *exec) error {
		img, ok1 := x.d.images[src]
		b, ok2 := x.d.buffers[dst]
		if !ok1 || !ok2 {
			return fmt.Errorf("image copy with destroyed resources %d -> %d", src, dst)
		}
		if img.layout != md.LayoutTransferSrc {
			x.d.violate("copy from %s in %s layout", img.desc.Name, img.layout)
		}
		if uint64(len(img.pixels))*4 > b.desc.Size {
			return fmt.Errorf("image %q does not fit buffer %q", img.desc.Name, b.desc.Name)
		}
		for i, p := range img.pixels {
			r, g, bl, a := unorm8(p.X), unorm8(p.Y), unorm8(p.Z), unorm8(p.W)
			switch img.desc.Format {
			case md.FormatBGRA8:
				b.data[i*4], b.data[i*4+1], b.data[i*4+2], b.data[i*4+3] = bl, g, r, a
			case md.FormatRGBA8:
				b.data[i*4], b.data[i*4+1], b.data[i*4+2], b.data[i*4+3] = r, g, bl, a
			default:
				return fmt.Errorf("image copy from %s is not supported", img.desc.Format)
			}
		}
		return nil
	})
}

func unorm8(v float32) byte {
	return byte(math.Clamp(v, 0, 1)*255 + 0.5)
}

func (c *commandBuffer) End() error {
	if c.inPass {
		return fmt.Errorf("command buffer %q ended inside a render pass", c.label)
	}
	c.ended = true
	return nil
}
