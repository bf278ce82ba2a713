package software

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/spaghettifunk/simcam/engine/config"
	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/math"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/renderer/passes"
	"github.com/spaghettifunk/simcam/engine/renderer/targets"
)

func newDevice(t *testing.T, opts ...Option) *Device {
	t.Helper()
	d, err := NewDevice(md.Extent2D{Width: 16, Height: 8}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func mustImage(t *testing.T, d *Device, name string, extent md.Extent2D) md.ImageHandle {
	t.Helper()
	h, err := d.CreateImage(md.ImageDesc{
		Name:    name,
		Extent:  extent,
		Format:  md.FormatRGBA16F,
		Usage:   md.UsageColorAttachment | md.UsageSampled,
		Sampler: md.SamplerNearestClamp,
	})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func mustBuffer(t *testing.T, d *Device, name string, size uint64) md.BufferHandle {
	t.Helper()
	h, err := d.CreateBuffer(md.BufferDesc{Name: name, Size: size, Usage: md.BufferUsageStorage | md.BufferUsageHostVisible})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func blurPipeline() md.PipelineDesc {
	return md.PipelineDesc{
		Program:          md.ProgramBloomBlur,
		Kind:             md.PipelineGraphics,
		Bindings:         []md.BindingLayout{{Slot: md.BloomSlotSource, Kind: md.BindingSampledImage, Stages: md.ShaderStageFragment}},
		PushConstantSize: md.BloomPushSize,
		ColorFormats:     []md.Format{md.FormatRGBA16F},
	}
}

func TestBloomPingPongMatchesReference(t *testing.T) {
	d := newDevice(t)
	extent := md.Extent2D{Width: 16, Height: 8}
	a := mustImage(t, d, "bloom.a", extent)
	b := mustImage(t, d, "bloom.b", extent)
	const cx, cy, radius = 8, 3, 3
	d.FillImage(a, func(x, y int) math.Vec4 {
		if x == cx && y == cy {
			return math.NewVec4(1, 1, 1, 1)
		}
		return math.Vec4{}
	})

	p, err := d.CreatePipeline(blurPipeline())
	if err != nil {
		t.Fatal(err)
	}
	sets := make([]md.BindingSetHandle, 2)
	for i, src := range []md.ImageHandle{a, b} {
		if sets[i], err = d.CreateBindingSet(p); err != nil {
			t.Fatal(err)
		}
		if err := d.UpdateBindingSet(sets[i], []md.Binding{{Slot: md.BloomSlotSource, Image: src, Layout: md.LayoutShaderRead}}); err != nil {
			t.Fatal(err)
		}
	}

	cmd, _ := d.Begin(0, "bloom")
	step := func(src, dst md.ImageHandle, set md.BindingSetHandle, dir math.Vec2, first bool) {
		srcOld, dstOld := md.LayoutColorAttachment, md.LayoutShaderRead
		if first {
			srcOld, dstOld = md.LayoutUndefined, md.LayoutUndefined
		}
		cmd.PipelineBarrier(
			md.Barrier{Image: src, OldLayout: srcOld, NewLayout: md.LayoutShaderRead},
			md.Barrier{Image: dst, OldLayout: dstOld, NewLayout: md.LayoutColorAttachment},
		)
		cmd.BeginRenderPass(md.RenderPassBegin{
			Name:   "blur",
			Extent: extent,
			Color: []md.Attachment{{
				Image: dst, Format: md.FormatRGBA16F, Store: md.StoreOperationStore, Layout: md.LayoutColorAttachment,
			}},
		})
		cmd.BindPipeline(p)
		cmd.BindSet(set)
		cmd.PushConstants(passes.BloomPush{Texel: extent.Texel(), Direction: dir, Radius: radius}.Encode())
		cmd.Draw(3)
		cmd.EndRenderPass()
	}
	step(a, b, sets[0], math.NewVec2(1, 0), true)
	step(b, a, sets[1], math.NewVec2(0, 1), false)
	if err := cmd.End(); err != nil {
		t.Fatal(err)
	}
	fence, _ := d.CreateFence(false)
	if err := d.Submit(cmd, md.SubmitInfo{Fence: fence}); err != nil {
		t.Fatal(err)
	}
	if err := d.WaitFence(fence, time.Second); err != nil {
		t.Fatal(err)
	}

	w := passes.GaussianWeights(radius)
	weight := func(delta int) float32 {
		if delta < 0 {
			delta = -delta
		}
		if delta > radius {
			return 0
		}
		return w[delta]
	}
	pixels, _, _ := d.ReadImage(a)
	for y := 0; y < int(extent.Height); y++ {
		for x := 0; x < int(extent.Width); x++ {
			want := weight(x-cx) * weight(y-cy)
			if got := pixels[y*int(extent.Width)+x].X; math.Abs(got-want) > 1e-5 {
				t.Fatalf("texel (%d, %d) = %g, want %g", x, y, got, want)
			}
		}
	}
	if v := d.Violations(); len(v) > 0 {
		t.Fatal(v)
	}
}

func TestUnknownProgramIsRejected(t *testing.T) {
	d := newDevice(t)
	_, err := d.CreatePipeline(md.PipelineDesc{Program: "tonemap_v2", Kind: md.PipelineCompute})
	if !errors.Is(err, core.ErrAssetInvalid) {
		t.Fatalf("expected an invalid asset error, got %v", err)
	}
}

func TestSubmitRejectsStaleBindings(t *testing.T) {
	d := newDevice(t)
	p, err := d.CreatePipeline(blurPipeline())
	if err != nil {
		t.Fatal(err)
	}
	record := func(set md.BindingSetHandle) md.CommandBuffer {
		cmd, _ := d.Begin(0, "stale")
		cmd.BindPipeline(p)
		cmd.BindSet(set)
		if err := cmd.End(); err != nil {
			t.Fatal(err)
		}
		return cmd
	}

	unwritten, _ := d.CreateBindingSet(p)
	if err := d.Submit(record(unwritten), md.SubmitInfo{}); !errors.Is(err, core.ErrStaleBinding) {
		t.Fatalf("unwritten slot: %v", err)
	}

	img := mustImage(t, d, "old", md.Extent2D{Width: 4, Height: 4})
	set, _ := d.CreateBindingSet(p)
	if err := d.UpdateBindingSet(set, []md.Binding{{Slot: md.BloomSlotSource, Image: img, Layout: md.LayoutShaderRead}}); err != nil {
		t.Fatal(err)
	}
	d.DestroyImage(img)
	if err := d.Submit(record(set), md.SubmitInfo{}); !errors.Is(err, core.ErrStaleBinding) {
		t.Fatalf("destroyed image: %v", err)
	}
	if err := d.UpdateBindingSet(set, []md.Binding{{Slot: md.BloomSlotSource, Image: img}}); !errors.Is(err, core.ErrStaleBinding) {
		t.Fatalf("binding a destroyed image: %v", err)
	}
	if d.Pending() != 0 {
		t.Fatalf("rejected work was queued")
	}
}

func TestHostAccessWaitsForTheQueue(t *testing.T) {
	d := newDevice(t)
	buf := mustBuffer(t, d, "counters", 16)
	fence, _ := d.CreateFence(false)

	cmd, _ := d.Begin(0, "fill")
	cmd.FillBuffer(buf, 0, 16, 7)
	if err := cmd.End(); err != nil {
		t.Fatal(err)
	}
	if err := d.Submit(cmd, md.SubmitInfo{Fence: fence}); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteBuffer(buf, 0, make([]byte, 4)); !errors.Is(err, ErrInFlight) {
		t.Fatalf("write during flight: %v", err)
	}
	if err := d.ResetFence(fence); !errors.Is(err, ErrInFlight) {
		t.Fatalf("reset during flight: %v", err)
	}
	if err := d.WaitFence(fence, time.Second); err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 16)
	if err := d.ReadBuffer(buf, 0, out); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 16; i += 4 {
		if v := binary.LittleEndian.Uint32(out[i:]); v != 7 {
			t.Fatalf("word %d = %d", i/4, v)
		}
	}
}

func TestWaitFenceRunsWorkInOrder(t *testing.T) {
	d := newDevice(t)
	buf := mustBuffer(t, d, "order", 4)
	var fences []md.FenceHandle
	for i, label := range []string{"first", "second", "third"} {
		f, _ := d.CreateFence(false)
		fences = append(fences, f)
		cmd, _ := d.Begin(i, label)
		cmd.FillBuffer(buf, 0, 4, uint32(i+1))
		if err := cmd.End(); err != nil {
			t.Fatal(err)
		}
		if err := d.Submit(cmd, md.SubmitInfo{Fence: f}); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.WaitFence(fences[1], time.Second); err != nil {
		t.Fatal(err)
	}
	if d.Pending() != 1 {
		t.Fatalf("%d submissions pending, want 1", d.Pending())
	}
	var executed []string
	for _, e := range d.Events() {
		if e.Kind == EventExecute {
			executed = append(executed, e.Label)
		}
	}
	if len(executed) != 2 || executed[0] != "first" || executed[1] != "second" {
		t.Fatalf("executed %v", executed)
	}
	if err := d.WaitFence(fences[0], time.Second); err != nil {
		t.Fatal(err)
	}

	idle, _ := d.CreateFence(false)
	if err := d.WaitFence(idle, time.Millisecond); !errors.Is(err, core.ErrTimeout) {
		t.Fatalf("waiting on a fence nothing signals: %v", err)
	}
	if err := d.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 4)
	if err := d.ReadBuffer(buf, 0, out); err != nil {
		t.Fatal(err)
	}
	if v := binary.LittleEndian.Uint32(out); v != 3 {
		t.Fatalf("last write is %d, want 3", v)
	}
}

func TestMemoryBudget(t *testing.T) {
	d := newDevice(t, WithMemoryBudget(1000))
	first, err := d.CreateBuffer(md.BufferDesc{Name: "a", Size: 600, Usage: md.BufferUsageStorage})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.CreateBuffer(md.BufferDesc{Name: "b", Size: 600, Usage: md.BufferUsageStorage}); !errors.Is(err, core.ErrResourceCreation) {
		t.Fatalf("over budget: %v", err)
	}
	d.DestroyBuffer(first)
	if _, err := d.CreateBuffer(md.BufferDesc{Name: "b", Size: 600, Usage: md.BufferUsageStorage}); err != nil {
		t.Fatal(err)
	}
	if s := d.Stats(); s.Buffers != 1 || s.BufferBytes != 600 {
		t.Fatalf("stats %+v", s)
	}
}

func TestSurfaceOutOfDate(t *testing.T) {
	d := newDevice(t)
	img, err := d.AcquireImage(0)
	if err != nil {
		t.Fatal(err)
	}
	d.InvalidateSurface()
	if _, err := d.AcquireImage(1); !errors.Is(err, core.ErrSurfaceOutOfDate) {
		t.Fatalf("acquire: %v", err)
	}
	if err := d.Present(img); !errors.Is(err, core.ErrSurfaceOutOfDate) {
		t.Fatalf("present: %v", err)
	}
	if err := d.RecreateSurface(md.Extent2D{Width: 20, Height: 10}); err != nil {
		t.Fatal(err)
	}
	img, err = d.AcquireImage(0)
	if err != nil {
		t.Fatal(err)
	}
	if img.Extent != (md.Extent2D{Width: 20, Height: 10}) {
		t.Fatalf("acquired a %s image", img.Extent)
	}
}

func TestCopyImageToBufferSwizzles(t *testing.T) {
	d := newDevice(t)
	surface, err := d.AcquireImage(0)
	if err != nil {
		t.Fatal(err)
	}
	d.FillImage(surface.Image, func(x, y int) math.Vec4 { return math.NewVec4(1, 0.5, 0, 1) })
	buf, err := d.CreateBuffer(md.BufferDesc{Name: "capture", Size: 16 * 8 * 4, Usage: md.BufferUsageTransferDst | md.BufferUsageHostVisible})
	if err != nil {
		t.Fatal(err)
	}
	cmd, _ := d.Begin(0, "capture")
	cmd.PipelineBarrier(md.Barrier{Image: surface.Image, NewLayout: md.LayoutTransferSrc})
	cmd.CopyImageToBuffer(surface.Image, buf)
	if err := cmd.End(); err != nil {
		t.Fatal(err)
	}
	if err := d.Submit(cmd, md.SubmitInfo{}); err != nil {
		t.Fatal(err)
	}
	if err := d.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 4)
	if err := d.ReadBuffer(buf, 0, out); err != nil {
		t.Fatal(err)
	}
	if out[0] != 0 || out[1] != 128 || out[2] != 255 || out[3] != 255 {
		t.Fatalf("BGRA texel %v", out)
	}
}

func TestRasterizerCulling(t *testing.T) {
	colour := &image{
		desc:   md.ImageDesc{Extent: md.Extent2D{Width: 8, Height: 8}, Format: md.FormatRGBA16F},
		pixels: make([]math.Vec4, 64),
	}
	white := func(varying) math.Vec4 { return math.NewVec4(1, 1, 1, 1) }
	vert := func(x, y float32) varying { return varying{clip: math.NewVec4(x, y, 0.5, 1)} }
	// Counter-clockwise as seen on screen, which is front facing.
	front := [3]varying{vert(-0.5, -0.5), vert(0, 0.5), vert(0.5, -0.5)}
	back := [3]varying{front[0], front[2], front[1]}

	cases := []struct {
		name  string
		cull  md.FaceCullMode
		tri   [3]varying
		drawn bool
	}{
		{"front with back culling", md.FaceCullModeBack, front, true},
		{"back with back culling", md.FaceCullModeBack, back, false},
		{"back with front culling", md.FaceCullModeFront, back, true},
		{"front with front culling", md.FaceCullModeFront, front, false},
		{"back without culling", md.FaceCullModeNone, back, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			for i := range colour.pixels {
				colour.pixels[i] = math.Vec4{}
			}
			r := rasterizer{
				desc:     &md.PipelineDesc{CullMode: c.cull},
				colour:   colour,
				extent:   colour.desc.Extent,
				fragment: white,
			}
			r.triangle(c.tri)
			if got := colour.at(4, 3).X == 1; got != c.drawn {
				t.Fatalf("centre drawn = %v, want %v", got, c.drawn)
			}
		})
	}
}

func TestRasterizerDepthTest(t *testing.T) {
	extent := md.Extent2D{Width: 8, Height: 8}
	colour := &image{desc: md.ImageDesc{Extent: extent, Format: md.FormatRGBA16F}, pixels: make([]math.Vec4, 64)}
	depth := &image{desc: md.ImageDesc{Extent: extent, Format: md.FormatD32}, pixels: make([]math.Vec4, 64)}
	for i := range depth.pixels {
		depth.pixels[i] = math.NewVec4(1, 0, 0, 0)
	}
	tri := func(z float32) [3]varying {
		v := func(x, y float32) varying { return varying{clip: math.NewVec4(x, y, z, 1)} }
		return [3]varying{v(-1, -1), v(-1, 1), v(1, -1)}
	}
	shade := func(c float32) func(varying) math.Vec4 {
		return func(varying) math.Vec4 { return math.NewVec4(c, c, c, 1) }
	}
	desc := &md.PipelineDesc{DepthTest: true, DepthWrite: true, DepthCompare: md.CompareLess}
	near := rasterizer{desc: desc, colour: colour, depth: depth, extent: extent, fragment: shade(0.25)}
	near.triangle(tri(0.2))
	far := rasterizer{desc: desc, colour: colour, depth: depth, extent: extent, fragment: shade(0.75)}
	far.triangle(tri(0.6))

	if got := colour.at(1, 1).X; got != 0.25 {
		t.Fatalf("far triangle overwrote the near one: %g", got)
	}
	if got := depth.at(1, 1).X; math.Abs(got-0.2) > 1e-6 {
		t.Fatalf("depth %g, want 0.2", got)
	}
}

// runBloom records the bloom pass over a scene colour target filled by fill
// and returns the final contents of both bloom targets.
func runBloom(t *testing.T, cfg config.BloomConfig, surface md.Extent2D, fill func(x, y int) math.Vec4) (a, b []math.Vec4, extent md.Extent2D) {
	t.Helper()
	d, err := NewDevice(surface)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Destroy)

	tm := targets.NewManager(d)
	t.Cleanup(tm.Destroy)
	if _, err := tm.Register(targets.Spec{
		Name:    passes.ResSceneColor,
		Format:  md.FormatRGBA16F,
		Usage:   md.UsageColorAttachment | md.UsageSampled,
		Sampler: md.SamplerLinearClamp,
		Scale:   1,
	}); err != nil {
		t.Fatal(err)
	}
	bloom := passes.NewBloomPass(cfg)
	for _, spec := range bloom.Targets() {
		if _, err := tm.Register(spec); err != nil {
			t.Fatal(err)
		}
	}
	if err := tm.Recreate(surface); err != nil {
		t.Fatal(err)
	}
	env := &passes.Env{Device: d, Targets: tm, Generation: 1}
	sceneImg, imgA, imgB := env.Image(passes.ResSceneColor), env.Image(passes.ResBloomA), env.Image(passes.ResBloomB)
	d.FillImage(sceneImg, fill)

	if err := bloom.Create(d, passes.NoCode{}, 1); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { bloom.Destroy(d) })
	if err := bloom.Bind(env, 0); err != nil {
		t.Fatal(err)
	}

	cmd, _ := d.Begin(0, "bloom")
	frame := &passes.Frame{Slot: 0, Env: env}
	layouts := map[md.ImageHandle]md.ImageLayout{sceneImg: md.LayoutUndefined, imgA: md.LayoutUndefined, imgB: md.LayoutUndefined}
	step := func(node string, src, dst md.ImageHandle) {
		cmd.PipelineBarrier(
			md.Barrier{Image: src, OldLayout: layouts[src], NewLayout: md.LayoutShaderRead},
			md.Barrier{Image: dst, OldLayout: layouts[dst], NewLayout: md.LayoutColorAttachment},
		)
		layouts[src], layouts[dst] = md.LayoutShaderRead, md.LayoutColorAttachment
		if err := bloom.Record(node, cmd, frame); err != nil {
			t.Fatal(err)
		}
	}
	step(passes.NodeBloomExtract, sceneImg, imgA)
	step(passes.NodeBloomBlurH, imgA, imgB)
	step(passes.NodeBloomBlurV, imgB, imgA)
	if err := cmd.End(); err != nil {
		t.Fatal(err)
	}
	fence, _ := d.CreateFence(false)
	defer d.DestroyFence(fence)
	if err := d.Submit(cmd, md.SubmitInfo{Fence: fence}); err != nil {
		t.Fatal(err)
	}
	if err := d.WaitFence(fence, time.Second); err != nil {
		t.Fatal(err)
	}
	if v := d.Violations(); len(v) > 0 {
		t.Fatal(v)
	}

	a, extent, _ = d.ReadImage(imgA)
	b, _, _ = d.ReadImage(imgB)
	return a, b, extent
}

func TestBloomPassUniformScene(t *testing.T) {
	cfg := config.Default().Bloom
	colour := math.NewVec4(2, 1.5, 1, 1)
	a, b, extent := runBloom(t, cfg, md.Extent2D{Width: 32, Height: 24}, func(x, y int) math.Vec4 { return colour })

	if want := (md.Extent2D{Width: 16, Height: 12}); extent != want {
		t.Fatalf("bloom targets are %s, want %s", extent, want)
	}
	// a blur of a constant image is the constant
	want := passes.SoftThreshold(colour.ToVec3(), cfg.Threshold, cfg.Knee)
	for name, pixels := range map[string][]math.Vec4{passes.ResBloomA: a, passes.ResBloomB: b} {
		for i, p := range pixels {
			got := p.ToVec3()
			if math.Abs(got.X-want.X) > 1e-4 || math.Abs(got.Y-want.Y) > 1e-4 || math.Abs(got.Z-want.Z) > 1e-4 {
				t.Fatalf("%s texel %d = %+v, want %+v", name, i, got, want)
			}
		}
	}
}

func TestBloomPassMatchesSeparableReference(t *testing.T) {
	cfg := config.Default().Bloom
	cfg.Scale = 1
	cfg.Radius = 3
	surface := md.Extent2D{Width: 20, Height: 12}
	w, h := int(surface.Width), int(surface.Height)
	scene := func(x, y int) math.Vec4 {
		if x == 9 && y == 5 {
			return math.NewVec4(8, 6, 4, 1)
		}
		if x >= 14 {
			return math.NewVec4(1.2, 1.2, 1.2, 1)
		}
		return math.NewVec4(0.3, 0.3, 0.3, 1)
	}
	a, b, _ := runBloom(t, cfg, surface, scene)

	clamp := func(v, hi int) int { return math.Clamp(v, 0, hi-1) }
	weights := passes.GaussianWeights(cfg.Radius)
	blur := func(src []math.Vec3, dx, dy int) []math.Vec3 {
		out := make([]math.Vec3, len(src))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				acc := src[y*w+x].MulScalar(weights[0])
				for i := 1; i < len(weights); i++ {
					p := src[clamp(y+dy*i, h)*w+clamp(x+dx*i, w)]
					n := src[clamp(y-dy*i, h)*w+clamp(x-dx*i, w)]
					acc = acc.Add(p.Add(n).MulScalar(weights[i]))
				}
				out[y*w+x] = acc
			}
		}
		return out
	}
	bright := make([]math.Vec3, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bright[y*w+x] = passes.SoftThreshold(scene(x, y).ToVec3(), cfg.Threshold, cfg.Knee)
		}
	}
	horizontal := blur(bright, 1, 0)
	vertical := blur(horizontal, 0, 1)

	check := func(name string, got []math.Vec4, want []math.Vec3) {
		for i := range want {
			g := got[i].ToVec3()
			if math.Abs(g.X-want[i].X) > 1e-3 || math.Abs(g.Y-want[i].Y) > 1e-3 || math.Abs(g.Z-want[i].Z) > 1e-3 {
				t.Fatalf("%s texel (%d, %d) = %+v, want %+v", name, i%w, i/w, g, want[i])
			}
		}
	}
	check(passes.ResBloomB, b, horizontal)
	check(passes.ResBloomA, a, vertical)
}
