package frame

import (
	"errors"
	"fmt"
	"testing"

	"github.com/spaghettifunk/simcam/engine/config"
	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/math"
	"github.com/spaghettifunk/simcam/engine/publish"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/renderer/passes"
	"github.com/spaghettifunk/simcam/engine/renderer/software"
	"github.com/spaghettifunk/simcam/engine/scene"
)

const dt = float32(1.0 / 30)

func testConfig(mode config.FeedbackMode) *config.Config {
	cfg := config.Default()
	cfg.Renderer.Backend = config.BackendReference
	cfg.Renderer.ExposureFeedback = mode
	cfg.Window.Width, cfg.Window.Height = 32, 24
	cfg.Shadow.Resolution = 64
	return cfg
}

type harness struct {
	device *software.Device
	orch   *Orchestrator
	box    *scene.DeviceMesh
	cfg    *config.Config
}

func newHarness(t *testing.T, cfg *config.Config, opts ...Option) *harness {
	t.Helper()
	device, err := software.NewDevice(md.Extent2D{Width: cfg.Window.Width, Height: cfg.Window.Height})
	if err != nil {
		t.Fatal(err)
	}
	return newHarnessOn(t, device, cfg, opts...)
}

func newHarnessOn(t *testing.T, device *software.Device, cfg *config.Config, opts ...Option) *harness {
	t.Helper()
	box, err := scene.NewBoxMesh(device, "box", math.NewVec3(1, 1, 1), math.NewVec3(0.8, 0.6, 0.4))
	if err != nil {
		t.Fatal(err)
	}
	orch, err := New(device, cfg, passes.DefaultLensSystem(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{device: device, orch: orch, box: box, cfg: cfg}
	t.Cleanup(func() {
		if h.orch != nil {
			h.orch.Destroy()
		}
		box.Destroy(device)
		device.Destroy()
	})
	return h
}

func (h *harness) inputs() passes.FrameInputs {
	extent := h.device.SurfaceExtent()
	cam := scene.NewCamera(math.NewVec3(0, 1.5, 5), h.cfg.Camera.FovDeg, h.cfg.Camera.Near, h.cfg.Camera.Far)
	cam.LookAt(math.NewVec3Zero())
	return passes.FrameInputs{
		View:       cam.View(),
		Projection: cam.Projection(float32(extent.Width) / float32(extent.Height)),
		Sun: scene.DirectionalLight{
			Direction: math.NewVec3(-0.3, -1, -0.4),
			Colour:    math.NewVec3(1, 0.95, 0.9),
			Intensity: 3,
		},
		Ambient: math.NewVec4(0.2, 0.2, 0.25, 0.3),
		Drawables: []scene.Drawable{{
			Name:      "box",
			Transform: math.NewMat4Identity(),
			Mesh:      h.box,
		}},
		Dt: dt,
	}
}

func (h *harness) render(t *testing.T) *FrameResult {
	t.Helper()
	res, err := h.orch.RenderFrame(FrameRequest{Inputs: h.inputs()})
	if err != nil {
		t.Fatalf("frame %d: %v", h.orch.frameIndex, err)
	}
	return res
}

func (h *harness) checkClean(t *testing.T) {
	t.Helper()
	if v := h.device.Violations(); len(v) > 0 {
		t.Fatalf("device reported violations: %v", v)
	}
}

func TestSlotsDoNotAlias(t *testing.T) {
	for _, mode := range []config.FeedbackMode{config.FeedbackSameFrame, config.FeedbackLagged} {
		t.Run(string(mode), func(t *testing.T) {
			h := newHarness(t, testConfig(mode))
			for i := 0; i < 6; i++ {
				res := h.render(t)
				if res.Slot != i%2 {
					t.Fatalf("frame %d used slot %d", i, res.Slot)
				}
				if res.Visible != 1 {
					t.Fatalf("frame %d: %d visible drawables", i, res.Visible)
				}
			}
			if err := h.orch.Flush(); err != nil {
				t.Fatal(err)
			}
			h.checkClean(t)

			// Every uniform write after a slot's first use waits on that slot's fence first.
			for _, s := range h.orch.Slots() {
				name := fmt.Sprintf("slot%d.uniforms", s.Index)
				submitted, waited := false, false
				for _, e := range h.device.Events() {
					switch {
					case e.Kind == software.EventSubmit && e.Handle == uint64(s.InFlight):
						submitted, waited = true, false
					case e.Kind == software.EventWaitFence && e.Handle == uint64(s.InFlight):
						waited = true
					case e.Kind == software.EventWriteBuffer && e.Name == name:
						if submitted && !waited {
							t.Fatalf("slot %d uniforms written before its fence was waited on", s.Index)
						}
					}
				}
			}
			if got := h.device.Presented(); got != 6 {
				t.Errorf("presented %d frames, want 6", got)
			}
		})
	}
}

func TestResizeDropsOneFrameAndRebuilds(t *testing.T) {
	h := newHarness(t, testConfig(config.FeedbackSameFrame))
	h.render(t)
	h.render(t)
	gen := h.orch.Generation()

	h.orch.Resize(48, 40)
	_, err := h.orch.RenderFrame(FrameRequest{Inputs: h.inputs()})
	if !errors.Is(err, core.ErrFrameDropped) {
		t.Fatalf("expected a dropped frame, got %v", err)
	}
	want := md.Extent2D{Width: 48, Height: 40}
	if got := h.device.SurfaceExtent(); got != want {
		t.Fatalf("surface is %s, want %s", got, want)
	}
	if h.orch.Generation() <= gen {
		t.Errorf("bindings were not invalidated")
	}
	sizes := map[string]md.Extent2D{
		passes.ResSceneColor: want,
		passes.ResSceneDepth: want,
		passes.ResBloomA:     {Width: 24, Height: 20},
		passes.ResBloomB:     {Width: 24, Height: 20},
		passes.ResFlare:      want,
		passes.ResShadowMap:  {Width: 64, Height: 64},
	}
	for name, extent := range sizes {
		if got := h.orch.targets.Get(name).Extent; got != extent {
			t.Errorf("%s is %s, want %s", name, got, extent)
		}
	}

	for i := 0; i < 3; i++ {
		h.render(t)
	}
	h.checkClean(t)
}

func TestResizeFollowsClampedSurface(t *testing.T) {
	cfg := testConfig(config.FeedbackSameFrame)
	cfg.Capture.Enabled = true
	limit := md.Extent2D{Width: 40, Height: 36}
	device, err := software.NewDevice(md.Extent2D{Width: cfg.Window.Width, Height: cfg.Window.Height},
		software.WithMaxSurfaceExtent(limit))
	if err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	h := newHarnessOn(t, device, cfg, WithSink(sink))
	h.render(t)

	h.orch.Resize(48, 40)
	if _, err := h.orch.RenderFrame(FrameRequest{Inputs: h.inputs()}); !errors.Is(err, core.ErrFrameDropped) {
		t.Fatalf("expected a dropped frame, got %v", err)
	}
	if got := device.SurfaceExtent(); got != limit {
		t.Fatalf("surface is %s, want %s", got, limit)
	}
	for _, name := range []string{passes.ResSceneColor, passes.ResSceneDepth, passes.ResFlare} {
		if got := h.orch.targets.Get(name).Extent; got != limit {
			t.Errorf("%s is %s, want the surface size %s", name, got, limit)
		}
	}

	h.render(t)
	h.render(t)
	if err := h.orch.Flush(); err != nil {
		t.Fatal(err)
	}
	last := sink.frames[len(sink.frames)-1]
	if last.Width != limit.Width || last.Height != limit.Height {
		t.Errorf("capture is %dx%d, want %s", last.Width, last.Height, limit)
	}
	h.checkClean(t)
}

func TestSceneDrawsSkyAndLightMarkers(t *testing.T) {
	h := newHarness(t, testConfig(config.FeedbackSameFrame))
	in := h.inputs()
	camPos := math.NewVec3(0, 1.5, 5)
	// one metre in front of the camera, on the view axis
	lightPos := camPos.Add(math.NewVec3Zero().Sub(camPos).Normalized())
	in.PointLights = []scene.PointLight{{Position: lightPos, Colour: math.NewVec3(1, 0.2, 0.1), Intensity: 5}}
	if _, err := h.orch.RenderFrame(FrameRequest{Inputs: in}); err != nil {
		t.Fatal(err)
	}
	if err := h.orch.Flush(); err != nil {
		t.Fatal(err)
	}
	pixels, extent, ok := h.device.ReadImage(h.orch.targets.Get(passes.ResSceneColor).Image)
	if !ok {
		t.Fatal("scene colour target missing")
	}
	at := func(x, y int) math.Vec4 { return pixels[y*int(extent.Width)+x] }

	u := passes.BuildSceneUniforms(&in, math.NewMat4Identity(), 1)
	invViewProj, _ := u.View.Mul(u.Projection).Inverse()
	toSun := in.Sun.Direction.Negate()
	sun := in.Sun.Colour.MulScalar(in.Sun.Intensity)
	texel := extent.Texel()
	for _, p := range [][2]int{{0, 0}, {int(extent.Width) - 1, int(extent.Height) - 1}} {
		uv := math.NewVec2((float32(p[0])+0.5)*texel.X, (float32(p[1])+0.5)*texel.Y)
		want := passes.SkyRadiance(passes.SkyDirection(uv, invViewProj, u.InverseView.Translation()), toSun, sun)
		if got := at(p[0], p[1]); !got.ToVec3().Compare(want, 1e-3) {
			t.Errorf("sky at %v is %+v, want %+v", p, got, want)
		}
	}
	if top, bottom := at(0, 0), at(0, int(extent.Height)-1); top.ToVec3().Compare(bottom.ToVec3(), 1e-3) {
		t.Errorf("sky is flat: %+v at the top and the bottom", top)
	}

	want := math.NewVec3(5, 1, 0.5)
	if got := at(int(extent.Width)/2, int(extent.Height)/2); !got.ToVec3().Compare(want, 1e-3) {
		t.Errorf("marker pixel is %+v, want %+v", got, want)
	}
	h.checkClean(t)
}

func TestZeroExtentDropsUntilRestored(t *testing.T) {
	h := newHarness(t, testConfig(config.FeedbackLagged))
	h.render(t)
	if err := h.orch.Flush(); err != nil {
		t.Fatal(err)
	}
	presented := h.device.Presented()

	h.orch.Resize(0, 0)
	for i := 0; i < 3; i++ {
		if _, err := h.orch.RenderFrame(FrameRequest{Inputs: h.inputs()}); !errors.Is(err, core.ErrFrameDropped) {
			t.Fatalf("minimised frame %d: %v", i, err)
		}
	}
	if h.device.Pending() != 0 || h.device.Presented() != presented {
		t.Fatalf("work was issued while minimised")
	}

	h.orch.Resize(32, 24)
	if _, err := h.orch.RenderFrame(FrameRequest{Inputs: h.inputs()}); !errors.Is(err, core.ErrFrameDropped) {
		t.Fatalf("restore frame: %v", err)
	}
	h.render(t)
	h.checkClean(t)
}

func TestOutOfDateSurfaceRebuilds(t *testing.T) {
	h := newHarness(t, testConfig(config.FeedbackSameFrame))
	h.render(t)
	h.device.InvalidateSurface()
	if _, err := h.orch.RenderFrame(FrameRequest{Inputs: h.inputs()}); !errors.Is(err, core.ErrFrameDropped) {
		t.Fatalf("expected a dropped frame, got %v", err)
	}
	for i := 0; i < 4; i++ {
		h.render(t)
	}
	h.checkClean(t)
}

func TestSameFrameExposureIsAppliedImmediately(t *testing.T) {
	h := newHarness(t, testConfig(config.FeedbackSameFrame))
	initial := h.cfg.Exposure.Initial
	res := h.render(t)
	if res.Exposure == initial {
		t.Fatalf("first frame still used the initial exposure")
	}
	if res.Exposure != h.orch.Exposure().Current {
		t.Fatalf("frame used %g, device state is %g", res.Exposure, h.orch.Exposure().Current)
	}
	target := h.orch.Exposure().Target
	if target < h.cfg.Exposure.Min || target > h.cfg.Exposure.Max {
		t.Fatalf("target %g outside the configured range", target)
	}

	gap := math.Abs(target - res.Exposure)
	for i := 0; i < 60; i++ {
		res = h.render(t)
		d := math.Abs(h.orch.Exposure().Target - res.Exposure)
		if d > gap+1e-5 {
			t.Fatalf("frame %d moved away from the target (%g > %g)", i, d, gap)
		}
		gap = d
	}
	if gap > 0.05 {
		t.Errorf("exposure %g did not converge to %g", res.Exposure, h.orch.Exposure().Target)
	}
	h.checkClean(t)
}

func TestLaggedExposureTrailsByFramesInFlight(t *testing.T) {
	cfg := testConfig(config.FeedbackLagged)
	h := newHarness(t, cfg)
	initial := cfg.Exposure.Initial
	lag := cfg.Renderer.FramesInFlight
	for i := 0; i < lag; i++ {
		if res := h.render(t); res.Exposure != initial {
			t.Fatalf("frame %d used %g before any readback retired", i, res.Exposure)
		}
	}
	if res := h.render(t); res.Exposure == initial {
		t.Fatalf("frame %d still used the initial exposure", lag)
	}
	for i := 0; i < 60; i++ {
		h.render(t)
	}
	state := h.orch.Exposure()
	if math.Abs(state.Target-state.Current) > 0.05 {
		t.Errorf("exposure %g did not converge to %g", state.Current, state.Target)
	}
	h.checkClean(t)
}

type recordingSink struct {
	frames []publish.Frame
}

func (s *recordingSink) Publish(f publish.Frame) error {
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func TestCapturePublishesEveryNthFrame(t *testing.T) {
	cfg := testConfig(config.FeedbackSameFrame)
	cfg.Capture.Enabled = true
	cfg.Capture.Every = 2
	sink := &recordingSink{}
	h := newHarness(t, cfg, WithSink(sink))
	for i := 0; i < 5; i++ {
		h.render(t)
	}
	if err := h.orch.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(sink.frames) != 3 {
		t.Fatalf("published %d frames, want 3", len(sink.frames))
	}
	for i, f := range sink.frames {
		if f.Sequence != uint64(i*2) {
			t.Errorf("capture %d has sequence %d", i, f.Sequence)
		}
		if f.Width != 32 || f.Height != 24 || f.Stride != 128 || len(f.Data) != 32*24*4 {
			t.Errorf("capture %d is %dx%d stride %d with %d bytes", i, f.Width, f.Height, f.Stride, len(f.Data))
		}
		if f.Encoding != publish.EncodingBGRA8 || f.FrameID != cfg.Capture.FrameID {
			t.Errorf("capture %d: encoding %q frame id %q", i, f.Encoding, f.FrameID)
		}
	}
	if _, err := publish.ToImage(sink.frames[0]); err != nil {
		t.Fatal(err)
	}

	// capture buffers follow the surface
	h.orch.Resize(40, 30)
	if _, err := h.orch.RenderFrame(FrameRequest{Inputs: h.inputs()}); !errors.Is(err, core.ErrFrameDropped) {
		t.Fatal(err)
	}
	h.render(t)
	h.render(t)
	if err := h.orch.Flush(); err != nil {
		t.Fatal(err)
	}
	last := sink.frames[len(sink.frames)-1]
	if last.Width != 40 || last.Height != 30 || len(last.Data) != 40*30*4 {
		t.Errorf("capture after resize is %dx%d with %d bytes", last.Width, last.Height, len(last.Data))
	}
	h.checkClean(t)
}

func TestReloadPipelinesKeepsExposure(t *testing.T) {
	h := newHarness(t, testConfig(config.FeedbackSameFrame))
	for i := 0; i < 4; i++ {
		h.render(t)
	}
	before := h.orch.Exposure()
	stats := h.device.Stats()
	gen := h.orch.Generation()

	if err := h.orch.ReloadPipelines(nil); err != nil {
		t.Fatal(err)
	}
	if h.orch.Generation() <= gen {
		t.Fatalf("reload did not invalidate bindings")
	}
	if got := h.device.Stats(); got != stats {
		t.Fatalf("reload changed allocations: %+v -> %+v", stats, got)
	}
	h.render(t)
	after := h.orch.Exposure()
	if math.Abs(after.Target-after.Current) > math.Abs(before.Target-before.Current) {
		t.Fatalf("exposure restarted after reload: before %+v, now %+v", before, after)
	}
	h.checkClean(t)
}

func TestSetLensSystem(t *testing.T) {
	h := newHarness(t, testConfig(config.FeedbackLagged))
	h.render(t)

	if err := h.orch.SetLensSystem(&passes.LensSystem{Name: "broken"}); !errors.Is(err, core.ErrAssetInvalid) {
		t.Fatalf("expected an invalid asset error, got %v", err)
	}

	lens := passes.DefaultLensSystem()
	lens.Name = "swapped"
	gen := h.orch.Generation()
	if err := h.orch.SetLensSystem(lens); err != nil {
		t.Fatal(err)
	}
	if h.orch.Generation() <= gen {
		t.Fatalf("lens change did not invalidate bindings")
	}
	h.render(t)
	h.render(t)
	h.checkClean(t)
}

func TestDestroyReleasesEverything(t *testing.T) {
	cfg := testConfig(config.FeedbackSameFrame)
	cfg.Capture.Enabled = true
	device, err := software.NewDevice(md.Extent2D{Width: 32, Height: 24})
	if err != nil {
		t.Fatal(err)
	}
	baseline := device.Stats()
	o, err := New(device, cfg, passes.DefaultLensSystem())
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{device: device, orch: o, cfg: cfg}
	h.box, err = scene.NewBoxMesh(device, "box", math.NewVec3(1, 1, 1), math.NewVec3(1, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		h.render(t)
	}
	h.orch.Resize(40, 40)
	_, _ = h.orch.RenderFrame(FrameRequest{Inputs: h.inputs()})
	h.render(t)

	o.Destroy()
	h.box.Destroy(device)
	if got := device.Stats(); got != baseline {
		t.Fatalf("live allocations after destroy: %+v", got)
	}
	h.checkClean(t)
	device.Destroy()
}

func TestNewUnwindsOnAllocationFailure(t *testing.T) {
	device, err := software.NewDevice(md.Extent2D{Width: 32, Height: 24}, software.WithMemoryBudget(4096))
	if err != nil {
		t.Fatal(err)
	}
	defer device.Destroy()
	_, err = New(device, testConfig(config.FeedbackSameFrame), passes.DefaultLensSystem())
	if !errors.Is(err, core.ErrResourceCreation) {
		t.Fatalf("expected a resource creation error, got %v", err)
	}
	if got := device.Stats(); got != (md.AllocationStats{}) {
		t.Fatalf("failed construction leaked %+v", got)
	}
}
