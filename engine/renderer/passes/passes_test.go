package passes

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/simcam/engine/config"
	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/math"
	"github.com/spaghettifunk/simcam/engine/renderer/graph"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

func near(a, b, tol float32) bool {
	return math.Abs(a-b) <= tol
}

func TestExposureConvergesWithoutOvershoot(t *testing.T) {
	for _, target := range []float32{0.25, 4} {
		s := NewExposureState(config.Default().Exposure)
		dist := math.Abs(target - s.Current)
		for i := 0; i < 300; i++ {
			s.Advance(target, 1.0/60)
			d := math.Abs(target - s.Current)
			if d > dist {
				t.Fatalf("target %g: step %d moved away (%g > %g)", target, i, d, dist)
			}
			if (target > 1 && s.Current > target) || (target < 1 && s.Current < target) {
				t.Fatalf("target %g: overshoot to %g", target, s.Current)
			}
			dist = d
		}
		if !near(s.Current, target, 0.01) {
			t.Errorf("target %g: still at %g after 5s", target, s.Current)
		}
	}
}

func TestExposureRisesFasterThanItFalls(t *testing.T) {
	cfg := config.Default().Exposure
	framesToSettle := func(target float32) int {
		s := NewExposureState(cfg)
		tol := 0.01 * math.Abs(target-s.Current)
		for frame := 1; frame <= 10000; frame++ {
			s.Advance(target, 1.0/60)
			if math.Abs(target-s.Current) <= tol {
				return frame
			}
		}
		t.Fatalf("exposure never settled at %g", target)
		return 0
	}

	// a darker scene asks for more exposure
	darkening := framesToSettle(4)
	brightening := framesToSettle(0.25)
	if darkening >= brightening {
		t.Errorf("darkening settled in %d frames, brightening in %d", darkening, brightening)
	}
}

func TestExposureStateEncoding(t *testing.T) {
	s := ExposureState{Current: 1.25, Target: 2, RampUp: 1.5, RampDown: 3.5, LastDt: 0.016}
	data := s.Encode()
	if len(data) != ExposureStateSize {
		t.Fatalf("encoded %d bytes", len(data))
	}
	got, err := DecodeExposureState(data)
	if err != nil {
		t.Fatal(err)
	}
	if got != s {
		t.Errorf("got %+v, want %+v", got, s)
	}
	if _, err := DecodeExposureState(data[:8]); err == nil {
		t.Error("short state decoded")
	}
}

func TestTargetExposure(t *testing.T) {
	cfg := config.Default().Exposure
	if got := TargetExposure(math.Log(cfg.Key), cfg.Key, cfg.Min, cfg.Max); !near(got, 1, 1e-4) {
		t.Errorf("mid-grey scene gives %g", got)
	}
	if got := TargetExposure(math.Log(1e-6), cfg.Key, cfg.Min, cfg.Max); got != cfg.Max {
		t.Errorf("black scene gives %g, want max", got)
	}
	if got := TargetExposure(math.Log(1000), cfg.Key, cfg.Min, cfg.Max); got != cfg.Min {
		t.Errorf("blinding scene gives %g, want min", got)
	}
	if got := LogLuminance(math.NewVec3Zero()); !near(got, math.Log(1e-4), 1e-5) {
		t.Errorf("black pixel log luminance %g", got)
	}
}

func TestGaussianWeightsSumToOne(t *testing.T) {
	for r := 0; r <= 12; r++ {
		w := GaussianWeights(r)
		sum := w[0]
		for i := 1; i < len(w); i++ {
			sum += 2 * w[i]
			if w[i] > w[i-1] {
				t.Errorf("radius %d: weight %d grows", r, i)
			}
		}
		if !near(sum, 1, 1e-5) {
			t.Errorf("radius %d: weights sum to %g", r, sum)
		}
	}
}

func TestSoftThreshold(t *testing.T) {
	cases := []struct {
		name string
		in   math.Vec3
		want math.Vec3
	}{
		{"below knee", math.NewVec3(0.5, 0.5, 0.5), math.NewVec3Zero()},
		{"far above", math.NewVec3(4, 2, 0), math.NewVec3(3.15, 1.575, 0)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := SoftThreshold(c.in, 0.85, 0.08)
			if !got.Compare(c.want, 1e-3) {
				t.Errorf("got %+v, want %+v", got, c.want)
			}
		})
	}
	// The curve is continuous across the knee.
	lo := SoftThreshold(math.NewVec3(0.85+0.08-1e-3, 0, 0), 0.85, 0.08)
	hi := SoftThreshold(math.NewVec3(0.85+0.08+1e-3, 0, 0), 0.85, 0.08)
	if !near(lo.X, hi.X, 5e-3) {
		t.Errorf("discontinuity at knee: %g vs %g", lo.X, hi.X)
	}
}

func TestLensValidate(t *testing.T) {
	if err := DefaultLensSystem().Validate(); err != nil {
		t.Fatal(err)
	}
	cases := map[string]func(l *LensSystem){
		"one surface":      func(l *LensSystem) { l.Surfaces = l.Surfaces[:1] },
		"zero aperture":    func(l *LensSystem) { l.Surfaces[2].Aperture = 0 },
		"index below one":  func(l *LensSystem) { l.Surfaces[0].IOR = 0.9 },
		"out of order":     func(l *LensSystem) { l.Surfaces[3].Z = 0.001 },
		"no stop":          func(l *LensSystem) { l.Surfaces[4].Stop = false },
		"two stops":        func(l *LensSystem) { l.Surfaces[1].Stop = true },
		"sensor in front":  func(l *LensSystem) { l.SensorZ = 0.04 },
		"zero sensor size": func(l *LensSystem) { l.SensorH = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			l := DefaultLensSystem()
			mutate(l)
			if err := l.Validate(); !errors.Is(err, core.ErrAssetInvalid) {
				t.Errorf("got %v, want ErrAssetInvalid", err)
			}
		})
	}
}

func TestLensSurfaceEncoding(t *testing.T) {
	l := DefaultLensSystem()
	data := l.EncodeSurfaces()
	if len(data) != len(l.Surfaces)*32 {
		t.Fatalf("encoded %d bytes", len(data))
	}
	got := DecodeLensSurfaces(data, len(l.Surfaces))
	for i := range got {
		if got[i] != l.Surfaces[i] {
			t.Errorf("surface %d: got %+v, want %+v", i, got[i], l.Surfaces[i])
		}
	}
}

func TestComputeGhosts(t *testing.T) {
	l := DefaultLensSystem()
	sun := math.NewVec4(1, 0.95, 0.7, 5)

	ghosts := ComputeGhosts(l.Surfaces, l.Params(), math.NewVec4(0.7, 0.4, 1, 1), sun)
	// A halo plus one ghost per pair of the six reflecting surfaces.
	if len(ghosts) != 16 {
		t.Fatalf("got %d ghosts, want 16", len(ghosts))
	}
	for i, g := range ghosts {
		if g.Intensity < 0 || g.Radius.X <= 0 || g.Radius.Y <= 0 {
			t.Errorf("ghost %d is degenerate: %+v", i, g)
		}
	}
	if got := FlareAt(ghosts, math.NewVec2(0.7, 0.4)); got.X <= 0 {
		t.Errorf("no flare at the sun: %+v", got)
	}

	if ComputeGhosts(l.Surfaces, l.Params(), math.NewVec4(0.7, 0.4, 0, 1), sun) != nil {
		t.Error("ghosts for a sun that is off screen")
	}
	if ComputeGhosts(l.Surfaces, l.Params(), math.NewVec4(0.7, 0.4, 1, 0), sun) != nil {
		t.Error("ghosts for a camera facing away from the sun")
	}
}

func TestSunScreen(t *testing.T) {
	view := math.NewMat4LookAt(math.NewVec3Zero(), math.NewVec3(0, 0, -1), math.NewVec3Up())
	inv, _ := view.Inverse()
	proj := math.NewMat4Perspective(math.DegToRad(50), 16.0/9, 0.1, 100)

	uv, visible, factor := SunScreen(view, proj, inv, math.NewVec3(0, 0, 1))
	if !visible || !near(factor, 1, 1e-4) {
		t.Fatalf("sun ahead: visible %v factor %g", visible, factor)
	}
	if !near(uv.X, 0.5, 1e-3) || !near(uv.Y, 0.5, 1e-3) {
		t.Errorf("sun ahead projects to %+v", uv)
	}

	_, visible, factor = SunScreen(view, proj, inv, math.NewVec3(0, 0, -1))
	if visible || factor != 0 {
		t.Errorf("sun behind: visible %v factor %g", visible, factor)
	}
}

func TestUniformLayout(t *testing.T) {
	in := &FrameInputs{
		View:       math.NewMat4Identity(),
		Projection: math.NewMat4Identity(),
		Ambient:    math.NewVec4(1, 0.95, 0.7, 0.15),
		Dt:         0.016,
	}
	in.Sun.Direction = math.NewVec3(0, -1, 0)
	in.Sun.Colour = math.NewVec3(1, 0.95, 0.7)
	in.Sun.Intensity = 5
	u := BuildSceneUniforms(in, math.NewMat4Identity(), 1.5)
	data := u.Encode()
	if len(data) != UniformSize {
		t.Fatalf("encoded %d bytes, want %d", len(data), UniformSize)
	}
	exposure := DecodeFloats(data[UniformExposureOffset : UniformExposureOffset+16])
	if exposure[0] != 1.5 || exposure[2] != 0.016 {
		t.Errorf("exposure block %v", exposure)
	}
	copy(data[UniformExposureOffset:], PatchExposure(2, 3, 0.02))
	if got := DecodeUniforms(data).Exposure; got != math.NewVec4(2, 3, 0.02, 0) {
		t.Errorf("patched exposure %+v", got)
	}
}

func TestACES(t *testing.T) {
	if ACES(0) != 0 {
		t.Errorf("ACES(0) = %g", ACES(0))
	}
	prev := float32(0)
	for x := float32(0.01); x < 100; x *= 1.5 {
		y := ACES(x)
		if y < prev || y > 1 {
			t.Fatalf("ACES(%g) = %g after %g", x, y, prev)
		}
		prev = y
	}
	got := ToneMap(math.NewVec3(1, 1, 1), math.NewVec3Zero(), math.NewVec3Zero(), 0, 0.6, 1)
	if got != math.NewVec3Zero() {
		t.Errorf("zero exposure maps to %+v", got)
	}
}

func transition(t *testing.T, plan *graph.Plan, node, resource string) graph.Transition {
	t.Helper()
	for _, tr := range plan.Before(node) {
		if tr.Resource == resource {
			return tr
		}
	}
	t.Fatalf("no barrier on %s before %s", resource, node)
	return graph.Transition{}
}

func TestPipelineGraph(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.Enabled = true
	p, err := NewPipeline(cfg, DefaultLensSystem())
	if err != nil {
		t.Fatal(err)
	}
	g, err := BuildGraph(p.Passes())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		NodeShadow, NodeScene, NodeBloomExtract, NodeBloomBlurH, NodeBloomBlurV, NodeFlare,
		NodeExposureReset, NodeExposureReduce, NodeExposureUpdate, NodeExposureReadback, NodeExposureHost,
		NodeComposite, NodeCapture, NodePresent,
	}
	nodes := g.Nodes()
	if len(nodes) != len(want) {
		t.Fatalf("got %d nodes, want %d", len(nodes), len(want))
	}
	for i, n := range nodes {
		if n.Name != want[i] {
			t.Errorf("node %d is %s, want %s", i, n.Name, want[i])
		}
	}

	plan, final := g.Plan(nil)
	tr := transition(t, plan, NodeBloomExtract, ResSceneColor)
	if tr.OldLayout != md.LayoutColorAttachment || tr.NewLayout != md.LayoutShaderRead {
		t.Errorf("scene colour before bloom: %+v", tr)
	}
	tr = transition(t, plan, NodeExposureReduce, ResSceneColor)
	if tr.DstStage&md.StageComputeShader == 0 || tr.SrcAccess&md.AccessColorAttachmentWrite == 0 {
		t.Errorf("scene colour before reduce: %+v", tr)
	}
	tr = transition(t, plan, NodeComposite, ResFlare)
	if tr.OldLayout != md.LayoutGeneral || tr.NewLayout != md.LayoutShaderRead {
		t.Errorf("flare before composite: %+v", tr)
	}
	tr = transition(t, plan, NodeExposureUpdate, ResExposureResult)
	if tr.SrcAccess&md.AccessShaderWrite == 0 {
		t.Errorf("reduction before update: %+v", tr)
	}
	tr = transition(t, plan, NodeExposureHost, ResExposureReadback)
	if tr.DstStage != md.StageHost || tr.DstAccess != md.AccessHostRead {
		t.Errorf("readback before host read: %+v", tr)
	}
	tr = transition(t, plan, NodePresent, ResSurface)
	if tr.OldLayout != md.LayoutTransferSrc || tr.NewLayout != md.LayoutPresent {
		t.Errorf("surface before present: %+v", tr)
	}

	// The next frame re-renders the scene after this frame's readers.
	steady, _ := g.Plan(final)
	tr = transition(t, steady, NodeScene, ResSceneColor)
	if tr.SrcStage&md.StageFragmentShader == 0 || tr.NewLayout != md.LayoutColorAttachment {
		t.Errorf("scene colour write after reads: %+v", tr)
	}
}

func TestNodeOwners(t *testing.T) {
	p, err := NewPipeline(config.Default(), DefaultLensSystem())
	if err != nil {
		t.Fatal(err)
	}
	owners := NodeOwners(p.Passes())
	if owners[NodeBloomBlurV] != Pass(p.Bloom) || owners[NodeExposureHost] != Pass(p.Exposure) {
		t.Error("nodes resolve to the wrong pass")
	}
	if _, ok := owners[NodeCapture]; ok {
		t.Error("capture node present with capture disabled")
	}
}

func TestSkyRadiance(t *testing.T) {
	toSun := math.NewVec3(0, 1, -1).Normalized()
	sun := math.NewVec3(1, 0.9, 0.8).MulScalar(3)

	disc := SkyRadiance(toSun, toSun, sun)
	away := SkyRadiance(math.NewVec3(0, 0.7, 1), toSun, sun)
	if disc.X < away.X*10 {
		t.Errorf("sun disc %+v is not much brighter than the sky %+v", disc, away)
	}

	zenith := SkyRadiance(math.NewVec3(0, 1, 0), math.NewVec3(0, -1, 0), sun)
	horizon := SkyRadiance(math.NewVec3(1, 0, 0), math.NewVec3(0, -1, 0), sun)
	ground := SkyRadiance(math.NewVec3(1, -1, 0), math.NewVec3(0, -1, 0), sun)
	if !(zenith.Z/zenith.X > horizon.Z/horizon.X) {
		t.Errorf("zenith %+v is not bluer than the horizon %+v", zenith, horizon)
	}
	if ground.Z >= horizon.Z {
		t.Errorf("ground %+v is not darker than the horizon %+v", ground, horizon)
	}
}

func TestSkyDirection(t *testing.T) {
	camPos := math.NewVec3(1, 2, 3)
	view := math.NewMat4LookAt(camPos, camPos.Add(math.NewVec3(0, 0, -1)), math.NewVec3Up())
	proj := math.NewMat4Perspective(math.DegToRad(60), 1, 0.1, 100)
	inv, ok := view.Mul(proj).Inverse()
	if !ok {
		t.Fatal("singular view projection")
	}
	if d := SkyDirection(math.NewVec2(0.5, 0.5), inv, camPos); !d.Compare(math.NewVec3(0, 0, -1), 1e-3) {
		t.Errorf("centre looks along %+v", d)
	}
	if d := SkyDirection(math.NewVec2(0.5, 0), inv, camPos); d.Y <= 0 {
		t.Errorf("top row looks along %+v, want upwards", d)
	}
}

func TestPointLightMarkerVertex(t *testing.T) {
	view := math.NewMat4LookAt(math.NewVec3Zero(), math.NewVec3(0, 0, -1), math.NewVec3Up())
	proj := math.NewMat4Perspective(math.DegToRad(60), 1, 0.1, 100)
	u := SceneUniforms{View: view, Projection: proj, NumLights: 2}
	u.PointLights[0].Position = math.NewVec4(0, 0, -2, 1)
	u.PointLights[1].Position = math.NewVec4(1, 0, -4, 1)

	centre := proj.MulVec4(view.MulVec4(math.NewVec4(0, 0, -2, 1)))
	for i := uint32(0); i < md.PointLightMarkerVertices; i++ {
		clip, light := PointLightMarkerVertex(i, &u)
		if light != 0 {
			t.Fatalf("vertex %d belongs to light %d", i, light)
		}
		if i%3 == 0 && !clip.Compare(centre, 1e-5) {
			t.Errorf("fan centre %d is %+v, want %+v", i, clip, centre)
		}
		if i%3 != 0 && near(clip.X, centre.X, 1e-5) && near(clip.Y, centre.Y, 1e-5) {
			t.Errorf("rim vertex %d sits on the centre", i)
		}
	}
	if _, light := PointLightMarkerVertex(md.PointLightMarkerVertices, &u); light != 1 {
		t.Errorf("next marker starts with light %d", light)
	}
}
