package targets_test

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/renderer/software"
	"github.com/spaghettifunk/simcam/engine/renderer/targets"
)

var specs = []targets.Spec{
	{Name: "shadow.map", Format: metadata.FormatD32, Usage: metadata.UsageDepthAttachment | metadata.UsageSampled, Fixed: metadata.Extent2D{Width: 32, Height: 32}},
	{Name: "scene.color", Format: metadata.FormatRGBA16F, Usage: metadata.UsageColorAttachment | metadata.UsageSampled},
	{Name: "bloom.a", Format: metadata.FormatRGBA16F, Usage: metadata.UsageColorAttachment | metadata.UsageSampled, Scale: 0.5},
	{Name: "bloom.b", Format: metadata.FormatRGBA16F, Usage: metadata.UsageColorAttachment | metadata.UsageSampled, Scale: 0.5},
}

func newManager(t *testing.T, opts ...software.Option) (*targets.Manager, *software.Device) {
	t.Helper()
	d, err := software.NewDevice(metadata.Extent2D{Width: 64, Height: 48}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	m := targets.NewManager(d)
	for _, s := range specs {
		if _, err := m.Register(s); err != nil {
			t.Fatal(err)
		}
	}
	return m, d
}

func TestRecreateSizesTargets(t *testing.T) {
	m, d := newManager(t)
	if err := m.Recreate(metadata.Extent2D{Width: 64, Height: 48}); err != nil {
		t.Fatal(err)
	}
	want := map[string]metadata.Extent2D{
		"shadow.map":  {Width: 32, Height: 32},
		"scene.color": {Width: 64, Height: 48},
		"bloom.a":     {Width: 32, Height: 24},
		"bloom.b":     {Width: 32, Height: 24},
	}
	for name, extent := range want {
		tg := m.Get(name)
		if !tg.Valid() || tg.Extent != extent {
			t.Errorf("%s: valid %v extent %s, want %s", name, tg.Valid(), tg.Extent, extent)
		}
	}
	if s := d.Stats(); s.Images != len(specs) {
		t.Fatalf("%d images live, want %d", s.Images, len(specs))
	}

	// odd sizes never round a scaled target down to nothing
	if err := m.Recreate(metadata.Extent2D{Width: 1, Height: 1}); err != nil {
		t.Fatal(err)
	}
	if e := m.Get("bloom.a").Extent; e.Width != 1 || e.Height != 1 {
		t.Fatalf("bloom.a at 1x1 surface is %s", e)
	}
}

func TestRecreateIsIdempotent(t *testing.T) {
	m, d := newManager(t)
	extent := metadata.Extent2D{Width: 64, Height: 48}
	if err := m.Recreate(extent); err != nil {
		t.Fatal(err)
	}
	first := d.Stats()
	id := m.Get("scene.color").ID
	gen := m.Generation()
	for i := 0; i < 3; i++ {
		if err := m.Recreate(extent); err != nil {
			t.Fatal(err)
		}
	}
	if got := d.Stats(); got != first {
		t.Fatalf("allocations drifted: %+v -> %+v", first, got)
	}
	if m.Get("scene.color").ID == id {
		t.Errorf("recreated target kept its identity")
	}
	if m.Generation() != gen+3 {
		t.Errorf("generation %d, want %d", m.Generation(), gen+3)
	}
	if v := d.Violations(); len(v) > 0 {
		t.Fatal(v)
	}
}

func TestRecreateUnwindsOnFailure(t *testing.T) {
	m, d := newManager(t)
	// shadow map and scene colour fit, the bloom targets do not
	budget := uint64(32*32*4 + 64*48*8)
	d.SetMemoryBudget(budget)
	err := m.Recreate(metadata.Extent2D{Width: 64, Height: 48})
	if !errors.Is(err, core.ErrResourceCreation) {
		t.Fatalf("expected a resource creation error, got %v", err)
	}
	if s := d.Stats(); s.Images != 0 || s.ImageBytes != 0 {
		t.Fatalf("partial recreate leaked %+v", s)
	}
	for _, s := range specs {
		if m.Get(s.Name).Valid() {
			t.Errorf("%s still valid after a failed recreate", s.Name)
		}
	}

	d.SetMemoryBudget(0)
	if err := m.Recreate(metadata.Extent2D{Width: 64, Height: 48}); err != nil {
		t.Fatal(err)
	}
	m.Destroy()
	if s := d.Stats(); s.Images != 0 {
		t.Fatalf("%d images left after destroy", s.Images)
	}
}

func TestRegisterAndZeroExtent(t *testing.T) {
	m, _ := newManager(t)
	if _, err := m.Register(specs[0]); err == nil {
		t.Fatalf("duplicate registration accepted")
	}
	if _, err := m.Register(targets.Spec{}); err == nil {
		t.Fatalf("unnamed target accepted")
	}
	if err := m.Recreate(metadata.Extent2D{}); !errors.Is(err, core.ErrResourceCreation) {
		t.Fatalf("zero extent: %v", err)
	}
	names := m.Names()
	if len(names) != len(specs) || names[0] != "shadow.map" || names[3] != "bloom.b" {
		t.Fatalf("names %v", names)
	}
}
