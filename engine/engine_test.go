package engine_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/simcam/engine"
	"github.com/spaghettifunk/simcam/engine/assets/loaders"
	"github.com/spaghettifunk/simcam/engine/config"
	"github.com/spaghettifunk/simcam/engine/renderer/passes"
	"github.com/spaghettifunk/simcam/testbed"
)

func headlessConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	data, err := loaders.EncodeLens(passes.DefaultLensSystem())
	if err != nil {
		t.Fatal(err)
	}
	lensFile := filepath.Join(dir, "lens.toml")
	if err := os.WriteFile(lensFile, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Renderer.Backend = config.BackendReference
	cfg.Window.Width = 64
	cfg.Window.Height = 48
	cfg.Shadow.Resolution = 64
	cfg.Flare.LensFile = lensFile
	cfg.Capture.Enabled = true
	cfg.Capture.Dir = filepath.Join(dir, "captures")
	cfg.Log.Level = "error"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestHeadlessRun(t *testing.T) {
	cfg := headlessConfig(t)
	tb := testbed.NewTestGame(&engine.ApplicationConfig{
		Config:    cfg,
		Headless:  true,
		MaxFrames: 3,
	})
	e, err := engine.New(tb.Game)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatal(err)
	}
	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		t.Errorf("shutdown: %v", err)
	}
	if runErr != nil {
		t.Fatal(runErr)
	}

	if got := e.Metrics().TotalFrames(); got != 3 {
		t.Errorf("rendered %d frames, want 3", got)
	}
	captures, err := filepath.Glob(filepath.Join(cfg.Capture.Dir, "*.bmp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(captures) == 0 {
		t.Error("no frame was captured")
	}
}

func TestHeadlessRejectsVulkan(t *testing.T) {
	cfg := headlessConfig(t)
	cfg.Renderer.Backend = config.BackendVulkan
	tb := testbed.NewTestGame(&engine.ApplicationConfig{Config: cfg, Headless: true})
	if _, err := engine.New(tb.Game); err == nil {
		t.Fatal("expected a headless vulkan run to be rejected")
	}
}
