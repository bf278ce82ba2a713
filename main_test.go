package main

import (
	"testing"

	"github.com/urfave/cli"
)

func TestAppFlags(t *testing.T) {
	app := newApp()
	var (
		configPath, backend string
		frames              uint64
		headless            bool
	)
	app.Action = func(ctx *cli.Context) error {
		configPath = ctx.String("config")
		backend = ctx.String("backend")
		frames = ctx.Uint64("frames")
		headless = ctx.Bool("headless")
		return nil
	}

	args := []string{"simcam", "-c", "simcam.toml", "--backend", "reference", "-frames", "120", "--headless"}
	if err := app.Run(args); err != nil {
		t.Fatal(err)
	}
	if configPath != "simcam.toml" || backend != "reference" || frames != 120 || !headless {
		t.Errorf("parsed config=%q backend=%q frames=%d headless=%v", configPath, backend, frames, headless)
	}
}

func TestAppFlagDefaults(t *testing.T) {
	app := newApp()
	app.Action = func(ctx *cli.Context) error {
		if ctx.String("config") != "" || ctx.Uint64("frames") != 0 || ctx.Bool("headless") {
			t.Errorf("unexpected defaults")
		}
		return nil
	}
	if err := app.Run([]string{"simcam"}); err != nil {
		t.Fatal(err)
	}
}
