/*
Renders the simulated camera pipeline, in a window or headless on the
reference device
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/simcam/engine"
	"github.com/spaghettifunk/simcam/engine/config"
	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/testbed"
	"github.com/urfave/cli"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		core.LogFatal(err.Error())
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "simcam"
	app.Usage = "render a simulated camera through the HDR frame pipeline"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to a TOML configuration file",
		},
		cli.StringFlag{
			Name:  "backend, b",
			Usage: "renderer backend: vulkan or reference",
		},
		cli.Uint64Flag{
			Name:  "frames, n",
			Usage: "stop after this many frames; 0 runs until the window closes",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "render off-screen on the reference device",
		},
	}
	app.Action = run
	return app
}

func run(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		core.LogError("invalid configuration: %s", err)
		return err
	}
	if backend := ctx.String("backend"); backend != "" {
		cfg.Renderer.Backend = backend
	}
	headless := ctx.Bool("headless")
	if headless && cfg.Renderer.Backend == config.BackendVulkan {
		core.LogInfo("headless run, switching to the %s backend", config.BackendReference)
		cfg.Renderer.Backend = config.BackendReference
	}
	if err := cfg.Validate(); err != nil {
		core.LogError("invalid configuration: %s", err)
		return err
	}

	tb := testbed.NewTestGame(&engine.ApplicationConfig{
		Config:    cfg,
		Headless:  headless,
		MaxFrames: ctx.Uint64("frames"),
	})

	e, err := engine.New(tb.Game)
	if err != nil {
		return err
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		e.Stop()
	}()

	err = e.Initialize()
	if err == nil {
		err = e.Run()
	}
	if serr := e.Shutdown(); serr != nil {
		core.LogError(serr.Error())
	}
	return err
}
