package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/simcam/engine/assets"
	"github.com/spaghettifunk/simcam/engine/assets/loaders"
	"github.com/spaghettifunk/simcam/engine/config"
	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/platform"
	"github.com/spaghettifunk/simcam/engine/publish"
	"github.com/spaghettifunk/simcam/engine/renderer"
	"github.com/spaghettifunk/simcam/engine/renderer/frame"
	"github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/renderer/passes"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// how long a suspended (minimised) engine sleeps between message pumps
const suspendedSleep = 50 * time.Millisecond

type Engine struct {
	currentStage Stage
	gameInstance *Game
	cfg          *config.Config
	isRunning    atomic.Bool
	isSuspended  bool
	platform     *platform.Platform
	input        *core.InputState
	assetManager *assets.AssetManager
	device       metadata.Device
	orchestrator *frame.Orchestrator
	shaders      passes.ShaderSource
	sink         publish.Sink
	width        uint32
	height       uint32
	clock        *core.Clock
	metrics      *core.Metrics
	lastTime     float64
	frames       uint64
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil || g.ApplicationConfig.Config == nil {
		err := fmt.Errorf("%w: the game carries no configuration", core.ErrInvalidConfig)
		core.LogError(err.Error())
		return nil, err
	}
	cfg := g.ApplicationConfig.Config
	if g.ApplicationConfig.Headless && cfg.Renderer.Backend == config.BackendVulkan {
		err := fmt.Errorf("%w: headless runs need the %s backend", core.ErrInvalidConfig, config.BackendReference)
		core.LogError(err.Error())
		return nil, err
	}
	if level, ok := core.ParseLogLevel(cfg.Log.Level); ok {
		core.SetLogLevel(level)
	}

	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		cfg:          cfg,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(cfg.Stats.Interval.Duration),
		width:        cfg.Window.Width,
		height:       cfg.Window.Height,
		shaders:      passes.NoCode{},
		sink:         publish.Discard{},
	}

	if g.ApplicationConfig.Headless {
		e.input = core.NewInputState()
	} else {
		p, err := platform.New()
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		e.platform = p
		e.input = p.Input
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	e.assetManager = am
	e.isRunning.Store(true)
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	cfg := e.cfg

	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	core.EventRegister(core.EVENT_CODE_RESIZED, e, e.onResized)

	if e.platform != nil {
		if err := e.platform.Startup(cfg.Window.Title,
			uint32(cfg.Window.X),
			uint32(cfg.Window.Y),
			cfg.Window.Width,
			cfg.Window.Height); err != nil {
			return err
		}
		e.width, e.height = e.platform.FramebufferSize()
	}

	device, err := renderer.NewDevice(cfg, e.platform)
	if err != nil {
		return err
	}
	e.device = device
	core.LogInfo("%s device ready", device.Name())

	lens, err := loaders.LoadLens(cfg.Flare.LensFile)
	if err != nil {
		core.LogError("cannot load the lens system: %s", err.Error())
		return err
	}

	watch := []string{filepath.Dir(cfg.Flare.LensFile)}
	if cfg.Renderer.Backend == config.BackendVulkan {
		set, err := loaders.LoadShaderSet(cfg.Renderer.ShaderDir)
		if err != nil {
			core.LogError(err.Error())
			return err
		}
		e.shaders = set
		watch = append(watch, cfg.Renderer.ShaderDir)
	}

	if cfg.Capture.Enabled {
		sink, err := publish.NewDirectorySink(cfg.Capture.Dir, cfg.Capture.Queue)
		if err != nil {
			core.LogError(err.Error())
			return err
		}
		e.sink = sink
	}

	orch, err := frame.New(device, cfg, lens, frame.WithShaders(e.shaders), frame.WithSink(e.sink))
	if err != nil {
		return err
	}
	e.orchestrator = orch

	if err := e.assetManager.Watch(watch...); err != nil {
		core.LogWarn("hot reload disabled: %s", err.Error())
	}

	if err := e.gameInstance.FnInitialize(device); err != nil {
		return err
	}
	if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
		return err
	}
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	limit := e.gameInstance.ApplicationConfig.MaxFrames

	for e.isRunning.Load() {
		if e.platform != nil && !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}

		if err := e.processAssetChanges(); err != nil {
			return err
		}

		if e.isSuspended {
			time.Sleep(suspendedSleep)
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStart := time.Now()

		if err := e.gameInstance.FnUpdate(e.input, delta); err != nil {
			core.LogError("Game update failed, shutting down.")
			return err
		}

		request := frame.FrameRequest{}
		if err := e.gameInstance.FnRender(&request, delta); err != nil {
			core.LogError("Game render failed, shutting down.")
			return err
		}

		result, err := e.orchestrator.RenderFrame(request)
		switch {
		case errors.Is(err, core.ErrFrameDropped):
			core.LogDebug("frame dropped: %s", err.Error())
			e.metrics.Dropped()
		case err != nil:
			core.LogError("Frame failed, shutting down.")
			return err
		default:
			e.frames++
			if e.metrics.Update(time.Since(frameStart)) {
				fps, frameTime := e.metrics.Frame()
				core.LogInfo("FPS: %5.1f (%4.1fms) exposure %.3f -> %.3f, %d drawn, %d culled",
					fps, frameTime, result.Exposure, result.Target, result.Visible, result.Culled)
			}
			if limit > 0 && e.frames >= limit {
				e.isRunning.Store(false)
			}
		}

		// NOTE: input state copying happens after every consumer read the keys.
		e.input.Update()
		e.lastTime = currentTime
	}

	if err := e.orchestrator.Flush(); err != nil {
		return err
	}
	core.LogInfo("%d frames, %d dropped, average %.1f FPS",
		e.metrics.TotalFrames(), e.metrics.DroppedFrames(), e.metrics.AverageFPS())
	return nil
}

// Stop asks the run loop to return after the current frame. Safe to call from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown

	core.EventUnregister(core.EVENT_CODE_APPLICATION_QUIT, e)
	core.EventUnregister(core.EVENT_CODE_KEY_PRESSED, e)
	core.EventUnregister(core.EVENT_CODE_RESIZED, e)

	var errs []error
	if e.orchestrator != nil {
		e.orchestrator.Destroy()
		e.orchestrator = nil
	}
	if e.device != nil && e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(e.device); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.sink.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.assetManager.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.device != nil {
		e.device.Destroy()
		e.device = nil
	}
	if e.platform != nil {
		if err := e.platform.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}

/**
 * @brief Applies edits to the shader directory and the lens file. Several
 * changes seen in the same frame cause a single reload. A broken asset is
 * reported and the previous one stays in use.
 */
func (e *Engine) processAssetChanges() error {
	var shadersChanged bool
	var lensPath string
	for pending := true; pending; {
		select {
		case c, ok := <-e.assetManager.Changes():
			if !ok {
				pending = false
				break
			}
			switch c.Kind {
			case assets.KindShader:
				shadersChanged = e.cfg.Renderer.Backend == config.BackendVulkan
			case assets.KindLens:
				if filepath.Clean(c.Path) == filepath.Clean(e.cfg.Flare.LensFile) {
					lensPath = c.Path
				}
			}
		default:
			pending = false
		}
	}

	if shadersChanged {
		if err := e.reloadShaders(); err != nil {
			return err
		}
	}
	if lensPath != "" {
		if err := e.reloadLens(lensPath); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) reloadShaders() error {
	set, err := loaders.LoadShaderSet(e.cfg.Renderer.ShaderDir)
	if err != nil {
		core.LogWarn("shader reload skipped: %s", err.Error())
		return nil
	}
	if err := e.orchestrator.ReloadPipelines(set); err != nil {
		core.LogWarn("shader reload failed, restoring the previous pipelines: %s", err.Error())
		return e.orchestrator.ReloadPipelines(e.shaders)
	}
	e.shaders = set
	e.fireAssetChanged(e.cfg.Renderer.ShaderDir)
	return nil
}

func (e *Engine) reloadLens(path string) error {
	v, err := e.assetManager.LoadAsset(path)
	if err != nil {
		core.LogWarn("lens reload skipped: %s", err.Error())
		return nil
	}
	lens := v.(*passes.LensSystem)
	if err := lens.Validate(); err != nil {
		core.LogWarn("lens reload skipped: %s", err.Error())
		return nil
	}
	if err := e.orchestrator.SetLensSystem(lens); err != nil {
		return err
	}
	e.fireAssetChanged(path)
	return nil
}

func (e *Engine) fireAssetChanged(path string) {
	ctx := core.EventContext{}
	ctx.Data.C = path
	core.EventFire(core.EVENT_CODE_ASSET_CHANGED, e, ctx)
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if core.KeyCode(data.Data.U16[0]) == core.KEY_ESCAPE {
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
		// Block anything else from processing this.
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width := data.Data.U32[0]
	height := data.Data.U32[1]

	// Check if different. If so, trigger a resize event.
	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.orchestrator != nil {
		e.orchestrator.Resize(width, height)
	}
	if err := e.gameInstance.FnOnResize(width, height); err != nil {
		core.LogError(err.Error())
	}
	return false
}
