package renderer

import (
	"fmt"

	"github.com/spaghettifunk/simcam/engine/config"
	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/platform"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/renderer/software"
	"github.com/spaghettifunk/simcam/engine/renderer/vulkan"
)

/**
 * @brief Creates the device named by renderer.backend. The Vulkan device
 * presents to the platform window, so it needs a started platform; the
 * reference device renders off-screen at the configured window size.
 */
func NewDevice(cfg *config.Config, p *platform.Platform) (md.Device, error) {
	switch cfg.Renderer.Backend {
	case config.BackendVulkan:
		if p == nil || p.Window == nil {
			err := fmt.Errorf("%w: the vulkan backend needs a window", core.ErrInvalidConfig)
			core.LogError(err.Error())
			return nil, err
		}
		device, err := vulkan.New(p, vulkan.Options{
			AppName:    cfg.Window.Title,
			Validation: cfg.Renderer.Validation,
		})
		if err != nil {
			return nil, err
		}
		return device, nil
	case config.BackendReference:
		device, err := software.NewDevice(md.Extent2D{Width: cfg.Window.Width, Height: cfg.Window.Height},
			software.WithSurfaceImages(cfg.Renderer.FramesInFlight+1))
		if err != nil {
			return nil, err
		}
		return device, nil
	}
	err := fmt.Errorf("%w: unknown renderer backend %q", core.ErrInvalidConfig, cfg.Renderer.Backend)
	core.LogError(err.Error())
	return nil, err
}
