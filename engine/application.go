package engine

import (
	"github.com/spaghettifunk/simcam/engine/config"
)

type ApplicationConfig struct {
	Config *config.Config
	// Render off-screen on the reference device, without opening a window.
	Headless bool
	// Stop after this many submitted frames. Zero runs until the window closes.
	MaxFrames uint64
}
