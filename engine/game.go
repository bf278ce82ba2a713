package engine

import (
	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/renderer/frame"
	"github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Initialize runs once the device exists; device resources such as meshes are created here.
type Initialize func(device metadata.Device) error
type Update func(input *core.InputState, deltaTime float64) error

// Render fills the inputs of the next frame.
type Render func(request *frame.FrameRequest, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func(device metadata.Device) error
