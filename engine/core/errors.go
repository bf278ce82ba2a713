package core

import (
	"errors"
)

var (
	// ErrSurfaceOutOfDate is returned by a device when the presentable surface no longer
	// matches the swapchain (resize, minimise). Recoverable.
	ErrSurfaceOutOfDate = errors.New("surface out of date")
	// ErrFrameDropped means the frame was abandoned before any GPU work was issued.
	ErrFrameDropped     = errors.New("frame dropped, resources are being rebuilt")
	ErrResourceCreation = errors.New("resource creation failed")
	ErrAssetInvalid     = errors.New("invalid or missing asset")
	ErrStaleBinding     = errors.New("binding references a destroyed resource")
	ErrDeviceLost       = errors.New("device lost")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrTimeout          = errors.New("wait timed out")
)
