package frame

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/simcam/engine/core"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
	"github.com/spaghettifunk/simcam/engine/renderer/passes"
)

type pendingCapture struct {
	sequence  uint64
	timestamp time.Time
	extent    md.Extent2D
}

/**
 * @brief The per-slot half of the frame state. A slot is reused only after
 * its in-flight fence has been waited on, so nothing here is ever written by
 * the host while the GPU may still read it.
 */
type Slot struct {
	Index int
	/** @brief Signalled when the slot's last submission completes. */
	InFlight md.FenceHandle
	/** @brief Signals the compute half of a split same-frame submission. */
	Compute md.FenceHandle
	Buffers passes.SlotBuffers

	readbackPending bool
	capture         *pendingCapture
}

func captureSize(extent md.Extent2D) uint64 {
	return uint64(extent.Pixels()) * 4
}

func newSlot(device md.Device, index int, capture bool, surface md.Extent2D) (*Slot, error) {
	s := &Slot{Index: index}
	var err error
	if s.InFlight, err = device.CreateFence(true); err != nil {
		return nil, err
	}
	if s.Compute, err = device.CreateFence(false); err != nil {
		s.destroy(device)
		return nil, err
	}
	buffers := []struct {
		handle *md.BufferHandle
		desc   md.BufferDesc
	}{
		{&s.Buffers.Uniforms, md.BufferDesc{
			Name:  fmt.Sprintf("slot%d.uniforms", index),
			Size:  passes.UniformSize,
			Usage: md.BufferUsageUniform | md.BufferUsageHostVisible,
		}},
		{&s.Buffers.LensParams, md.BufferDesc{
			Name:  fmt.Sprintf("slot%d.lens_params", index),
			Size:  16,
			Usage: md.BufferUsageUniform | md.BufferUsageHostVisible,
		}},
		{&s.Buffers.ExposureReadback, md.BufferDesc{
			Name:  fmt.Sprintf("slot%d.exposure_readback", index),
			Size:  passes.ExposureStateSize,
			Usage: md.BufferUsageTransferDst | md.BufferUsageHostVisible,
		}},
	}
	for _, b := range buffers {
		if *b.handle, err = device.CreateBuffer(b.desc); err != nil {
			s.destroy(device)
			return nil, fmt.Errorf("%w: %v", core.ErrResourceCreation, err)
		}
	}
	if capture {
		if err := s.createCapture(device, surface); err != nil {
			s.destroy(device)
			return nil, err
		}
	}
	return s, nil
}

func (s *Slot) createCapture(device md.Device, surface md.Extent2D) error {
	h, err := device.CreateBuffer(md.BufferDesc{
		Name:  fmt.Sprintf("slot%d.capture", s.Index),
		Size:  captureSize(surface),
		Usage: md.BufferUsageTransferDst | md.BufferUsageHostVisible,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrResourceCreation, err)
	}
	s.Buffers.Capture = h
	return nil
}

func (s *Slot) destroyCapture(device md.Device) {
	if s.Buffers.Capture != 0 {
		device.DestroyBuffer(s.Buffers.Capture)
		s.Buffers.Capture = 0
	}
	s.capture = nil
}

func (s *Slot) destroy(device md.Device) {
	for _, h := range []*md.BufferHandle{&s.Buffers.Uniforms, &s.Buffers.LensParams, &s.Buffers.ExposureReadback} {
		if *h != 0 {
			device.DestroyBuffer(*h)
			*h = 0
		}
	}
	s.destroyCapture(device)
	for _, f := range []*md.FenceHandle{&s.InFlight, &s.Compute} {
		if *f != 0 {
			device.DestroyFence(*f)
			*f = 0
		}
	}
}
