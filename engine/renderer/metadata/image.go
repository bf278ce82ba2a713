package metadata

import (
	"fmt"

	"github.com/spaghettifunk/simcam/engine/math"
)

/**
 * @brief The size in pixels of an image or of the output surface.
 */
type Extent2D struct {
	Width  uint32
	Height uint32
}

func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

/**
 * @brief Returns the extent scaled by factor, rounded down and never smaller than 1x1.
 */
func (e Extent2D) Scale(factor float32) Extent2D {
	w := uint32(float32(e.Width) * factor)
	h := uint32(float32(e.Height) * factor)
	return Extent2D{Width: math.Max(w, 1), Height: math.Max(h, 1)}
}

/**
 * @brief Returns the number of workgroups needed to cover the extent with
 * local x local sized groups.
 */
func (e Extent2D) Groups(local uint32) (uint32, uint32) {
	return (e.Width + local - 1) / local, (e.Height + local - 1) / local
}

// Texel returns the size of one texel in normalized coordinates.
func (e Extent2D) Texel() math.Vec2 {
	return math.NewVec2(1.0/float32(e.Width), 1.0/float32(e.Height))
}

func (e Extent2D) Pixels() int {
	return int(e.Width) * int(e.Height)
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

type Format int

const (
	FormatUndefined Format = iota
	/** @brief Half-float RGBA, used for every HDR intermediate. */
	FormatRGBA16F
	FormatRGBA8
	/** @brief The presentable surface format. */
	FormatBGRA8
	FormatD32
)

func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatRGBA16F:
		return 8
	case FormatRGBA8, FormatBGRA8, FormatD32:
		return 4
	}
	return 0
}

func (f Format) IsDepth() bool {
	return f == FormatD32
}

func (f Format) String() string {
	switch f {
	case FormatRGBA16F:
		return "RGBA16F"
	case FormatRGBA8:
		return "RGBA8"
	case FormatBGRA8:
		return "BGRA8"
	case FormatD32:
		return "D32"
	}
	return "undefined"
}

/** @brief How an image is going to be used. Can be combined. */
type TextureUsage uint32

const (
	UsageColorAttachment TextureUsage = 1 << iota
	UsageDepthAttachment
	UsageSampled
	UsageStorage
	UsageTransferSrc
	UsageTransferDst
)

func (u TextureUsage) Has(flag TextureUsage) bool {
	return u&flag == flag
}

/** @brief The sampler created alongside an image, if any. */
type SamplerMode int

const (
	SamplerNone SamplerMode = iota
	SamplerLinearClamp
	SamplerNearestClamp
)

type ImageLayout int

const (
	LayoutUndefined ImageLayout = iota
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutShaderRead
	LayoutDepthRead
	LayoutGeneral
	LayoutTransferSrc
	LayoutPresent
)

func (l ImageLayout) String() string {
	switch l {
	case LayoutColorAttachment:
		return "color-attachment"
	case LayoutDepthAttachment:
		return "depth-attachment"
	case LayoutShaderRead:
		return "shader-read"
	case LayoutDepthRead:
		return "depth-read"
	case LayoutGeneral:
		return "general"
	case LayoutTransferSrc:
		return "transfer-src"
	case LayoutPresent:
		return "present"
	}
	return "undefined"
}

/** @brief Handles are opaque device identifiers; 0 is never a valid handle. */
type (
	ImageHandle      uint64
	BufferHandle     uint64
	PipelineHandle   uint64
	BindingSetHandle uint64
	FenceHandle      uint64
)

/**
 * @brief Describes an image to be created together with its view and optional sampler.
 */
type ImageDesc struct {
	Name    string
	Extent  Extent2D
	Format  Format
	Usage   TextureUsage
	Sampler SamplerMode
}

func (d ImageDesc) SizeBytes() uint64 {
	return uint64(d.Extent.Pixels()) * uint64(d.Format.BytesPerPixel())
}

/** @brief The acquired presentable image for this frame. */
type SurfaceImage struct {
	/** @brief The swapchain index of the image. */
	Index  uint32
	Image  ImageHandle
	Extent Extent2D
	Format Format
}
