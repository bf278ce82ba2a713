package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/simcam/engine/core"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

type VulkanImage struct {
	Name    string
	Handle  vk.Image
	Memory  vk.DeviceMemory
	View    vk.ImageView
	Sampler vk.Sampler
	Width   uint32
	Height  uint32
	Format  md.Format
	Size    uint64
	// Surface images belong to the swapchain and are never destroyed here.
	Owned bool
}

func ImageCreate(context *VulkanContext, desc md.ImageDesc) (*VulkanImage, error) {
	format := vulkanFormat(desc.Format)
	if format == vk.FormatUndefined || desc.Extent.IsZero() {
		err := fmt.Errorf("%w: image %q has format %s and extent %s", core.ErrResourceCreation, desc.Name, desc.Format, desc.Extent)
		core.LogError(err.Error())
		return nil, err
	}

	image := &VulkanImage{
		Name:   desc.Name,
		Width:  desc.Extent.Width,
		Height: desc.Extent.Height,
		Format: desc.Format,
		Owned:  true,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	if res := vk.CreateImage(context.Device.LogicalDevice, &imageCreateInfo, context.Allocator, &image.Handle); res != vk.Success {
		return nil, resultError("vkCreateImage", res)
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, image.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if memoryType == -1 {
		image.Destroy(context)
		err := fmt.Errorf("%w: no memory type for image %q", core.ErrResourceCreation, desc.Name)
		core.LogError(err.Error())
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &image.Memory); res != vk.Success {
		image.Destroy(context)
		return nil, resultError("vkAllocateMemory", res)
	}
	image.Size = uint64(memoryRequirements.Size)

	// TODO: configurable memory offset.
	if res := vk.BindImageMemory(context.Device.LogicalDevice, image.Handle, image.Memory, 0); res != vk.Success {
		image.Destroy(context)
		return nil, resultError("vkBindImageMemory", res)
	}

	view, err := createImageView(context, image.Handle, format, aspectMask(desc.Format))
	if err != nil {
		image.Destroy(context)
		return nil, err
	}
	image.View = view

	if desc.Sampler != md.SamplerNone {
		sampler, err := createSampler(context, desc.Sampler)
		if err != nil {
			image.Destroy(context)
			return nil, err
		}
		image.Sampler = sampler
	}

	return image, nil
}

func createImageView(context *VulkanContext, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var view vk.ImageView
	if res := vk.CreateImageView(context.Device.LogicalDevice, &viewCreateInfo, context.Allocator, &view); res != vk.Success {
		return vk.NullImageView, resultError("vkCreateImageView", res)
	}
	return view, nil
}

func createSampler(context *VulkanContext, mode md.SamplerMode) (vk.Sampler, error) {
	filter := vk.FilterLinear
	if mode == md.SamplerNearestClamp {
		filter = vk.FilterNearest
	}
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		MipmapMode:              vk.SamplerMipmapModeNearest,
		AddressModeU:            vk.SamplerAddressModeClampToEdge,
		AddressModeV:            vk.SamplerAddressModeClampToEdge,
		AddressModeW:            vk.SamplerAddressModeClampToEdge,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorFloatOpaqueWhite,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
	}

	var sampler vk.Sampler
	if res := vk.CreateSampler(context.Device.LogicalDevice, &samplerInfo, context.Allocator, &sampler); res != vk.Success {
		return vk.NullSampler, resultError("vkCreateSampler", res)
	}
	return sampler, nil
}

func (vi *VulkanImage) Extent() md.Extent2D {
	return md.Extent2D{Width: vi.Width, Height: vi.Height}
}

func (vi *VulkanImage) Destroy(context *VulkanContext) {
	if !vi.Owned {
		return
	}
	if vi.Sampler != vk.NullSampler {
		vk.DestroySampler(context.Device.LogicalDevice, vi.Sampler, context.Allocator)
		vi.Sampler = vk.NullSampler
	}
	if vi.View != vk.NullImageView {
		vk.DestroyImageView(context.Device.LogicalDevice, vi.View, context.Allocator)
		vi.View = vk.NullImageView
	}
	if vi.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, vi.Memory, context.Allocator)
		vi.Memory = vk.NullDeviceMemory
	}
	if vi.Handle != vk.NullImage {
		vk.DestroyImage(context.Device.LogicalDevice, vi.Handle, context.Allocator)
		vi.Handle = vk.NullImage
	}
}
