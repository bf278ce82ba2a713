package vulkan

import (
	vk "github.com/goki/vulkan"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

type VulkanFramebuffer struct {
	Handle          vk.Framebuffer
	AttachmentCount uint32
	Attachments     []vk.ImageView
	Renderpass      *VulkanRenderpass
}

func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, width uint32, height uint32, attachments []vk.ImageView) (*VulkanFramebuffer, error) {
	outFramebuffer := &VulkanFramebuffer{
		Attachments:     make([]vk.ImageView, len(attachments)),
		Renderpass:      renderpass,
		AttachmentCount: uint32(len(attachments)),
	}
	// Take a copy of the attachments
	copy(outFramebuffer.Attachments, attachments)

	// Creation info
	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: outFramebuffer.AttachmentCount,
		PAttachments:    outFramebuffer.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var pFramebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(context.Device.LogicalDevice, &framebufferCreateInfo, context.Allocator, &pFramebuffer); res != vk.Success {
		return nil, resultError("vkCreateFramebuffer", res)
	}
	outFramebuffer.Handle = pFramebuffer
	return outFramebuffer, nil
}

func (vfb *VulkanFramebuffer) Destroy(context *VulkanContext) {
	if vfb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
	}
	vfb.Attachments = nil
	vfb.Handle = vk.NullFramebuffer
	vfb.AttachmentCount = 0
	vfb.Renderpass = nil
}

type framebufferKey struct {
	pass   string
	views  string
	extent md.Extent2D
}

type framebufferEntry struct {
	fb     *VulkanFramebuffer
	images []md.ImageHandle
}

// framebufferCache holds one framebuffer per pass, attachment set and extent.
// Entries are dropped when any of their images is destroyed.
type framebufferCache struct {
	entries map[framebufferKey]*framebufferEntry
}

func newFramebufferCache() *framebufferCache {
	return &framebufferCache{entries: map[framebufferKey]*framebufferEntry{}}
}

func (c *framebufferCache) get(context *VulkanContext, rp *VulkanRenderpass, images []md.ImageHandle, views []vk.ImageView, extent md.Extent2D) (*VulkanFramebuffer, error) {
	key := framebufferKey{pass: rp.Key, views: viewsKey(images), extent: extent}
	if e, ok := c.entries[key]; ok {
		return e.fb, nil
	}
	fb, err := FramebufferCreate(context, rp, extent.Width, extent.Height, views)
	if err != nil {
		return nil, err
	}
	c.entries[key] = &framebufferEntry{fb: fb, images: images}
	return fb, nil
}

// forget destroys every framebuffer that references the image. The device must be idle
// or the framebuffers must no longer be in use.
func (c *framebufferCache) forget(context *VulkanContext, image md.ImageHandle) {
	for key, e := range c.entries {
		for _, h := range e.images {
			if h == image {
				e.fb.Destroy(context)
				delete(c.entries, key)
				break
			}
		}
	}
}

func (c *framebufferCache) destroy(context *VulkanContext) {
	for key, e := range c.entries {
		e.fb.Destroy(context)
		delete(c.entries, key)
	}
}

func viewsKey(images []md.ImageHandle) string {
	b := make([]byte, 0, len(images)*8)
	for _, h := range images {
		for i := 0; i < 8; i++ {
			b = append(b, byte(h>>(8*i)))
		}
	}
	return string(b)
}
