package vulkan

import (
	"fmt"
	"strings"

	vk "github.com/goki/vulkan"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

type VulkanRenderPassState int

const (
	READY VulkanRenderPassState = iota
	RECORDING
	IN_RENDER_PASS
	RECORDING_ENDED
	SUBMITTED
	NOT_ALLOCATED
)

// attachmentKey is what makes two render passes interchangeable.
type attachmentKey struct {
	Format md.Format
	Load   md.LoadOperation
	Store  md.StoreOperation
	Layout md.ImageLayout
}

type VulkanRenderpass struct {
	Handle vk.RenderPass
	Key    string
	Colors []attachmentKey
	Depth  *attachmentKey
}

func renderpassKey(colors []attachmentKey, depth *attachmentKey) string {
	var sb strings.Builder
	for _, c := range colors {
		fmt.Fprintf(&sb, "c%d/%d/%d/%d;", c.Format, c.Load, c.Store, c.Layout)
	}
	if depth != nil {
		fmt.Fprintf(&sb, "d%d/%d/%d/%d", depth.Format, depth.Load, depth.Store, depth.Layout)
	}
	return sb.String()
}

// RenderpassCreate builds a single-subpass render pass that keeps every attachment in its given layout.
func RenderpassCreate(context *VulkanContext, colors []attachmentKey, depth *attachmentKey) (*VulkanRenderpass, error) {
	outRenderpass := &VulkanRenderpass{
		Key:    renderpassKey(colors, depth),
		Colors: colors,
		Depth:  depth,
	}

	attachmentDescriptions := make([]vk.AttachmentDescription, 0, len(colors)+1)
	colorAttachmentReferences := make([]vk.AttachmentReference, 0, len(colors))

	for i, c := range colors {
		layout := imageLayout(c.Layout)
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         vulkanFormat(c.Format),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp(c.Load),
			StoreOp:        storeOp(c.Store),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  layout,
			FinalLayout:    layout,
		})
		colorAttachmentReferences = append(colorAttachmentReferences, vk.AttachmentReference{
			Attachment: uint32(i), // Attachment description array index
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	// Main subpass
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorAttachmentReferences)),
		PColorAttachments:    colorAttachmentReferences,
	}

	// Depth attachment, if there is one
	if depth != nil {
		layout := imageLayout(depth.Layout)
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         vulkanFormat(depth.Format),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp(depth.Load),
			StoreOp:        storeOp(depth.Store),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  layout,
			FinalLayout:    layout,
		})
		depthAttachmentReference := vk.AttachmentReference{
			Attachment: uint32(len(colors)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		subpass.PDepthStencilAttachment = &depthAttachmentReference
	}

	// Ordering against other work is expressed with explicit barriers, so no dependencies here.
	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	var pRenderPass vk.RenderPass
	if res := vk.CreateRenderPass(context.Device.LogicalDevice, &renderpassCreateInfo, context.Allocator, &pRenderPass); res != vk.Success {
		return nil, resultError("vkCreateRenderPass", res)
	}
	outRenderpass.Handle = pRenderPass
	return outRenderpass, nil
}

func (vr *VulkanRenderpass) RenderpassDestroy(context *VulkanContext) {
	if vr.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = vk.NullRenderPass
	}
}

func (vr *VulkanRenderpass) RenderpassBegin(commandBuffer *VulkanCommandBuffer, frameBuffer vk.Framebuffer, extent md.Extent2D, begin md.RenderPassBegin) {
	clearValues := make([]vk.ClearValue, 0, len(begin.Color)+1)
	for _, c := range begin.Color {
		var cv vk.ClearValue
		cv.SetColor([]float32{c.ClearColor.X, c.ClearColor.Y, c.ClearColor.Z, c.ClearColor.W})
		clearValues = append(clearValues, cv)
	}
	if begin.Depth != nil {
		var cv vk.ClearValue
		cv.SetDepthStencil(begin.Depth.ClearDepth, 0)
		clearValues = append(clearValues, cv)
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: frameBuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{
				Width:  extent.Width,
				Height: extent.Height,
			},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}

	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (vr *VulkanRenderpass) RenderpassEnd(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}

// renderpassCache shares render passes between pipelines and frames.
type renderpassCache struct {
	passes map[string]*VulkanRenderpass
}

func newRenderpassCache() *renderpassCache {
	return &renderpassCache{passes: map[string]*VulkanRenderpass{}}
}

func (c *renderpassCache) get(context *VulkanContext, colors []attachmentKey, depth *attachmentKey) (*VulkanRenderpass, error) {
	key := renderpassKey(colors, depth)
	if rp, ok := c.passes[key]; ok {
		return rp, nil
	}
	rp, err := RenderpassCreate(context, colors, depth)
	if err != nil {
		return nil, err
	}
	c.passes[key] = rp
	return rp, nil
}

// compatible returns a pass usable to build pipelines for the given formats.
func (c *renderpassCache) compatible(context *VulkanContext, colorFormats []md.Format, depthFormat md.Format) (*VulkanRenderpass, error) {
	colors := make([]attachmentKey, len(colorFormats))
	for i, f := range colorFormats {
		colors[i] = attachmentKey{Format: f, Layout: md.LayoutColorAttachment}
	}
	var depth *attachmentKey
	if depthFormat != md.FormatUndefined {
		depth = &attachmentKey{Format: depthFormat, Layout: md.LayoutDepthAttachment}
	}
	return c.get(context, colors, depth)
}

func (c *renderpassCache) destroy(context *VulkanContext) {
	for _, rp := range c.passes {
		rp.RenderpassDestroy(context)
	}
	c.passes = map[string]*VulkanRenderpass{}
}
