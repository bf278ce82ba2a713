package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/simcam/engine/core"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

/**
 * @brief A primary command buffer owned by a frame slot's pool. It records
 * against the device's handle tables and implements metadata.CommandBuffer.
 */
type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState

	device *Device
	slot   int
	label  string
	// The fence of the last submission, nil when never submitted.
	fence *VulkanFence

	pipeline *VulkanPipeline
	pass     *VulkanRenderpass
	// Handles recorded, checked again at submit.
	pipelines map[md.PipelineHandle]bool
	sets      map[md.BindingSetHandle]bool
	// First recording error; returned by End.
	err error
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	vCommandBuffer := &VulkanCommandBuffer{
		State: COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}

	level := vk.CommandBufferLevelSecondary
	if isPrimary {
		level = vk.CommandBufferLevelPrimary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		return nil, resultError("vkAllocateCommandBuffers", res)
	}
	vCommandBuffer.Handle = handles[0]
	vCommandBuffer.State = COMMAND_BUFFER_STATE_READY

	return vCommandBuffer, nil
}

func (v *VulkanCommandBuffer) Free(context *VulkanContext, pool vk.CommandPool) {
	vk.FreeCommandBuffers(context.Device.LogicalDevice, pool, 1, []vk.CommandBuffer{v.Handle})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

// reusable reports whether the GPU is done with the buffer.
func (v *VulkanCommandBuffer) reusable(context *VulkanContext) bool {
	switch v.State {
	case COMMAND_BUFFER_STATE_READY, COMMAND_BUFFER_STATE_RECORDING_ENDED:
		return true
	case COMMAND_BUFFER_STATE_SUBMITTED:
		return v.fence != nil && v.fence.Handle != vk.NullFence && v.fence.FenceStatus(context)
	}
	return false
}

func (v *VulkanCommandBuffer) Begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	vBeginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: 0,
	}

	if isSingleUse {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if res := vk.BeginCommandBuffer(v.Handle, &vBeginInfo); res != vk.Success {
		return resultError("vkBeginCommandBuffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	v.pipeline = nil
	v.pass = nil
	v.fence = nil
	v.err = nil
	v.pipelines = map[md.PipelineHandle]bool{}
	v.sets = map[md.BindingSetHandle]bool{}

	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		v.fail(fmt.Errorf("%s: ended inside render pass", v.label))
		v.EndRenderPass()
	}
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		return resultError("vkEndCommandBuffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return v.err
}

func (v *VulkanCommandBuffer) UpdateSubmitted(fence *VulkanFence) {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
	v.fence = fence
}

func (v *VulkanCommandBuffer) Reset() {
	v.State = COMMAND_BUFFER_STATE_READY
}

func (v *VulkanCommandBuffer) fail(err error) {
	if v.err == nil {
		v.err = err
		core.LogError(err.Error())
	}
}

func (v *VulkanCommandBuffer) BeginRenderPass(begin md.RenderPassBegin) {
	context := v.device.context
	colors := make([]attachmentKey, len(begin.Color))
	handles := make([]md.ImageHandle, 0, len(begin.Color)+1)
	views := make([]vk.ImageView, 0, len(begin.Color)+1)

	add := func(a md.Attachment) (attachmentKey, bool) {
		img, ok := v.device.images[a.Image]
		if !ok {
			v.fail(fmt.Errorf("%w: %s: pass %s: image %d", core.ErrStaleBinding, v.label, begin.Name, a.Image))
			return attachmentKey{}, false
		}
		handles = append(handles, a.Image)
		views = append(views, img.View)
		return attachmentKey{Format: img.Format, Load: a.Load, Store: a.Store, Layout: a.Layout}, true
	}
	for i, a := range begin.Color {
		key, ok := add(a)
		if !ok {
			return
		}
		colors[i] = key
	}
	var depth *attachmentKey
	if begin.Depth != nil {
		key, ok := add(*begin.Depth)
		if !ok {
			return
		}
		depth = &key
	}

	rp, err := v.device.renderpasses.get(context, colors, depth)
	if err != nil {
		v.fail(err)
		return
	}
	fb, err := v.device.framebuffers.get(context, rp, handles, views, begin.Extent)
	if err != nil {
		v.fail(err)
		return
	}

	// Dynamic state
	viewport := vk.Viewport{
		X:        0.0,
		Y:        0.0,
		Width:    float32(begin.Extent.Width),
		Height:   float32(begin.Extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	// Scissor
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: begin.Extent.Width, Height: begin.Extent.Height},
	}
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{scissor})

	rp.RenderpassBegin(v, fb.Handle, begin.Extent, begin)
	v.pass = rp
}

func (v *VulkanCommandBuffer) EndRenderPass() {
	if v.pass == nil {
		return
	}
	v.pass.RenderpassEnd(v)
	v.pass = nil
}

func (v *VulkanCommandBuffer) BindPipeline(h md.PipelineHandle) {
	p, ok := v.device.pipelines[h]
	if !ok {
		v.fail(fmt.Errorf("%w: %s: pipeline %d", core.ErrStaleBinding, v.label, h))
		return
	}
	v.pipelines[h] = true
	v.pipeline = p
	p.Bind(v)
}

func (v *VulkanCommandBuffer) BindSet(h md.BindingSetHandle) {
	set, ok := v.device.sets[h]
	if !ok {
		v.fail(fmt.Errorf("%w: %s: binding set %d", core.ErrStaleBinding, v.label, h))
		return
	}
	if v.pipeline == nil {
		v.fail(fmt.Errorf("%s: binding set %d bound without a pipeline", v.label, h))
		return
	}
	v.sets[h] = true
	vk.CmdBindDescriptorSets(v.Handle, v.pipeline.BindPoint, v.pipeline.PipelineLayout, 0, 1, []vk.DescriptorSet{set.Handle}, 0, nil)
}

func (v *VulkanCommandBuffer) PushConstants(data []byte) {
	if v.pipeline == nil || len(data) == 0 {
		return
	}
	if uint32(len(data)) > v.pipeline.Desc.PushConstantSize {
		v.fail(fmt.Errorf("%s: %d push constant bytes for a %d byte block", v.label, len(data), v.pipeline.Desc.PushConstantSize))
		return
	}
	vk.CmdPushConstants(v.Handle, v.pipeline.PipelineLayout, v.pipeline.PushStages, 0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (v *VulkanCommandBuffer) Draw(vertexCount uint32) {
	vk.CmdDraw(v.Handle, vertexCount, 1, 0, 0)
}

func (v *VulkanCommandBuffer) DrawMesh(mesh md.Mesh) {
	vb, ok := v.device.buffers[mesh.VertexBuffer()]
	if !ok {
		v.fail(fmt.Errorf("%w: %s: vertex buffer %d", core.ErrStaleBinding, v.label, mesh.VertexBuffer()))
		return
	}
	ib, ok := v.device.buffers[mesh.IndexBuffer()]
	if !ok {
		v.fail(fmt.Errorf("%w: %s: index buffer %d", core.ErrStaleBinding, v.label, mesh.IndexBuffer()))
		return
	}
	vk.CmdBindVertexBuffers(v.Handle, 0, 1, []vk.Buffer{vb.Handle}, []vk.DeviceSize{0})
	vk.CmdBindIndexBuffer(v.Handle, ib.Handle, 0, vk.IndexTypeUint32)
	vk.CmdDrawIndexed(v.Handle, mesh.IndexCount(), 1, 0, 0, 0)
}

func (v *VulkanCommandBuffer) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(v.Handle, x, y, z)
}

func (v *VulkanCommandBuffer) PipelineBarrier(barriers ...md.Barrier) {
	for _, b := range barriers {
		src := pipelineStages(b.SrcStage, vk.PipelineStageTopOfPipeBit)
		dst := pipelineStages(b.DstStage, vk.PipelineStageBottomOfPipeBit)

		if b.Buffer != 0 {
			buf, ok := v.device.buffers[b.Buffer]
			if !ok {
				v.fail(fmt.Errorf("%w: %s: barrier on buffer %d", core.ErrStaleBinding, v.label, b.Buffer))
				continue
			}
			barrier := vk.BufferMemoryBarrier{
				SType:               vk.StructureTypeBufferMemoryBarrier,
				SrcAccessMask:       accessFlags(b.SrcAccess),
				DstAccessMask:       accessFlags(b.DstAccess),
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
				DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Buffer:              buf.Handle,
				Offset:              0,
				Size:                vk.DeviceSize(vk.WholeSize),
			}
			vk.CmdPipelineBarrier(v.Handle, src, dst, 0, 0, nil, 1, []vk.BufferMemoryBarrier{barrier}, 0, nil)
			continue
		}

		img, ok := v.device.images[b.Image]
		if !ok {
			v.fail(fmt.Errorf("%w: %s: barrier on image %d", core.ErrStaleBinding, v.label, b.Image))
			continue
		}
		barrier := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       accessFlags(b.SrcAccess),
			DstAccessMask:       accessFlags(b.DstAccess),
			OldLayout:           imageLayout(b.OldLayout),
			NewLayout:           imageLayout(b.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.Handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     aspectMask(img.Format),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
		vk.CmdPipelineBarrier(v.Handle, src, dst, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	}
}

func (v *VulkanCommandBuffer) FillBuffer(h md.BufferHandle, offset, size uint64, value uint32) {
	buf, ok := v.device.buffers[h]
	if !ok {
		v.fail(fmt.Errorf("%w: %s: fill of buffer %d", core.ErrStaleBinding, v.label, h))
		return
	}
	vk.CmdFillBuffer(v.Handle, buf.Handle, vk.DeviceSize(offset), vk.DeviceSize(size), value)
}

func (v *VulkanCommandBuffer) CopyBuffer(src, dst md.BufferHandle, srcOffset, dstOffset, size uint64) {
	s, ok := v.device.buffers[src]
	if !ok {
		v.fail(fmt.Errorf("%w: %s: copy from buffer %d", core.ErrStaleBinding, v.label, src))
		return
	}
	d, ok := v.device.buffers[dst]
	if !ok {
		v.fail(fmt.Errorf("%w: %s: copy to buffer %d", core.ErrStaleBinding, v.label, dst))
		return
	}
	region := vk.BufferCopy{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(v.Handle, s.Handle, d.Handle, 1, []vk.BufferCopy{region})
}

func (v *VulkanCommandBuffer) CopyImageToBuffer(src md.ImageHandle, dst md.BufferHandle) {
	img, ok := v.device.images[src]
	if !ok {
		v.fail(fmt.Errorf("%w: %s: copy from image %d", core.ErrStaleBinding, v.label, src))
		return
	}
	buf, ok := v.device.buffers[dst]
	if !ok {
		v.fail(fmt.Errorf("%w: %s: copy to buffer %d", core.ErrStaleBinding, v.label, dst))
		return
	}
	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     aspectMask(img.Format),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{X: 0, Y: 0, Z: 0},
		ImageExtent: vk.Extent3D{Width: img.Width, Height: img.Height, Depth: 1},
	}
	vk.CmdCopyImageToBuffer(v.Handle, img.Handle, vk.ImageLayoutTransferSrcOptimal, buf.Handle, 1, []vk.BufferImageCopy{region})
}
