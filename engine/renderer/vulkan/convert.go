package vulkan

import (
	vk "github.com/goki/vulkan"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

func vulkanFormat(f md.Format) vk.Format {
	switch f {
	case md.FormatRGBA16F:
		return vk.FormatR16g16b16a16Sfloat
	case md.FormatRGBA8:
		return vk.FormatR8g8b8a8Unorm
	case md.FormatBGRA8:
		return vk.FormatB8g8r8a8Unorm
	case md.FormatD32:
		return vk.FormatD32Sfloat
	}
	return vk.FormatUndefined
}

func engineFormat(f vk.Format) md.Format {
	switch f {
	case vk.FormatR16g16b16a16Sfloat:
		return md.FormatRGBA16F
	case vk.FormatR8g8b8a8Unorm:
		return md.FormatRGBA8
	case vk.FormatB8g8r8a8Unorm:
		return md.FormatBGRA8
	case vk.FormatD32Sfloat:
		return md.FormatD32
	}
	return md.FormatUndefined
}

func aspectMask(f md.Format) vk.ImageAspectFlags {
	if f.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func imageUsage(u md.TextureUsage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if u.Has(md.UsageColorAttachment) {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	if u.Has(md.UsageDepthAttachment) {
		flags |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if u.Has(md.UsageSampled) {
		flags |= vk.ImageUsageSampledBit
	}
	if u.Has(md.UsageStorage) {
		flags |= vk.ImageUsageStorageBit
	}
	if u.Has(md.UsageTransferSrc) {
		flags |= vk.ImageUsageTransferSrcBit
	}
	if u.Has(md.UsageTransferDst) {
		flags |= vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(flags)
}

func bufferUsage(u md.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if u.Has(md.BufferUsageUniform) {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if u.Has(md.BufferUsageStorage) {
		flags |= vk.BufferUsageStorageBufferBit
	}
	if u.Has(md.BufferUsageVertex) {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if u.Has(md.BufferUsageIndex) {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if u.Has(md.BufferUsageTransferSrc) {
		flags |= vk.BufferUsageTransferSrcBit
	}
	// fills and copies target any buffer
	flags |= vk.BufferUsageTransferDstBit
	return vk.BufferUsageFlags(flags)
}

func imageLayout(l md.ImageLayout) vk.ImageLayout {
	switch l {
	case md.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case md.LayoutDepthAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case md.LayoutShaderRead:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case md.LayoutDepthRead:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case md.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case md.LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case md.LayoutPresent:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

var stageBits = []struct {
	from md.PipelineStage
	to   vk.PipelineStageFlagBits
}{
	{md.StageTopOfPipe, vk.PipelineStageTopOfPipeBit},
	{md.StageVertexShader, vk.PipelineStageVertexShaderBit},
	{md.StageEarlyFragmentTests, vk.PipelineStageEarlyFragmentTestsBit},
	{md.StageFragmentShader, vk.PipelineStageFragmentShaderBit},
	{md.StageLateFragmentTests, vk.PipelineStageLateFragmentTestsBit},
	{md.StageColorOutput, vk.PipelineStageColorAttachmentOutputBit},
	{md.StageComputeShader, vk.PipelineStageComputeShaderBit},
	{md.StageTransfer, vk.PipelineStageTransferBit},
	{md.StageHost, vk.PipelineStageHostBit},
	{md.StageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
}

func pipelineStages(s md.PipelineStage, fallback vk.PipelineStageFlagBits) vk.PipelineStageFlags {
	var flags vk.PipelineStageFlagBits
	for _, b := range stageBits {
		if s&b.from != 0 {
			flags |= b.to
		}
	}
	if flags == 0 {
		flags = fallback
	}
	return vk.PipelineStageFlags(flags)
}

var accessBits = []struct {
	from md.AccessFlags
	to   vk.AccessFlagBits
}{
	{md.AccessUniformRead, vk.AccessUniformReadBit},
	{md.AccessShaderRead, vk.AccessShaderReadBit},
	{md.AccessShaderWrite, vk.AccessShaderWriteBit},
	{md.AccessColorAttachmentRead, vk.AccessColorAttachmentReadBit},
	{md.AccessColorAttachmentWrite, vk.AccessColorAttachmentWriteBit},
	{md.AccessDepthAttachmentRead, vk.AccessDepthStencilAttachmentReadBit},
	{md.AccessDepthAttachmentWrite, vk.AccessDepthStencilAttachmentWriteBit},
	{md.AccessTransferRead, vk.AccessTransferReadBit},
	{md.AccessTransferWrite, vk.AccessTransferWriteBit},
	{md.AccessHostRead, vk.AccessHostReadBit},
	{md.AccessHostWrite, vk.AccessHostWriteBit},
}

func accessFlags(a md.AccessFlags) vk.AccessFlags {
	var flags vk.AccessFlagBits
	for _, b := range accessBits {
		if a&b.from != 0 {
			flags |= b.to
		}
	}
	return vk.AccessFlags(flags)
}

func shaderStages(s md.ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlagBits
	if s&md.ShaderStageVertex != 0 {
		flags |= vk.ShaderStageVertexBit
	}
	if s&md.ShaderStageFragment != 0 {
		flags |= vk.ShaderStageFragmentBit
	}
	if s&md.ShaderStageCompute != 0 {
		flags |= vk.ShaderStageComputeBit
	}
	return vk.ShaderStageFlags(flags)
}

func descriptorType(k md.BindingKind) vk.DescriptorType {
	switch k {
	case md.BindingStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case md.BindingSampledImage:
		return vk.DescriptorTypeCombinedImageSampler
	case md.BindingStorageImage:
		return vk.DescriptorTypeStorageImage
	}
	return vk.DescriptorTypeUniformBuffer
}

func compareOp(op md.CompareOp) vk.CompareOp {
	switch op {
	case md.CompareNever:
		return vk.CompareOpNever
	case md.CompareLess:
		return vk.CompareOpLess
	case md.CompareLessOrEqual:
		return vk.CompareOpLessOrEqual
	}
	return vk.CompareOpAlways
}

func cullMode(mode md.FaceCullMode) vk.CullModeFlags {
	switch mode {
	case md.FaceCullModeNone:
		return vk.CullModeFlags(vk.CullModeNone)
	case md.FaceCullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case md.FaceCullModeFrontAndBack:
		return vk.CullModeFlags(vk.CullModeFrontAndBack)
	}
	return vk.CullModeFlags(vk.CullModeBackBit)
}

func loadOp(op md.LoadOperation) vk.AttachmentLoadOp {
	switch op {
	case md.LoadOperationClear:
		return vk.AttachmentLoadOpClear
	case md.LoadOperationLoad:
		return vk.AttachmentLoadOpLoad
	}
	return vk.AttachmentLoadOpDontCare
}

func storeOp(op md.StoreOperation) vk.AttachmentStoreOp {
	if op == md.StoreOperationStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}
