package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/simcam/engine/core"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

/**
 * @brief Holds a Vulkan pipeline, its layout and the layout of its single binding set.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	PipelineLayout vk.PipelineLayout
	/** @brief The layout binding sets are allocated with. */
	SetLayout vk.DescriptorSetLayout
	BindPoint vk.PipelineBindPoint
	/** @brief Stages that see the push constant block. */
	PushStages vk.ShaderStageFlags
	Desc       md.PipelineDesc
}

// vertex3DAttributes matches the layout of md.Vertex3D.
var vertex3DAttributes = []vk.VertexInputAttributeDescription{
	{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
	{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 12},
	{Location: 2, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 24},
	{Location: 3, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 36},
}

func NewPipeline(context *VulkanContext, renderpasses *renderpassCache, desc md.PipelineDesc) (*VulkanPipeline, error) {
	outPipeline := &VulkanPipeline{Desc: desc}

	if err := outPipeline.createLayouts(context); err != nil {
		return nil, err
	}

	var err error
	if desc.Kind == md.PipelineCompute {
		err = outPipeline.createCompute(context)
	} else {
		err = outPipeline.createGraphics(context, renderpasses)
	}
	if err != nil {
		outPipeline.Destroy(context)
		return nil, err
	}
	core.LogDebug("Pipeline %s created.", desc.Program)
	return outPipeline, nil
}

func (pipeline *VulkanPipeline) createLayouts(context *VulkanContext) error {
	desc := pipeline.Desc

	layoutBindings := make([]vk.DescriptorSetLayoutBinding, len(desc.Bindings))
	for i, b := range desc.Bindings {
		layoutBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Slot,
			DescriptorType:  descriptorType(b.Kind),
			DescriptorCount: 1,
			StageFlags:      shaderStages(b.Stages),
		}
	}
	setLayoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}
	if res := vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &setLayoutInfo, context.Allocator, &pipeline.SetLayout); res != vk.Success {
		return resultError("vkCreateDescriptorSetLayout", res)
	}

	// Pipeline layout
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{pipeline.SetLayout},
	}

	// Push constants
	if desc.PushConstantSize > 0 {
		// 128 bytes is the only size every device guarantees.
		if desc.PushConstantSize > 128 || desc.PushConstantSize%4 != 0 {
			err := fmt.Errorf("%w: %s: push constant block of %d bytes", core.ErrResourceCreation, desc.Program, desc.PushConstantSize)
			core.LogError(err.Error())
			pipeline.Destroy(context)
			return err
		}
		pipeline.PushStages = vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
		if desc.Kind == md.PipelineCompute {
			pipeline.PushStages = vk.ShaderStageFlags(vk.ShaderStageComputeBit)
		}
		pipelineLayoutCreateInfo.PushConstantRangeCount = 1
		pipelineLayoutCreateInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: pipeline.PushStages,
			Offset:     0,
			Size:       desc.PushConstantSize,
		}}
	}

	// Create the pipeline layout.
	if res := vk.CreatePipelineLayout(context.Device.LogicalDevice, &pipelineLayoutCreateInfo, context.Allocator, &pipeline.PipelineLayout); res != vk.Success {
		pipeline.Destroy(context)
		return resultError("vkCreatePipelineLayout", res)
	}
	return nil
}

func (pipeline *VulkanPipeline) stages(context *VulkanContext, order ...md.ShaderStage) ([]*VulkanShaderStage, error) {
	out := make([]*VulkanShaderStage, 0, len(order))
	for _, st := range order {
		code, ok := pipeline.Desc.Code[st]
		if !ok {
			destroyStages(context, out)
			err := fmt.Errorf("%w: %s has no %s stage", core.ErrAssetInvalid, pipeline.Desc.Program, st)
			core.LogError(err.Error())
			return nil, err
		}
		s, err := NewShaderStage(context, pipeline.Desc.Program, st, code)
		if err != nil {
			destroyStages(context, out)
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Modules are only needed while the pipeline is being built.
func destroyStages(context *VulkanContext, stages []*VulkanShaderStage) {
	for _, s := range stages {
		s.Destroy(context)
	}
}

func (pipeline *VulkanPipeline) createCompute(context *VulkanContext) error {
	pipeline.BindPoint = vk.PipelineBindPointCompute
	stages, err := pipeline.stages(context, md.ShaderStageCompute)
	if err != nil {
		return err
	}
	defer destroyStages(context, stages)

	createInfo := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              stages[0].ShaderStageCreateInfo,
		Layout:             pipeline.PipelineLayout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pPipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateComputePipelines(context.Device.LogicalDevice, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{createInfo}, context.Allocator, pPipelines); res != vk.Success {
		return resultError("vkCreateComputePipelines", res)
	}
	pipeline.Handle = pPipelines[0]
	return nil
}

func (pipeline *VulkanPipeline) createGraphics(context *VulkanContext, renderpasses *renderpassCache) error {
	desc := pipeline.Desc
	pipeline.BindPoint = vk.PipelineBindPointGraphics

	renderpass, err := renderpasses.compatible(context, desc.ColorFormats, desc.DepthFormat)
	if err != nil {
		return err
	}

	stages, err := pipeline.stages(context, md.ShaderStageVertex, md.ShaderStageFragment)
	if err != nil {
		return err
	}
	defer destroyStages(context, stages)
	stageInfos := make([]vk.PipelineShaderStageCreateInfo, len(stages))
	for i, s := range stages {
		stageInfos[i] = s.ShaderStageCreateInfo
	}

	// Viewport and scissor are dynamic, set at render pass begin.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                cullMode(desc.CullMode),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	// Depth and stencil testing.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if desc.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = compareOp(desc.DepthCompare)
	}
	if desc.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	// Passes write straight values, nothing is blended.
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, len(desc.ColorFormats))
	for i := range blendAttachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable: vk.False,
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
				vk.ColorComponentBBit | vk.ColorComponentABit),
		}
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// Vertex input; full-screen programs generate their vertices.
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if desc.VertexInput {
		bindingDescription := vk.VertexInputBindingDescription{
			Binding:   0, // Binding index
			Stride:    md.Vertex3DStride,
			InputRate: vk.VertexInputRateVertex, // Move to next data entry for each vertex.
		}
		vertexInputInfo.VertexBindingDescriptionCount = 1
		vertexInputInfo.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{bindingDescription}
		vertexInputInfo.VertexAttributeDescriptionCount = uint32(len(vertex3DAttributes))
		vertexInputInfo.PVertexAttributeDescriptions = vertex3DAttributes
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	// Pipeline create
	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stageInfos)),
		PStages:             stageInfos,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              pipeline.PipelineLayout,
		RenderPass:          renderpass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pPipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(context.Device.LogicalDevice, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, context.Allocator, pPipelines); res != vk.Success {
		return resultError("vkCreateGraphicsPipelines", res)
	}
	pipeline.Handle = pPipelines[0]
	return nil
}

func (pipeline *VulkanPipeline) Destroy(context *VulkanContext) {
	// Destroy pipeline
	if pipeline.Handle != vk.NullPipeline {
		vk.DestroyPipeline(context.Device.LogicalDevice, pipeline.Handle, context.Allocator)
		pipeline.Handle = vk.NullPipeline
	}
	// Destroy layout
	if pipeline.PipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(context.Device.LogicalDevice, pipeline.PipelineLayout, context.Allocator)
		pipeline.PipelineLayout = vk.NullPipelineLayout
	}
	if pipeline.SetLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, pipeline.SetLayout, context.Allocator)
		pipeline.SetLayout = vk.NullDescriptorSetLayout
	}
}

func (pipeline *VulkanPipeline) Bind(commandBuffer *VulkanCommandBuffer) {
	vk.CmdBindPipeline(commandBuffer.Handle, pipeline.BindPoint, pipeline.Handle)
}

// layoutFor returns the layout entry of a slot.
func (pipeline *VulkanPipeline) layoutFor(slot uint32) (md.BindingLayout, bool) {
	for _, b := range pipeline.Desc.Bindings {
		if b.Slot == slot {
			return b, true
		}
	}
	return md.BindingLayout{}, false
}
