package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/simcam/engine/assets/loaders"
	"github.com/spaghettifunk/simcam/engine/core"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

func NewShaderStage(context *VulkanContext, program string, stage md.ShaderStage, code []byte) (*VulkanShaderStage, error) {
	if err := loaders.ValidateSPIRV(md.ShaderFile(program, stage), code); err != nil {
		return nil, err
	}

	createInfo := shaderModuleInfo(code)

	shaderStage := &VulkanShaderStage{}
	if res := vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &shaderStage.Handle); res != vk.Success {
		err := fmt.Errorf("%w: shader module %s", core.ErrResourceCreation, md.ShaderFile(program, stage))
		core.LogError("%s: %s", err.Error(), VulkanResultString(res))
		return nil, err
	}

	// Shader stage info
	shaderStage.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFlagBits(shaderStages(stage)),
		Module: shaderStage.Handle,
		PName:  VulkanSafeString("main"),
	}
	return shaderStage, nil
}

// shaderModuleInfo describes a module over code; CodeSize is in bytes.
func shaderModuleInfo(code []byte) vk.ShaderModuleCreateInfo {
	return vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    loaders.BytesToBytecode(code),
	}
}

func (s *VulkanShaderStage) Destroy(context *VulkanContext) {
	if s.Handle != vk.NullShaderModule {
		vk.DestroyShaderModule(context.Device.LogicalDevice, s.Handle, context.Allocator)
		s.Handle = vk.NullShaderModule
	}
}
