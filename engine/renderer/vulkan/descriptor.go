package vulkan

import (
	vk "github.com/goki/vulkan"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

// Pool capacity. Every pass allocates one set per frame slot and key.
const (
	VULKAN_MAX_BINDING_SETS         uint32 = 256
	VULKAN_MAX_DESCRIPTORS_PER_TYPE uint32 = 512
)

/**
 * @brief The single descriptor pool all binding sets come from.
 */
type VulkanDescriptorPool struct {
	Handle vk.DescriptorPool
}

func DescriptorPoolCreate(context *VulkanContext) (*VulkanDescriptorPool, error) {
	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: VULKAN_MAX_DESCRIPTORS_PER_TYPE},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: VULKAN_MAX_DESCRIPTORS_PER_TYPE},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: VULKAN_MAX_DESCRIPTORS_PER_TYPE},
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: VULKAN_MAX_DESCRIPTORS_PER_TYPE},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       VULKAN_MAX_BINDING_SETS,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	pool := &VulkanDescriptorPool{}
	if res := vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &pool.Handle); res != vk.Success {
		return nil, resultError("vkCreateDescriptorPool", res)
	}
	return pool, nil
}

func (p *VulkanDescriptorPool) Destroy(context *VulkanContext) {
	if p.Handle != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, p.Handle, context.Allocator)
		p.Handle = vk.NullDescriptorPool
	}
}

/**
 * @brief A descriptor set together with the resources last written into it,
 * used to detect bindings that outlived their images or buffers.
 */
type VulkanBindingSet struct {
	Handle   vk.DescriptorSet
	Pipeline md.PipelineHandle
	Bound    map[uint32]md.Binding
}

func (p *VulkanDescriptorPool) Allocate(context *VulkanContext, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.Handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocateInfo, &set); res != vk.Success {
		return vk.NullDescriptorSet, resultError("vkAllocateDescriptorSets", res)
	}
	return set, nil
}

func (p *VulkanDescriptorPool) Free(context *VulkanContext, set vk.DescriptorSet) {
	vk.FreeDescriptorSets(context.Device.LogicalDevice, p.Handle, 1, &set)
}

// descriptorWrite is one resolved binding.
type descriptorWrite struct {
	slot   uint32
	kind   md.BindingKind
	buffer *VulkanBuffer
	offset uint64
	rng    uint64
	image  *VulkanImage
	layout md.ImageLayout
}

func writeDescriptors(context *VulkanContext, set vk.DescriptorSet, writes []descriptorWrite, fallbackSampler vk.Sampler) {
	if len(writes) == 0 {
		return
	}
	out := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		out[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      w.slot,
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  descriptorType(w.kind),
		}
		switch w.kind {
		case md.BindingUniformBuffer, md.BindingStorageBuffer:
			rng := vk.DeviceSize(vk.WholeSize)
			if w.rng != 0 {
				rng = vk.DeviceSize(w.rng)
			}
			out[i].PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: w.buffer.Handle,
				Offset: vk.DeviceSize(w.offset),
				Range:  rng,
			}}
		case md.BindingSampledImage:
			sampler := w.image.Sampler
			if sampler == vk.NullSampler {
				sampler = fallbackSampler
			}
			out[i].PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     sampler,
				ImageView:   w.image.View,
				ImageLayout: imageLayout(w.layout),
			}}
		case md.BindingStorageImage:
			out[i].PImageInfo = []vk.DescriptorImageInfo{{
				ImageView:   w.image.View,
				ImageLayout: vk.ImageLayoutGeneral,
			}}
		}
	}
	vk.UpdateDescriptorSets(context.Device.LogicalDevice, uint32(len(out)), out, 0, nil)
}
