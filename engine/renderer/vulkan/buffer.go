package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/simcam/engine/core"
	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

type VulkanBuffer struct {
	Name   string
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	// Host-visible buffers stay mapped for their whole lifetime.
	mapped unsafe.Pointer
}

func BufferCreate(context *VulkanContext, desc md.BufferDesc) (*VulkanBuffer, error) {
	if desc.Size == 0 {
		err := fmt.Errorf("%w: buffer %q has zero size", core.ErrResourceCreation, desc.Name)
		core.LogError(err.Error())
		return nil, err
	}
	buffer := &VulkanBuffer{
		Name: desc.Name,
		Size: desc.Size,
	}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsage(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &buffer.Handle); res != vk.Success {
		return nil, resultError("vkCreateBuffer", res)
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, buffer.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	properties := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if desc.Usage.Has(md.BufferUsageHostVisible) {
		properties = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	memoryType := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, properties)
	if memoryType == -1 {
		buffer.Destroy(context)
		err := fmt.Errorf("%w: no memory type for buffer %q", core.ErrResourceCreation, desc.Name)
		core.LogError(err.Error())
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &buffer.Memory); res != vk.Success {
		buffer.Destroy(context)
		return nil, resultError("vkAllocateMemory", res)
	}
	if res := vk.BindBufferMemory(context.Device.LogicalDevice, buffer.Handle, buffer.Memory, 0); res != vk.Success {
		buffer.Destroy(context)
		return nil, resultError("vkBindBufferMemory", res)
	}

	if desc.Usage.Has(md.BufferUsageHostVisible) {
		var data unsafe.Pointer
		if res := vk.MapMemory(context.Device.LogicalDevice, buffer.Memory, 0, vk.DeviceSize(desc.Size), 0, &data); res != vk.Success {
			buffer.Destroy(context)
			return nil, resultError("vkMapMemory", res)
		}
		buffer.mapped = data
	}
	return buffer, nil
}

func (vb *VulkanBuffer) hostBytes() []byte {
	return unsafe.Slice((*byte)(vb.mapped), vb.Size)
}

func (vb *VulkanBuffer) Write(offset uint64, data []byte) error {
	if err := vb.checkRange(offset, len(data)); err != nil {
		return err
	}
	copy(vb.hostBytes()[offset:], data)
	return nil
}

func (vb *VulkanBuffer) Read(offset uint64, out []byte) error {
	if err := vb.checkRange(offset, len(out)); err != nil {
		return err
	}
	copy(out, vb.hostBytes()[offset:])
	return nil
}

func (vb *VulkanBuffer) checkRange(offset uint64, n int) error {
	if vb.mapped == nil {
		err := fmt.Errorf("buffer %q is not host visible", vb.Name)
		core.LogError(err.Error())
		return err
	}
	if offset+uint64(n) > vb.Size {
		err := fmt.Errorf("buffer %q: range %d+%d exceeds size %d", vb.Name, offset, n, vb.Size)
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (vb *VulkanBuffer) Destroy(context *VulkanContext) {
	if vb.mapped != nil {
		vk.UnmapMemory(context.Device.LogicalDevice, vb.Memory)
		vb.mapped = nil
	}
	if vb.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, vb.Memory, context.Allocator)
		vb.Memory = vk.NullDeviceMemory
	}
	if vb.Handle != vk.NullBuffer {
		vk.DestroyBuffer(context.Device.LogicalDevice, vb.Handle, context.Allocator)
		vb.Handle = vk.NullBuffer
	}
}
