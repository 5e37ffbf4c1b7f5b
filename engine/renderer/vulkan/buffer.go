package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type VulkanBuffer struct {
	context *VulkanContext

	Handle vk.Buffer
	Memory vk.DeviceMemory

	size   uint64
	usage  gpu.BufferUsage
	mapped []byte
}

func newBuffer(context *VulkanContext, size uint64, usage gpu.BufferUsage, memoryUsage gpu.MemoryUsage) (*VulkanBuffer, error) {
	buffer := &VulkanBuffer{context: context, size: size, usage: usage}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       toBufferUsage(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if res := vk.CreateBuffer(context.logical(), &bufferInfo, context.Allocator, &buffer.Handle); res != vk.Success {
		err := resultError("vkCreateBuffer", res)
		core.LogError(err.Error())
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.logical(), buffer.Handle, &reqs)
	memory, err := context.allocateMemory(reqs, memoryFlags(memoryUsage))
	if err != nil {
		buffer.Destroy()
		return nil, fmt.Errorf("buffer of %d bytes: %w", size, err)
	}
	buffer.Memory = memory
	if res := vk.BindBufferMemory(context.logical(), buffer.Handle, buffer.Memory, 0); res != vk.Success {
		buffer.Destroy()
		return nil, resultError("vkBindBufferMemory", res)
	}

	// Host visible memory stays mapped for the lifetime of the buffer.
	if memoryUsage.HostVisible() {
		var data unsafe.Pointer
		if res := vk.MapMemory(context.logical(), buffer.Memory, 0, vk.DeviceSize(size), 0, &data); res != vk.Success {
			buffer.Destroy()
			return nil, resultError("vkMapMemory", res)
		}
		buffer.mapped = unsafe.Slice((*byte)(data), size)
	}
	return buffer, nil
}

func (b *VulkanBuffer) Size() uint64           { return b.size }
func (b *VulkanBuffer) Usage() gpu.BufferUsage { return b.usage }
func (b *VulkanBuffer) Mapped() []byte         { return b.mapped }

func (b *VulkanBuffer) Destroy() {
	device := b.context.logical()
	if b.mapped != nil {
		vk.UnmapMemory(device, b.Memory)
		b.mapped = nil
	}
	if b.Handle != nil {
		vk.DestroyBuffer(device, b.Handle, b.context.Allocator)
		b.Handle = nil
	}
	if b.Memory != nil {
		vk.FreeMemory(device, b.Memory, b.context.Allocator)
		b.Memory = nil
	}
}
