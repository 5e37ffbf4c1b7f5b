package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

// VulkanContext holds the handles every object of the backend is created
// against.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugCallback vk.DebugReportCallback

	Device *VulkanDevice

	locks *VulkanLockPool
}

func (vc *VulkanContext) logical() vk.Device { return vc.Device.LogicalDevice }

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// has all of propertyFlags, or -1.
func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	memory := vc.Device.Memory
	for i := uint32(0); i < memory.MemoryTypeCount; i++ {
		memory.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && memory.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// allocateMemory allocates memory matching reqs; the caller binds it.
func (vc *VulkanContext) allocateMemory(reqs vk.MemoryRequirements, flags vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	reqs.Deref()
	index := vc.FindMemoryIndex(reqs.MemoryTypeBits, flags)
	if index < 0 {
		return nil, ErrNoMemoryType
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(vc.logical(), &allocInfo, vc.Allocator, &memory); res != vk.Success {
		return nil, resultError("vkAllocateMemory", res)
	}
	return memory, nil
}
