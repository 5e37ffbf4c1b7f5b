package vulkan

import (
	"math"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

const waitForever = time.Duration(math.MaxInt64)

type VulkanFence struct {
	context    *VulkanContext
	Handle     vk.Fence
	IsSignaled bool
}

func newFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{context: context, IsSignaled: createSignaled}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if createSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	if res := vk.CreateFence(context.logical(), &fenceCreateInfo, context.Allocator, &fence.Handle); res != vk.Success {
		err := resultError("vkCreateFence", res)
		core.LogError(err.Error())
		return nil, err
	}
	return fence, nil
}

// Wait blocks until the fence is signaled. A fence known to be signaled
// returns immediately.
func (vf *VulkanFence) Wait(timeout time.Duration) error {
	if vf.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(vf.context.logical(), 1, []vk.Fence{vf.Handle}, vk.True, uint64(timeout))
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
	default:
		core.LogError("vk_fence_wait - %s", VulkanResultString(result))
	}
	return resultError("vkWaitForFences", result)
}

func (vf *VulkanFence) Reset() error {
	if !vf.IsSignaled {
		return nil
	}
	if res := vk.ResetFences(vf.context.logical(), 1, []vk.Fence{vf.Handle}); res != vk.Success {
		err := resultError("vkResetFences", res)
		core.LogError(err.Error())
		return err
	}
	vf.IsSignaled = false
	return nil
}

// Signaled polls the fence without blocking.
func (vf *VulkanFence) Signaled() bool {
	if !vf.IsSignaled && vk.GetFenceStatus(vf.context.logical(), vf.Handle) == vk.Success {
		vf.IsSignaled = true
	}
	return vf.IsSignaled
}

func (vf *VulkanFence) Destroy() {
	if vf.Handle != nil {
		vk.DestroyFence(vf.context.logical(), vf.Handle, vf.context.Allocator)
		vf.Handle = nil
	}
	vf.IsSignaled = false
}

type VulkanSemaphore struct {
	context *VulkanContext
	Handle  vk.Semaphore
}

func newSemaphore(context *VulkanContext) (*VulkanSemaphore, error) {
	semaphoreInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	s := &VulkanSemaphore{context: context}
	if res := vk.CreateSemaphore(context.logical(), &semaphoreInfo, context.Allocator, &s.Handle); res != vk.Success {
		err := resultError("vkCreateSemaphore", res)
		core.LogError(err.Error())
		return nil, err
	}
	return s, nil
}

func (s *VulkanSemaphore) Destroy() {
	if s.Handle != nil {
		vk.DestroySemaphore(s.context.logical(), s.Handle, s.context.Allocator)
		s.Handle = nil
	}
}
