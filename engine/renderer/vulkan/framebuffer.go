package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type VulkanFramebuffer struct {
	context *VulkanContext
	Handle  vk.Framebuffer
	extent  gpu.Extent2D
}

func newFramebuffer(context *VulkanContext, pass gpu.RenderPass, views []gpu.ImageView, extent gpu.Extent2D) (*VulkanFramebuffer, error) {
	rp, ok := pass.(*VulkanRenderPass)
	if !ok {
		return nil, fmt.Errorf("render pass %T: %w", pass, ErrForeignObject)
	}
	attachments := make([]vk.ImageView, len(views))
	for i, v := range views {
		view, ok := v.(*VulkanImageView)
		if !ok {
			return nil, fmt.Errorf("attachment %d %T: %w", i, v, ErrForeignObject)
		}
		attachments[i] = view.Handle
	}

	framebufferInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.Handle,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	fb := &VulkanFramebuffer{context: context, extent: extent}
	if res := vk.CreateFramebuffer(context.logical(), &framebufferInfo, context.Allocator, &fb.Handle); res != vk.Success {
		err := resultError("vkCreateFramebuffer", res)
		core.LogError(err.Error())
		return nil, err
	}
	return fb, nil
}

func (fb *VulkanFramebuffer) Extent() gpu.Extent2D { return fb.extent }

func (fb *VulkanFramebuffer) Destroy() {
	if fb.Handle != nil {
		vk.DestroyFramebuffer(fb.context.logical(), fb.Handle, fb.context.Allocator)
		fb.Handle = nil
	}
}
