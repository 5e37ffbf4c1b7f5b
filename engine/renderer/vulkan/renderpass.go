package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type VulkanRenderPass struct {
	context *VulkanContext
	Handle  vk.RenderPass
	desc    gpu.RenderPassDesc
}

func attachmentDescription(a gpu.AttachmentDesc) vk.AttachmentDescription {
	return vk.AttachmentDescription{
		Format:         toFormat(a.Format),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         toLoadOp(a.Load),
		StoreOp:        toStoreOp(a.Store),
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  toLayout(a.Initial),
		FinalLayout:    toLayout(a.Final),
	}
}

// newRenderPass creates a single subpass pass. The depth attachment, when
// present, follows the colors.
func newRenderPass(context *VulkanContext, desc gpu.RenderPassDesc) (*VulkanRenderPass, error) {
	var attachments []vk.AttachmentDescription
	var colorRefs []vk.AttachmentReference
	for i, c := range desc.Colors {
		attachments = append(attachments, attachmentDescription(c))
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if desc.Depth != nil {
		attachments = append(attachments, attachmentDescription(*desc.Depth))
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(desc.Colors)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	// Wait for the previous use of the attachments before writing.
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	passInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	pass := &VulkanRenderPass{context: context, desc: desc}
	if res := vk.CreateRenderPass(context.logical(), &passInfo, context.Allocator, &pass.Handle); res != vk.Success {
		err := resultError("vkCreateRenderPass", res)
		core.LogError(err.Error())
		return nil, err
	}
	return pass, nil
}

func (rp *VulkanRenderPass) Desc() gpu.RenderPassDesc { return rp.desc }

func (rp *VulkanRenderPass) Destroy() {
	if rp.Handle != nil {
		vk.DestroyRenderPass(rp.context.logical(), rp.Handle, rp.context.Allocator)
		rp.Handle = nil
	}
}
