package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	context *VulkanContext
	Handle  vk.CommandBuffer
	State   VulkanCommandBufferState
}

func newCommandBuffer(context *VulkanContext) (*VulkanCommandBuffer, error) {
	cb := &VulkanCommandBuffer{context: context, State: COMMAND_BUFFER_STATE_NOT_ALLOCATED}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        context.Device.GraphicsCommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	handles := make([]vk.CommandBuffer, 1)
	err := context.locks.SafeCall(CommandPoolManagement, func() error {
		if res := vk.AllocateCommandBuffers(context.logical(), &allocateInfo, handles); res != vk.Success {
			return resultError("vkAllocateCommandBuffers", res)
		}
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	cb.Handle = handles[0]
	cb.State = COMMAND_BUFFER_STATE_READY
	return cb, nil
}

func (cb *VulkanCommandBuffer) recording() bool {
	return cb.State == COMMAND_BUFFER_STATE_RECORDING || cb.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (cb *VulkanCommandBuffer) Begin() error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cb.Handle, &beginInfo); res != vk.Success {
		return resultError("vkBeginCommandBuffer", res)
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (cb *VulkanCommandBuffer) End() error {
	if !cb.recording() {
		return gpu.ErrNotRecording
	}
	if res := vk.EndCommandBuffer(cb.Handle); res != vk.Success {
		return resultError("vkEndCommandBuffer", res)
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (cb *VulkanCommandBuffer) Reset() error {
	if res := vk.ResetCommandBuffer(cb.Handle, 0); res != vk.Success {
		return resultError("vkResetCommandBuffer", res)
	}
	cb.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (cb *VulkanCommandBuffer) BeginRenderPass(pass gpu.RenderPass, fb gpu.Framebuffer, area gpu.Rect2D, clears []gpu.ClearValue) {
	rp, ok := pass.(*VulkanRenderPass)
	framebuffer, fok := fb.(*VulkanFramebuffer)
	if !ok || !fok {
		core.LogError("begin render pass with %T and %T: %s", pass, fb, ErrForeignObject)
		return
	}
	clearValues := make([]vk.ClearValue, len(clears))
	for i, c := range clears {
		if c.IsDepth {
			clearValues[i] = vk.NewClearDepthStencil(c.Depth, c.Stencil)
		} else {
			clearValues[i] = vk.NewClearValue(c.Color[:])
		}
	}
	beginInfo := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      rp.Handle,
		Framebuffer:     framebuffer.Handle,
		RenderArea:      toRect(area),
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cb.Handle, &beginInfo, vk.SubpassContentsInline)
	cb.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (cb *VulkanCommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(cb.Handle)
	cb.State = COMMAND_BUFFER_STATE_RECORDING
}

func (cb *VulkanCommandBuffer) BindPipeline(state gpu.PipelineState) {
	if p, ok := state.(*VulkanPipeline); ok {
		vk.CmdBindPipeline(cb.Handle, vk.PipelineBindPointGraphics, p.Handle)
	}
}

func (cb *VulkanCommandBuffer) BindDescriptorSets(layout gpu.PipelineLayout, first uint32, sets []gpu.DescriptorSet) {
	l, ok := layout.(*VulkanPipelineLayout)
	if !ok {
		return
	}
	handles := make([]vk.DescriptorSet, 0, len(sets))
	for _, s := range sets {
		if set, ok := s.(*VulkanDescriptorSet); ok {
			handles = append(handles, set.Handle)
		}
	}
	vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointGraphics, l.Handle, first, uint32(len(handles)), handles, 0, nil)
}

func (cb *VulkanCommandBuffer) PushConstants(layout gpu.PipelineLayout, stages gpu.ShaderStage, offset uint32, data []byte) {
	l, ok := layout.(*VulkanPipelineLayout)
	if !ok || len(data) == 0 {
		return
	}
	vk.CmdPushConstants(cb.Handle, l.Handle, toShaderStages(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (cb *VulkanCommandBuffer) BindVertexBuffers(first uint32, bufs []gpu.Buffer, offsets []uint64) {
	handles := make([]vk.Buffer, len(bufs))
	deviceOffsets := make([]vk.DeviceSize, len(bufs))
	for i, b := range bufs {
		if buf, ok := b.(*VulkanBuffer); ok {
			handles[i] = buf.Handle
		}
		if i < len(offsets) {
			deviceOffsets[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(cb.Handle, first, uint32(len(handles)), handles, deviceOffsets)
}

func (cb *VulkanCommandBuffer) BindIndexBuffer(buf gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	if b, ok := buf.(*VulkanBuffer); ok {
		vk.CmdBindIndexBuffer(cb.Handle, b.Handle, vk.DeviceSize(offset), toIndexType(indexType))
	}
}

func (cb *VulkanCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(cb.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (cb *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(cb.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (cb *VulkanCommandBuffer) PipelineBarrier(src, dst gpu.PipelineStage, barriers []gpu.ImageBarrier) {
	imageBarriers := make([]vk.ImageMemoryBarrier, 0, len(barriers))
	for _, b := range barriers {
		img, ok := b.Image.(*VulkanImage)
		if !ok {
			core.LogError("image barrier on %T: %s", b.Image, ErrForeignObject)
			continue
		}
		imageBarriers = append(imageBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       toAccess(b.SrcAccess),
			DstAccessMask:       toAccess(b.DstAccess),
			OldLayout:           toLayout(b.OldLayout),
			NewLayout:           toLayout(b.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.Handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     toAspect(b.Aspect),
				BaseMipLevel:   b.BaseMip,
				LevelCount:     b.MipCount,
				BaseArrayLayer: b.BaseLayer,
				LayerCount:     b.Layers,
			},
		})
	}
	vk.CmdPipelineBarrier(cb.Handle, toPipelineStages(src), toPipelineStages(dst), 0,
		0, nil, 0, nil, uint32(len(imageBarriers)), imageBarriers)
}

func (cb *VulkanCommandBuffer) CopyBufferToImage(buf gpu.Buffer, img gpu.Image, layout gpu.Layout, regions []gpu.BufferImageCopy) {
	b, ok := buf.(*VulkanBuffer)
	image, iok := img.(*VulkanImage)
	if !ok || !iok {
		core.LogError("copy %T to %T: %s", buf, img, ErrForeignObject)
		return
	}
	copies := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferImageCopy{
			BufferOffset: vk.DeviceSize(r.BufferOffset),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     aspectOf(image.Format()),
				MipLevel:       r.MipLevel,
				BaseArrayLayer: r.Layer,
				LayerCount:     1,
			},
			ImageExtent: vk.Extent3D{Width: r.Extent.Width, Height: r.Extent.Height, Depth: 1},
		}
	}
	vk.CmdCopyBufferToImage(cb.Handle, b.Handle, image.Handle, toLayout(layout), uint32(len(copies)), copies)
}

func (cb *VulkanCommandBuffer) Destroy() {
	if cb.Handle == nil {
		return
	}
	_ = cb.context.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(cb.context.logical(), cb.context.Device.GraphicsCommandPool, 1, []vk.CommandBuffer{cb.Handle})
		return nil
	})
	cb.Handle = nil
	cb.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

// submitInfo builds the submission of lists. Lists that are not from this
// backend are rejected.
func submitInfo(lists []gpu.CommandList, wait gpu.Semaphore, waitStage gpu.PipelineStage, signal gpu.Semaphore) (vk.SubmitInfo, []*VulkanCommandBuffer, error) {
	info := vk.SubmitInfo{SType: vk.StructureTypeSubmitInfo}
	buffers := make([]*VulkanCommandBuffer, 0, len(lists))
	handles := make([]vk.CommandBuffer, 0, len(lists))
	for i, l := range lists {
		cb, ok := l.(*VulkanCommandBuffer)
		if !ok {
			return info, nil, fmt.Errorf("command list %d %T: %w", i, l, ErrForeignObject)
		}
		buffers = append(buffers, cb)
		handles = append(handles, cb.Handle)
	}
	info.CommandBufferCount = uint32(len(handles))
	info.PCommandBuffers = handles
	if s, ok := wait.(*VulkanSemaphore); ok && s != nil {
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{s.Handle}
		info.PWaitDstStageMask = []vk.PipelineStageFlags{toPipelineStages(waitStage)}
	}
	if s, ok := signal.(*VulkanSemaphore); ok && s != nil {
		info.SignalSemaphoreCount = 1
		info.PSignalSemaphores = []vk.Semaphore{s.Handle}
	}
	return info, buffers, nil
}
