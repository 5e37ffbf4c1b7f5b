// Package gpu is the capability surface the engine records against: buffers,
// images, shader modules, layouts, render passes, pipelines, command lists,
// synchronization primitives and presentation. The Vulkan backend implements
// it for real; gputest implements it as a recording fake.
package gpu

import "time"

// Destroyer is anything owning GPU memory or a driver object.
type Destroyer interface {
	Destroy()
}

type Device interface {
	NewBuffer(size uint64, usage BufferUsage, memory MemoryUsage) (Buffer, error)
	NewImage(desc ImageDesc) (Image, error)
	NewSampler(desc SamplerDesc) (Sampler, error)
	NewShaderModule(code []uint32) (ShaderModule, error)
	NewDescriptorLayout(bindings []DescriptorBinding) (DescriptorLayout, error)
	NewPipelineLayout(set DescriptorLayout, push []PushConstantRange) (PipelineLayout, error)
	NewRenderPass(desc RenderPassDesc) (RenderPass, error)
	NewFramebuffer(pass RenderPass, views []ImageView, extent Extent2D) (Framebuffer, error)
	NewPipeline(desc PipelineDesc) (PipelineState, error)
	NewDescriptorPool(desc DescriptorPoolDesc) (DescriptorPool, error)
	NewCommandList() (CommandList, error)
	NewFence(signaled bool) (Fence, error)
	NewSemaphore() (Semaphore, error)

	// Submit queues lists as one batch. The batch waits on wait at waitStage,
	// signals signal when done and then fence. Any of the three may be nil.
	Submit(lists []CommandList, wait Semaphore, waitStage PipelineStage, signal Semaphore, fence Fence) error
	// SubmitNow records a throwaway command list with record, submits it and
	// blocks until the GPU has executed it.
	SubmitNow(record func(CommandList) error) error
	WaitIdle() error
	Limits() Limits
}

type Buffer interface {
	Size() uint64
	Usage() BufferUsage
	// Mapped is the persistently mapped host view, nil for device-only memory.
	Mapped() []byte
	Destroy()
}

type Image interface {
	Extent() Extent2D
	Format() Format
	MipLevels() uint32
	Layers() uint32
	View() ImageView
	Destroy()
}

type ImageView interface {
	Format() Format
	Destroy()
}

type Sampler interface {
	Destroy()
}

type ShaderModule interface {
	Destroy()
}

type DescriptorLayout interface {
	Bindings() []DescriptorBinding
	Destroy()
}

type PipelineLayout interface {
	Destroy()
}

type RenderPass interface {
	Desc() RenderPassDesc
	Destroy()
}

type Framebuffer interface {
	Extent() Extent2D
	Destroy()
}

type PipelineState interface {
	Destroy()
}

type DescriptorPool interface {
	// Allocate returns ErrDescriptorPoolExhausted when the pool is full.
	Allocate(layout DescriptorLayout, variableCount uint32) (DescriptorSet, error)
	Reset() error
	Destroy()
}

type DescriptorSet interface {
	WriteBuffer(binding, element uint32, kind DescriptorKind, buf Buffer, offset, size uint64)
	WriteImage(binding, element uint32, kind DescriptorKind, view ImageView, layout Layout, sampler Sampler)
}

type CommandList interface {
	Begin() error
	End() error
	Reset() error

	BeginRenderPass(pass RenderPass, fb Framebuffer, area Rect2D, clears []ClearValue)
	EndRenderPass()
	BindPipeline(state PipelineState)
	BindDescriptorSets(layout PipelineLayout, first uint32, sets []DescriptorSet)
	PushConstants(layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	BindVertexBuffers(first uint32, bufs []Buffer, offsets []uint64)
	BindIndexBuffer(buf Buffer, offset uint64, indexType IndexType)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	PipelineBarrier(src, dst PipelineStage, barriers []ImageBarrier)
	CopyBufferToImage(buf Buffer, img Image, layout Layout, regions []BufferImageCopy)
	Destroy()
}

type Fence interface {
	Wait(timeout time.Duration) error
	Reset() error
	Signaled() bool
	Destroy()
}

type Semaphore interface {
	Destroy()
}

type Swapchain interface {
	Format() Format
	Extent() Extent2D
	Images() []Image
	// Acquire returns the index of the next presentable image and signals
	// signal once the presentation engine released it. ErrOutOfDate means
	// the swapchain must be recreated.
	Acquire(signal Semaphore, timeout time.Duration) (uint32, error)
	Present(index uint32, wait Semaphore) error
	Recreate(extent Extent2D) error
	Destroy()
}
