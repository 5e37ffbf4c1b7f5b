package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

var formats = map[gpu.Format]vk.Format{
	gpu.FormatUndefined:          vk.FormatUndefined,
	gpu.FormatR8Unorm:            vk.FormatR8Unorm,
	gpu.FormatR8G8Unorm:          vk.FormatR8g8Unorm,
	gpu.FormatR8G8B8Unorm:        vk.FormatR8g8b8Unorm,
	gpu.FormatR8G8B8A8Unorm:      vk.FormatR8g8b8a8Unorm,
	gpu.FormatR8G8B8A8Srgb:       vk.FormatR8g8b8a8Srgb,
	gpu.FormatB8G8R8A8Unorm:      vk.FormatB8g8r8a8Unorm,
	gpu.FormatB8G8R8A8Srgb:       vk.FormatB8g8r8a8Srgb,
	gpu.FormatR16Unorm:           vk.FormatR16Unorm,
	gpu.FormatR16G16Unorm:        vk.FormatR16g16Unorm,
	gpu.FormatR16G16B16Unorm:     vk.FormatR16g16b16Unorm,
	gpu.FormatR16G16B16A16Unorm:  vk.FormatR16g16b16a16Unorm,
	gpu.FormatR32Sfloat:          vk.FormatR32Sfloat,
	gpu.FormatR32G32Sfloat:       vk.FormatR32g32Sfloat,
	gpu.FormatR32G32B32Sfloat:    vk.FormatR32g32b32Sfloat,
	gpu.FormatR32G32B32A32Sfloat: vk.FormatR32g32b32a32Sfloat,
	gpu.FormatR32Sint:            vk.FormatR32Sint,
	gpu.FormatD32Sfloat:          vk.FormatD32Sfloat,
}

func toFormat(f gpu.Format) vk.Format { return formats[f] }

// fromFormat maps a surface format back, FormatUndefined when the engine
// has no name for it.
func fromFormat(f vk.Format) gpu.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return gpu.FormatUndefined
}

func toLayout(l gpu.Layout) vk.ImageLayout {
	switch l {
	case gpu.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case gpu.LayoutPreinitialized:
		return vk.ImageLayoutPreinitialized
	case gpu.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case gpu.LayoutDepthStencilAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case gpu.LayoutDepthReadOnly:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case gpu.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gpu.LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case gpu.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case gpu.LayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

func toShaderStages(s gpu.ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	if s&gpu.StageVertex != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if s&gpu.StageFragment != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	if s&gpu.StageCompute != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	}
	return flags
}

func toShaderStageBit(s gpu.ShaderStage) vk.ShaderStageFlagBits {
	switch s {
	case gpu.StageFragment:
		return vk.ShaderStageFragmentBit
	case gpu.StageCompute:
		return vk.ShaderStageComputeBit
	}
	return vk.ShaderStageVertexBit
}

var pipelineStages = []struct {
	from gpu.PipelineStage
	to   vk.PipelineStageFlagBits
}{
	{gpu.PipelineStageTopOfPipe, vk.PipelineStageTopOfPipeBit},
	{gpu.PipelineStageVertexShader, vk.PipelineStageVertexShaderBit},
	{gpu.PipelineStageFragmentShader, vk.PipelineStageFragmentShaderBit},
	{gpu.PipelineStageEarlyFragmentTests, vk.PipelineStageEarlyFragmentTestsBit},
	{gpu.PipelineStageLateFragmentTests, vk.PipelineStageLateFragmentTestsBit},
	{gpu.PipelineStageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
	{gpu.PipelineStageTransfer, vk.PipelineStageTransferBit},
	{gpu.PipelineStageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
	{gpu.PipelineStageAllCommands, vk.PipelineStageAllCommandsBit},
}

func toPipelineStages(s gpu.PipelineStage) vk.PipelineStageFlags {
	var flags vk.PipelineStageFlags
	for _, m := range pipelineStages {
		if s&m.from != 0 {
			flags |= vk.PipelineStageFlags(m.to)
		}
	}
	if flags == 0 {
		flags = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	return flags
}

var accesses = []struct {
	from gpu.Access
	to   vk.AccessFlagBits
}{
	{gpu.AccessColorAttachmentRead, vk.AccessColorAttachmentReadBit},
	{gpu.AccessColorAttachmentWrite, vk.AccessColorAttachmentWriteBit},
	{gpu.AccessDepthStencilAttachmentRead, vk.AccessDepthStencilAttachmentReadBit},
	{gpu.AccessDepthStencilAttachmentWrite, vk.AccessDepthStencilAttachmentWriteBit},
	{gpu.AccessShaderRead, vk.AccessShaderReadBit},
	{gpu.AccessTransferRead, vk.AccessTransferReadBit},
	{gpu.AccessTransferWrite, vk.AccessTransferWriteBit},
	{gpu.AccessMemoryRead, vk.AccessMemoryReadBit},
	{gpu.AccessMemoryWrite, vk.AccessMemoryWriteBit},
}

func toAccess(a gpu.Access) vk.AccessFlags {
	var flags vk.AccessFlags
	for _, m := range accesses {
		if a&m.from != 0 {
			flags |= vk.AccessFlags(m.to)
		}
	}
	return flags
}

func toAspect(a gpu.Aspect) vk.ImageAspectFlags {
	var flags vk.ImageAspectFlags
	if a&gpu.AspectColor != 0 {
		flags |= vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	if a&gpu.AspectDepth != 0 {
		flags |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return flags
}

func aspectOf(f gpu.Format) vk.ImageAspectFlags {
	if f.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func toBufferUsage(u gpu.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlags
	if u&gpu.BufferUsageTransferSrc != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
	if u&gpu.BufferUsageTransferDst != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	if u&gpu.BufferUsageUniform != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if u&gpu.BufferUsageStorage != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	if u&gpu.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if u&gpu.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	return flags
}

func toImageUsage(u gpu.ImageUsage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlags
	if u&gpu.ImageUsageTransferSrc != 0 {
		flags |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	}
	if u&gpu.ImageUsageTransferDst != 0 {
		flags |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}
	if u&gpu.ImageUsageSampled != 0 {
		flags |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if u&gpu.ImageUsageStorage != 0 {
		flags |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}
	if u&gpu.ImageUsageColorAttachment != 0 {
		flags |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	if u&gpu.ImageUsageDepthStencilAttachment != 0 {
		flags |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	}
	return flags
}

// memoryFlags picks the property flags of a memory usage.
func memoryFlags(m gpu.MemoryUsage) vk.MemoryPropertyFlags {
	switch m {
	case gpu.MemoryCPUToGPU:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	case gpu.MemoryGPUToCPU:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit | vk.MemoryPropertyHostCachedBit)
	}
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}

func toDescriptorType(k gpu.DescriptorKind) vk.DescriptorType {
	switch k {
	case gpu.DescriptorStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case gpu.DescriptorCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case gpu.DescriptorSampledImage:
		return vk.DescriptorTypeSampledImage
	case gpu.DescriptorStorageImage:
		return vk.DescriptorTypeStorageImage
	case gpu.DescriptorSampler:
		return vk.DescriptorTypeSampler
	}
	return vk.DescriptorTypeUniformBuffer
}

func toLoadOp(op gpu.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case gpu.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case gpu.LoadOpDontCare:
		return vk.AttachmentLoadOpDontCare
	}
	return vk.AttachmentLoadOpClear
}

func toStoreOp(op gpu.StoreOp) vk.AttachmentStoreOp {
	if op == gpu.StoreOpDontCare {
		return vk.AttachmentStoreOpDontCare
	}
	return vk.AttachmentStoreOpStore
}

func toCompareOp(op gpu.CompareOp) vk.CompareOp {
	switch op {
	case gpu.CompareNever:
		return vk.CompareOpNever
	case gpu.CompareLessOrEqual:
		return vk.CompareOpLessOrEqual
	case gpu.CompareAlways:
		return vk.CompareOpAlways
	}
	return vk.CompareOpLess
}

func toCullMode(m gpu.CullMode) vk.CullModeFlags {
	switch m {
	case gpu.CullNone:
		return vk.CullModeFlags(vk.CullModeNone)
	case gpu.CullFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	}
	return vk.CullModeFlags(vk.CullModeBackBit)
}

func toFrontFace(f gpu.FrontFace) vk.FrontFace {
	if f == gpu.FrontFaceClockwise {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}

func toFilter(f gpu.Filter) vk.Filter {
	if f == gpu.FilterNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func toAddressMode(m gpu.AddressMode) vk.SamplerAddressMode {
	if m == gpu.AddressClampToEdge {
		return vk.SamplerAddressModeClampToEdge
	}
	return vk.SamplerAddressModeRepeat
}

func toIndexType(t gpu.IndexType) vk.IndexType {
	if t == gpu.IndexUint16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

func toExtent(e gpu.Extent2D) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}

func toRect(r gpu.Rect2D) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: r.Offset.X, Y: r.Offset.Y},
		Extent: toExtent(r.Extent),
	}
}
