package gpu

import "fmt"

type Format int

const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatR8G8Unorm
	FormatR8G8B8Unorm
	FormatR8G8B8A8Unorm
	FormatR8G8B8A8Srgb
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8Srgb
	FormatR16Unorm
	FormatR16G16Unorm
	FormatR16G16B16Unorm
	FormatR16G16B16A16Unorm
	FormatR32Sfloat
	FormatR32G32Sfloat
	FormatR32G32B32Sfloat
	FormatR32G32B32A32Sfloat
	FormatR32Sint
	FormatD32Sfloat
)

var formatNames = map[Format]string{
	FormatUndefined:          "undefined",
	FormatR8Unorm:            "r8_unorm",
	FormatR8G8Unorm:          "r8g8_unorm",
	FormatR8G8B8Unorm:        "r8g8b8_unorm",
	FormatR8G8B8A8Unorm:      "r8g8b8a8_unorm",
	FormatR8G8B8A8Srgb:       "r8g8b8a8_srgb",
	FormatB8G8R8A8Unorm:      "b8g8r8a8_unorm",
	FormatB8G8R8A8Srgb:       "b8g8r8a8_srgb",
	FormatR16Unorm:           "r16_unorm",
	FormatR16G16Unorm:        "r16g16_unorm",
	FormatR16G16B16Unorm:     "r16g16b16_unorm",
	FormatR16G16B16A16Unorm:  "r16g16b16a16_unorm",
	FormatR32Sfloat:          "r32_sfloat",
	FormatR32G32Sfloat:       "r32g32_sfloat",
	FormatR32G32B32Sfloat:    "r32g32b32_sfloat",
	FormatR32G32B32A32Sfloat: "r32g32b32a32_sfloat",
	FormatR32Sint:            "r32_sint",
	FormatD32Sfloat:          "d32_sfloat",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// IsDepth reports whether f is a depth format.
func (f Format) IsDepth() bool {
	return f == FormatD32Sfloat
}

// BytesPerPixel is the texel size of f, 0 when undefined.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatR8G8Unorm, FormatR16Unorm:
		return 2
	case FormatR8G8B8Unorm:
		return 3
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8Srgb, FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb,
		FormatR16G16Unorm, FormatR32Sfloat, FormatR32Sint, FormatD32Sfloat:
		return 4
	case FormatR16G16B16Unorm:
		return 6
	case FormatR16G16B16A16Unorm, FormatR32G32Sfloat:
		return 8
	case FormatR32G32B32Sfloat:
		return 12
	case FormatR32G32B32A32Sfloat:
		return 16
	}
	return 0
}

// Layout is the state an image is in from the point of view of its users.
type Layout int

const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutPreinitialized
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresentSrc
)

func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "undefined"
	case LayoutGeneral:
		return "general"
	case LayoutPreinitialized:
		return "preinitialized"
	case LayoutColorAttachment:
		return "color_attachment"
	case LayoutDepthStencilAttachment:
		return "depth_stencil_attachment"
	case LayoutDepthReadOnly:
		return "depth_read_only"
	case LayoutShaderReadOnly:
		return "shader_read_only"
	case LayoutTransferSrc:
		return "transfer_src"
	case LayoutTransferDst:
		return "transfer_dst"
	case LayoutPresentSrc:
		return "present_src"
	}
	return fmt.Sprintf("layout(%d)", int(l))
}

type ShaderStage uint32

const (
	StageVertex ShaderStage = 1 << iota
	StageFragment
	StageCompute

	StageNone ShaderStage = 0
	StageAll              = StageVertex | StageFragment | StageCompute
)

func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	case StageVertex | StageFragment:
		return "vertex|fragment"
	}
	return fmt.Sprintf("stages(%#x)", uint32(s))
}

// PipelineStage names the points in the GPU pipeline a barrier synchronizes.
type PipelineStage uint32

const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageVertexShader
	PipelineStageFragmentShader
	PipelineStageEarlyFragmentTests
	PipelineStageLateFragmentTests
	PipelineStageColorAttachmentOutput
	PipelineStageTransfer
	PipelineStageBottomOfPipe
	PipelineStageAllCommands
)

type Access uint32

const (
	AccessColorAttachmentRead Access = 1 << iota
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessShaderRead
	AccessTransferRead
	AccessTransferWrite
	AccessMemoryRead
	AccessMemoryWrite

	AccessNone Access = 0
)

type Aspect uint32

const (
	AspectColor Aspect = 1 << iota
	AspectDepth
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
)

// MemoryUsage classifies who reads and writes an allocation.
type MemoryUsage int

const (
	MemoryGPUOnly MemoryUsage = iota
	MemoryCPUToGPU
	MemoryGPUToCPU
)

func (m MemoryUsage) HostVisible() bool {
	return m == MemoryCPUToGPU || m == MemoryGPUToCPU
}

type DescriptorKind int

const (
	DescriptorUniformBuffer DescriptorKind = iota
	DescriptorStorageBuffer
	DescriptorCombinedImageSampler
	DescriptorSampledImage
	DescriptorStorageImage
	DescriptorSampler
)

func (k DescriptorKind) String() string {
	switch k {
	case DescriptorUniformBuffer:
		return "uniform_buffer"
	case DescriptorStorageBuffer:
		return "storage_buffer"
	case DescriptorCombinedImageSampler:
		return "combined_image_sampler"
	case DescriptorSampledImage:
		return "sampled_image"
	case DescriptorStorageImage:
		return "storage_image"
	case DescriptorSampler:
		return "sampler"
	}
	return fmt.Sprintf("descriptor(%d)", int(k))
}

// IsImage reports whether the descriptor is written with an image view.
func (k DescriptorKind) IsImage() bool {
	return k == DescriptorCombinedImageSampler || k == DescriptorSampledImage || k == DescriptorStorageImage
}

type BindingFlags uint32

const (
	BindingPartiallyBound BindingFlags = 1 << iota
	BindingVariableCount
)

type IndexType int

const (
	IndexUint16 IndexType = iota
	IndexUint32
)

type LoadOp int

const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
	LoadOpDontCare
)

type StoreOp int

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

type CompareOp int

const (
	CompareNever CompareOp = iota
	CompareLess
	CompareLessOrEqual
	CompareAlways
)

type CullMode int

const (
	CullNone CullMode = iota
	CullBack
	CullFront
)

type FrontFace int

const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

type Filter int

const (
	FilterLinear Filter = iota
	FilterNearest
)

type AddressMode int

const (
	AddressRepeat AddressMode = iota
	AddressClampToEdge
)

type Extent2D struct {
	Width  uint32
	Height uint32
}

type Offset2D struct {
	X int32
	Y int32
}

type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

type ImageDesc struct {
	Name      string
	Extent    Extent2D
	Format    Format
	MipLevels uint32
	Layers    uint32
	Usage     ImageUsage
}

type SamplerDesc struct {
	Filter      Filter
	AddressMode AddressMode
	MaxLod      float32
}

type DescriptorBinding struct {
	Binding uint32
	Kind    DescriptorKind
	Count   uint32
	Stages  ShaderStage
	Flags   BindingFlags
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type DescriptorPoolDesc struct {
	MaxSets uint32
	Sizes   map[DescriptorKind]uint32
}

type AttachmentDesc struct {
	Format  Format
	Load    LoadOp
	Store   StoreOp
	Initial Layout
	Final   Layout
}

type RenderPassDesc struct {
	Colors []AttachmentDesc
	Depth  *AttachmentDesc
}

type VertexBinding struct {
	Binding   uint32
	Stride    uint32
	PerVertex bool
}

type VertexAttribute struct {
	Binding  uint32
	Location uint32
	Format   Format
	Offset   uint32
}

type ShaderStageDesc struct {
	Module ShaderModule
	Stage  ShaderStage
	Entry  string
}

type DepthState struct {
	Test    bool
	Write   bool
	Compare CompareOp
}

type PipelineDesc struct {
	Layout           PipelineLayout
	RenderPass       RenderPass
	Stages           []ShaderStageDesc
	VertexBindings   []VertexBinding
	VertexAttributes []VertexAttribute
	Viewport         Viewport
	Scissor          Rect2D
	Cull             CullMode
	FrontFace        FrontFace
	Depth            DepthState
	ColorCount       int
	Blend            bool
}

type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
	IsDepth bool
}

type ImageBarrier struct {
	Image     Image
	OldLayout Layout
	NewLayout Layout
	SrcAccess Access
	DstAccess Access
	Aspect    Aspect
	BaseMip   uint32
	MipCount  uint32
	BaseLayer uint32
	Layers    uint32
}

type BufferImageCopy struct {
	BufferOffset uint64
	Extent       Extent2D
	MipLevel     uint32
	Layer        uint32
}

type Limits struct {
	MinUniformBufferOffsetAlignment uint64
	MaxPushConstantsSize            uint32
	MaxFramebufferWidth             uint32
	MaxFramebufferHeight            uint32
	DescriptorIndexing              bool
}
