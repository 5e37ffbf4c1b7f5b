package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// maxPushConstantRanges is 128 guaranteed bytes at 4-byte granularity.
const maxPushConstantRanges = 32

type VulkanPipelineLayout struct {
	context *VulkanContext
	Handle  vk.PipelineLayout
}

type VulkanPipeline struct {
	context *VulkanContext
	Handle  vk.Pipeline
}

func newPipelineLayout(context *VulkanContext, set gpu.DescriptorLayout, push []gpu.PushConstantRange) (*VulkanPipelineLayout, error) {
	if len(push) > maxPushConstantRanges {
		return nil, fmt.Errorf("cannot have more than %d push constant ranges, have %d", maxPushConstantRanges, len(push))
	}
	var setLayouts []vk.DescriptorSetLayout
	if set != nil {
		l, ok := set.(*VulkanDescriptorLayout)
		if !ok {
			return nil, fmt.Errorf("descriptor layout %T: %w", set, ErrForeignObject)
		}
		setLayouts = append(setLayouts, l.Handle)
	}
	ranges := make([]vk.PushConstantRange, len(push))
	for i, r := range push {
		ranges[i] = vk.PushConstantRange{
			StageFlags: toShaderStages(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	layout := &VulkanPipelineLayout{context: context}
	if res := vk.CreatePipelineLayout(context.logical(), &layoutInfo, context.Allocator, &layout.Handle); res != vk.Success {
		err := resultError("vkCreatePipelineLayout", res)
		core.LogError(err.Error())
		return nil, err
	}
	return layout, nil
}

func (l *VulkanPipelineLayout) Destroy() {
	if l.Handle != nil {
		vk.DestroyPipelineLayout(l.context.logical(), l.Handle, l.context.Allocator)
		l.Handle = nil
	}
}

func newGraphicsPipeline(context *VulkanContext, desc gpu.PipelineDesc) (*VulkanPipeline, error) {
	layout, ok := desc.Layout.(*VulkanPipelineLayout)
	if !ok {
		return nil, fmt.Errorf("pipeline layout %T: %w", desc.Layout, ErrForeignObject)
	}
	pass, ok := desc.RenderPass.(*VulkanRenderPass)
	if !ok {
		return nil, fmt.Errorf("render pass %T: %w", desc.RenderPass, ErrForeignObject)
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, len(desc.Stages))
	for i, s := range desc.Stages {
		module, ok := s.Module.(*VulkanShaderModule)
		if !ok {
			return nil, fmt.Errorf("shader module %T: %w", s.Module, ErrForeignObject)
		}
		entry := s.Entry
		if entry == "" {
			entry = "main"
		}
		stages[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  toShaderStageBit(s.Stage),
			Module: module.Handle,
			PName:  VulkanSafeString(entry),
		}
	}

	bindings := make([]vk.VertexInputBindingDescription, len(desc.VertexBindings))
	for i, b := range desc.VertexBindings {
		rate := vk.VertexInputRateInstance
		if b.PerVertex {
			rate = vk.VertexInputRateVertex
		}
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: rate,
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.VertexAttributes))
	for i, a := range desc.VertexAttributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   toFormat(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	vp := desc.Viewport
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports: []vk.Viewport{{
			X:        vp.X,
			Y:        vp.Y,
			Width:    vp.Width,
			Height:   vp.Height,
			MinDepth: vp.MinDepth,
			MaxDepth: vp.MaxDepth,
		}},
		ScissorCount: 1,
		PScissors:    []vk.Rect2D{toRect(desc.Scissor)},
	}

	rasterizerInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                toCullMode(desc.Cull),
		FrontFace:               toFrontFace(desc.FrontFace),
		DepthBiasEnable:         vk.False,
	}

	multisamplingInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if desc.Depth.Test {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = toCompareOp(desc.Depth.Compare)
	}
	if desc.Depth.Write {
		depthStencil.DepthWriteEnable = vk.True
	}

	writeMask := vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit)
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, desc.ColorCount)
	for i := range blendAttachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:    vk.False,
			ColorWriteMask: writeMask,
		}
		if desc.Blend {
			blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
				BlendEnable:         vk.True,
				SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
				DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
				ColorBlendOp:        vk.BlendOpAdd,
				SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
				DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
				AlphaBlendOp:        vk.BlendOpAdd,
				ColorWriteMask:      writeMask,
			}
		}
	}
	colorBlendInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerInfo,
		PMultisampleState:   &multisamplingInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendInfo,
		Layout:              layout.Handle,
		RenderPass:          pass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(context.logical(), vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{pipelineInfo}, context.Allocator, pipelines); res != vk.Success {
		err := resultError("vkCreateGraphicsPipelines", res)
		core.LogError(err.Error())
		return nil, err
	}
	core.LogDebug("Graphics pipeline created!")
	return &VulkanPipeline{context: context, Handle: pipelines[0]}, nil
}

func (p *VulkanPipeline) Destroy() {
	if p.Handle != nil {
		vk.DestroyPipeline(p.context.logical(), p.Handle, p.context.Allocator)
		p.Handle = nil
	}
}
