package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type VulkanDescriptorLayout struct {
	context  *VulkanContext
	Handle   vk.DescriptorSetLayout
	bindings []gpu.DescriptorBinding
	variable bool
}

type VulkanDescriptorPool struct {
	context *VulkanContext
	Handle  vk.DescriptorPool
}

type VulkanDescriptorSet struct {
	context *VulkanContext
	Handle  vk.DescriptorSet
}

func newDescriptorLayout(context *VulkanContext, bindings []gpu.DescriptorBinding) (*VulkanDescriptorLayout, error) {
	layout := &VulkanDescriptorLayout{
		context:  context,
		bindings: append([]gpu.DescriptorBinding(nil), bindings...),
	}

	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	flags := make([]vk.DescriptorBindingFlags, len(bindings))
	indexing := false
	for i, b := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  toDescriptorType(b.Kind),
			DescriptorCount: b.Count,
			StageFlags:      toShaderStages(b.Stages),
		}
		if b.Flags&gpu.BindingPartiallyBound != 0 {
			flags[i] |= vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit)
			indexing = true
		}
		if b.Flags&gpu.BindingVariableCount != 0 {
			flags[i] |= vk.DescriptorBindingFlags(vk.DescriptorBindingVariableDescriptorCountBit)
			layout.variable = true
			indexing = true
		}
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	if indexing {
		flagsInfo := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
			SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
			BindingCount:  uint32(len(flags)),
			PBindingFlags: flags,
		}
		layoutInfo.PNext = unsafe.Pointer(flagsInfo.Ref())
	}
	if res := vk.CreateDescriptorSetLayout(context.logical(), &layoutInfo, context.Allocator, &layout.Handle); res != vk.Success {
		err := resultError("vkCreateDescriptorSetLayout", res)
		core.LogError(err.Error())
		return nil, err
	}
	return layout, nil
}

func (l *VulkanDescriptorLayout) Bindings() []gpu.DescriptorBinding {
	return append([]gpu.DescriptorBinding(nil), l.bindings...)
}

func (l *VulkanDescriptorLayout) Destroy() {
	if l.Handle != nil {
		vk.DestroyDescriptorSetLayout(l.context.logical(), l.Handle, l.context.Allocator)
		l.Handle = nil
	}
}

func newDescriptorPool(context *VulkanContext, desc gpu.DescriptorPoolDesc) (*VulkanDescriptorPool, error) {
	var sizes []vk.DescriptorPoolSize
	for kind, count := range desc.Sizes {
		if count == 0 {
			continue
		}
		sizes = append(sizes, vk.DescriptorPoolSize{
			Type:            toDescriptorType(kind),
			DescriptorCount: count,
		})
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       desc.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	pool := &VulkanDescriptorPool{context: context}
	if res := vk.CreateDescriptorPool(context.logical(), &poolInfo, context.Allocator, &pool.Handle); res != vk.Success {
		err := resultError("vkCreateDescriptorPool", res)
		core.LogError(err.Error())
		return nil, err
	}
	return pool, nil
}

func (p *VulkanDescriptorPool) Allocate(layout gpu.DescriptorLayout, variableCount uint32) (gpu.DescriptorSet, error) {
	l, ok := layout.(*VulkanDescriptorLayout)
	if !ok {
		return nil, fmt.Errorf("descriptor layout %T: %w", layout, ErrForeignObject)
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.Handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l.Handle},
	}
	if l.variable {
		countInfo := vk.DescriptorSetVariableDescriptorCountAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetVariableDescriptorCountAllocateInfo,
			DescriptorSetCount: 1,
			PDescriptorCounts:  []uint32{variableCount},
		}
		allocInfo.PNext = unsafe.Pointer(countInfo.Ref())
	}

	set := &VulkanDescriptorSet{context: p.context}
	err := p.context.locks.SafeCall(DescriptorManagement, func() error {
		if res := vk.AllocateDescriptorSets(p.context.logical(), &allocInfo, &set.Handle); res != vk.Success {
			return resultError("vkAllocateDescriptorSets", res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

func (p *VulkanDescriptorPool) Reset() error {
	return p.context.locks.SafeCall(DescriptorManagement, func() error {
		if res := vk.ResetDescriptorPool(p.context.logical(), p.Handle, 0); res != vk.Success {
			return resultError("vkResetDescriptorPool", res)
		}
		return nil
	})
}

func (p *VulkanDescriptorPool) Destroy() {
	if p.Handle != nil {
		vk.DestroyDescriptorPool(p.context.logical(), p.Handle, p.context.Allocator)
		p.Handle = nil
	}
}

func (s *VulkanDescriptorSet) WriteBuffer(binding, element uint32, kind gpu.DescriptorKind, buf gpu.Buffer, offset, size uint64) {
	b, ok := buf.(*VulkanBuffer)
	if !ok {
		core.LogError("descriptor write of binding %d: buffer %T: %s", binding, buf, ErrForeignObject)
		return
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          s.Handle,
		DstBinding:      binding,
		DstArrayElement: element,
		DescriptorCount: 1,
		DescriptorType:  toDescriptorType(kind),
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: b.Handle,
			Offset: vk.DeviceSize(offset),
			Range:  vk.DeviceSize(size),
		}},
	}
	s.update(write)
}

func (s *VulkanDescriptorSet) WriteImage(binding, element uint32, kind gpu.DescriptorKind, view gpu.ImageView, layout gpu.Layout, sampler gpu.Sampler) {
	info := vk.DescriptorImageInfo{ImageLayout: toLayout(layout)}
	if v, ok := view.(*VulkanImageView); ok {
		info.ImageView = v.Handle
	}
	if smp, ok := sampler.(*VulkanSampler); ok {
		info.Sampler = smp.Handle
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          s.Handle,
		DstBinding:      binding,
		DstArrayElement: element,
		DescriptorCount: 1,
		DescriptorType:  toDescriptorType(kind),
		PImageInfo:      []vk.DescriptorImageInfo{info},
	}
	s.update(write)
}

func (s *VulkanDescriptorSet) update(write vk.WriteDescriptorSet) {
	_ = s.context.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(s.context.logical(), 1, []vk.WriteDescriptorSet{write}, 0, nil)
		return nil
	})
}
