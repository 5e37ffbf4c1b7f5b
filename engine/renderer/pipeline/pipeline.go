// Package pipeline builds graphics pipelines from shader sources. Binding
// slots, uniform member offsets and push constant ranges come from SPIR-V
// reflection so callers address shader inputs by name.
package pipeline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
)

const (
	// NotFound is returned for unknown binding names and before Build.
	NotFound = -1
	// NotFoundOffset is returned for unknown member names and before Build.
	NotFoundOffset uint32 = 0xFFFFFFFF
	// UnboundedCount is the descriptor count declared for runtime sized arrays.
	UnboundedCount uint32 = 4096

	maxPushRanges = 32
)

var (
	ErrAlreadyBuilt    = errors.New("pipeline already built")
	ErrNotBuilt        = errors.New("pipeline not built")
	ErrNoShaderStages  = errors.New("pipeline has no shader stages")
	ErrNoAttachments   = errors.New("pipeline has no attachments")
	ErrTooManyPushes   = errors.New("too many push constant ranges")
	ErrBindingConflict = errors.New("binding declared with different kinds")
)

type stage struct {
	module gpu.ShaderModule
	stage  gpu.ShaderStage
	entry  string
	name   string
}

// Pipeline is a graphics pipeline. Until Build it collects shader stages,
// vertex input and attachments; after Build it is immutable.
type Pipeline struct {
	device   gpu.Device
	compiler *shader.Compiler
	built    bool

	stages     []stage
	bindings   map[uint32]*gpu.DescriptorBinding
	pushes     []gpu.PushConstantRange
	names      map[string]uint32
	offsets    map[string]uint32
	blockSizes map[string]uint32

	vertexBindings   []gpu.VertexBinding
	vertexAttributes []gpu.VertexAttribute
	viewport         gpu.Viewport
	scissor          gpu.Rect2D
	colors           []gpu.AttachmentDesc
	depth            *gpu.AttachmentDesc
	blend            bool

	descLayout gpu.DescriptorLayout
	layout     gpu.PipelineLayout
	renderPass gpu.RenderPass
	state      gpu.PipelineState
}

func New(device gpu.Device, compiler *shader.Compiler) *Pipeline {
	return &Pipeline{
		device:     device,
		compiler:   compiler,
		bindings:   map[uint32]*gpu.DescriptorBinding{},
		names:      map[string]uint32{},
		offsets:    map[string]uint32{},
		blockSizes: map[string]uint32{},
		viewport:   gpu.Viewport{MaxDepth: 1},
	}
}

// AddShaderStage compiles src for stage, creates its module and merges the
// reflected bindings and push constant ranges into the pipeline.
func (p *Pipeline) AddShaderStage(src shader.Source, st gpu.ShaderStage) error {
	if p.built {
		return ErrAlreadyBuilt
	}
	code, err := p.compiler.Compile(src, st)
	if err != nil {
		return fmt.Errorf("compile %s: %w", src.Name, err)
	}
	refl, err := shader.Reflect(code)
	if err != nil {
		return fmt.Errorf("reflect %s: %w", src.Name, err)
	}
	entry, ok := refl.Entry(st)
	if !ok {
		return fmt.Errorf("%s has no %s entry point: %w", src.Name, st, shader.ErrInvalidSPIRV)
	}

	for _, b := range refl.Bindings {
		if err := p.addBinding(b, st); err != nil {
			return fmt.Errorf("%s: %w", src.Name, err)
		}
	}
	for _, pb := range refl.PushBlocks {
		p.addPushRange(pb, st)
	}

	module, err := p.device.NewShaderModule(code)
	if err != nil {
		err = fmt.Errorf("create shader module %s: %w", src.Name, err)
		core.LogError("%s", err)
		return err
	}
	p.stages = append(p.stages, stage{module: module, stage: st, entry: entry, name: src.Name})
	core.LogDebug("added %s stage %s (entry %s)", st, src.Name, entry)
	return nil
}

func (p *Pipeline) addBinding(b shader.Binding, st gpu.ShaderStage) error {
	if b.Name != "" {
		p.names[b.Name] = b.Binding
	}
	if b.Block != nil {
		if b.Block.Name != "" {
			p.names[b.Block.Name] = b.Binding
		}
		for _, m := range b.Block.Members {
			p.names[m.Name] = b.Binding
			p.offsets[m.Name] = m.Offset
		}
		key := b.Name
		if key == "" {
			key = b.Block.Name
		}
		p.blockSizes[key] = b.Block.PaddedSize
	}

	if existing, ok := p.bindings[b.Binding]; ok {
		if existing.Kind != b.Kind {
			return fmt.Errorf("binding %d is %s and %s: %w", b.Binding, existing.Kind, b.Kind, ErrBindingConflict)
		}
		existing.Stages |= st
		return nil
	}

	desc := &gpu.DescriptorBinding{Binding: b.Binding, Kind: b.Kind, Count: b.Count, Stages: st}
	if desc.Count == 0 {
		desc.Count = 1
	}
	if b.Unbounded {
		desc.Count = UnboundedCount
		desc.Flags = gpu.BindingPartiallyBound | gpu.BindingVariableCount
	}
	p.bindings[b.Binding] = desc
	core.LogDebug("descriptor %q binding=%d kind=%s unbounded=%t", b.Name, b.Binding, b.Kind, b.Unbounded)
	return nil
}

func (p *Pipeline) addPushRange(pb shader.PushBlock, st gpu.ShaderStage) {
	for _, m := range pb.Members {
		p.offsets[m.Name] = m.Offset
	}
	for i := range p.pushes {
		if p.pushes[i].Offset == pb.Offset && p.pushes[i].Size == pb.RangeSize {
			p.pushes[i].Stages |= st
			return
		}
	}
	p.pushes = append(p.pushes, gpu.PushConstantRange{Stages: st, Offset: pb.Offset, Size: pb.RangeSize})
	core.LogDebug("push constant offset=%d size=%d stage=%s", pb.Offset, pb.RangeSize, st)
}

// SetViewport covers [0,w]x[0,h] with depth [0,1]. The scissor follows.
func (p *Pipeline) SetViewport(w, h uint32) error {
	return p.SetViewportRect(0, 0, float32(w), float32(h), 0, 1)
}

func (p *Pipeline) SetViewportRect(x, y, w, h, minDepth, maxDepth float32) error {
	if p.built {
		return ErrAlreadyBuilt
	}
	p.viewport = gpu.Viewport{X: x, Y: y, Width: w, Height: h, MinDepth: minDepth, MaxDepth: maxDepth}
	p.scissor = gpu.Rect2D{
		Offset: gpu.Offset2D{X: int32(x), Y: int32(y)},
		Extent: gpu.Extent2D{Width: uint32(w), Height: uint32(h)},
	}
	return nil
}

// AddColorAttachment appends an attachment that is cleared on load and
// stored at the end of the pass.
func (p *Pipeline) AddColorAttachment(format gpu.Format, initial, final gpu.Layout) error {
	return p.AddColorAttachmentOp(format, gpu.LoadOpClear, initial, final)
}

// AddColorAttachmentOp is AddColorAttachment with an explicit load op, used
// by passes drawing over existing contents.
func (p *Pipeline) AddColorAttachmentOp(format gpu.Format, load gpu.LoadOp, initial, final gpu.Layout) error {
	if p.built {
		return ErrAlreadyBuilt
	}
	p.colors = append(p.colors, gpu.AttachmentDesc{
		Format:  format,
		Load:    load,
		Store:   gpu.StoreOpStore,
		Initial: initial,
		Final:   final,
	})
	return nil
}

// AddDepthAttachment adds a D32 depth buffer and turns on depth testing.
func (p *Pipeline) AddDepthAttachment() error {
	if p.built {
		return ErrAlreadyBuilt
	}
	p.depth = &gpu.AttachmentDesc{
		Format:  gpu.FormatD32Sfloat,
		Load:    gpu.LoadOpClear,
		Store:   gpu.StoreOpDontCare,
		Initial: gpu.LayoutUndefined,
		Final:   gpu.LayoutDepthStencilAttachment,
	}
	return nil
}

// SetBlend turns on alpha blending for every color attachment.
func (p *Pipeline) SetBlend(enabled bool) error {
	if p.built {
		return ErrAlreadyBuilt
	}
	p.blend = enabled
	return nil
}

// Build creates the descriptor layout, pipeline layout, render pass and
// pipeline state. On failure nothing created by Build survives.
func (p *Pipeline) Build() (err error) {
	if p.built {
		return ErrAlreadyBuilt
	}
	if len(p.stages) == 0 {
		return ErrNoShaderStages
	}
	if len(p.colors) == 0 && p.depth == nil {
		return ErrNoAttachments
	}
	if len(p.pushes) > maxPushRanges {
		return fmt.Errorf("%d ranges: %w", len(p.pushes), ErrTooManyPushes)
	}

	defer func() {
		if err != nil {
			core.LogError("failed to build pipeline: %s", err)
			p.destroyBuilt()
		}
	}()

	if p.descLayout, err = p.device.NewDescriptorLayout(p.Bindings()); err != nil {
		return fmt.Errorf("create descriptor layout: %w", err)
	}
	if p.layout, err = p.device.NewPipelineLayout(p.descLayout, p.PushRanges()); err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	if p.renderPass, err = p.device.NewRenderPass(gpu.RenderPassDesc{Colors: p.colors, Depth: p.depth}); err != nil {
		return fmt.Errorf("create render pass: %w", err)
	}

	desc := gpu.PipelineDesc{
		Layout:           p.layout,
		RenderPass:       p.renderPass,
		VertexBindings:   p.vertexBindings,
		VertexAttributes: p.vertexAttributes,
		Viewport:         p.viewport,
		Scissor:          p.scissor,
		Cull:             gpu.CullBack,
		FrontFace:        gpu.FrontFaceCounterClockwise,
		ColorCount:       len(p.colors),
		Blend:            p.blend,
	}
	if p.depth != nil {
		desc.Depth = gpu.DepthState{Test: true, Write: true, Compare: gpu.CompareLess}
	}
	for _, s := range p.stages {
		desc.Stages = append(desc.Stages, gpu.ShaderStageDesc{Module: s.module, Stage: s.stage, Entry: s.entry})
	}
	if p.state, err = p.device.NewPipeline(desc); err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	p.built = true
	return nil
}

func (p *Pipeline) destroyBuilt() {
	if p.state != nil {
		p.state.Destroy()
		p.state = nil
	}
	if p.renderPass != nil {
		p.renderPass.Destroy()
		p.renderPass = nil
	}
	if p.layout != nil {
		p.layout.Destroy()
		p.layout = nil
	}
	if p.descLayout != nil {
		p.descLayout.Destroy()
		p.descLayout = nil
	}
}

// Bindings returns the merged descriptor bindings ordered by binding number.
func (p *Pipeline) Bindings() []gpu.DescriptorBinding {
	out := make([]gpu.DescriptorBinding, 0, len(p.bindings))
	for _, b := range p.bindings {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Binding < out[j].Binding })
	return out
}

func (p *Pipeline) PushRanges() []gpu.PushConstantRange {
	return append([]gpu.PushConstantRange(nil), p.pushes...)
}

func (p *Pipeline) Built() bool { return p.built }

// GetBindingByName returns the binding slot of a descriptor, block type or
// block member, or NotFound.
func (p *Pipeline) GetBindingByName(name string) int {
	if !p.built {
		return NotFound
	}
	b, ok := p.names[name]
	if !ok {
		return NotFound
	}
	return int(b)
}

// GetMemberOffset returns the byte offset of a uniform or push constant
// member, or NotFoundOffset.
func (p *Pipeline) GetMemberOffset(name string) uint32 {
	if !p.built {
		return NotFoundOffset
	}
	off, ok := p.offsets[name]
	if !ok {
		return NotFoundOffset
	}
	return off
}

// UniformBlockSize returns the std140 padded size of a uniform block by
// variable name, or 0.
func (p *Pipeline) UniformBlockSize(name string) uint32 {
	if !p.built {
		return 0
	}
	return p.blockSizes[name]
}

// PushStages returns the stages of every push range covering offset.
func (p *Pipeline) PushStages(offset uint32) gpu.ShaderStage {
	var stages gpu.ShaderStage
	for _, r := range p.pushes {
		if offset >= r.Offset && offset < r.Offset+r.Size {
			stages |= r.Stages
		}
	}
	return stages
}

func (p *Pipeline) ColorCount() int { return len(p.colors) }

func (p *Pipeline) HasDepth() bool { return p.depth != nil }

func (p *Pipeline) RenderPass() (gpu.RenderPass, error) {
	if !p.built {
		return nil, fmt.Errorf("render pass: %w", ErrNotBuilt)
	}
	return p.renderPass, nil
}

func (p *Pipeline) State() (gpu.PipelineState, error) {
	if !p.built {
		return nil, fmt.Errorf("pipeline state: %w", ErrNotBuilt)
	}
	return p.state, nil
}

func (p *Pipeline) Layout() (gpu.PipelineLayout, error) {
	if !p.built {
		return nil, fmt.Errorf("pipeline layout: %w", ErrNotBuilt)
	}
	return p.layout, nil
}

// AllocDescSet allocates a set for this pipeline's layout. variableCount
// sizes the unbounded array binding, if there is one.
func (p *Pipeline) AllocDescSet(pool gpu.DescriptorPool, variableCount uint32) (gpu.DescriptorSet, error) {
	if !p.built {
		return nil, fmt.Errorf("alloc descriptor set: %w", ErrNotBuilt)
	}
	set, err := pool.Allocate(p.descLayout, variableCount)
	if err != nil {
		return nil, fmt.Errorf("alloc descriptor set: %w", err)
	}
	return set, nil
}

func (p *Pipeline) BindUniformBuffer(set gpu.DescriptorSet, buf gpu.Buffer, offset, size uint64, binding, element uint32) {
	set.WriteBuffer(binding, element, p.kindOf(binding, gpu.DescriptorUniformBuffer), buf, offset, size)
}

func (p *Pipeline) BindImageView(set gpu.DescriptorSet, view gpu.ImageView, layout gpu.Layout, sampler gpu.Sampler, binding, element uint32) {
	set.WriteImage(binding, element, p.kindOf(binding, gpu.DescriptorCombinedImageSampler), view, layout, sampler)
}

func (p *Pipeline) kindOf(binding uint32, fallback gpu.DescriptorKind) gpu.DescriptorKind {
	if b, ok := p.bindings[binding]; ok {
		return b.Kind
	}
	return fallback
}

// Destroy releases the shader modules and everything Build created.
func (p *Pipeline) Destroy() {
	p.destroyBuilt()
	for _, s := range p.stages {
		s.module.Destroy()
	}
	p.stages = nil
	p.built = false
}
