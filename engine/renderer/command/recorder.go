// Package command wraps a GPU command list with the operations the engine
// records every frame: scoped render passes, layout transitions and pushes
// of named shader parameters.
package command

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/spaghettifunk/prism/engine/core"
	pmath "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/lifetime"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
)

var (
	ErrNotRecording     = errors.New("command list is not recording")
	ErrNestedRenderPass = errors.New("render pass already open")
	ErrUnknownMember    = errors.New("unknown push constant member")
	ErrAlreadyRecording = errors.New("command list already recording")
)

// Recorder records into one command list. It is not safe for concurrent use;
// each goroutine records into its own list.
type Recorder struct {
	list    gpu.CommandList
	tracker *lifetime.Tracker
	device  gpu.Device

	recording bool
	inPass    bool
}

func New(list gpu.CommandList, tracker *lifetime.Tracker, device gpu.Device) *Recorder {
	return &Recorder{list: list, tracker: tracker, device: device}
}

// List is the underlying command list.
func (r *Recorder) List() gpu.CommandList { return r.list }

func (r *Recorder) Recording() bool { return r.recording }

func (r *Recorder) Begin() error {
	if r.recording {
		return ErrAlreadyRecording
	}
	if err := r.list.Begin(); err != nil {
		return fmt.Errorf("begin command list: %w", err)
	}
	r.recording = true
	return nil
}

func (r *Recorder) End() error {
	if !r.recording {
		return ErrNotRecording
	}
	if r.inPass {
		return fmt.Errorf("end inside a render pass: %w", ErrNestedRenderPass)
	}
	r.recording = false
	if err := r.list.End(); err != nil {
		return fmt.Errorf("end command list: %w", err)
	}
	return nil
}

func (r *Recorder) BindPipeline(p *pipeline.Pipeline) error {
	state, err := p.State()
	if err != nil {
		return err
	}
	r.list.BindPipeline(state)
	return nil
}

// BindDescSets binds sets starting at set index first.
func (r *Recorder) BindDescSets(p *pipeline.Pipeline, first uint32, sets ...gpu.DescriptorSet) error {
	layout, err := p.Layout()
	if err != nil {
		return err
	}
	r.list.BindDescriptorSets(layout, first, sets)
	return nil
}

func (r *Recorder) Draw(vertexCount, firstVertex, instanceCount, firstInstance uint32) {
	r.list.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (r *Recorder) DrawIndexed(indexCount, firstIndex uint32, vertexOffset int32, instanceCount, firstInstance uint32) {
	r.list.DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (r *Recorder) BindVertexBuffer(binding pipeline.VertexBufferBinding, buf gpu.Buffer, offset uint64) {
	r.list.BindVertexBuffers(binding.Binding, []gpu.Buffer{buf}, []uint64{offset})
}

func (r *Recorder) BindIndexBuffer(buf gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	r.list.BindIndexBuffer(buf, offset, indexType)
}

// PushConstants writes data at offset for every stage whose push range
// covers offset.
func (r *Recorder) PushConstants(p *pipeline.Pipeline, offset uint32, data []byte) error {
	layout, err := p.Layout()
	if err != nil {
		return err
	}
	stages := p.PushStages(offset)
	if stages == gpu.StageNone {
		return fmt.Errorf("offset %d: %w", offset, ErrUnknownMember)
	}
	r.list.PushConstants(layout, stages, offset, data)
	return nil
}

// PushFloat pushes v to the push constant member called name.
func (r *Recorder) PushFloat(p *pipeline.Pipeline, name string, v float32) error {
	offset := p.GetMemberOffset(name)
	if offset == pipeline.NotFoundOffset {
		return fmt.Errorf("%q: %w", name, ErrUnknownMember)
	}
	var data [4]byte
	binary.LittleEndian.PutUint32(data[:], math.Float32bits(v))
	return r.PushConstants(p, offset, data[:])
}

func (r *Recorder) PushVec3(p *pipeline.Pipeline, name string, v pmath.Vec3) error {
	offset := p.GetMemberOffset(name)
	if offset == pipeline.NotFoundOffset {
		return fmt.Errorf("%q: %w", name, ErrUnknownMember)
	}
	var data [12]byte
	binary.LittleEndian.PutUint32(data[0:], math.Float32bits(v.X))
	binary.LittleEndian.PutUint32(data[4:], math.Float32bits(v.Y))
	binary.LittleEndian.PutUint32(data[8:], math.Float32bits(v.Z))
	return r.PushConstants(p, offset, data[:])
}

// accessFor maps a layout to the access an image in that layout sees. Reads
// are used for the destination of a transition and writes for its source.
func accessFor(layout gpu.Layout, read bool) gpu.Access {
	switch layout {
	case gpu.LayoutColorAttachment:
		if read {
			return gpu.AccessColorAttachmentRead
		}
		return gpu.AccessColorAttachmentWrite
	case gpu.LayoutDepthStencilAttachment:
		if read {
			return gpu.AccessDepthStencilAttachmentRead
		}
		return gpu.AccessDepthStencilAttachmentWrite
	case gpu.LayoutDepthReadOnly:
		return gpu.AccessDepthStencilAttachmentRead
	case gpu.LayoutShaderReadOnly:
		if read {
			return gpu.AccessMemoryRead
		}
		return gpu.AccessMemoryWrite
	case gpu.LayoutTransferSrc:
		return gpu.AccessTransferRead
	case gpu.LayoutTransferDst:
		return gpu.AccessTransferWrite
	}
	// Undefined, general, preinitialized and present need no access.
	return gpu.AccessNone
}

func aspectFor(format gpu.Format) gpu.Aspect {
	if format.IsDepth() {
		return gpu.AspectDepth
	}
	return gpu.AspectColor
}

// ImageTransition moves every mip and layer of img between layouts.
func (r *Recorder) ImageTransition(img gpu.Image, src, dst gpu.PipelineStage, oldLayout, newLayout gpu.Layout) {
	r.ImageTransitionRange(img, src, dst, oldLayout, newLayout, 0, img.MipLevels(), 0, img.Layers())
}

func (r *Recorder) ImageTransitionRange(img gpu.Image, src, dst gpu.PipelineStage, oldLayout, newLayout gpu.Layout, baseMip, mips, baseLayer, layers uint32) {
	if mips == 0 {
		mips = 1
	}
	if layers == 0 {
		layers = 1
	}
	r.list.PipelineBarrier(src, dst, []gpu.ImageBarrier{{
		Image:     img,
		OldLayout: oldLayout,
		NewLayout: newLayout,
		SrcAccess: accessFor(oldLayout, false),
		DstAccess: accessFor(newLayout, true),
		Aspect:    aspectFor(img.Format()),
		BaseMip:   baseMip,
		MipCount:  mips,
		BaseLayer: baseLayer,
		Layers:    layers,
	}})
}

// CopyBufferToImage copies tightly packed pixels into mip 0 of img, which
// must be in the transfer destination layout.
func (r *Recorder) CopyBufferToImage(buf gpu.Buffer, offset uint64, img gpu.Image) {
	r.list.CopyBufferToImage(buf, img, gpu.LayoutTransferDst, []gpu.BufferImageCopy{{
		BufferOffset: offset,
		Extent:       img.Extent(),
	}})
}

func (r *Recorder) clears(p *pipeline.Pipeline, color [4]float32) []gpu.ClearValue {
	clears := make([]gpu.ClearValue, 0, p.ColorCount()+1)
	for i := 0; i < p.ColorCount(); i++ {
		clears = append(clears, gpu.ClearValue{Color: color})
	}
	if p.HasDepth() {
		clears = append(clears, gpu.ClearValue{Depth: 1, IsDepth: true})
	}
	return clears
}

// WithRenderPass opens p's render pass on fb covering extent, runs fn and
// closes the pass. Colors clear to zero and depth to one.
func (r *Recorder) WithRenderPass(p *pipeline.Pipeline, fb gpu.Framebuffer, extent gpu.Extent2D, fn func() error) error {
	return r.WithRenderPassArea(p, fb, gpu.Rect2D{Extent: extent}, [4]float32{}, fn)
}

func (r *Recorder) WithRenderPassArea(p *pipeline.Pipeline, fb gpu.Framebuffer, area gpu.Rect2D, clearColor [4]float32, fn func() error) error {
	if !r.recording {
		return ErrNotRecording
	}
	if r.inPass {
		return ErrNestedRenderPass
	}
	pass, err := p.RenderPass()
	if err != nil {
		return err
	}

	r.list.BeginRenderPass(pass, fb, area, r.clears(p, clearColor))
	r.inPass = true
	err = fn()
	r.list.EndRenderPass()
	r.inPass = false
	return err
}

// WithRenderPassViews is WithRenderPass on a framebuffer built from views for
// this pass only. The framebuffer is handed to the tracker straight away so it
// outlives the submission.
func (r *Recorder) WithRenderPassViews(p *pipeline.Pipeline, views []gpu.ImageView, extent gpu.Extent2D, fn func() error) error {
	if !r.recording {
		return ErrNotRecording
	}
	if r.inPass {
		return ErrNestedRenderPass
	}
	pass, err := p.RenderPass()
	if err != nil {
		return err
	}
	fb, err := r.device.NewFramebuffer(pass, views, extent)
	if err != nil {
		err = fmt.Errorf("create framebuffer: %w", err)
		core.LogError("%s", err)
		return err
	}
	r.tracker.Dispose(fb)
	return r.WithRenderPass(p, fb, extent, fn)
}
