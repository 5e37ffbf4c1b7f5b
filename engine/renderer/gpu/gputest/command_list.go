package gputest

import (
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// Command is one recorded call. Only the fields relevant to Op are set.
type Command struct {
	Op string

	Pass        *RenderPass
	Framebuffer *Framebuffer
	Area        gpu.Rect2D
	Clears      []gpu.ClearValue
	Pipeline    *PipelineState
	Layout      *PipelineLayout
	Sets        []*DescriptorSet
	Buffers     []*Buffer
	Image       *Image
	Barriers    []gpu.ImageBarrier
	SrcStage    gpu.PipelineStage
	DstStage    gpu.PipelineStage
	Stages      gpu.ShaderStage
	Offset      uint32
	Data        []byte
	IndexType   gpu.IndexType

	// Draw: vertex/index count, instance count, first vertex/index, first instance.
	Counts       [4]uint32
	VertexOffset int32
}

type CommandList struct {
	object
	recording bool
	inPass    bool
	commands  []Command
	refs      []*object
	pending   *Submission
	resets    int
}

// Commands returns a copy of what was recorded since the last Begin.
func (c *CommandList) Commands() []Command {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	return append([]Command(nil), c.commands...)
}

// Count returns how many recorded commands have op.
func (c *CommandList) Count(op string) int {
	n := 0
	for _, cmd := range c.Commands() {
		if cmd.Op == op {
			n++
		}
	}
	return n
}

// Ops returns the sequence of recorded op names.
func (c *CommandList) Ops() []string {
	var ops []string
	for _, cmd := range c.Commands() {
		ops = append(ops, cmd.Op)
	}
	return ops
}

func (c *CommandList) record(cmd Command, refs ...*object) {
	d := c.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if !c.recording {
		d.violate("command list %d: %s recorded outside Begin/End", c.id, cmd.Op)
	}
	c.commands = append(c.commands, cmd)
	for _, r := range refs {
		if r == nil {
			continue
		}
		if r.destroyed {
			d.violate("command list %d: %s references destroyed %s %d", c.id, cmd.Op, r.kind, r.id)
		}
		c.refs = append(c.refs, r)
	}
}

func (c *CommandList) Begin() error {
	d := c.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if c.pending != nil && !c.pending.Done {
		d.violate("command list %d re-recorded while submission %d is in flight", c.id, c.pending.Index)
	}
	if c.recording {
		return gpu.ErrNotRecording
	}
	c.recording = true
	c.commands = nil
	c.refs = nil
	return nil
}

func (c *CommandList) End() error {
	d := c.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if !c.recording {
		return gpu.ErrNotRecording
	}
	if c.inPass {
		d.violate("command list %d ended inside a render pass", c.id)
	}
	c.recording = false
	return nil
}

func (c *CommandList) Reset() error {
	d := c.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if c.pending != nil && !c.pending.Done {
		d.violate("command list %d reset while submission %d is in flight", c.id, c.pending.Index)
	}
	c.recording = false
	c.inPass = false
	c.resets++
	return nil
}

func (c *CommandList) BeginRenderPass(pass gpu.RenderPass, fb gpu.Framebuffer, area gpu.Rect2D, clears []gpu.ClearValue) {
	rp, f := pass.(*RenderPass), fb.(*Framebuffer)
	c.dev.mu.Lock()
	if c.inPass {
		c.dev.violate("command list %d: nested render pass", c.id)
	}
	c.inPass = true
	c.dev.mu.Unlock()

	refs := []*object{&rp.object, &f.object}
	for _, v := range f.Views {
		refs = append(refs, &v.(*ImageView).object)
	}
	c.record(Command{Op: "BeginRenderPass", Pass: rp, Framebuffer: f, Area: area, Clears: append([]gpu.ClearValue(nil), clears...)}, refs...)
}

func (c *CommandList) EndRenderPass() {
	c.dev.mu.Lock()
	if !c.inPass {
		c.dev.violate("command list %d: EndRenderPass without BeginRenderPass", c.id)
	}
	c.inPass = false
	c.dev.mu.Unlock()
	c.record(Command{Op: "EndRenderPass"})
}

func (c *CommandList) BindPipeline(state gpu.PipelineState) {
	p := state.(*PipelineState)
	c.record(Command{Op: "BindPipeline", Pipeline: p}, &p.object)
}

func (c *CommandList) BindDescriptorSets(layout gpu.PipelineLayout, first uint32, sets []gpu.DescriptorSet) {
	l := layout.(*PipelineLayout)
	cmd := Command{Op: "BindDescriptorSets", Layout: l, Offset: first}
	refs := []*object{&l.object}
	c.dev.mu.Lock()
	for _, s := range sets {
		ds := s.(*DescriptorSet)
		cmd.Sets = append(cmd.Sets, ds)
		refs = append(refs, &ds.pool.object)
		refs = append(refs, ds.references()...)
	}
	c.dev.mu.Unlock()
	c.record(cmd, refs...)
}

func (c *CommandList) PushConstants(layout gpu.PipelineLayout, stages gpu.ShaderStage, offset uint32, data []byte) {
	l := layout.(*PipelineLayout)
	c.record(Command{Op: "PushConstants", Layout: l, Stages: stages, Offset: offset, Data: append([]byte(nil), data...)}, &l.object)
}

func (c *CommandList) BindVertexBuffers(first uint32, bufs []gpu.Buffer, offsets []uint64) {
	cmd := Command{Op: "BindVertexBuffers", Offset: first}
	var refs []*object
	for _, b := range bufs {
		fb := b.(*Buffer)
		cmd.Buffers = append(cmd.Buffers, fb)
		refs = append(refs, &fb.object)
	}
	c.record(cmd, refs...)
}

func (c *CommandList) BindIndexBuffer(buf gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	b := buf.(*Buffer)
	c.record(Command{Op: "BindIndexBuffer", Buffers: []*Buffer{b}, Offset: uint32(offset), IndexType: indexType}, &b.object)
}

func (c *CommandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.dev.mu.Lock()
	if !c.inPass {
		c.dev.violate("command list %d: Draw outside a render pass", c.id)
	}
	c.dev.mu.Unlock()
	c.record(Command{Op: "Draw", Counts: [4]uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (c *CommandList) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.dev.mu.Lock()
	if !c.inPass {
		c.dev.violate("command list %d: DrawIndexed outside a render pass", c.id)
	}
	c.dev.mu.Unlock()
	c.record(Command{Op: "DrawIndexed", Counts: [4]uint32{indexCount, instanceCount, firstIndex, firstInstance}, VertexOffset: vertexOffset})
}

func (c *CommandList) PipelineBarrier(src, dst gpu.PipelineStage, barriers []gpu.ImageBarrier) {
	var refs []*object
	for _, b := range barriers {
		if img, ok := b.Image.(*Image); ok {
			refs = append(refs, &img.object)
		}
	}
	c.record(Command{Op: "PipelineBarrier", SrcStage: src, DstStage: dst, Barriers: append([]gpu.ImageBarrier(nil), barriers...)}, refs...)
}

func (c *CommandList) CopyBufferToImage(buf gpu.Buffer, img gpu.Image, layout gpu.Layout, regions []gpu.BufferImageCopy) {
	b, i := buf.(*Buffer), img.(*Image)
	c.record(Command{Op: "CopyBufferToImage", Buffers: []*Buffer{b}, Image: i}, &b.object, &i.object)
}

func (c *CommandList) Destroy() { c.destroy() }
