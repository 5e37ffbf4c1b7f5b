// Package gputest provides a recording implementation of the gpu interfaces.
//
// Submitted work never executes. It completes in submission order when a
// fence covering it is waited, when the device idles, or when Pace says so,
// which lets tests provoke any interleaving of CPU and GPU progress. Objects
// destroyed while a pending submission still references them are reported by
// Violations.
package gputest

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// Submission is one batch handed to Submit or SubmitNow.
type Submission struct {
	Index     int
	Lists     []*CommandList
	Wait      *Semaphore
	Signal    *Semaphore
	Fence     *Fence
	Immediate bool
	Done      bool
}

type Device struct {
	mu          sync.Mutex
	limits      gpu.Limits
	nextID      int
	submissions []*Submission
	violations  []string
	created     map[string]int
	destroyed   map[string]int
	failures    map[string]error

	// Pace, when set, is called after every Submit with the number of
	// pending submissions and returns how many of the oldest to complete.
	Pace func(pending int) int
}

func NewDevice() *Device {
	return &Device{
		limits: gpu.Limits{
			MinUniformBufferOffsetAlignment: 256,
			MaxPushConstantsSize:            128,
			MaxFramebufferWidth:             16384,
			MaxFramebufferHeight:            16384,
			DescriptorIndexing:              true,
		},
		created:   map[string]int{},
		destroyed: map[string]int{},
		failures:  map[string]error{},
	}
}

// SetLimits overrides the reported device limits.
func (d *Device) SetLimits(l gpu.Limits) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.limits = l
}

// FailNext makes the next call to the named constructor (for example
// "NewPipeline") return err.
func (d *Device) FailNext(call string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[call] = err
}

func (d *Device) fail(call string) error {
	if err, ok := d.failures[call]; ok {
		delete(d.failures, call)
		return err
	}
	return nil
}

func (d *Device) newObject(kind string) object {
	d.nextID++
	d.created[kind]++
	return object{dev: d, id: d.nextID, kind: kind}
}

func (d *Device) violate(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

// Violations lists every misuse observed so far.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Submissions returns every batch in submission order.
func (d *Device) Submissions() []*Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Submission(nil), d.submissions...)
}

// Created reports how many objects of kind were created.
func (d *Device) Created(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[kind]
}

// Destroyed reports how many objects of kind were destroyed.
func (d *Device) Destroyed(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed[kind]
}

// Live is Created minus Destroyed.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[kind] - d.destroyed[kind]
}

// completeThrough marks every submission up to and including s as done.
func (d *Device) completeThrough(s *Submission) {
	for _, p := range d.submissions {
		if p.Done {
			continue
		}
		p.Done = true
		if p.Fence != nil {
			p.Fence.signaled = true
		}
		if p == s {
			return
		}
	}
}

func (d *Device) pending() []*Submission {
	var out []*Submission
	for _, s := range d.submissions {
		if !s.Done {
			out = append(out, s)
		}
	}
	return out
}

func (d *Device) Limits() gpu.Limits {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.limits
}

func (d *Device) NewBuffer(size uint64, usage gpu.BufferUsage, memory gpu.MemoryUsage) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("NewBuffer"); err != nil {
		return nil, err
	}
	b := &Buffer{object: d.newObject("buffer"), size: size, usage: usage, memory: memory}
	if memory.HostVisible() {
		b.data = make([]byte, size)
	}
	return b, nil
}

func (d *Device) NewImage(desc gpu.ImageDesc) (gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("NewImage"); err != nil {
		return nil, err
	}
	img := &Image{object: d.newObject("image"), Desc: desc}
	img.view = &ImageView{object: d.newObject("image_view"), image: img}
	return img, nil
}

func (d *Device) NewSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("NewSampler"); err != nil {
		return nil, err
	}
	return &Sampler{object: d.newObject("sampler"), Desc: desc}, nil
}

func (d *Device) NewShaderModule(code []uint32) (gpu.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("NewShaderModule"); err != nil {
		return nil, err
	}
	return &ShaderModule{object: d.newObject("shader_module"), Code: append([]uint32(nil), code...)}, nil
}

func (d *Device) NewDescriptorLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("NewDescriptorLayout"); err != nil {
		return nil, err
	}
	return &DescriptorLayout{object: d.newObject("descriptor_layout"), bindings: append([]gpu.DescriptorBinding(nil), bindings...)}, nil
}

func (d *Device) NewPipelineLayout(set gpu.DescriptorLayout, push []gpu.PushConstantRange) (gpu.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("NewPipelineLayout"); err != nil {
		return nil, err
	}
	return &PipelineLayout{object: d.newObject("pipeline_layout"), Set: set, Push: append([]gpu.PushConstantRange(nil), push...)}, nil
}

func (d *Device) NewRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("NewRenderPass"); err != nil {
		return nil, err
	}
	return &RenderPass{object: d.newObject("render_pass"), desc: desc}, nil
}

func (d *Device) NewFramebuffer(pass gpu.RenderPass, views []gpu.ImageView, extent gpu.Extent2D) (gpu.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("NewFramebuffer"); err != nil {
		return nil, err
	}
	want := len(pass.Desc().Colors)
	if pass.Desc().Depth != nil {
		want++
	}
	if len(views) != want {
		d.violate("framebuffer with %d views for a render pass with %d attachments", len(views), want)
	}
	return &Framebuffer{object: d.newObject("framebuffer"), Pass: pass, Views: append([]gpu.ImageView(nil), views...), extent: extent}, nil
}

func (d *Device) NewPipeline(desc gpu.PipelineDesc) (gpu.PipelineState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("NewPipeline"); err != nil {
		return nil, err
	}
	return &PipelineState{object: d.newObject("pipeline"), Desc: desc}, nil
}

func (d *Device) NewDescriptorPool(desc gpu.DescriptorPoolDesc) (gpu.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("NewDescriptorPool"); err != nil {
		return nil, err
	}
	return &DescriptorPool{object: d.newObject("descriptor_pool"), Desc: desc}, nil
}

func (d *Device) NewCommandList() (gpu.CommandList, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("NewCommandList"); err != nil {
		return nil, err
	}
	return &CommandList{object: d.newObject("command_list")}, nil
}

func (d *Device) NewFence(signaled bool) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("NewFence"); err != nil {
		return nil, err
	}
	return &Fence{object: d.newObject("fence"), signaled: signaled}, nil
}

func (d *Device) NewSemaphore() (gpu.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("NewSemaphore"); err != nil {
		return nil, err
	}
	return &Semaphore{object: d.newObject("semaphore")}, nil
}

func (d *Device) Submit(lists []gpu.CommandList, wait gpu.Semaphore, waitStage gpu.PipelineStage, signal gpu.Semaphore, fence gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("Submit"); err != nil {
		return err
	}

	s := &Submission{Index: len(d.submissions)}
	for _, l := range lists {
		cl := l.(*CommandList)
		if cl.recording {
			d.violate("submission %d: command list %d is still recording", s.Index, cl.id)
		}
		if cl.destroyed {
			d.violate("submission %d: command list %d was destroyed", s.Index, cl.id)
		}
		cl.pending = s
		for _, o := range cl.refs {
			if o.destroyed {
				d.violate("submission %d references destroyed %s %d", s.Index, o.kind, o.id)
			}
			o.uses = append(o.uses, s)
		}
		s.Lists = append(s.Lists, cl)
	}
	if wait != nil {
		sem := wait.(*Semaphore)
		if !sem.signaled {
			d.violate("submission %d waits on semaphore %d that nothing signals", s.Index, sem.id)
		}
		sem.signaled = false
		s.Wait = sem
	}
	if signal != nil {
		sem := signal.(*Semaphore)
		sem.signaled = true
		s.Signal = sem
	}
	if fence != nil {
		f := fence.(*Fence)
		if f.signaled {
			d.violate("submission %d uses fence %d which is still signaled", s.Index, f.id)
		}
		if f.pending != nil && !f.pending.Done {
			d.violate("submission %d reuses fence %d while it is in flight", s.Index, f.id)
		}
		f.pending = s
		s.Fence = f
	}
	d.submissions = append(d.submissions, s)

	if d.Pace != nil {
		pending := d.pending()
		if n := d.Pace(len(pending)); n > 0 {
			if n > len(pending) {
				n = len(pending)
			}
			d.completeThrough(pending[n-1])
		}
	}
	return nil
}

func (d *Device) SubmitNow(record func(gpu.CommandList) error) error {
	list, err := d.NewCommandList()
	if err != nil {
		return err
	}
	defer list.Destroy()
	if err := list.Begin(); err != nil {
		return err
	}
	if err := record(list); err != nil {
		return err
	}
	if err := list.End(); err != nil {
		return err
	}
	if err := d.Submit([]gpu.CommandList{list}, nil, 0, nil, nil); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.submissions[len(d.submissions)-1]
	s.Immediate = true
	d.completeThrough(s)
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.submissions) > 0 {
		d.completeThrough(d.submissions[len(d.submissions)-1])
	}
	return nil
}

// object is the shared bookkeeping of every fake handle.
type object struct {
	dev       *Device
	id        int
	kind      string
	destroyed bool
	uses      []*Submission
}

func (o *object) ID() int { return o.id }

func (o *object) IsDestroyed() bool {
	o.dev.mu.Lock()
	defer o.dev.mu.Unlock()
	return o.destroyed
}

func (o *object) destroy() {
	d := o.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if o.destroyed {
		d.violate("%s %d destroyed twice", o.kind, o.id)
		return
	}
	for _, s := range o.uses {
		if !s.Done {
			d.violate("%s %d destroyed while submission %d is in flight", o.kind, o.id, s.Index)
		}
	}
	o.destroyed = true
	d.destroyed[o.kind]++
}

type Buffer struct {
	object
	size   uint64
	usage  gpu.BufferUsage
	memory gpu.MemoryUsage
	data   []byte
}

func (b *Buffer) Size() uint64 { return b.size }
func (b *Buffer) Usage() gpu.BufferUsage { return b.usage }
func (b *Buffer) Memory() gpu.MemoryUsage { return b.memory }
func (b *Buffer) Mapped() []byte { return b.data }
func (b *Buffer) Destroy() { b.destroy() }

type Image struct {
	object
	Desc gpu.ImageDesc
	view *ImageView
}

func (i *Image) Extent() gpu.Extent2D { return i.Desc.Extent }
func (i *Image) Format() gpu.Format { return i.Desc.Format }
func (i *Image) MipLevels() uint32 { return i.Desc.MipLevels }
func (i *Image) Layers() uint32 { return i.Desc.Layers }
func (i *Image) View() gpu.ImageView { return i.view }

// Destroy releases the image together with its default view.
func (i *Image) Destroy() {
	if !i.view.IsDestroyed() {
		i.view.destroy()
	}
	i.destroy()
}

type ImageView struct {
	object
	image *Image
}

func (v *ImageView) Image() *Image { return v.image }
func (v *ImageView) Format() gpu.Format { return v.image.Desc.Format }
func (v *ImageView) Destroy() { v.destroy() }

type Sampler struct {
	object
	Desc gpu.SamplerDesc
}

func (s *Sampler) Destroy() { s.destroy() }

type ShaderModule struct {
	object
	Code []uint32
}

func (m *ShaderModule) Destroy() { m.destroy() }

type DescriptorLayout struct {
	object
	bindings []gpu.DescriptorBinding
}

func (l *DescriptorLayout) Bindings() []gpu.DescriptorBinding { return l.bindings }
func (l *DescriptorLayout) Destroy() { l.destroy() }

type PipelineLayout struct {
	object
	Set  gpu.DescriptorLayout
	Push []gpu.PushConstantRange
}

func (l *PipelineLayout) Destroy() { l.destroy() }

type RenderPass struct {
	object
	desc gpu.RenderPassDesc
}

func (p *RenderPass) Desc() gpu.RenderPassDesc { return p.desc }
func (p *RenderPass) Destroy() { p.destroy() }

type Framebuffer struct {
	object
	Pass   gpu.RenderPass
	Views  []gpu.ImageView
	extent gpu.Extent2D
}

func (f *Framebuffer) Extent() gpu.Extent2D { return f.extent }
func (f *Framebuffer) Destroy() { f.destroy() }

type PipelineState struct {
	object
	Desc gpu.PipelineDesc
}

func (p *PipelineState) Destroy() { p.destroy() }

type Semaphore struct {
	object
	signaled bool
}

func (s *Semaphore) Destroy() { s.destroy() }

type Fence struct {
	object
	signaled bool
	pending  *Submission
	waits    int
}

// Wait completes the GPU work up to the fence's submission.
func (f *Fence) Wait(timeout time.Duration) error {
	d := f.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	f.waits++
	if f.signaled {
		return nil
	}
	if f.pending == nil {
		return gpu.ErrTimeout
	}
	d.completeThrough(f.pending)
	return nil
}

func (f *Fence) Reset() error {
	d := f.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if f.pending != nil && !f.pending.Done {
		d.violate("fence %d reset while in flight", f.id)
	}
	f.signaled = false
	return nil
}

func (f *Fence) Signaled() bool {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.signaled
}

// Waits counts calls to Wait.
func (f *Fence) Waits() int {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.waits
}

func (f *Fence) Destroy() { f.destroy() }
