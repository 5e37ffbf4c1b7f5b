package overlay

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/command"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
)

const DefaultMaxVertices = 1 << 16

type Options struct {
	GUI GUIFunc
	// Font defaults to a glyphless fixed font.
	Font *Font
	// Atlas is the font atlas view. Without one a blank image is bound.
	Atlas gpu.ImageView
	Input *core.Input
	// Stats adds a window with the render side frame statistics.
	Stats bool
	// VertexShader and FragmentShader replace the built-in WGSL shaders.
	VertexShader   shader.Source
	FragmentShader shader.Source
	MaxVertices    int
}

type framebuffer struct {
	view gpu.ImageView
	fb   gpu.Framebuffer
}

// Layer records the overlay command list of every frame. It implements
// frame.Overlay and, apart from Destroy, only runs on the overlay goroutine.
type Layer struct {
	device    gpu.Device
	compiler  *shader.Compiler
	swapchain gpu.Swapchain
	opts      Options

	pipeline *pipeline.Pipeline
	vertex   pipeline.VertexBufferBinding
	extent   gpu.Extent2D
	pool     gpu.DescriptorPool
	set      gpu.DescriptorSet
	sampler  gpu.Sampler
	blank    gpu.Image

	recorders    map[int]*command.Recorder
	vertices     map[int]gpu.Buffer
	framebuffers map[uint32]framebuffer

	draw      *DrawList
	prevMouse core.MouseState
}

var _ frame.Overlay = (*Layer)(nil)

func NewLayer(device gpu.Device, compiler *shader.Compiler, swapchain gpu.Swapchain, opts Options) (*Layer, error) {
	if opts.MaxVertices <= 0 {
		opts.MaxVertices = DefaultMaxVertices
	}
	if opts.VertexShader.Code == nil {
		opts.VertexShader = defaultVertexShader()
	}
	if opts.FragmentShader.Code == nil {
		opts.FragmentShader = defaultFragmentShader()
	}

	l := &Layer{
		device:       device,
		compiler:     compiler,
		swapchain:    swapchain,
		opts:         opts,
		recorders:    map[int]*command.Recorder{},
		vertices:     map[int]gpu.Buffer{},
		framebuffers: map[uint32]framebuffer{},
		draw:         NewDrawList(opts.Font),
	}
	if err := l.init(); err != nil {
		l.Destroy()
		core.LogError("failed to create the overlay: %s", err)
		return nil, err
	}
	return l, nil
}

func (l *Layer) init() error {
	var err error
	l.sampler, err = l.device.NewSampler(gpu.SamplerDesc{Filter: gpu.FilterLinear, AddressMode: gpu.AddressClampToEdge})
	if err != nil {
		return fmt.Errorf("create overlay sampler: %w", err)
	}
	if l.opts.Atlas == nil {
		if err := l.createBlank(); err != nil {
			return err
		}
	}
	l.pool, err = l.device.NewDescriptorPool(gpu.DescriptorPoolDesc{
		MaxSets: 1,
		Sizes: map[gpu.DescriptorKind]uint32{
			gpu.DescriptorCombinedImageSampler: 1,
			gpu.DescriptorSampledImage:         1,
			gpu.DescriptorSampler:              1,
		},
	})
	if err != nil {
		return fmt.Errorf("create overlay descriptor pool: %w", err)
	}
	return l.buildPipeline(l.swapchain.Extent())
}

// createBlank makes the 1x1 stand-in atlas sampled when no font atlas is set.
func (l *Layer) createBlank() error {
	img, err := l.device.NewImage(gpu.ImageDesc{
		Name:      "overlay_blank",
		Extent:    gpu.Extent2D{Width: 1, Height: 1},
		Format:    gpu.FormatR8G8B8A8Unorm,
		MipLevels: 1,
		Layers:    1,
		Usage:     gpu.ImageUsageSampled,
	})
	if err != nil {
		return fmt.Errorf("create blank atlas: %w", err)
	}
	l.blank = img
	return l.device.SubmitNow(func(list gpu.CommandList) error {
		command.New(list, nil, l.device).ImageTransition(img,
			gpu.PipelineStageTopOfPipe, gpu.PipelineStageFragmentShader,
			gpu.LayoutUndefined, gpu.LayoutShaderReadOnly)
		return nil
	})
}

func (l *Layer) atlas() gpu.ImageView {
	if l.opts.Atlas != nil {
		return l.opts.Atlas
	}
	return l.blank.View()
}

// buildPipeline (re)creates the pipeline for extent. The old pipeline and
// framebuffers are destroyed directly: extents only change after a swapchain
// recreation, which idles the device.
func (l *Layer) buildPipeline(extent gpu.Extent2D) error {
	l.destroyFramebuffers()
	if l.pipeline != nil {
		l.pipeline.Destroy()
		l.pipeline = nil
	}

	p := pipeline.New(l.device, l.compiler)
	if err := p.AddShaderStage(l.opts.VertexShader, gpu.StageVertex); err != nil {
		return err
	}
	if err := p.AddShaderStage(l.opts.FragmentShader, gpu.StageFragment); err != nil {
		p.Destroy()
		return err
	}
	vb, err := p.AddVertexBuffer(VertexSize, true)
	if err != nil {
		p.Destroy()
		return err
	}
	attrs := []struct {
		format gpu.Format
		offset uint32
	}{
		{gpu.FormatR32G32Sfloat, 0},
		{gpu.FormatR32G32Sfloat, 8},
		{gpu.FormatR32G32B32A32Sfloat, 16},
	}
	for i, a := range attrs {
		if err := p.AddVertexAttribute(vb, uint32(i), a.format, a.offset); err != nil {
			p.Destroy()
			return err
		}
	}
	if err := p.SetViewport(extent.Width, extent.Height); err != nil {
		p.Destroy()
		return err
	}
	// Drawn over whatever the main list left in the swap image.
	if err := p.AddColorAttachmentOp(l.swapchain.Format(), gpu.LoadOpLoad, gpu.LayoutPresentSrc, gpu.LayoutPresentSrc); err != nil {
		p.Destroy()
		return err
	}
	if err := p.SetBlend(true); err != nil {
		p.Destroy()
		return err
	}
	if err := p.Build(); err != nil {
		p.Destroy()
		return fmt.Errorf("build overlay pipeline: %w", err)
	}

	if err := l.pool.Reset(); err != nil {
		p.Destroy()
		return err
	}
	set, err := p.AllocDescSet(l.pool, 0)
	if err != nil {
		p.Destroy()
		return err
	}
	for _, b := range p.Bindings() {
		switch b.Kind {
		case gpu.DescriptorCombinedImageSampler, gpu.DescriptorSampledImage:
			p.BindImageView(set, l.atlas(), gpu.LayoutShaderReadOnly, l.sampler, b.Binding, 0)
		case gpu.DescriptorSampler:
			p.BindImageView(set, nil, gpu.LayoutUndefined, l.sampler, b.Binding, 0)
		}
	}

	l.pipeline = p
	l.vertex = vb
	l.set = set
	l.extent = extent
	return nil
}

func (l *Layer) recorder(slot int) (*command.Recorder, error) {
	if r, ok := l.recorders[slot]; ok {
		return r, nil
	}
	list, err := l.device.NewCommandList()
	if err != nil {
		return nil, fmt.Errorf("create overlay command list: %w", err)
	}
	// Overlay framebuffers are long lived, so the recorder needs no tracker.
	r := command.New(list, nil, l.device)
	l.recorders[slot] = r
	return r, nil
}

// vertexBuffer is per slot: the slot fence has been waited before the overlay
// is released, so the previous contents are no longer read.
func (l *Layer) vertexBuffer(slot int) (gpu.Buffer, error) {
	if b, ok := l.vertices[slot]; ok {
		return b, nil
	}
	b, err := l.device.NewBuffer(uint64(l.opts.MaxVertices*VertexSize), gpu.BufferUsageVertex, gpu.MemoryCPUToGPU)
	if err != nil {
		return nil, fmt.Errorf("create overlay vertex buffer: %w", err)
	}
	l.vertices[slot] = b
	return b, nil
}

func (l *Layer) framebuffer(index uint32) (gpu.Framebuffer, error) {
	view := l.swapchain.Images()[index].View()
	if f, ok := l.framebuffers[index]; ok {
		if f.view == view {
			return f.fb, nil
		}
		f.fb.Destroy()
	}
	pass, err := l.pipeline.RenderPass()
	if err != nil {
		return nil, err
	}
	fb, err := l.device.NewFramebuffer(pass, []gpu.ImageView{view}, l.extent)
	if err != nil {
		return nil, fmt.Errorf("create overlay framebuffer %d: %w", index, err)
	}
	l.framebuffers[index] = framebuffer{view: view, fb: fb}
	return fb, nil
}

// Record declares the UI for tok and records it into the slot's list.
func (l *Layer) Record(tok frame.Token) (gpu.CommandList, error) {
	if tok.Extent != l.extent {
		if err := l.buildPipeline(tok.Extent); err != nil {
			return nil, err
		}
	}
	rec, err := l.recorder(tok.Slot)
	if err != nil {
		return nil, err
	}
	vb, err := l.vertexBuffer(tok.Slot)
	if err != nil {
		return nil, err
	}
	fb, err := l.framebuffer(tok.ImageIndex)
	if err != nil {
		return nil, err
	}

	var mouse core.MouseState
	if l.opts.Input != nil {
		mouse = l.opts.Input.Mouse()
	}
	l.draw.Reset(tok.Extent, mouse, l.prevMouse)
	l.prevMouse = mouse
	if l.opts.Stats {
		l.draw.Window("Statistics", func() {
			l.draw.Text("Frame %d", tok.Frame)
			l.draw.Text("Frame time %.3fms", float64(tok.FrameTime.Microseconds())/1000)
			l.draw.Text("FPS = %.1f", tok.FPS)
		})
	}
	if l.opts.GUI != nil {
		l.opts.GUI(l.draw)
	}
	count := l.upload(vb, tok.Extent)

	if err := rec.List().Reset(); err != nil {
		return nil, fmt.Errorf("reset overlay command list: %w", err)
	}
	if err := rec.Begin(); err != nil {
		return nil, err
	}
	err = rec.WithRenderPass(l.pipeline, fb, tok.Extent, func() error {
		if count == 0 {
			return nil
		}
		if err := rec.BindPipeline(l.pipeline); err != nil {
			return err
		}
		if err := rec.BindDescSets(l.pipeline, 0, l.set); err != nil {
			return err
		}
		rec.BindVertexBuffer(l.vertex, vb, 0)
		rec.Draw(uint32(count), 0, 1, 0)
		return nil
	})
	if endErr := rec.End(); err == nil {
		err = endErr
	}
	if err != nil {
		return nil, err
	}
	return rec.List(), nil
}

// upload writes the draw list into buf in clip space and returns the number
// of vertices written.
func (l *Layer) upload(buf gpu.Buffer, extent gpu.Extent2D) int {
	vs := l.draw.Vertices()
	if len(vs) > l.opts.MaxVertices {
		core.LogWarn("overlay truncated to %d of %d vertices", l.opts.MaxVertices, len(vs))
		vs = vs[:l.opts.MaxVertices]
	}
	dst := buf.Mapped()
	if dst == nil || extent.Width == 0 || extent.Height == 0 {
		return 0
	}
	w := float32(extent.Width)
	h := float32(extent.Height)
	for i, v := range vs {
		o := i * VertexSize
		floats := [8]float32{
			v.Pos.X/w*2 - 1, v.Pos.Y/h*2 - 1,
			v.UV.X, v.UV.Y,
			v.Color.X, v.Color.Y, v.Color.Z, v.Color.W,
		}
		for j, f := range floats {
			binary.LittleEndian.PutUint32(dst[o+j*4:], math.Float32bits(f))
		}
	}
	return len(vs)
}

func (l *Layer) destroyFramebuffers() {
	for i, f := range l.framebuffers {
		f.fb.Destroy()
		delete(l.framebuffers, i)
	}
}

// Destroy releases everything the layer created. The device must be idle.
func (l *Layer) Destroy() {
	l.destroyFramebuffers()
	if l.pipeline != nil {
		l.pipeline.Destroy()
		l.pipeline = nil
	}
	for slot, r := range l.recorders {
		r.List().Destroy()
		delete(l.recorders, slot)
	}
	for slot, b := range l.vertices {
		b.Destroy()
		delete(l.vertices, slot)
	}
	if l.pool != nil {
		l.pool.Destroy()
		l.pool = nil
	}
	if l.sampler != nil {
		l.sampler.Destroy()
		l.sampler = nil
	}
	if l.blank != nil {
		l.blank.Destroy()
		l.blank = nil
	}
}
