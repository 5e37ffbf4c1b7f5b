package shadergraph

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spaghettifunk/prism/engine/core"
	pmath "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/command"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
	"github.com/spaghettifunk/prism/engine/systems"
)

var ErrNoTextureSource = errors.New("graph loads file images but has no texture source")

// TextureSource loads the file images of a graph. *systems.TextureSystem
// implements it.
type TextureSource interface {
	LoadFile(path string) (systems.Handle, error)
	View(h systems.Handle) (gpu.ImageView, error)
	Extent(h systems.Handle) (gpu.Extent2D, error)
	Sampler() gpu.Sampler
}

type Deps struct {
	Device    gpu.Device
	Compiler  *shader.Compiler
	Allocator *memory.Allocator
	// Textures may be nil when the graph has no file images.
	Textures TextureSource

	// ImageCount, Extent and Format describe the swapchain.
	ImageCount int
	Extent     gpu.Extent2D
	Format     gpu.Format
}

// Memoize selects how often a stage renders within one Render call.
type Memoize int

const (
	// MemoizeByStage renders every stage at most once per Render.
	MemoizeByStage Memoize = iota
	// MemoizeOff renders a stage once per consuming edge.
	MemoizeOff
)

type Options struct {
	Memoize Memoize
	// VertexShader replaces the embedded full-screen vertex shader.
	VertexShader shader.Source
}

type texture struct {
	name     string
	internal bool
	extent   gpu.Extent2D
	format   gpu.Format
	// images is set for internal textures, one per swap image.
	images []gpu.Image
	views  []gpu.ImageView
}

type textureBinding struct {
	name     string
	base     string
	previous bool
	binding  uint32
}

type stage struct {
	name       string
	shaderFile string
	params     []Param
	textures   []textureBinding
	outputs    []string
	extent     gpu.Extent2D
	pipeline   *pipeline.Pipeline
	// uniformBinding is the slot of the shared uniform block, -1 if unused.
	uniformBinding int
}

type Graph struct {
	path string
	desc *Description
	deps Deps
	opts Options

	textures  map[string]*texture
	stages    map[string]*stage
	order     []string
	producers map[string]string

	sampler    gpu.Sampler
	ownSampler bool

	// mu guards parameter values, edited by the overlay goroutine.
	mu sync.Mutex

	frame    uint32
	rendered map[string]bool
	uniform  memory.TransientAllocation
}

// Load reads, validates and builds the graph at path. Nothing is left
// allocated when it fails.
func Load(path string, deps Deps, opts Options) (g *Graph, err error) {
	desc, err := ReadDescription(path)
	if err != nil {
		return nil, err
	}
	if deps.ImageCount < 1 {
		deps.ImageCount = 1
	}
	if opts.VertexShader.Code == nil {
		opts.VertexShader = FullscreenVertexShader()
	}
	p, err := desc.plan(deps.Extent, deps.Format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	g = &Graph{
		path:      path,
		desc:      desc,
		deps:      deps,
		opts:      opts,
		textures:  map[string]*texture{},
		stages:    map[string]*stage{},
		order:     p.stages,
		producers: p.producers,
		rendered:  map[string]bool{},
	}
	built := g
	defer func() {
		if err != nil {
			built.Destroy()
			core.LogError("failed to load shader graph %s: %s", path, err)
		}
	}()

	if err := g.createSampler(); err != nil {
		return nil, err
	}
	if err := g.createTextures(p); err != nil {
		return nil, err
	}
	for _, name := range p.stages {
		if err := g.createStage(p, name); err != nil {
			return nil, fmt.Errorf("%s: stage %q: %w", path, name, err)
		}
	}
	core.LogInfo("loaded shader graph %s: %d stages, %d textures", path, len(g.stages), len(g.textures))
	return g, nil
}

func (g *Graph) createSampler() error {
	if g.deps.Textures != nil {
		g.sampler = g.deps.Textures.Sampler()
		return nil
	}
	s, err := g.deps.Device.NewSampler(gpu.SamplerDesc{Filter: gpu.FilterLinear, AddressMode: gpu.AddressRepeat})
	if err != nil {
		return fmt.Errorf("create sampler: %w", err)
	}
	g.sampler, g.ownSampler = s, true
	return nil
}

func (g *Graph) createTextures(p *plan) error {
	n := g.deps.ImageCount
	var internal []gpu.Image
	for name, info := range p.textures {
		t := &texture{name: name, internal: !info.external, extent: info.extent, format: info.format}
		g.textures[name] = t

		if info.external {
			if g.deps.Textures == nil {
				return fmt.Errorf("image %q: %w", name, ErrNoTextureSource)
			}
			h, err := g.deps.Textures.LoadFile(info.file)
			if err != nil {
				return fmt.Errorf("image %q: %w", name, err)
			}
			view, err := g.deps.Textures.View(h)
			if err != nil {
				return fmt.Errorf("image %q: %w", name, err)
			}
			if t.extent, err = g.deps.Textures.Extent(h); err != nil {
				return fmt.Errorf("image %q: %w", name, err)
			}
			// The same view serves every swap image.
			for i := 0; i < n; i++ {
				t.views = append(t.views, view)
			}
			continue
		}

		for i := 0; i < n; i++ {
			img, err := g.deps.Allocator.AllocImage2D(t.extent, 1, t.format, gpu.ImageUsageColorAttachment|gpu.ImageUsageSampled)
			if err != nil {
				return fmt.Errorf("image %q: %w", name, err)
			}
			t.images = append(t.images, img)
			t.views = append(t.views, img.View())
			internal = append(internal, img)
		}
		core.LogDebug("shader graph texture %s: %dx%d %s x%d", name, t.extent.Width, t.extent.Height, t.format, n)
	}
	if len(internal) == 0 {
		return nil
	}

	// Every internal image starts out readable so the first previous_ read
	// is valid.
	return g.deps.Device.SubmitNow(func(list gpu.CommandList) error {
		rec := command.New(list, nil, g.deps.Device)
		for _, img := range internal {
			rec.ImageTransition(img, gpu.PipelineStageTopOfPipe, gpu.PipelineStageFragmentShader, gpu.LayoutUndefined, gpu.LayoutShaderReadOnly)
		}
		return nil
	})
}

func (g *Graph) createStage(p *plan, name string) error {
	desc := g.desc.Stages[name]
	st := &stage{
		name:           name,
		shaderFile:     desc.Shader,
		params:         p.params[name],
		outputs:        desc.Output,
		uniformBinding: pipeline.NotFound,
		pipeline:       pipeline.New(g.deps.Device, g.deps.Compiler),
	}
	g.stages[name] = st

	file := g.desc.Path(desc.Shader)
	code, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	pl := st.pipeline
	if err := pl.AddShaderStage(g.opts.VertexShader, gpu.StageVertex); err != nil {
		return err
	}
	if err := pl.AddShaderStage(shader.SourceFromFile(file, code), gpu.StageFragment); err != nil {
		return err
	}

	st.extent = p.extentOf(desc.Output[0], g.deps.Extent)
	for _, out := range desc.Output {
		if out == Framebuffer {
			if err := pl.AddColorAttachment(g.deps.Format, gpu.LayoutUndefined, gpu.LayoutPresentSrc); err != nil {
				return err
			}
			continue
		}
		if err := pl.AddColorAttachment(g.textures[out].format, gpu.LayoutUndefined, gpu.LayoutShaderReadOnly); err != nil {
			return err
		}
	}
	if err := pl.SetViewport(st.extent.Width, st.extent.Height); err != nil {
		return err
	}
	if err := pl.Build(); err != nil {
		return err
	}

	for _, tex := range desc.Textures {
		b := pl.GetBindingByName(tex)
		if b == pipeline.NotFound || b > maxBinding {
			return fmt.Errorf("texture %q: check the sampler name in %s: %w", tex, desc.Shader, ErrBadBinding)
		}
		base, previous := baseName(tex)
		st.textures = append(st.textures, textureBinding{name: tex, base: base, previous: previous, binding: uint32(b)})
	}
	st.uniformBinding = pl.GetBindingByName(UniformMember)
	for _, prm := range st.params {
		// Uniform block members have offsets too; only push constants count.
		off := pl.GetMemberOffset(prm.Name)
		if off == pipeline.NotFoundOffset || pl.PushStages(off) == gpu.StageNone {
			return fmt.Errorf("parameter %q: %w", prm.Name, ErrUnknownParam)
		}
	}
	return nil
}

// Path is the description file the graph was loaded from.
func (g *Graph) Path() string { return g.path }

// Files lists the description and every file it references.
func (g *Graph) Files() []string {
	return append([]string{g.path}, g.desc.Files()...)
}

func (g *Graph) Stages() []string { return append([]string(nil), g.order...) }

func (g *Graph) Extent() gpu.Extent2D { return g.deps.Extent }

// Param returns a copy of a stage parameter.
func (g *Graph) Param(stageName, name string) (Param, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.stages[stageName]
	if !ok {
		return Param{}, false
	}
	for _, p := range st.params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// SetParam sets a parameter value, clamped to its range. Float parameters
// use v.X.
func (g *Graph) SetParam(stageName, name string, v pmath.Vec3) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.stages[stageName]
	if !ok {
		return fmt.Errorf("stage %q: %w", stageName, ErrUnknownParam)
	}
	for i := range st.params {
		p := &st.params[i]
		if p.Name == name {
			p.Value = pmath.NewVec3(
				pmath.Clamp(v.X, p.Min.X, p.Max.X),
				pmath.Clamp(v.Y, p.Min.Y, p.Max.Y),
				pmath.Clamp(v.Z, p.Min.Z, p.Max.Z),
			)
			return nil
		}
	}
	return fmt.Errorf("stage %q parameter %q: %w", stageName, name, ErrUnknownParam)
}

// copyParams carries the values of matching parameters over from old.
func (g *Graph) copyParams(old *Graph) {
	old.mu.Lock()
	defer old.mu.Unlock()
	g.mu.Lock()
	defer g.mu.Unlock()
	for name, st := range g.stages {
		prev, ok := old.stages[name]
		if !ok {
			continue
		}
		for i := range st.params {
			for _, op := range prev.params {
				if op.Name == st.params[i].Name && op.Kind == st.params[i].Kind {
					st.params[i].Value = op.Value
				}
			}
		}
	}
}

// Destroy releases the pipelines and internal textures. File textures
// belong to the texture source. The GPU must be done with the graph.
func (g *Graph) Destroy() {
	for _, st := range g.stages {
		st.pipeline.Destroy()
	}
	g.stages = map[string]*stage{}
	for _, t := range g.textures {
		for _, img := range t.images {
			img.Destroy()
		}
	}
	g.textures = map[string]*texture{}
	if g.ownSampler && g.sampler != nil {
		g.sampler.Destroy()
	}
	g.sampler = nil
}
