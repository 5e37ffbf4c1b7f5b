package shadergraph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

var (
	ErrFileOutput    = errors.New("file image cannot be a stage output")
	ErrBadResolution = errors.New("resolution must be [width, height]")
	ErrNoOutput      = errors.New("stage has no output")
)

type textureInfo struct {
	name     string
	external bool
	file     string
	extent   gpu.Extent2D
	format   gpu.Format
}

// plan is a checked description with every default resolved.
type plan struct {
	desc      *Description
	textures  map[string]*textureInfo
	producers map[string]string
	params    map[string][]Param
	stages    []string
}

// Validate checks the description without touching the GPU. window and
// format stand in for the swapchain.
func (d *Description) Validate(window gpu.Extent2D, format gpu.Format) error {
	_, err := d.plan(window, format)
	return err
}

func (d *Description) plan(window gpu.Extent2D, format gpu.Format) (*plan, error) {
	p := &plan{
		desc:      d,
		textures:  map[string]*textureInfo{},
		producers: map[string]string{},
		params:    map[string][]Param{},
		stages:    d.StageNames(),
	}

	for _, name := range d.imageNames() {
		img := d.Images[name]
		if name == Framebuffer || strings.HasPrefix(name, PreviousPrefix) {
			return nil, fmt.Errorf("image %q: reserved name: %w", name, ErrUnknownTexture)
		}
		if img.FileName != "" {
			p.textures[name] = &textureInfo{name: name, external: true, file: d.Path(img.FileName), format: gpu.FormatR8G8B8A8Srgb}
			continue
		}
		info := &textureInfo{name: name, extent: window}
		switch len(img.Resolution) {
		case 0:
		case 2:
			info.extent = gpu.Extent2D{Width: img.Resolution[0], Height: img.Resolution[1]}
		default:
			return nil, fmt.Errorf("image %q: %w", name, ErrBadResolution)
		}
		f, err := ParseFormat(img.Format, format)
		if err != nil {
			return nil, fmt.Errorf("image %q: %w", name, err)
		}
		info.format = f
		p.textures[name] = info
	}

	for _, name := range p.stages {
		st := d.Stages[name]
		if st.Shader == "" {
			return nil, fmt.Errorf("stage %q: %w", name, ErrNoShader)
		}
		if len(st.Output) == 0 {
			return nil, fmt.Errorf("stage %q: %w", name, ErrNoOutput)
		}
		for _, pd := range st.Parameters {
			prm, err := ParseParam(pd)
			if err != nil {
				return nil, fmt.Errorf("stage %q: %w", name, err)
			}
			p.params[name] = append(p.params[name], prm)
		}
		for _, out := range st.Output {
			if prev, ok := p.producers[out]; ok {
				return nil, fmt.Errorf("stage %q texture %q already written by stage %q: %w", name, out, prev, ErrDuplicateProducer)
			}
			p.producers[out] = name
			if out == Framebuffer {
				continue
			}
			if strings.HasPrefix(out, PreviousPrefix) {
				return nil, fmt.Errorf("stage %q texture %q: previous textures are read only: %w", name, out, ErrFileOutput)
			}
			info, ok := p.textures[out]
			if !ok {
				p.textures[out] = &textureInfo{name: out, extent: window, format: format}
				continue
			}
			if info.external {
				return nil, fmt.Errorf("stage %q texture %q: %w", name, out, ErrFileOutput)
			}
		}
	}
	if _, ok := p.producers[Framebuffer]; !ok {
		return nil, ErrNoFramebuffer
	}

	for _, name := range p.stages {
		st := d.Stages[name]
		for _, tex := range st.Textures {
			base, _ := baseName(tex)
			if base == Framebuffer {
				return nil, fmt.Errorf("stage %q texture %q: the framebuffer cannot be sampled: %w", name, tex, ErrUnknownTexture)
			}
			info, ok := p.textures[base]
			if !ok {
				return nil, fmt.Errorf("stage %q texture %q: %w", name, tex, ErrUnknownTexture)
			}
			if _, ok := p.producers[base]; !ok && !info.external {
				return nil, fmt.Errorf("stage %q texture %q: %w", name, tex, ErrNoProducer)
			}
		}

		var extent *gpu.Extent2D
		for _, out := range st.Output {
			e := p.extentOf(out, window)
			if extent != nil && *extent != e {
				return nil, fmt.Errorf("stage %q texture %q is %dx%d, not %dx%d: %w", name, out, e.Width, e.Height, extent.Width, extent.Height, ErrOutputExtent)
			}
			extent = &e
		}
	}

	if err := p.checkCycles(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *plan) extentOf(texture string, window gpu.Extent2D) gpu.Extent2D {
	if texture == Framebuffer {
		return window
	}
	return p.textures[texture].extent
}

// dependencies returns the stages whose outputs name reads in the current
// swap image, in texture order.
func (p *plan) dependencies(stage string) []string {
	var deps []string
	for _, tex := range p.desc.Stages[stage].Textures {
		base, previous := baseName(tex)
		if previous || p.textures[base].external {
			continue
		}
		deps = append(deps, p.producers[base])
	}
	return deps
}

func (p *plan) checkCycles() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := map[string]int{}
	var stack []string

	var visit func(stage string) error
	visit = func(stage string) error {
		state[stage] = visiting
		stack = append(stack, stage)
		for _, dep := range p.dependencies(stage) {
			switch state[dep] {
			case visiting:
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				path := append(append([]string(nil), stack[start:]...), dep)
				return fmt.Errorf("%w: %s", ErrGraphCycle, strings.Join(path, " -> "))
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[stage] = done
		return nil
	}

	for _, stage := range p.stages {
		if state[stage] == unvisited {
			if err := visit(stage); err != nil {
				return err
			}
		}
	}
	return nil
}
