package gputest

import (
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type DescriptorPool struct {
	object
	Desc      gpu.DescriptorPoolDesc
	allocated int
	resets    int
}

func (p *DescriptorPool) Allocate(layout gpu.DescriptorLayout, variableCount uint32) (gpu.DescriptorSet, error) {
	d := p.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.Desc.MaxSets > 0 && p.allocated >= int(p.Desc.MaxSets) {
		return nil, gpu.ErrDescriptorPoolExhausted
	}
	p.allocated++
	return &DescriptorSet{
		pool:          p,
		Layout:        layout.(*DescriptorLayout),
		VariableCount: variableCount,
		Writes:        map[[2]uint32]Write{},
	}, nil
}

func (p *DescriptorPool) Reset() error {
	d := p.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	p.allocated = 0
	p.resets++
	return nil
}

// Allocated is the number of live sets.
func (p *DescriptorPool) Allocated() int {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	return p.allocated
}

// Resets counts calls to Reset.
func (p *DescriptorPool) Resets() int {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	return p.resets
}

func (p *DescriptorPool) Destroy() { p.destroy() }

// Write is one descriptor update.
type Write struct {
	Kind    gpu.DescriptorKind
	Buffer  *Buffer
	Offset  uint64
	Size    uint64
	View    *ImageView
	Layout  gpu.Layout
	Sampler *Sampler
}

type DescriptorSet struct {
	pool          *DescriptorPool
	Layout        *DescriptorLayout
	VariableCount uint32
	// Writes is keyed by binding and array element.
	Writes map[[2]uint32]Write
}

func (s *DescriptorSet) WriteBuffer(binding, element uint32, kind gpu.DescriptorKind, buf gpu.Buffer, offset, size uint64) {
	s.pool.dev.mu.Lock()
	defer s.pool.dev.mu.Unlock()
	s.Writes[[2]uint32{binding, element}] = Write{Kind: kind, Buffer: buf.(*Buffer), Offset: offset, Size: size}
}

func (s *DescriptorSet) WriteImage(binding, element uint32, kind gpu.DescriptorKind, view gpu.ImageView, layout gpu.Layout, sampler gpu.Sampler) {
	s.pool.dev.mu.Lock()
	defer s.pool.dev.mu.Unlock()
	w := Write{Kind: kind, Layout: layout}
	// Standalone sampler bindings carry no view.
	if view != nil {
		w.View = view.(*ImageView)
	}
	if sampler != nil {
		w.Sampler = sampler.(*Sampler)
	}
	s.Writes[[2]uint32{binding, element}] = w
}

// references must be called with the device lock held.
func (s *DescriptorSet) references() []*object {
	var refs []*object
	for _, w := range s.Writes {
		if w.Buffer != nil {
			refs = append(refs, &w.Buffer.object)
		}
		if w.View != nil {
			refs = append(refs, &w.View.object)
		}
		if w.Sampler != nil {
			refs = append(refs, &w.Sampler.object)
		}
	}
	return refs
}
