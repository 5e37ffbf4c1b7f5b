package pipeline

import "github.com/spaghettifunk/prism/engine/renderer/gpu"

// VertexBufferBinding identifies a vertex buffer slot of a pipeline.
type VertexBufferBinding struct {
	Binding uint32
	Stride  uint32
}

// AddVertexBuffer declares the next vertex buffer slot. perVertex selects
// per vertex stepping, otherwise the buffer advances per instance.
func (p *Pipeline) AddVertexBuffer(stride uint32, perVertex bool) (VertexBufferBinding, error) {
	if p.built {
		return VertexBufferBinding{}, ErrAlreadyBuilt
	}
	b := gpu.VertexBinding{Binding: uint32(len(p.vertexBindings)), Stride: stride, PerVertex: perVertex}
	p.vertexBindings = append(p.vertexBindings, b)
	return VertexBufferBinding{Binding: b.Binding, Stride: stride}, nil
}

func (p *Pipeline) AddVertexAttribute(binding VertexBufferBinding, location uint32, format gpu.Format, offset uint32) error {
	if p.built {
		return ErrAlreadyBuilt
	}
	p.vertexAttributes = append(p.vertexAttributes, gpu.VertexAttribute{
		Binding:  binding.Binding,
		Location: location,
		Format:   format,
		Offset:   offset,
	})
	return nil
}
