package systems

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/spaghettifunk/prism/engine/core"
	pmath "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/command"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/lifetime"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
)

var ErrSceneNotUploaded = errors.New("scene not uploaded")

// MeshSystem keeps every mesh of a scene in one vertex and one index
// buffer.
type MeshSystem struct {
	allocator *memory.Allocator
	tracker   *lifetime.Tracker

	scene    *Scene
	vertices gpu.Buffer
	indices  gpu.Buffer
}

func NewMeshSystem(allocator *memory.Allocator, tracker *lifetime.Tracker) *MeshSystem {
	return &MeshSystem{allocator: allocator, tracker: tracker}
}

// VertexLayout declares the Vertex3D layout on p: position, normal and
// texcoord at locations 0, 1 and 2.
func VertexLayout(p *pipeline.Pipeline) (pipeline.VertexBufferBinding, error) {
	vb, err := p.AddVertexBuffer(pmath.Vertex3DSize, true)
	if err != nil {
		return vb, err
	}
	attrs := []struct {
		format gpu.Format
		offset uint32
	}{
		{gpu.FormatR32G32B32Sfloat, 0},
		{gpu.FormatR32G32B32Sfloat, 12},
		{gpu.FormatR32G32Sfloat, 24},
	}
	for loc, a := range attrs {
		if err := p.AddVertexAttribute(vb, uint32(loc), a.format, a.offset); err != nil {
			return vb, err
		}
	}
	return vb, nil
}

// Upload packs the meshes of scene, sets each node's first vertex and first
// index and replaces any previously uploaded scene.
func (ms *MeshSystem) Upload(scene *Scene) error {
	var vertexCount, indexCount uint32
	for i := range scene.Nodes {
		n := &scene.Nodes[i]
		n.FirstVertex = vertexCount
		n.FirstIndex = indexCount
		vertexCount += uint32(len(n.Vertices))
		indexCount += uint32(len(n.Indices))
	}
	if indexCount == 0 {
		return fmt.Errorf("upload scene: %w", ErrEmptyScene)
	}

	vb, err := ms.allocator.AllocCPU2GPU(uint64(vertexCount)*pmath.Vertex3DSize, gpu.BufferUsageVertex)
	if err != nil {
		return fmt.Errorf("vertex buffer: %w", err)
	}
	ib, err := ms.allocator.AllocCPU2GPU(uint64(indexCount)*4, gpu.BufferUsageIndex)
	if err != nil {
		vb.Destroy()
		return fmt.Errorf("index buffer: %w", err)
	}

	vdata, idata := vb.Mapped(), ib.Mapped()
	for i := range scene.Nodes {
		n := &scene.Nodes[i]
		off := int(n.FirstVertex) * pmath.Vertex3DSize
		for _, v := range n.Vertices {
			putVertex(vdata[off:], v)
			off += pmath.Vertex3DSize
		}
		off = int(n.FirstIndex) * 4
		for _, idx := range n.Indices {
			binary.LittleEndian.PutUint32(idata[off:], idx)
			off += 4
		}
	}

	ms.release()
	ms.scene, ms.vertices, ms.indices = scene, vb, ib
	core.LogDebug("uploaded scene: %d nodes, %d vertices, %d indices", len(scene.Nodes), vertexCount, indexCount)
	return nil
}

func putVertex(b []byte, v pmath.Vertex3D) {
	fs := [8]float32{
		v.Position.X, v.Position.Y, v.Position.Z,
		v.Normal.X, v.Normal.Y, v.Normal.Z,
		v.Texcoord.X, v.Texcoord.Y,
	}
	for i, f := range fs {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
}

func (ms *MeshSystem) Scene() *Scene { return ms.scene }

// Draw binds the scene buffers and issues one indexed draw per mesh node.
// Before each draw perNode may push the node's world transform or bind its
// material.
func (ms *MeshSystem) Draw(rec *command.Recorder, vb pipeline.VertexBufferBinding, perNode func(n *Node, world pmath.Mat4) error) error {
	if ms.scene == nil {
		return ErrSceneNotUploaded
	}
	rec.BindVertexBuffer(vb, ms.vertices, 0)
	rec.BindIndexBuffer(ms.indices, 0, gpu.IndexUint32)
	return ms.scene.ForEach(func(n *Node, world pmath.Mat4) error {
		if !n.HasMesh() {
			return nil
		}
		if perNode != nil {
			if err := perNode(n, world); err != nil {
				return err
			}
		}
		rec.DrawIndexed(uint32(len(n.Indices)), n.FirstIndex, int32(n.FirstVertex), 1, 0)
		return nil
	})
}

// release hands the current buffers to the tracker when there is one, since
// in-flight frames may still read them.
func (ms *MeshSystem) release() {
	for _, b := range []gpu.Buffer{ms.vertices, ms.indices} {
		if b == nil {
			continue
		}
		if ms.tracker != nil {
			ms.tracker.Dispose(b)
		} else {
			b.Destroy()
		}
	}
	ms.vertices, ms.indices = nil, nil
}

func (ms *MeshSystem) Shutdown() error {
	ms.release()
	ms.scene = nil
	return nil
}
