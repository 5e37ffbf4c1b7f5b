package systems

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	pmath "github.com/spaghettifunk/prism/engine/math"
)

var (
	ErrEmptyScene      = errors.New("scene has no nodes")
	ErrNodeIndex       = errors.New("node index out of range")
	ErrMultipleParents = errors.New("node has more than one parent")
	ErrSceneCycle      = errors.New("scene hierarchy has a cycle")
	ErrVertexIndex     = errors.New("mesh index refers past its vertices")
)

// Node is one entry of a scene arena. Children are indices into the same
// arena.
type Node struct {
	Name      string
	UID       uint32
	Transform pmath.Mat4
	Vertices  []pmath.Vertex3D
	Indices   []uint32
	Children  []int
	// Texture is the diffuse image file of the node, empty when untextured.
	Texture string

	Min, Max pmath.Vec3

	// Set by MeshSystem.Upload.
	FirstVertex uint32
	FirstIndex  uint32
}

func (n *Node) HasMesh() bool { return len(n.Indices) > 0 }

type Scene struct {
	Nodes []Node
	Root  int
}

// SceneData is what a SceneLoader produces: the scene plus every image file
// it references.
type SceneData struct {
	Scene  *Scene
	Images []string
}

type SceneLoader interface {
	Load(path string) (*SceneData, error)
}

// SceneBuilder builds a Scene in two passes: add every node first, then
// link parents to children. Build validates the result.
type SceneBuilder struct {
	ids   *core.IDGenerator
	nodes []Node
	links [][2]int
	root  int
}

func NewSceneBuilder(ids *core.IDGenerator) *SceneBuilder {
	if ids == nil {
		ids = core.NewIDGenerator()
	}
	return &SceneBuilder{ids: ids}
}

// AddNode appends a node and returns its index.
func (b *SceneBuilder) AddNode(name string, transform pmath.Mat4) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Name: name, Transform: transform})
	b.nodes[idx].UID = b.ids.Acquire(name)
	return idx
}

func (b *SceneBuilder) Len() int { return len(b.nodes) }

func (b *SceneBuilder) SetMesh(node int, vertices []pmath.Vertex3D, indices []uint32) error {
	if node < 0 || node >= len(b.nodes) {
		return fmt.Errorf("set mesh on %d: %w", node, ErrNodeIndex)
	}
	n := &b.nodes[node]
	n.Vertices, n.Indices = vertices, indices
	n.Min, n.Max = pmath.Bounds(vertices)
	return nil
}

func (b *SceneBuilder) SetTexture(node int, path string) error {
	if node < 0 || node >= len(b.nodes) {
		return fmt.Errorf("set texture on %d: %w", node, ErrNodeIndex)
	}
	b.nodes[node].Texture = path
	return nil
}

// Link records child under parent. Indices are checked by Build.
func (b *SceneBuilder) Link(parent, child int) {
	b.links = append(b.links, [2]int{parent, child})
}

func (b *SceneBuilder) SetRoot(node int) { b.root = node }

// Build resolves the links and checks that the hierarchy is a tree hanging
// from the root with in-range mesh indices.
func (b *SceneBuilder) Build() (*Scene, error) {
	if len(b.nodes) == 0 {
		return nil, ErrEmptyScene
	}
	if b.root < 0 || b.root >= len(b.nodes) {
		return nil, fmt.Errorf("root %d: %w", b.root, ErrNodeIndex)
	}

	nodes := make([]Node, len(b.nodes))
	copy(nodes, b.nodes)
	parent := make([]int, len(nodes))
	for i := range parent {
		parent[i] = -1
	}
	for _, l := range b.links {
		p, c := l[0], l[1]
		if p < 0 || p >= len(nodes) || c < 0 || c >= len(nodes) {
			return nil, fmt.Errorf("link %d -> %d: %w", p, c, ErrNodeIndex)
		}
		if parent[c] >= 0 {
			return nil, fmt.Errorf("node %q: %w", nodes[c].Name, ErrMultipleParents)
		}
		if p == c {
			return nil, fmt.Errorf("node %q: %w", nodes[c].Name, ErrSceneCycle)
		}
		parent[c] = p
		nodes[p].Children = append(nodes[p].Children, c)
	}

	for i := range nodes {
		// Walk up; a tree reaches a parentless node within len(nodes) steps.
		for n, steps := i, 0; parent[n] >= 0; n, steps = parent[n], steps+1 {
			if steps > len(nodes) {
				return nil, fmt.Errorf("node %q: %w", nodes[i].Name, ErrSceneCycle)
			}
		}
		for _, idx := range nodes[i].Indices {
			if int(idx) >= len(nodes[i].Vertices) {
				return nil, fmt.Errorf("node %q index %d of %d vertices: %w", nodes[i].Name, idx, len(nodes[i].Vertices), ErrVertexIndex)
			}
		}
	}
	if parent[b.root] >= 0 {
		return nil, fmt.Errorf("root %q has a parent: %w", nodes[b.root].Name, ErrSceneCycle)
	}
	return &Scene{Nodes: nodes, Root: b.root}, nil
}

// ForEach visits the tree depth first from the root with each node's world
// transform, parents before children.
func (s *Scene) ForEach(fn func(n *Node, world pmath.Mat4) error) error {
	return s.visit(s.Root, pmath.NewMat4Identity(), fn)
}

func (s *Scene) visit(idx int, parent pmath.Mat4, fn func(n *Node, world pmath.Mat4) error) error {
	n := &s.Nodes[idx]
	world := n.Transform.Mul(parent)
	if err := fn(n, world); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := s.visit(c, world, fn); err != nil {
			return err
		}
	}
	return nil
}
