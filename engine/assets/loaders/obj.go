package loaders

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spaghettifunk/prism/engine/core"
	pmath "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/systems"
)

var ErrBadOBJ = errors.New("malformed OBJ file")

// ObjLoader reads Wavefront OBJ files into a scene: one root node named
// after the file with one child per object, group or material switch.
// Diffuse textures come from the map_Kd entries of the referenced MTL
// libraries.
type ObjLoader struct {
	// IDs assigns node uids; nil uses a private generator.
	IDs *core.IDGenerator
}

// faceVertex is a 0-based position/texcoord/normal triple, -1 when absent.
type faceVertex [3]int

type objNode struct {
	name     string
	material string
	vertices []pmath.Vertex3D
	indices  []uint32
	lookup   map[faceVertex]uint32
	normals  bool
}

type objParser struct {
	path      string
	positions []pmath.Vec3
	texcoords []pmath.Vec2
	normals   []pmath.Vec3
	materials map[string]*Material

	nodes   []*objNode
	current *objNode
	object  string
}

func (l *ObjLoader) Load(path string) (*systems.SceneData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p := &objParser{path: path, materials: map[string]*Material{}, object: resourceName(path)}
	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}
		if err := p.line(strings.Fields(line)); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p.build(l.IDs)
}

func (p *objParser) line(fields []string) error {
	key, args := fields[0], fields[1:]
	switch key {
	case "v":
		v, err := floats(args, 3)
		if err != nil {
			return err
		}
		p.positions = append(p.positions, pmath.NewVec3(v[0], v[1], v[2]))
	case "vt":
		v, err := floats(args, 2)
		if err != nil {
			return err
		}
		// OBJ puts v=0 at the bottom of the image.
		p.texcoords = append(p.texcoords, pmath.NewVec2(v[0], 1-v[1]))
	case "vn":
		v, err := floats(args, 3)
		if err != nil {
			return err
		}
		p.normals = append(p.normals, pmath.NewVec3(v[0], v[1], v[2]).Normalized())
	case "o", "g":
		if len(args) > 0 {
			p.object = strings.Join(args, " ")
		}
		p.current = nil
	case "usemtl":
		if len(args) != 1 {
			return fmt.Errorf("usemtl takes one name: %w", ErrBadOBJ)
		}
		if p.current != nil && len(p.current.indices) > 0 && p.current.material != args[0] {
			p.current = nil
		}
		p.node().material = args[0]
	case "mtllib":
		for _, lib := range args {
			if err := p.library(lib); err != nil {
				return err
			}
		}
	case "f":
		return p.face(args)
	default:
		core.LogDebug("obj %s: ignoring '%s'", p.path, key)
	}
	return nil
}

func (p *objParser) node() *objNode {
	if p.current == nil {
		name := p.object
		for _, n := range p.nodes {
			if n.name == name {
				name = fmt.Sprintf("%s.%d", p.object, len(p.nodes))
				break
			}
		}
		p.current = &objNode{name: name, lookup: map[faceVertex]uint32{}}
		p.nodes = append(p.nodes, p.current)
	}
	return p.current
}

func (p *objParser) library(name string) error {
	if !filepath.IsAbs(name) {
		name = filepath.Join(filepath.Dir(p.path), name)
	}
	mats, err := parseMTLFile(name)
	if err != nil {
		return err
	}
	for k, m := range mats {
		p.materials[k] = m
	}
	return nil
}

// face triangulates a convex polygon as a fan.
func (p *objParser) face(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("face with %d vertices: %w", len(args), ErrBadOBJ)
	}
	n := p.node()
	idx := make([]uint32, len(args))
	for i, a := range args {
		fv, err := p.faceVertex(a)
		if err != nil {
			return err
		}
		vi, ok := n.lookup[fv]
		if !ok {
			vert := pmath.Vertex3D{Position: p.positions[fv[0]]}
			if fv[1] >= 0 {
				vert.Texcoord = p.texcoords[fv[1]]
			}
			if fv[2] >= 0 {
				vert.Normal = p.normals[fv[2]]
				n.normals = true
			}
			vi = uint32(len(n.vertices))
			n.vertices = append(n.vertices, vert)
			n.lookup[fv] = vi
		}
		idx[i] = vi
	}
	for i := 1; i+1 < len(idx); i++ {
		n.indices = append(n.indices, idx[0], idx[i], idx[i+1])
	}
	return nil
}

// faceVertex parses v, v/vt, v//vn or v/vt/vn. Negative indices count back
// from the last element read so far.
func (p *objParser) faceVertex(s string) (faceVertex, error) {
	fv := faceVertex{-1, -1, -1}
	counts := [3]int{len(p.positions), len(p.texcoords), len(p.normals)}
	parts := strings.Split(s, "/")
	if len(parts) > 3 {
		return fv, fmt.Errorf("face vertex %q: %w", s, ErrBadOBJ)
	}
	for i, part := range parts {
		if part == "" {
			if i == 0 {
				return fv, fmt.Errorf("face vertex %q has no position: %w", s, ErrBadOBJ)
			}
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return fv, fmt.Errorf("face vertex %q: %w", s, ErrBadOBJ)
		}
		switch {
		case v > 0:
			v--
		case v < 0:
			v += counts[i]
		}
		if v < 0 || v >= counts[i] {
			return fv, fmt.Errorf("face vertex %q index out of range: %w", s, ErrBadOBJ)
		}
		fv[i] = v
	}
	return fv, nil
}

func (p *objParser) build(ids *core.IDGenerator) (*systems.SceneData, error) {
	b := systems.NewSceneBuilder(ids)
	root := b.AddNode(resourceName(p.path), pmath.NewMat4Identity())
	b.SetRoot(root)

	var images []string
	seen := map[string]bool{}
	for _, n := range p.nodes {
		if len(n.indices) == 0 {
			continue
		}
		if !n.normals {
			pmath.GenerateNormals(n.vertices, n.indices)
		}
		idx := b.AddNode(n.name, pmath.NewMat4Identity())
		if err := b.SetMesh(idx, n.vertices, n.indices); err != nil {
			return nil, err
		}
		b.Link(root, idx)

		if n.material == "" {
			continue
		}
		m, ok := p.materials[n.material]
		if !ok {
			core.LogWarn("obj %s: unknown material '%s'", p.path, n.material)
			continue
		}
		if m.DiffuseMap == "" {
			continue
		}
		if err := b.SetTexture(idx, m.DiffuseMap); err != nil {
			return nil, err
		}
		if !seen[m.DiffuseMap] {
			seen[m.DiffuseMap] = true
			images = append(images, m.DiffuseMap)
		}
	}

	scene, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.path, err)
	}
	return &systems.SceneData{Scene: scene, Images: images}, nil
}

func floats(args []string, n int) ([]float32, error) {
	if len(args) < n {
		return nil, fmt.Errorf("want %d values, have %d: %w", n, len(args), ErrBadOBJ)
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(args[i], 32)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", args[i], ErrBadOBJ)
		}
		out[i] = float32(f)
	}
	return out, nil
}
