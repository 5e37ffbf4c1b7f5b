package loaders

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	pmath "github.com/spaghettifunk/prism/engine/math"
)

const quadOBJ = `# two materials
mtllib quad.mtl
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 2

o quad
usemtl brick
f 1/1/1 2/2/1 3/3/1 4/4/1

usemtl plain
f -4//1 -2//1 -1//1
`

const quadMTL = `newmtl brick
Kd 0.5 0.25 1
map_Kd -s 1 1 1 textures/brick.png

newmtl plain
Kd 1 1 1
d 0.5
`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, text := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestObjLoaderBuildsScene(t *testing.T) {
	dir := writeFiles(t, map[string]string{"quad.obj": quadOBJ, "quad.mtl": quadMTL})
	data, err := (&ObjLoader{}).Load(filepath.Join(dir, "quad.obj"))
	if err != nil {
		t.Fatal(err)
	}
	s := data.Scene
	root := s.Nodes[s.Root]
	if root.Name != "quad" || len(root.Children) != 2 {
		t.Fatalf("root:\nhave %q with %d children\nwant quad with 2", root.Name, len(root.Children))
	}

	brick := s.Nodes[root.Children[0]]
	if len(brick.Vertices) != 4 || len(brick.Indices) != 6 {
		t.Fatalf("brick mesh:\nhave %d vertices %d indices\nwant 4 and 6", len(brick.Vertices), len(brick.Indices))
	}
	want := []uint32{0, 1, 2, 0, 2, 3}
	for i, idx := range brick.Indices {
		if idx != want[i] {
			t.Fatalf("brick indices:\nhave %v\nwant %v", brick.Indices, want)
		}
	}
	if tc := brick.Vertices[3].Texcoord; tc != pmath.NewVec2(0, 0) {
		t.Fatalf("flipped texcoord:\nhave %v\nwant (0, 0)", tc)
	}
	if n := brick.Vertices[0].Normal; n != pmath.NewVec3(0, 0, 1) {
		t.Fatalf("normal:\nhave %v\nwant normalized (0, 0, 1)", n)
	}
	if tex := filepath.Join(dir, "textures", "brick.png"); brick.Texture != tex {
		t.Fatalf("texture:\nhave %q\nwant %q", brick.Texture, tex)
	}

	plain := s.Nodes[root.Children[1]]
	if plain.Texture != "" || len(plain.Indices) != 3 {
		t.Fatalf("plain:\nhave texture %q and %d indices\nwant none and 3", plain.Texture, len(plain.Indices))
	}
	if plain.Name == brick.Name {
		t.Fatalf("material split reused the node name %q", plain.Name)
	}
	if len(data.Images) != 1 || data.Images[0] != brick.Texture {
		t.Fatalf("images:\nhave %v\nwant [%s]", data.Images, brick.Texture)
	}
}

func TestObjLoaderGeneratesNormals(t *testing.T) {
	dir := writeFiles(t, map[string]string{"tri.obj": "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"})
	data, err := (&ObjLoader{}).Load(filepath.Join(dir, "tri.obj"))
	if err != nil {
		t.Fatal(err)
	}
	n := data.Scene.Nodes[data.Scene.Nodes[data.Scene.Root].Children[0]]
	if z := n.Vertices[0].Normal.Z; z == 0 {
		t.Fatalf("generated normal:\nhave %v\nwant a z facing normal", n.Vertices[0].Normal)
	}
	if n.Min != pmath.NewVec3(0, 0, 0) || n.Max != pmath.NewVec3(1, 1, 0) {
		t.Fatalf("bounds:\nhave %v %v\nwant (0,0,0) (1,1,0)", n.Min, n.Max)
	}
}

func TestObjLoaderRejects(t *testing.T) {
	tests := []struct {
		name string
		obj  string
	}{
		{"index past end", "v 0 0 0\nv 1 0 0\nf 1 2 3\n"},
		{"two vertex face", "v 0 0 0\nv 1 0 0\nf 1 2\n"},
		{"short vertex", "v 0 0\n"},
		{"no position", "v 0 0 0\nf /1 /1 /1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeFiles(t, map[string]string{"bad.obj": tt.obj})
			if _, err := (&ObjLoader{}).Load(filepath.Join(dir, "bad.obj")); !errors.Is(err, ErrBadOBJ) {
				t.Fatalf("Load:\nhave %v\nwant %v", err, ErrBadOBJ)
			}
		})
	}
}

func TestParseMTL(t *testing.T) {
	dir := writeFiles(t, map[string]string{"quad.mtl": quadMTL, "bad.mtl": "Kd 1 1 1\n"})
	mats, err := parseMTLFile(filepath.Join(dir, "quad.mtl"))
	if err != nil {
		t.Fatal(err)
	}
	if have := mats["brick"].DiffuseColour; have != pmath.NewVec4(0.5, 0.25, 1, 1) {
		t.Fatalf("brick Kd:\nhave %v\nwant (0.5, 0.25, 1, 1)", have)
	}
	if have := mats["plain"].DiffuseColour.W; have != 0.5 {
		t.Fatalf("plain d:\nhave %v\nwant 0.5", have)
	}
	if _, err := parseMTLFile(filepath.Join(dir, "bad.mtl")); !errors.Is(err, ErrBadMaterial) {
		t.Fatalf("Kd before newmtl:\nhave %v\nwant %v", err, ErrBadMaterial)
	}
}
