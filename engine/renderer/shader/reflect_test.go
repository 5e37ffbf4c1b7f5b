package shader

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/shader/shadertest"
)

func frameUniform(m *shadertest.Module) *shadertest.Module {
	return m.UniformBlock("", "ShaderUniform", 0, 0,
		shadertest.Field{Name: "iMouse", Type: shadertest.Vec4},
		shadertest.Field{Name: "iResolution", Type: shadertest.Vec3},
		shadertest.Field{Name: "iTime", Type: shadertest.Float},
		shadertest.Field{Name: "iTimeDelta", Type: shadertest.Float},
		shadertest.Field{Name: "iFrame", Type: shadertest.Int},
	)
}

func TestReflectFragment(t *testing.T) {
	m := shadertest.New(gpu.StageFragment)
	frameUniform(m).
		Texture("iChannel0", 0, 1).
		TextureArray("textures", 0, 2, 0).
		TextureArray("shadows", 0, 3, 4).
		PushConstants("Params",
			shadertest.Field{Name: "intensity", Type: shadertest.Float},
			shadertest.Field{Name: "color", Type: shadertest.Vec3},
		)

	r, err := Reflect(m.Words())
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	if r.Stage != gpu.StageFragment || r.EntryPoint != "main" {
		t.Fatalf("entry point:\nhave %s %q\nwant fragment \"main\"", r.Stage, r.EntryPoint)
	}
	if len(r.Bindings) != 4 {
		t.Fatalf("len(Bindings):\nhave %d\nwant 4", len(r.Bindings))
	}

	ubo := r.Bindings[0]
	if ubo.Kind != gpu.DescriptorUniformBuffer || ubo.Binding != 0 || ubo.Block == nil {
		t.Fatalf("uniform binding: %+v", ubo)
	}
	if ubo.Block.Name != "ShaderUniform" {
		t.Fatalf("block name:\nhave %q\nwant ShaderUniform", ubo.Block.Name)
	}
	wantOffsets := map[string]uint32{"iMouse": 0, "iResolution": 16, "iTime": 28, "iTimeDelta": 32, "iFrame": 36}
	for _, mem := range ubo.Block.Members {
		if want, ok := wantOffsets[mem.Name]; !ok || want != mem.Offset {
			t.Fatalf("member %q offset:\nhave %d\nwant %d", mem.Name, mem.Offset, want)
		}
	}
	if ubo.Block.Size != 40 || ubo.Block.PaddedSize != 48 {
		t.Fatalf("block size:\nhave %d (padded %d)\nwant 40 (padded 48)", ubo.Block.Size, ubo.Block.PaddedSize)
	}

	tex, ok := r.BindingByName("iChannel0")
	if !ok || tex.Kind != gpu.DescriptorCombinedImageSampler || tex.Binding != 1 || tex.Count != 1 || tex.Unbounded {
		t.Fatalf("iChannel0: %+v", tex)
	}
	arr, _ := r.BindingByName("textures")
	if !arr.Unbounded || arr.Binding != 2 {
		t.Fatalf("textures: %+v", arr)
	}
	fixed, _ := r.BindingByName("shadows")
	if fixed.Unbounded || fixed.Count != 4 {
		t.Fatalf("shadows: %+v", fixed)
	}

	if len(r.PushBlocks) != 1 {
		t.Fatalf("len(PushBlocks):\nhave %d\nwant 1", len(r.PushBlocks))
	}
	pb := r.PushBlocks[0]
	if pb.Offset != 0 || pb.RangeSize != 28 {
		t.Fatalf("push range:\nhave offset %d size %d\nwant offset 0 size 28", pb.Offset, pb.RangeSize)
	}
	if pb.Members[1].Name != "color" || pb.Members[1].Offset != 16 {
		t.Fatalf("color member: %+v", pb.Members[1])
	}
}

func TestReflectVertexMatrix(t *testing.T) {
	m := shadertest.New(gpu.StageVertex).Entry("vs_main").
		UniformBlock("camera", "Camera", 1, 0,
			shadertest.Field{Name: "viewProj", Type: shadertest.Mat4},
			shadertest.Field{Name: "eye", Type: shadertest.Vec3},
		)
	r, err := Reflect(m.Words())
	if err != nil {
		t.Fatal(err)
	}
	if name, ok := r.Entry(gpu.StageVertex); !ok || name != "vs_main" {
		t.Fatalf("Entry(vertex):\nhave %q %t\nwant vs_main true", name, ok)
	}
	if _, ok := r.Entry(gpu.StageFragment); ok {
		t.Fatal("Entry(fragment) found in a vertex module")
	}
	b, ok := r.BindingByName("camera")
	if !ok || b.Set != 1 {
		t.Fatalf("camera: %+v", b)
	}
	if b.Block.Members[0].Size != 64 || b.Block.Members[1].Offset != 64 {
		t.Fatalf("matrix layout: %+v", b.Block.Members)
	}
}

func TestReflectStorageBuffer(t *testing.T) {
	m := shadertest.New(gpu.StageCompute).
		StorageBlock("particles", "Particles", 0, 5, shadertest.Field{Name: "count", Type: shadertest.Int})
	r, err := Reflect(m.Words())
	if err != nil {
		t.Fatal(err)
	}
	if b, _ := r.BindingByName("particles"); b.Kind != gpu.DescriptorStorageBuffer {
		t.Fatalf("particles kind:\nhave %s\nwant %s", b.Kind, gpu.DescriptorStorageBuffer)
	}
}

func TestReflectRejectsGarbage(t *testing.T) {
	for name, code := range map[string][]uint32{
		"empty":     nil,
		"bad magic": {1, 2, 3, 4, 5},
		"overrun":   {0x07230203, 0x00010000, 0, 10, 0, 5<<16 | opName},
		"no entry":  {0x07230203, 0x00010000, 0, 10, 0},
	} {
		if _, err := Reflect(code); !errors.Is(err, ErrInvalidSPIRV) {
			t.Fatalf("Reflect(%s):\nhave %v\nwant %v", name, err, ErrInvalidSPIRV)
		}
	}
}

func TestBytesToWords(t *testing.T) {
	m := shadertest.New(gpu.StageFragment)
	b := m.Bytes()
	words, err := BytesToWords(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(WordsToBytes(words)) != string(b) {
		t.Fatal("WordsToBytes does not invert BytesToWords")
	}
	if _, err := BytesToWords(b[:len(b)-1]); !errors.Is(err, ErrInvalidSPIRV) {
		t.Fatalf("odd length:\nhave %v\nwant %v", err, ErrInvalidSPIRV)
	}
}
