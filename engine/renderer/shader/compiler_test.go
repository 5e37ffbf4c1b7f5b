package shader

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/shader/shadertest"
)

type stubBackend struct {
	inits, shutdowns int
	out              []uint32
	err              error
}

func (s *stubBackend) Init() error { s.inits++; return nil }

func (s *stubBackend) Compile(Source, gpu.ShaderStage) ([]uint32, error) { return s.out, s.err }

func (s *stubBackend) Shutdown() { s.shutdowns++ }

func TestCompilerLifetime(t *testing.T) {
	stub := &stubBackend{out: shadertest.New(gpu.StageFragment).Words()}
	c := NewCompilerWith()
	c.Register(LanguageGLSL, stub)

	src := Source{Name: "a.frag", Language: LanguageGLSL, Code: []byte("void main(){}")}
	if _, err := c.Compile(src, gpu.StageFragment); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Compile before Init:\nhave %v\nwant %v", err, ErrNotInitialized)
	}
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Compile(src, gpu.StageFragment); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	c.Shutdown()
	if stub.inits != 1 || stub.shutdowns != 1 {
		t.Fatalf("backend lifetime:\nhave %d inits %d shutdowns\nwant 1 and 1", stub.inits, stub.shutdowns)
	}
	if _, err := c.Compile(src, gpu.StageFragment); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Compile after Shutdown:\nhave %v\nwant %v", err, ErrNotInitialized)
	}
}

func TestCompilerPassesSPIRVThrough(t *testing.T) {
	c := NewCompilerWith()
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	defer c.Shutdown()

	want := shadertest.New(gpu.StageVertex).Words()
	have, err := c.Compile(SourceFromFile("fullscreen.spv", WordsToBytes(want)), gpu.StageVertex)
	if err != nil {
		t.Fatal(err)
	}
	if len(have) != len(want) || have[0] != want[0] {
		t.Fatalf("SPIR-V was altered")
	}
	if _, err := c.Compile(SourceFromFile("x.wgsl", nil), gpu.StageVertex); !errors.Is(err, ErrNoBackend) {
		t.Fatalf("Compile without backend:\nhave %v\nwant %v", err, ErrNoBackend)
	}
}

func TestCompilerRejectsBackendGarbage(t *testing.T) {
	c := NewCompilerWith()
	c.Register(LanguageWGSL, &stubBackend{out: []uint32{1, 2}})
	_ = c.Init()
	if _, err := c.Compile(Source{Language: LanguageWGSL}, gpu.StageVertex); !errors.Is(err, ErrInvalidSPIRV) {
		t.Fatalf("Compile:\nhave %v\nwant %v", err, ErrInvalidSPIRV)
	}
}

func TestSourceFromFile(t *testing.T) {
	for path, want := range map[string]Language{
		"a.spv":          LanguageSPIRV,
		"b.WGSL":         LanguageWGSL,
		"c.frag":         LanguageGLSL,
		"d.glsl":         LanguageGLSL,
		"shaders/e.vert": LanguageGLSL,
	} {
		if have := SourceFromFile(path, nil).Language; have != want {
			t.Fatalf("SourceFromFile(%q):\nhave %s\nwant %s", path, have, want)
		}
	}
}

func TestNagaVertexShader(t *testing.T) {
	const wgsl = `
@vertex
fn vs_main() -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}
`
	words, err := (&NagaBackend{}).Compile(Source{Name: "inline.wgsl", Language: LanguageWGSL, Code: []byte(wgsl)}, gpu.StageVertex)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	r, err := Reflect(words)
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	if _, ok := r.Entry(gpu.StageVertex); !ok {
		t.Fatalf("no vertex entry point in %+v", r.EntryPoints)
	}
}

func TestGlslcFragmentShader(t *testing.T) {
	if _, err := exec.LookPath("glslc"); err != nil {
		t.Skip("glslc not installed")
	}
	const glsl = `#version 450
layout(location = 0) out vec4 outColor;
layout(push_constant) uniform Params { float intensity; };
void main() { outColor = vec4(intensity); }
`
	g := &GlslcBackend{}
	if err := g.Init(); err != nil {
		t.Fatal(err)
	}
	words, err := g.Compile(Source{Name: "inline.frag", Code: []byte(glsl)}, gpu.StageFragment)
	if err != nil {
		t.Fatal(err)
	}
	r, err := Reflect(words)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.PushBlocks) != 1 || r.PushBlocks[0].Members[0].Name != "intensity" {
		t.Fatalf("push blocks: %+v", r.PushBlocks)
	}
}
