package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
	"github.com/spaghettifunk/prism/engine/renderer/shader/shadertest"
)

func TestShaderStage(t *testing.T) {
	tests := []struct {
		flag, path string
		want       gpu.ShaderStage
	}{
		{"", "blur.frag", gpu.StageFragment},
		{"", "shaders/fullscreen.vert.spv", gpu.StageVertex},
		{"", "Sim.COMP.glsl", gpu.StageCompute},
		{"fragment", "noext", gpu.StageFragment},
		{"vert", "blur.frag", gpu.StageVertex},
	}
	for _, tt := range tests {
		have, err := shaderStage(tt.flag, tt.path)
		if err != nil || have != tt.want {
			t.Fatalf("shaderStage(%q, %q):\nhave %v, %v\nwant %v", tt.flag, tt.path, have, err, tt.want)
		}
	}
	for _, bad := range [][2]string{{"", "shader.glsl"}, {"geometry", "a.frag"}} {
		if _, err := shaderStage(bad[0], bad[1]); !errors.Is(err, ErrUnknownStage) {
			t.Fatalf("shaderStage(%q, %q):\nhave %v\nwant %v", bad[0], bad[1], err, ErrUnknownStage)
		}
	}
}

func TestReflectionTable(t *testing.T) {
	m := shadertest.New(gpu.StageFragment).
		UniformBlock("", "ShaderUniform", 0, 0,
			shadertest.Field{Name: "iResolution", Type: shadertest.Vec3},
			shadertest.Field{Name: "iTime", Type: shadertest.Float},
		).
		Texture("last_frame", 0, 1).
		PushConstants("Params", shadertest.Field{Name: "intensity", Type: shadertest.Float})
	path := filepath.Join(t.TempDir(), "main.frag.spv")
	if err := os.WriteFile(path, m.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	compiler := shader.NewCompilerWith()
	if err := compiler.Init(); err != nil {
		t.Fatal(err)
	}
	defer compiler.Shutdown()
	words, err := compileFile(compiler, path, "")
	if err != nil {
		t.Fatal(err)
	}
	r, err := shader.Reflect(words)
	if err != nil {
		t.Fatal(err)
	}
	table := reflectionTable(r)
	for _, want := range []string{"iTime", "last_frame", "combined_image_sampler", "intensity", "push_constant"} {
		if !strings.Contains(table, want) {
			t.Fatalf("table is missing %q:\n%s", want, table)
		}
	}
}
