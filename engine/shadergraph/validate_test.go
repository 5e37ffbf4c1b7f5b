package shadergraph

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	pmath "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

func parse(t *testing.T, name, text string) *Description {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	desc, err := ReadDescription(path)
	if err != nil {
		t.Fatal(err)
	}
	return desc
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		graph string
		want  error
	}{
		{"single stage", singleStage, nil},
		{"fan in", fanIn, nil},
		{"feedback", feedback, nil},
		{
			name: "duplicate producer",
			graph: `
[stages.a]
shader = "a.spv"
output = ["framebuffer"]
[stages.b]
shader = "b.spv"
output = ["framebuffer"]
`,
			want: ErrDuplicateProducer,
		},
		{
			name: "no framebuffer",
			graph: `
[stages.a]
shader = "a.spv"
output = ["color"]
`,
			want: ErrNoFramebuffer,
		},
		{
			name: "unknown format",
			graph: `
[images.color]
format = "rgb565"
[stages.a]
shader = "a.spv"
output = ["framebuffer"]
`,
			want: ErrUnknownFormat,
		},
		{
			name: "unknown parameter type",
			graph: `
[stages.a]
shader = "a.spv"
output = ["framebuffer"]
parameters = [{ name = "m", type = "mat4", min = 0, max = 1, default = 0 }]
`,
			want: ErrUnknownParamType,
		},
		{
			name: "vec3 parameter with a scalar",
			graph: `
[stages.a]
shader = "a.spv"
output = ["framebuffer"]
parameters = [{ name = "c", type = "vec3", min = [0, 0, 0], max = [1, 1, 1], default = 1 }]
`,
			want: ErrBadParam,
		},
		{
			name: "outputs of different extents",
			graph: `
[images.small]
resolution = [16, 16]
[stages.a]
shader = "a.spv"
output = ["framebuffer", "small"]
`,
			want: ErrOutputExtent,
		},
		{
			name: "sampling the framebuffer",
			graph: `
[stages.a]
shader = "a.spv"
textures = ["framebuffer"]
output = ["framebuffer"]
`,
			want: ErrUnknownTexture,
		},
		{
			name: "texture nobody writes",
			graph: `
[images.lonely]
resolution = [8, 8]
[stages.a]
shader = "a.spv"
textures = ["lonely"]
output = ["framebuffer"]
`,
			want: ErrNoProducer,
		},
		{
			name: "writing a file image",
			graph: `
[images.logo]
fileName = "logo.png"
[stages.a]
shader = "a.spv"
output = ["framebuffer", "logo"]
`,
			want: ErrFileOutput,
		},
		{
			name: "bad resolution",
			graph: `
[images.color]
resolution = [16]
[stages.a]
shader = "a.spv"
output = ["framebuffer"]
`,
			want: ErrBadResolution,
		},
		{
			name: "missing shader",
			graph: `
[stages.a]
output = ["framebuffer"]
`,
			want: ErrNoShader,
		},
		{
			name: "self feedback is not a cycle",
			graph: `
[stages.a]
shader = "a.spv"
textures = ["previous_framebuffer_copy"]
output = ["framebuffer_copy"]
[stages.main]
shader = "main.spv"
textures = ["framebuffer_copy"]
output = ["framebuffer"]
`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := parse(t, "graph.toml", tt.graph)
			err := desc.Validate(window, gpu.FormatB8G8R8A8Unorm)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate:\nhave %v\nwant %v", err, tt.want)
			}
		})
	}
}

func TestPlanDefaults(t *testing.T) {
	desc := parse(t, "graph.toml", `
[images.half]
resolution = [160, 120]
format = "rgba16"
[stages.down]
shader = "down.spv"
output = ["half"]
[stages.up]
shader = "up.spv"
textures = ["half"]
output = ["implicit"]
[stages.main]
shader = "main.spv"
textures = ["implicit"]
output = ["framebuffer"]
`)
	p, err := desc.plan(window, gpu.FormatB8G8R8A8Unorm)
	if err != nil {
		t.Fatal(err)
	}
	half := p.textures["half"]
	if half.extent != (gpu.Extent2D{Width: 160, Height: 120}) || half.format != gpu.FormatR16G16B16A16Unorm {
		t.Fatalf("half:\nhave %v %s\nwant 160x120 %s", half.extent, half.format, gpu.FormatR16G16B16A16Unorm)
	}
	implicit := p.textures["implicit"]
	if implicit.extent != window || implicit.format != gpu.FormatB8G8R8A8Unorm {
		t.Fatalf("implicit output:\nhave %v %s\nwant window extent and swapchain format", implicit.extent, implicit.format)
	}
	if have := p.dependencies("main"); len(have) != 1 || have[0] != "up" {
		t.Fatalf("main dependencies:\nhave %v\nwant [up]", have)
	}
}

func TestReadDescriptionJSON(t *testing.T) {
	desc := parse(t, "graph.json", `{
  "images": {"logo": {"fileName": "logo.png"}},
  "stages": {
    "main": {
      "shader": "main.spv",
      "textures": ["logo"],
      "output": ["framebuffer"],
      "parameters": [
        {"name": "tint", "type": "vec3", "min": [0, 0, 0], "max": [1, 1, 1], "default": [0.5, 2, -1]}
      ]
    }
  }
}`)
	if err := desc.Validate(window, gpu.FormatB8G8R8A8Unorm); err != nil {
		t.Fatal(err)
	}
	files := desc.Files()
	if len(files) != 2 || files[0] != filepath.Join(desc.Dir, "main.spv") || files[1] != filepath.Join(desc.Dir, "logo.png") {
		t.Fatalf("files:\nhave %v\nwant main.spv and logo.png under %s", files, desc.Dir)
	}
	p, err := ParseParam(desc.Stages["main"].Parameters[0])
	if err != nil {
		t.Fatal(err)
	}
	if want := pmath.NewVec3(0.5, 1, 0); p.Value != want {
		t.Fatalf("clamped default:\nhave %v\nwant %v", p.Value, want)
	}
}

func TestReadDescriptionRejectsExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	if err := os.WriteFile(path, []byte("stages: {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadDescription(path); !errors.Is(err, ErrUnsupportedDescription) {
		t.Fatalf("ReadDescription:\nhave %v\nwant %v", err, ErrUnsupportedDescription)
	}
}
