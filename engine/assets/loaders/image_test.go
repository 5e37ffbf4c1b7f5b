package loaders

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
	"github.com/spaghettifunk/prism/engine/renderer/shader/shadertest"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestImageLoaderConvertsToRGBA(t *testing.T) {
	// A paletted image is decoded as something other than *image.RGBA.
	src := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{
		color.RGBA{255, 0, 0, 255},
		color.RGBA{0, 0, 255, 255},
	})
	src.SetColorIndex(0, 1, 1)
	src.SetColorIndex(1, 1, 1)
	path := filepath.Join(t.TempDir(), "p.png")
	writePNG(t, path, src)

	tests := []struct {
		flip bool
		top  color.RGBA
	}{
		{false, color.RGBA{255, 0, 0, 255}},
		{true, color.RGBA{0, 0, 255, 255}},
	}
	for _, tt := range tests {
		img, err := (&ImageLoader{FlipY: tt.flip}).Decode(path)
		if err != nil {
			t.Fatal(err)
		}
		if img.Stride != 8 || len(img.Pix) != 16 {
			t.Fatalf("layout:\nhave stride %d, %d bytes\nwant 8, 16", img.Stride, len(img.Pix))
		}
		if have := img.RGBAAt(0, 0); have != tt.top {
			t.Fatalf("flip=%v top left:\nhave %v\nwant %v", tt.flip, have, tt.top)
		}
	}
}

func TestImageLoaderRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (&ImageLoader{}).Load(path); !errors.Is(err, image.ErrFormat) {
		t.Fatalf("Load:\nhave %v\nwant %v", err, image.ErrFormat)
	}
}

func TestBinaryLoaderReadsWords(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "frag.spv")
	code := shadertest.New(gpu.StageFragment).Bytes()
	if err := os.WriteFile(good, code, 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := (&BinaryLoader{}).Load(good)
	if err != nil {
		t.Fatal(err)
	}
	if words := res.Data.([]uint32); len(words) != len(code)/4 || res.Name != "frag" {
		t.Fatalf("resource:\nhave %q with %d words\nwant frag with %d", res.Name, len(words), len(code)/4)
	}

	bad := filepath.Join(dir, "odd.spv")
	if err := os.WriteFile(bad, code[:len(code)-1], 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (&BinaryLoader{}).Load(bad); !errors.Is(err, shader.ErrInvalidSPIRV) {
		t.Fatalf("truncated module:\nhave %v\nwant %v", err, shader.ErrInvalidSPIRV)
	}
}

func TestTypeOf(t *testing.T) {
	tests := map[string]ResourceType{
		"a/b/c.SPV":  ResourceTypeBinary,
		"blur.wgsl":  ResourceTypeShader,
		"noise.frag": ResourceTypeShader,
		"logo.jpeg":  ResourceTypeImage,
		"tex.webp":   ResourceTypeImage,
		"sponza.obj": ResourceTypeModel,
		"sponza.mtl": ResourceTypeMaterial,
		"hud.fnt":    ResourceTypeBitmapFont,
		"graph.toml": ResourceTypeGraph,
		"README":     ResourceTypeNone,
		"notes.txt":  ResourceTypeNone,
	}
	for path, want := range tests {
		if have := TypeOf(path); have != want {
			t.Fatalf("TypeOf(%q):\nhave %s\nwant %s", path, have, want)
		}
	}
}
