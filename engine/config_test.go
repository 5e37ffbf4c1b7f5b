package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/shadergraph"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[window]
width = 800

[renderer]
frames_in_flight = 3

[graph]
path = "graphs/blur.toml"
memoize = false
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Window.Width != 800 || cfg.Window.Height != 720 {
		t.Fatalf("window:\nhave %dx%d\nwant 800x720", cfg.Window.Width, cfg.Window.Height)
	}
	if cfg.Renderer.FramesInFlight != 3 {
		t.Fatalf("frames in flight:\nhave %d\nwant 3", cfg.Renderer.FramesInFlight)
	}
	if want := filepath.Join(filepath.Dir(path), "graphs/blur.toml"); cfg.Graph.Path != want {
		t.Fatalf("graph path:\nhave %s\nwant %s", cfg.Graph.Path, want)
	}
	if cfg.graphOptions().Memoize != shadergraph.MemoizeOff {
		t.Fatalf("memoize not turned off")
	}
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"one frame in flight", "[renderer]\nframes_in_flight = 1\n"},
		{"four frames in flight", "[renderer]\nframes_in_flight = 4\n"},
		{"bad log level", "log_level = \"loud\"\n"},
		{"zero width", "[window]\nwidth = 0\n"},
		{"zero sets", "[renderer.descriptor_pool]\nmax_sets = 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if !errors.Is(err, core.ErrInvalidConfig) {
				t.Fatalf("error:\nhave %v\nwant %v", err, core.ErrInvalidConfig)
			}
		})
	}
}

func TestLoadConfigUnknownKey(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "colour = \"red\"\n")); err == nil {
		t.Fatalf("unknown key accepted")
	}
}

func TestDescriptorPoolSkipsEmptySizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Renderer.DescriptorPool.SampledImages = 0
	desc := cfg.descriptorPool()
	if _, ok := desc.Sizes[gpu.DescriptorSampledImage]; ok {
		t.Fatalf("zero sized kind kept")
	}
	if have := desc.Sizes[gpu.DescriptorCombinedImageSampler]; have != 4096 {
		t.Fatalf("combined image samplers:\nhave %d\nwant 4096", have)
	}
}
