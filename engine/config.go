package engine

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/shadergraph"
)

type WindowConfig struct {
	Title  string `toml:"title"`
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type DescriptorPoolConfig struct {
	MaxSets               uint32 `toml:"max_sets"`
	UniformBuffers        uint32 `toml:"uniform_buffers"`
	StorageBuffers        uint32 `toml:"storage_buffers"`
	CombinedImageSamplers uint32 `toml:"combined_image_samplers"`
	SampledImages         uint32 `toml:"sampled_images"`
}

type RendererConfig struct {
	FramesInFlight int  `toml:"frames_in_flight"`
	Validation     bool `toml:"validation"`
	VSync          bool `toml:"vsync"`
	PreferDiscrete bool `toml:"prefer_discrete"`
	// Depth allocates a depth buffer per swap image.
	Depth               bool                 `toml:"depth"`
	TransientBlockSize  uint64               `toml:"transient_block_size"`
	TransientBlockCount int                  `toml:"transient_block_count"`
	DescriptorPool      DescriptorPoolConfig `toml:"descriptor_pool"`
}

type GraphConfig struct {
	Path      string `toml:"path"`
	Memoize   bool   `toml:"memoize"`
	HotReload bool   `toml:"hot_reload"`
}

type OverlayConfig struct {
	Enabled bool `toml:"enabled"`
	// Font is an optional BMFont descriptor.
	Font  string `toml:"font"`
	Stats bool   `toml:"stats"`
}

// Config is the engine configuration, read from TOML.
type Config struct {
	LogLevel string `toml:"log_level"`
	// Assets is the directory watched for changes.
	Assets   string         `toml:"assets"`
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Graph    GraphConfig    `toml:"graph"`
	Overlay  OverlayConfig  `toml:"overlay"`
	// Workers sizes the decode job pool; zero uses every CPU.
	Workers int `toml:"workers"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Assets:   "assets",
		Window: WindowConfig{
			Title:  "prism",
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			FramesInFlight:      2,
			Validation:          true,
			VSync:               true,
			PreferDiscrete:      true,
			TransientBlockSize:  32 << 20,
			TransientBlockCount: 8,
			DescriptorPool: DescriptorPoolConfig{
				MaxSets:               1024,
				UniformBuffers:        1024,
				StorageBuffers:        256,
				CombinedImageSamplers: 4096,
				SampledImages:         256,
			},
		},
		Graph: GraphConfig{
			Path:      "assets/graphs/default.toml",
			Memoize:   true,
			HotReload: true,
		},
		Overlay: OverlayConfig{
			Enabled: true,
			Stats:   true,
		},
	}
}

// LoadConfig reads path over the defaults. Keys absent from the file keep
// their default value; unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	// Relative paths in the file are relative to the file.
	dir := filepath.Dir(path)
	cfg.Assets = resolve(dir, cfg.Assets)
	cfg.Graph.Path = resolve(dir, cfg.Graph.Path)
	cfg.Overlay.Font = resolve(dir, cfg.Overlay.Font)
	return cfg, cfg.Validate()
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func (c Config) Validate() error {
	if _, err := core.ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level %q: %w", c.LogLevel, core.ErrInvalidConfig)
	}
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return fmt.Errorf("window size %dx%d: %w", c.Window.Width, c.Window.Height, core.ErrInvalidConfig)
	}
	r := c.Renderer
	if r.FramesInFlight < 2 || r.FramesInFlight > 3 {
		return fmt.Errorf("frames_in_flight %d must be 2 or 3: %w", r.FramesInFlight, core.ErrInvalidConfig)
	}
	if r.TransientBlockSize == 0 || r.TransientBlockCount <= 0 {
		return fmt.Errorf("transient blocks %d x %d: %w", r.TransientBlockCount, r.TransientBlockSize, core.ErrInvalidConfig)
	}
	if r.DescriptorPool.MaxSets == 0 {
		return fmt.Errorf("descriptor_pool.max_sets is zero: %w", core.ErrInvalidConfig)
	}
	if c.Graph.Path == "" {
		return fmt.Errorf("graph.path is empty: %w", core.ErrInvalidConfig)
	}
	return nil
}

func (c Config) descriptorPool() gpu.DescriptorPoolDesc {
	p := c.Renderer.DescriptorPool
	sizes := map[gpu.DescriptorKind]uint32{}
	for kind, n := range map[gpu.DescriptorKind]uint32{
		gpu.DescriptorUniformBuffer:        p.UniformBuffers,
		gpu.DescriptorStorageBuffer:        p.StorageBuffers,
		gpu.DescriptorCombinedImageSampler: p.CombinedImageSamplers,
		gpu.DescriptorSampledImage:         p.SampledImages,
	} {
		if n > 0 {
			sizes[kind] = n
		}
	}
	return gpu.DescriptorPoolDesc{MaxSets: p.MaxSets, Sizes: sizes}
}

func (c Config) graphOptions() shadergraph.Options {
	if c.Graph.Memoize {
		return shadergraph.Options{Memoize: shadergraph.MemoizeByStage}
	}
	return shadergraph.Options{Memoize: shadergraph.MemoizeOff}
}
