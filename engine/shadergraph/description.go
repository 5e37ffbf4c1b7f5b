// Package shadergraph runs a graph of full-screen fragment passes described
// in a TOML or JSON file. Stages sample named textures and write named
// outputs; "framebuffer" is the swap image and "previous_<name>" reads what
// <name> held one swap image earlier.
package shadergraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

const (
	// Framebuffer is the output name of the swap image.
	Framebuffer = "framebuffer"
	// PreviousPrefix marks a read of the previous swap image's copy.
	PreviousPrefix = "previous_"
	// UniformMember names the member used to find the shared uniform block.
	UniformMember = "iTime"

	maxBinding = 1024
)

var (
	ErrUnsupportedDescription = errors.New("unsupported graph description")
	ErrUnknownFormat          = errors.New("unknown image format")
	ErrUnknownParamType       = errors.New("unknown parameter type")
	ErrBadParam               = errors.New("bad parameter value")
	ErrUnknownTexture         = errors.New("unknown texture")
	ErrNoProducer             = errors.New("texture has no producing stage")
	ErrDuplicateProducer      = errors.New("texture produced by more than one stage")
	ErrNoFramebuffer          = errors.New("no stage outputs the framebuffer")
	ErrGraphCycle             = errors.New("graph has a cycle")
	ErrOutputExtent           = errors.New("stage outputs differ in extent")
	ErrBadBinding             = errors.New("texture has no usable binding")
	ErrUnknownParam           = errors.New("parameter has no push constant member")
	ErrNoShader               = errors.New("stage has no shader")
)

type Description struct {
	Images map[string]ImageDesc `toml:"images" json:"images"`
	Stages map[string]StageDesc `toml:"stages" json:"stages"`

	// Dir is the directory relative file names resolve against.
	Dir string `toml:"-" json:"-"`
}

// ImageDesc is either a file (FileName) or an internal render target with
// an optional resolution and format.
type ImageDesc struct {
	FileName   string   `toml:"fileName" json:"fileName"`
	Resolution []uint32 `toml:"resolution" json:"resolution"`
	Format     string   `toml:"format" json:"format"`
}

type StageDesc struct {
	Shader     string      `toml:"shader" json:"shader"`
	Parameters []ParamDesc `toml:"parameters" json:"parameters"`
	Textures   []string    `toml:"textures" json:"textures"`
	Output     []string    `toml:"output" json:"output"`
}

// ParamDesc values are numbers for float parameters and three element
// arrays for vec3 ones.
type ParamDesc struct {
	Name    string      `toml:"name" json:"name"`
	Type    string      `toml:"type" json:"type"`
	Min     interface{} `toml:"min" json:"min"`
	Max     interface{} `toml:"max" json:"max"`
	Default interface{} `toml:"default" json:"default"`
}

var formats = map[string]gpu.Format{
	"r8":      gpu.FormatR8Unorm,
	"rg8":     gpu.FormatR8G8Unorm,
	"rgb8":    gpu.FormatR8G8B8Unorm,
	"rgba8":   gpu.FormatR8G8B8A8Unorm,
	"r16":     gpu.FormatR16Unorm,
	"rg16":    gpu.FormatR16G16Unorm,
	"rgb16":   gpu.FormatR16G16B16Unorm,
	"rgba16":  gpu.FormatR16G16B16A16Unorm,
	"r32f":    gpu.FormatR32Sfloat,
	"rg32f":   gpu.FormatR32G32Sfloat,
	"rgb32f":  gpu.FormatR32G32B32Sfloat,
	"rgba32f": gpu.FormatR32G32B32A32Sfloat,
}

// ParseFormat maps a format name of the description to a gpu format. The
// empty name means fallback.
func ParseFormat(name string, fallback gpu.Format) (gpu.Format, error) {
	if name == "" {
		return fallback, nil
	}
	f, ok := formats[strings.ToLower(name)]
	if !ok {
		return gpu.FormatUndefined, fmt.Errorf("%q: %w", name, ErrUnknownFormat)
	}
	return f, nil
}

// ReadDescription parses path as TOML or JSON depending on its extension.
func ReadDescription(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var desc Description
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &desc)
	case ".json":
		err = json.Unmarshal(data, &desc)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedDescription)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	desc.Dir = filepath.Dir(path)
	return &desc, nil
}

// Path resolves a file name of the description.
func (d *Description) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(d.Dir, name)
}

// StageNames returns the stage names in a stable order.
func (d *Description) StageNames() []string {
	names := make([]string, 0, len(d.Stages))
	for name := range d.Stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Description) imageNames() []string {
	names := make([]string, 0, len(d.Images))
	for name := range d.Images {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Files lists the description's shader and image files.
func (d *Description) Files() []string {
	var files []string
	for _, name := range d.StageNames() {
		files = append(files, d.Path(d.Stages[name].Shader))
	}
	for _, name := range d.imageNames() {
		if f := d.Images[name].FileName; f != "" {
			files = append(files, d.Path(f))
		}
	}
	return files
}

// baseName strips the previous_ prefix.
func baseName(texture string) (string, bool) {
	if strings.HasPrefix(texture, PreviousPrefix) {
		return strings.TrimPrefix(texture, PreviousPrefix), true
	}
	return texture, false
}
