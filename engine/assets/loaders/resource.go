package loaders

import (
	"path/filepath"
	"strings"
)

type ResourceType int

const (
	ResourceTypeNone ResourceType = iota
	// ResourceTypeBinary is a SPIR-V module.
	ResourceTypeBinary
	// ResourceTypeShader is shader source, compiled on load by the caller.
	ResourceTypeShader
	ResourceTypeImage
	ResourceTypeModel
	ResourceTypeMaterial
	ResourceTypeBitmapFont
	// ResourceTypeGraph is a shader graph description.
	ResourceTypeGraph
)

var resourceTypeNames = [...]string{
	ResourceTypeNone:       "none",
	ResourceTypeBinary:     "binary",
	ResourceTypeShader:     "shader",
	ResourceTypeImage:      "image",
	ResourceTypeModel:      "model",
	ResourceTypeMaterial:   "material",
	ResourceTypeBitmapFont: "bitmap_font",
	ResourceTypeGraph:      "graph",
}

func (t ResourceType) String() string {
	if int(t) < len(resourceTypeNames) {
		return resourceTypeNames[t]
	}
	return "unknown"
}

// Resource is what every loader produces. Data holds the decoded value, its
// dynamic type depends on Type.
type Resource struct {
	Name     string
	FullPath string
	Type     ResourceType
	DataSize uint64
	Data     interface{}
}

// TypeOf guesses the resource type from the file extension.
func TypeOf(path string) ResourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".spv":
		return ResourceTypeBinary
	case ".wgsl", ".glsl", ".vert", ".frag":
		return ResourceTypeShader
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return ResourceTypeImage
	case ".obj":
		return ResourceTypeModel
	case ".mtl":
		return ResourceTypeMaterial
	case ".fnt":
		return ResourceTypeBitmapFont
	case ".toml", ".json":
		return ResourceTypeGraph
	default:
		return ResourceTypeNone
	}
}

func resourceName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
