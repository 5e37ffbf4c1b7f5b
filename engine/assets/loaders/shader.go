package loaders

import (
	"os"

	"github.com/spaghettifunk/prism/engine/renderer/shader"
)

// ShaderLoader reads shader source of any language the compiler knows.
type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Name:     resourceName(path),
		FullPath: path,
		Type:     ResourceTypeShader,
		DataSize: uint64(len(data)),
		Data:     shader.SourceFromFile(path, data),
	}, nil
}

func (sl *ShaderLoader) Unload(res *Resource) error {
	res.Data = nil
	return nil
}
