package loaders

import (
	"github.com/spaghettifunk/prism/engine/systems"
)

// ModelLoader exposes ObjLoader as a resource loader. Data is a
// *systems.SceneData.
type ModelLoader struct {
	Obj ObjLoader
}

var _ systems.SceneLoader = (*ObjLoader)(nil)

func (ml *ModelLoader) Load(path string) (*Resource, error) {
	data, err := ml.Obj.Load(path)
	if err != nil {
		return nil, err
	}
	var size uint64
	for _, n := range data.Scene.Nodes {
		size += uint64(len(n.Vertices))
	}
	return &Resource{
		Name:     resourceName(path),
		FullPath: path,
		Type:     ResourceTypeModel,
		DataSize: size,
		Data:     data,
	}, nil
}

func (ml *ModelLoader) Unload(res *Resource) error {
	res.Data = nil
	return nil
}
