package loaders

import (
	"github.com/spaghettifunk/prism/engine/shadergraph"
)

// GraphLoader parses shader graph descriptions. Data is a
// *shadergraph.Description; nothing is validated against a device.
type GraphLoader struct{}

func (gl *GraphLoader) Load(path string) (*Resource, error) {
	desc, err := shadergraph.ReadDescription(path)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Name:     resourceName(path),
		FullPath: path,
		Type:     ResourceTypeGraph,
		DataSize: uint64(len(desc.Stages)),
		Data:     desc,
	}, nil
}

func (gl *GraphLoader) Unload(res *Resource) error {
	res.Data = nil
	return nil
}
