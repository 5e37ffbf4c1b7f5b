package assets

import "github.com/spaghettifunk/prism/engine/assets/loaders"

type Loader interface {
	// Load decodes the file at path; Resource.Data depends on the loader.
	Load(path string) (*loaders.Resource, error)
	Unload(*loaders.Resource) error
}
