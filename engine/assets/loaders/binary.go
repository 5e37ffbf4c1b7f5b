package loaders

import (
	"fmt"
	"io"
	"os"

	"github.com/spaghettifunk/prism/engine/renderer/shader"
)

// BinaryLoader reads a SPIR-V module into words.
type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string) (*Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	words, err := shader.BytesToWords(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Resource{
		Name:     resourceName(path),
		FullPath: path,
		Type:     ResourceTypeBinary,
		DataSize: uint64(len(buf)),
		Data:     words,
	}, nil
}

func (bl *BinaryLoader) Unload(res *Resource) error {
	res.Data = nil
	return nil
}
