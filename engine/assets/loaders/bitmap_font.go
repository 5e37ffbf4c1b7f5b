package loaders

import (
	"fmt"
	"os"

	"github.com/spaghettifunk/prism/engine/renderer/overlay"
)

// BitmapFontLoader reads AngelCode .fnt descriptors for the overlay. The
// atlas pages must exist next to the descriptor.
type BitmapFontLoader struct{}

func (fl *BitmapFontLoader) Load(path string) (*Resource, error) {
	font, err := overlay.LoadFont(path)
	if err != nil {
		return nil, err
	}
	for _, page := range font.Pages {
		if page == "" {
			continue
		}
		if _, err := os.Stat(page); err != nil {
			return nil, fmt.Errorf("font %s page: %w", path, err)
		}
	}
	return &Resource{
		Name:     font.Face,
		FullPath: path,
		Type:     ResourceTypeBitmapFont,
		DataSize: uint64(len(font.Pages)),
		Data:     font,
	}, nil
}

func (fl *BitmapFontLoader) Unload(res *Resource) error {
	res.Data = nil
	return nil
}
