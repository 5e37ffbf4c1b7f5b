package loaders

import (
	"errors"
	"fmt"
	"image"
	"os"

	// Registered decoders.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"golang.org/x/image/draw"
)

var ErrEmptyImage = errors.New("image has no pixels")

// ImageLoader decodes PNG, JPEG, BMP, TIFF and WebP files into RGBA pixels.
type ImageLoader struct {
	// FlipY stores the bottom row first.
	FlipY bool
}

// Decode matches systems.DecodeFunc.
func (il *ImageLoader) Decode(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyImage)
	}

	dst, ok := src.(*image.RGBA)
	if !ok || dst.Stride != 4*b.Dx() || b.Min != (image.Point{}) {
		dst = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	}
	if il.FlipY {
		flipRows(dst)
	}
	return dst, nil
}

func flipRows(img *image.RGBA) {
	h, stride := img.Bounds().Dy(), img.Stride
	row := make([]byte, stride)
	for y := 0; y < h/2; y++ {
		top := img.Pix[y*stride : (y+1)*stride]
		bottom := img.Pix[(h-1-y)*stride : (h-y)*stride]
		copy(row, top)
		copy(top, bottom)
		copy(bottom, row)
	}
}

func (il *ImageLoader) Load(path string) (*Resource, error) {
	img, err := il.Decode(path)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Name:     resourceName(path),
		FullPath: path,
		Type:     ResourceTypeImage,
		DataSize: uint64(len(img.Pix)),
		Data:     img,
	}, nil
}

func (il *ImageLoader) Unload(res *Resource) error {
	res.Data = nil
	return nil
}
