package systems

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/command"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
)

// Handle names a texture owned by the TextureSystem.
type Handle struct {
	index int
}

var InvalidHandle = Handle{index: -1}

func (h Handle) Valid() bool { return h.index >= 0 }

var (
	ErrInvalidHandle   = errors.New("invalid texture handle")
	ErrTextureSize     = errors.New("pixel data does not match the texture size")
	ErrTextureFormat   = errors.New("texture format has no texel size")
	ErrNoImageDecoder  = errors.New("texture system has no image decoder")
	ErrTextureShutdown = errors.New("texture system is shut down")
)

// DecodeFunc decodes an image file into tightly packed RGBA pixels.
type DecodeFunc func(path string) (*image.RGBA, error)

type texture struct {
	name  string
	image gpu.Image
}

// TextureSystem uploads sampled textures and owns them until Shutdown.
// Every texture is shader-read-only once AddTexture returns.
type TextureSystem struct {
	device    gpu.Device
	allocator *memory.Allocator
	jobs      *JobSystem
	decode    DecodeFunc

	mu       sync.Mutex
	textures []texture
	byPath   map[string]Handle
	sampler  gpu.Sampler
	closed   bool
}

func NewTextureSystem(device gpu.Device, allocator *memory.Allocator, jobs *JobSystem, decode DecodeFunc) (*TextureSystem, error) {
	// bilinear, repeating, base level only
	sampler, err := device.NewSampler(gpu.SamplerDesc{
		Filter:      gpu.FilterLinear,
		AddressMode: gpu.AddressRepeat,
		MaxLod:      0,
	})
	if err != nil {
		err = fmt.Errorf("create texture sampler: %w", err)
		core.LogError("%s", err)
		return nil, err
	}
	return &TextureSystem{
		device:    device,
		allocator: allocator,
		jobs:      jobs,
		decode:    decode,
		byPath:    map[string]Handle{},
		sampler:   sampler,
	}, nil
}

// AddTexture uploads w×h pixels of format through a staging buffer and
// returns a handle to the resulting image.
func (ts *TextureSystem) AddTexture(name string, pixels []byte, w, h uint32, format gpu.Format) (Handle, error) {
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return InvalidHandle, fmt.Errorf("%s: %s: %w", name, format, ErrTextureFormat)
	}
	size := uint64(w) * uint64(h) * uint64(bpp)
	if size == 0 || uint64(len(pixels)) != size {
		return InvalidHandle, fmt.Errorf("%s: have %d bytes for %dx%d %s: %w", name, len(pixels), w, h, format, ErrTextureSize)
	}

	ts.mu.Lock()
	closed := ts.closed
	ts.mu.Unlock()
	if closed {
		return InvalidHandle, ErrTextureShutdown
	}

	staging, err := ts.allocator.AllocCPU2GPU(size, gpu.BufferUsageTransferSrc)
	if err != nil {
		return InvalidHandle, fmt.Errorf("%s: staging buffer: %w", name, err)
	}
	defer staging.Destroy()
	copy(staging.Mapped(), pixels)

	img, err := ts.allocator.AllocImage2D(gpu.Extent2D{Width: w, Height: h}, 1, format, gpu.ImageUsageTransferDst|gpu.ImageUsageSampled)
	if err != nil {
		return InvalidHandle, fmt.Errorf("%s: %w", name, err)
	}

	err = ts.device.SubmitNow(func(list gpu.CommandList) error {
		rec := command.New(list, nil, ts.device)
		rec.ImageTransition(img, gpu.PipelineStageTopOfPipe, gpu.PipelineStageTransfer, gpu.LayoutUndefined, gpu.LayoutTransferDst)
		rec.CopyBufferToImage(staging, 0, img)
		rec.ImageTransition(img, gpu.PipelineStageTransfer, gpu.PipelineStageFragmentShader, gpu.LayoutTransferDst, gpu.LayoutShaderReadOnly)
		return nil
	})
	if err != nil {
		img.Destroy()
		err = fmt.Errorf("%s: upload: %w", name, err)
		core.LogError("%s", err)
		return InvalidHandle, err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.textures = append(ts.textures, texture{name: name, image: img})
	core.LogDebug("texture %s uploaded (%dx%d %s)", name, w, h, format)
	return Handle{index: len(ts.textures) - 1}, nil
}

// LoadFile decodes path and uploads it as an sRGB texture. Loading the same
// path twice returns the same handle.
func (ts *TextureSystem) LoadFile(path string) (Handle, error) {
	hs, err := ts.LoadFiles([]string{path})
	if err != nil {
		return InvalidHandle, err
	}
	return hs[0], nil
}

// LoadFiles decodes paths in parallel on the job system and uploads them in
// order.
func (ts *TextureSystem) LoadFiles(paths []string) ([]Handle, error) {
	if ts.decode == nil {
		return nil, ErrNoImageDecoder
	}
	handles := make([]Handle, len(paths))
	decoded := make([]*image.RGBA, len(paths))

	var pending []int
	ts.mu.Lock()
	for i, p := range paths {
		if h, ok := ts.byPath[filepath.Clean(p)]; ok {
			handles[i] = h
			continue
		}
		pending = append(pending, i)
	}
	ts.mu.Unlock()

	decodeOne := func(k int) error {
		i := pending[k]
		img, err := ts.decode(paths[i])
		if err != nil {
			return fmt.Errorf("decode %s: %w", paths[i], err)
		}
		decoded[i] = img
		return nil
	}
	var err error
	if ts.jobs != nil {
		err = ts.jobs.RunAll("decode texture", len(pending), decodeOne)
	} else {
		for k := range pending {
			if err = decodeOne(k); err != nil {
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}

	for _, i := range pending {
		key := filepath.Clean(paths[i])
		ts.mu.Lock()
		h, ok := ts.byPath[key]
		ts.mu.Unlock()
		if !ok {
			img := decoded[i]
			b := img.Bounds()
			h, err = ts.AddTexture(paths[i], img.Pix, uint32(b.Dx()), uint32(b.Dy()), gpu.FormatR8G8B8A8Srgb)
			if err != nil {
				return nil, err
			}
			ts.mu.Lock()
			ts.byPath[key] = h
			ts.mu.Unlock()
		}
		handles[i] = h
	}
	return handles, nil
}

func (ts *TextureSystem) get(h Handle) (texture, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if h.index < 0 || h.index >= len(ts.textures) || ts.textures[h.index].image == nil {
		return texture{}, fmt.Errorf("texture %d: %w", h.index, ErrInvalidHandle)
	}
	return ts.textures[h.index], nil
}

func (ts *TextureSystem) Image(h Handle) (gpu.Image, error) {
	t, err := ts.get(h)
	if err != nil {
		return nil, err
	}
	return t.image, nil
}

func (ts *TextureSystem) View(h Handle) (gpu.ImageView, error) {
	t, err := ts.get(h)
	if err != nil {
		return nil, err
	}
	return t.image.View(), nil
}

func (ts *TextureSystem) Extent(h Handle) (gpu.Extent2D, error) {
	t, err := ts.get(h)
	if err != nil {
		return gpu.Extent2D{}, err
	}
	return t.image.Extent(), nil
}

// Sampler is shared by every texture of the system.
func (ts *TextureSystem) Sampler() gpu.Sampler { return ts.sampler }

func (ts *TextureSystem) Count() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.textures)
}

// Shutdown destroys every texture. The device must be idle.
func (ts *TextureSystem) Shutdown() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.closed {
		return nil
	}
	ts.closed = true
	for i := range ts.textures {
		if ts.textures[i].image != nil {
			ts.textures[i].image.Destroy()
			ts.textures[i].image = nil
		}
	}
	ts.byPath = map[string]Handle{}
	ts.sampler.Destroy()
	return nil
}
