// Package memory owns GPU memory for the engine: long-lived buffers and
// images, plus the per-frame transient arenas that back uniform blocks and
// dynamic vertex data.
package memory

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

const (
	DefaultBlockSize uint64 = 32 << 20
	// defaultBlocksPerFrame matches four blocks per frame in flight.
	defaultBlocksPerFrame = 4
)

var (
	ErrTransientPoolExhausted = errors.New("transient pool exhausted")
	ErrUnsupportedUsage       = errors.New("usage not supported by the transient pool")
	ErrZeroSize               = errors.New("zero sized allocation")
)

// transientUsage is what every arena block can be bound as.
const transientUsage = gpu.BufferUsageUniform | gpu.BufferUsageVertex | gpu.BufferUsageIndex |
	gpu.BufferUsageStorage | gpu.BufferUsageTransferSrc

type Config struct {
	FramesInFlight int
	// BlockSize is the size of one arena block; an allocation never spans blocks.
	BlockSize uint64
	// BlockCount is the number of blocks each frame slot may use.
	BlockCount int
}

// TransientAllocation is a mapped window into a slot's arena.
type TransientAllocation struct {
	Buffer gpu.Buffer
	Offset uint64
	Size   uint64
	// Data aliases the mapped memory backing [Offset, Offset+Size).
	Data []byte
}

type arena struct {
	blocks []gpu.Buffer
	block  int
	cursor uint64
	used   uint64
}

type Allocator struct {
	device    gpu.Device
	cfg       Config
	alignment uint64
	slots     []arena
	current   int
}

func New(device gpu.Device, cfg Config) (*Allocator, error) {
	if cfg.FramesInFlight < 1 {
		return nil, fmt.Errorf("frames in flight %d: %w", cfg.FramesInFlight, core.ErrInvalidConfig)
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.BlockCount <= 0 {
		cfg.BlockCount = defaultBlocksPerFrame
	}
	alignment := device.Limits().MinUniformBufferOffsetAlignment
	if alignment == 0 {
		alignment = 1
	}
	return &Allocator{
		device:    device,
		cfg:       cfg,
		alignment: alignment,
		slots:     make([]arena, cfg.FramesInFlight),
		// the first NewFrame lands on slot 0
		current: cfg.FramesInFlight - 1,
	}, nil
}

// NewFrame advances to the next slot and rewinds its arena. The caller must
// have waited for the GPU work that last used that slot.
func (a *Allocator) NewFrame() {
	a.current = (a.current + 1) % len(a.slots)
	s := &a.slots[a.current]
	s.block = 0
	s.cursor = 0
	s.used = 0
}

// AllocTransient bump-allocates size bytes in the current slot.
func (a *Allocator) AllocTransient(size uint64, usage gpu.BufferUsage) (TransientAllocation, error) {
	if size == 0 {
		return TransientAllocation{}, ErrZeroSize
	}
	if usage&^transientUsage != 0 {
		return TransientAllocation{}, fmt.Errorf("usage %#x: %w", uint32(usage), ErrUnsupportedUsage)
	}
	if size > a.cfg.BlockSize {
		return TransientAllocation{}, fmt.Errorf("%d bytes exceed the %d byte block: %w", size, a.cfg.BlockSize, ErrTransientPoolExhausted)
	}

	s := &a.slots[a.current]
	block := s.block
	offset := alignUp(s.cursor, a.alignment)
	if block < len(s.blocks) && offset+size > a.cfg.BlockSize {
		block++
		offset = 0
	}
	// A failed rollover keeps the current block, which may still fit
	// smaller requests.
	if block >= a.cfg.BlockCount {
		return TransientAllocation{}, fmt.Errorf("slot %d used %d of %d blocks: %w", a.current, block, a.cfg.BlockCount, ErrTransientPoolExhausted)
	}
	if block == len(s.blocks) {
		buf, err := a.device.NewBuffer(a.cfg.BlockSize, transientUsage, gpu.MemoryCPUToGPU)
		if err != nil {
			core.LogError("failed to create transient block: %s", err)
			return TransientAllocation{}, err
		}
		s.blocks = append(s.blocks, buf)
		core.LogDebug("transient slot %d grew to %d blocks", a.current, len(s.blocks))
	}

	s.block = block
	buf := s.blocks[block]
	s.cursor = offset + size
	s.used += size
	return TransientAllocation{
		Buffer: buf,
		Offset: offset,
		Size:   size,
		Data:   buf.Mapped()[offset : offset+size : offset+size],
	}, nil
}

// Alloc creates a standalone buffer owned by the caller.
func (a *Allocator) Alloc(size uint64, usage gpu.BufferUsage, memory gpu.MemoryUsage) (gpu.Buffer, error) {
	if size == 0 {
		return nil, ErrZeroSize
	}
	return a.device.NewBuffer(size, usage, memory)
}

// AllocCPU2GPU creates a mapped buffer the CPU writes and the GPU reads.
func (a *Allocator) AllocCPU2GPU(size uint64, usage gpu.BufferUsage) (gpu.Buffer, error) {
	return a.Alloc(size, usage, gpu.MemoryCPUToGPU)
}

// AllocGPU2CPU creates a mapped buffer for readbacks.
func (a *Allocator) AllocGPU2CPU(size uint64, usage gpu.BufferUsage) (gpu.Buffer, error) {
	return a.Alloc(size, usage, gpu.MemoryGPUToCPU)
}

// AllocImage2D creates a single layer device-local image.
func (a *Allocator) AllocImage2D(extent gpu.Extent2D, mips uint32, format gpu.Format, usage gpu.ImageUsage) (gpu.Image, error) {
	if mips == 0 {
		mips = 1
	}
	return a.device.NewImage(gpu.ImageDesc{
		Extent:    extent,
		Format:    format,
		MipLevels: mips,
		Layers:    1,
		Usage:     usage,
	})
}

// Slot is the index of the active frame slot.
func (a *Allocator) Slot() int {
	return a.current
}

// Used is the number of bytes handed out in the active slot.
func (a *Allocator) Used() uint64 {
	return a.slots[a.current].used
}

// Capacity is the per-slot byte budget.
func (a *Allocator) Capacity() uint64 {
	return a.cfg.BlockSize * uint64(a.cfg.BlockCount)
}

// BlockSize is the largest single transient allocation.
func (a *Allocator) BlockSize() uint64 {
	return a.cfg.BlockSize
}

func (a *Allocator) Destroy() {
	for i := range a.slots {
		for _, b := range a.slots[i].blocks {
			b.Destroy()
		}
		a.slots[i] = arena{}
	}
}

func alignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) / alignment * alignment
}
