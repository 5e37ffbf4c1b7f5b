package frame

import (
	"time"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/command"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/lifetime"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
)

// Context is everything a render callback may touch for one frame. It is
// only valid for the duration of the callback.
type Context struct {
	Elapsed time.Duration
	Delta   time.Duration
	Frame   uint64

	Slot       int
	ImageIndex uint32
	ImageCount int

	Recorder       *command.Recorder
	DescriptorPool gpu.DescriptorPool
	Image          gpu.Image
	ImageView      gpu.ImageView
	// DepthView is nil unless the scheduler was created with depth buffers.
	DepthView gpu.ImageView
	Extent    gpu.Extent2D
	Format    gpu.Format

	Device    gpu.Device
	Allocator *memory.Allocator
	Tracker   *lifetime.Tracker
	Input     *core.Input
}

// Mouse returns the cursor position in pixels, (0,0) without input.
func (c *Context) Mouse() (float32, float32) {
	if c.Input == nil {
		return 0, 0
	}
	x, y := c.Input.MousePosition()
	return float32(x), float32(y)
}
