// Package frame runs the frame loop: it paces the CPU against the GPU with
// one fence per frame slot, records the main and overlay command lists on
// their own goroutines and submits and presents them in order.
package frame

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/command"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/lifetime"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
)

const (
	DefaultFramesInFlight = 2
	// statsEvery is how often, in frames, the frame time is logged.
	statsEvery = 100
	// waitForever bounds fence waits that must complete.
	waitForever = time.Duration(1<<63 - 1)
)

// RenderFunc records the main command list of a frame.
type RenderFunc func(ctx *Context) error

// Overlay records the second command list of every frame. Record runs on the
// overlay goroutine while the render callback runs on the render goroutine,
// so it only touches state it owns.
type Overlay interface {
	Record(tok Token) (gpu.CommandList, error)
}

// Loop are the client hooks driven by Run.
type Loop struct {
	// Poll runs at the top of every iteration; returning false ends the loop.
	Poll   func() bool
	Render RenderFunc
	// Overlay is optional.
	Overlay Overlay
	// Extent returns the drawable size, used when the swapchain is recreated.
	Extent func() gpu.Extent2D
	// Resized runs after a swapchain recreation with the new extent.
	Resized func(extent gpu.Extent2D) error
	// Cleanup runs once the device is idle, before deferred destruction.
	Cleanup func()
}

type Options struct {
	FramesInFlight int
	// Depth allocates a D32 depth buffer per swap image.
	Depth bool
	// DescriptorPool sizes the pool created for every swap image.
	DescriptorPool gpu.DescriptorPoolDesc
	// AcquireTimeout bounds a single swapchain acquire; zero waits forever.
	AcquireTimeout time.Duration
	Input          *core.Input
	Clock          *core.Clock
}

type slot struct {
	fence          gpu.Fence
	imageAvailable gpu.Semaphore
	renderFinished gpu.Semaphore
	list           gpu.CommandList
	recorder       *command.Recorder
}

// Scheduler owns the per-slot synchronization objects, the per-image
// descriptor pools and depth buffers. It is driven by a single goroutine.
type Scheduler struct {
	device    gpu.Device
	swapchain gpu.Swapchain
	allocator *memory.Allocator
	tracker   *lifetime.Tracker
	opts      Options

	slots          []slot
	imagesInFlight []gpu.Fence
	pools          []gpu.DescriptorPool
	depth          []gpu.Image

	handshake *Handshake
	metrics   *core.Metrics
	clock     *core.Clock

	current int
	frame   uint64
	stop    atomic.Bool
	resize  atomic.Bool
}

func New(device gpu.Device, swapchain gpu.Swapchain, allocator *memory.Allocator, tracker *lifetime.Tracker, opts Options) (*Scheduler, error) {
	if opts.FramesInFlight == 0 {
		opts.FramesInFlight = DefaultFramesInFlight
	}
	if opts.FramesInFlight < 2 || opts.FramesInFlight > 3 {
		return nil, fmt.Errorf("frames in flight %d: %w", opts.FramesInFlight, core.ErrInvalidConfig)
	}
	if opts.AcquireTimeout == 0 {
		opts.AcquireTimeout = waitForever
	}
	if opts.Clock == nil {
		opts.Clock = core.NewClock()
	}

	s := &Scheduler{
		device:    device,
		swapchain: swapchain,
		allocator: allocator,
		tracker:   tracker,
		opts:      opts,
		handshake: NewHandshake(),
		metrics:   core.NewMetrics(),
		clock:     opts.Clock,
	}
	if err := s.createSlots(); err != nil {
		s.Destroy()
		return nil, err
	}
	if err := s.createImageResources(); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) createSlots() error {
	for i := 0; i < s.opts.FramesInFlight; i++ {
		var sl slot
		var err error
		// Signaled so the first wait on every slot returns at once.
		if sl.fence, err = s.device.NewFence(true); err != nil {
			return fmt.Errorf("create fence %d: %w", i, err)
		}
		s.slots = append(s.slots, sl)
		if s.slots[i].imageAvailable, err = s.device.NewSemaphore(); err != nil {
			return fmt.Errorf("create image available semaphore %d: %w", i, err)
		}
		if s.slots[i].renderFinished, err = s.device.NewSemaphore(); err != nil {
			return fmt.Errorf("create render finished semaphore %d: %w", i, err)
		}
		if s.slots[i].list, err = s.device.NewCommandList(); err != nil {
			return fmt.Errorf("create command list %d: %w", i, err)
		}
		s.slots[i].recorder = command.New(s.slots[i].list, s.tracker, s.device)
	}
	return nil
}

func (s *Scheduler) createImageResources() error {
	images := s.swapchain.Images()
	s.imagesInFlight = make([]gpu.Fence, len(images))
	for i := range images {
		pool, err := s.device.NewDescriptorPool(s.opts.DescriptorPool)
		if err != nil {
			return fmt.Errorf("create descriptor pool %d: %w", i, err)
		}
		s.pools = append(s.pools, pool)
	}
	return s.createDepth()
}

func (s *Scheduler) createDepth() error {
	if !s.opts.Depth {
		return nil
	}
	extent := s.swapchain.Extent()
	for i := range s.swapchain.Images() {
		img, err := s.allocator.AllocImage2D(extent, 1, gpu.FormatD32Sfloat, gpu.ImageUsageDepthStencilAttachment)
		if err != nil {
			return fmt.Errorf("create depth buffer %d: %w", i, err)
		}
		s.depth = append(s.depth, img)
	}
	return nil
}

func (s *Scheduler) destroyDepth() {
	for _, img := range s.depth {
		img.Destroy()
	}
	s.depth = nil
}

// Handshake exposes the render/overlay rendezvous.
func (s *Scheduler) Handshake() *Handshake { return s.handshake }

func (s *Scheduler) Metrics() *core.Metrics { return s.metrics }

// Slot is the frame slot the next iteration records into.
func (s *Scheduler) Slot() int { return s.current }

func (s *Scheduler) FramesInFlight() int { return s.opts.FramesInFlight }

// Stop ends the loop at the start of the next iteration. Safe from any
// goroutine.
func (s *Scheduler) Stop() { s.stop.Store(true) }

// Resize asks for the swapchain to be recreated before the next frame, for
// surfaces that do not report themselves out of date.
func (s *Scheduler) Resize() { s.resize.Store(true) }

// Run drives frames until Poll returns false, Stop is called or a frame
// fails. On the way out it joins the overlay goroutine, idles the device,
// runs Cleanup and destroys everything still waiting in the tracker.
func (s *Scheduler) Run(loop Loop) (err error) {
	if loop.Render == nil {
		return errors.New("frame loop without a render callback")
	}

	var overlayDone sync.WaitGroup
	if loop.Overlay != nil {
		overlayDone.Add(1)
		go func() {
			defer overlayDone.Done()
			s.runOverlay(loop.Overlay)
		}()
	}

	defer func() {
		s.handshake.Close()
		overlayDone.Wait()
		if idleErr := s.device.WaitIdle(); idleErr != nil {
			core.LogError("failed to wait for device idle: %s", idleErr)
			if err == nil {
				err = idleErr
			}
		}
		if loop.Cleanup != nil {
			loop.Cleanup()
		}
		s.tracker.Flush()
		core.LogInfo("frame statistics\n%s", s.metrics.Table())
	}()

	s.clock.Start()
	for !s.stop.Load() {
		if loop.Poll != nil && !loop.Poll() {
			break
		}
		if err := s.iterate(loop); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) runOverlay(ov Overlay) {
	for {
		tok, ok := s.handshake.Next()
		if !ok {
			return
		}
		list, err := ov.Record(tok)
		s.handshake.Done(Result{List: list, Err: err})
	}
}

func (s *Scheduler) iterate(loop Loop) error {
	if s.resize.Swap(false) {
		return s.recreate(loop)
	}
	start := time.Now()
	sl := &s.slots[s.current]

	if err := sl.fence.Wait(waitForever); err != nil {
		return fmt.Errorf("wait frame fence %d: %w", s.current, err)
	}

	index, err := s.swapchain.Acquire(sl.imageAvailable, s.opts.AcquireTimeout)
	switch {
	case errors.Is(err, gpu.ErrOutOfDate):
		return s.recreate(loop)
	case err != nil:
		core.LogWarn("failed to acquire swapchain image: %s", err)
		return nil
	}

	// The image may still be in use by a frame from another slot.
	if prev := s.imagesInFlight[index]; prev != nil && prev != sl.fence {
		if err := prev.Wait(waitForever); err != nil {
			return fmt.Errorf("wait image %d fence: %w", index, err)
		}
	}
	s.imagesInFlight[index] = sl.fence

	if err := s.pools[index].Reset(); err != nil {
		return fmt.Errorf("reset descriptor pool %d: %w", index, err)
	}
	s.allocator.NewFrame()
	s.tracker.NewFrame()
	s.clock.Update()

	ctx := s.context(index)
	if loop.Overlay != nil {
		tok := Token{
			Frame:      s.frame,
			Slot:       s.current,
			ImageIndex: index,
			Extent:     ctx.Extent,
			FrameTime:  s.metrics.FrameTime(),
			FPS:        s.metrics.FPS(),
		}
		if err := s.handshake.Begin(tok); err != nil {
			return err
		}
	}

	renderErr := s.record(sl, loop.Render, ctx)

	lists := []gpu.CommandList{sl.list}
	if loop.Overlay != nil {
		res, err := s.handshake.Wait()
		if err != nil {
			return err
		}
		if res.Err != nil && renderErr == nil {
			renderErr = fmt.Errorf("overlay: %w", res.Err)
		}
		if res.List != nil {
			lists = append(lists, res.List)
		}
	}
	if renderErr != nil {
		return renderErr
	}

	if err := sl.fence.Reset(); err != nil {
		return fmt.Errorf("reset frame fence: %w", err)
	}
	if err := s.device.Submit(lists, sl.imageAvailable, gpu.PipelineStageColorAttachmentOutput, sl.renderFinished, sl.fence); err != nil {
		err = fmt.Errorf("submit frame %d: %w", s.frame, err)
		core.LogError("%s", err)
		return err
	}

	err = s.swapchain.Present(index, sl.renderFinished)
	s.current = (s.current + 1) % len(s.slots)
	s.frame++
	s.stats(time.Since(start))

	switch {
	case errors.Is(err, gpu.ErrOutOfDate):
		return s.recreate(loop)
	case err != nil:
		return fmt.Errorf("present image %d: %w", index, err)
	}
	return nil
}

func (s *Scheduler) record(sl *slot, render RenderFunc, ctx *Context) error {
	if err := sl.list.Reset(); err != nil {
		return fmt.Errorf("reset command list: %w", err)
	}
	if err := sl.recorder.Begin(); err != nil {
		return err
	}
	if err := render(ctx); err != nil {
		// Close the list so it can be reset on the next attempt.
		_ = sl.recorder.End()
		return fmt.Errorf("render frame %d: %w", s.frame, err)
	}
	return sl.recorder.End()
}

func (s *Scheduler) context(index uint32) *Context {
	images := s.swapchain.Images()
	ctx := &Context{
		Elapsed:        s.clock.Elapsed(),
		Delta:          s.clock.Delta(),
		Frame:          s.frame,
		Slot:           s.current,
		ImageIndex:     index,
		ImageCount:     len(images),
		Recorder:       s.slots[s.current].recorder,
		DescriptorPool: s.pools[index],
		Image:          images[index],
		ImageView:      images[index].View(),
		Extent:         s.swapchain.Extent(),
		Format:         s.swapchain.Format(),
		Device:         s.device,
		Allocator:      s.allocator,
		Tracker:        s.tracker,
		Input:          s.opts.Input,
	}
	if s.depth != nil {
		ctx.DepthView = s.depth[index].View()
	}
	return ctx
}

func (s *Scheduler) stats(frameTime time.Duration) {
	s.metrics.Update(frameTime)
	if s.frame%statsEvery == 0 {
		core.LogDebug("frame %d: %.1f fps, %s avg frame time", s.frame, s.metrics.FPS(), s.metrics.FrameTime())
	}
}

// recreate rebuilds the swapchain and everything sized by it. The number of
// swap images is expected to stay the same.
func (s *Scheduler) recreate(loop Loop) error {
	if err := s.device.WaitIdle(); err != nil {
		return fmt.Errorf("wait idle before swapchain recreation: %w", err)
	}
	extent := s.swapchain.Extent()
	if loop.Extent != nil {
		extent = loop.Extent()
	}
	if extent.Width == 0 || extent.Height == 0 {
		// Minimized; try again next iteration.
		return nil
	}
	if err := s.swapchain.Recreate(extent); err != nil {
		return fmt.Errorf("recreate swapchain: %w", err)
	}
	for i := range s.imagesInFlight {
		s.imagesInFlight[i] = nil
	}
	s.destroyDepth()
	if err := s.createDepth(); err != nil {
		return err
	}
	core.LogInfo("swapchain recreated at %dx%d", extent.Width, extent.Height)
	if loop.Resized != nil {
		return loop.Resized(s.swapchain.Extent())
	}
	return nil
}

// Destroy releases the scheduler's own objects. The device must be idle.
func (s *Scheduler) Destroy() {
	s.destroyDepth()
	for _, p := range s.pools {
		p.Destroy()
	}
	s.pools = nil
	for _, sl := range s.slots {
		if sl.list != nil {
			sl.list.Destroy()
		}
		if sl.renderFinished != nil {
			sl.renderFinished.Destroy()
		}
		if sl.imageAvailable != nil {
			sl.imageAvailable.Destroy()
		}
		if sl.fence != nil {
			sl.fence.Destroy()
		}
	}
	s.slots = nil
}
