package frame

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/gpu/gputest"
	"github.com/spaghettifunk/prism/engine/renderer/lifetime"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
)

type harness struct {
	dev       *gputest.Device
	swapchain *gputest.Swapchain
	allocator *memory.Allocator
	tracker   *lifetime.Tracker
	scheduler *Scheduler
}

func newHarness(t *testing.T, frames, images int) *harness {
	t.Helper()
	dev := gputest.NewDevice()
	sc := gputest.NewSwapchain(dev, images, gpu.FormatB8G8R8A8Unorm, gpu.Extent2D{Width: 320, Height: 240})
	alloc, err := memory.New(dev, memory.Config{FramesInFlight: frames, BlockSize: 1 << 16, BlockCount: 2})
	if err != nil {
		t.Fatal(err)
	}
	tracker := lifetime.New(frames)
	s, err := New(dev, sc, alloc, tracker, Options{
		FramesInFlight: frames,
		Depth:          true,
		DescriptorPool: gpu.DescriptorPoolDesc{MaxSets: 16},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		s.Destroy()
		alloc.Destroy()
	})
	return &harness{dev: dev, swapchain: sc, allocator: alloc, tracker: tracker, scheduler: s}
}

// framesLoop stops after n iterations.
func framesLoop(n int) func() bool {
	i := 0
	return func() bool {
		i++
		return i <= n
	}
}

func TestSchedulerRejectsFrameCount(t *testing.T) {
	dev := gputest.NewDevice()
	sc := gputest.NewSwapchain(dev, 2, gpu.FormatB8G8R8A8Unorm, gpu.Extent2D{Width: 4, Height: 4})
	alloc, _ := memory.New(dev, memory.Config{FramesInFlight: 4})
	if _, err := New(dev, sc, alloc, lifetime.New(4), Options{FramesInFlight: 4}); err == nil {
		t.Fatal("four frames in flight accepted")
	}
}

func TestDisposalAfterFence(t *testing.T) {
	for _, frames := range []int{2, 3} {
		for _, images := range []int{2, 3, 4} {
			t.Run(fmt.Sprintf("frames=%d/images=%d", frames, images), func(t *testing.T) {
				h := newHarness(t, frames, images)
				rng := rand.New(rand.NewSource(int64(frames*10 + images)))
				// The GPU finishes a random number of submissions after each
				// submit, often none, so fences are regularly still pending.
				h.dev.Pace = func(pending int) int { return rng.Intn(pending + 1) }

				var created int
				render := func(ctx *Context) error {
					buf, err := ctx.Device.NewBuffer(64, gpu.BufferUsageVertex, gpu.MemoryCPUToGPU)
					if err != nil {
						return err
					}
					created++
					ctx.Recorder.List().BindVertexBuffers(0, []gpu.Buffer{buf}, []uint64{0})

					alloc, err := ctx.Allocator.AllocTransient(128, gpu.BufferUsageUniform)
					if err != nil {
						return err
					}
					if ctx.Allocator.Slot() != ctx.Slot || ctx.Tracker.Slot() != ctx.Slot {
						return fmt.Errorf("slot mismatch: scheduler %d allocator %d tracker %d", ctx.Slot, ctx.Allocator.Slot(), ctx.Tracker.Slot())
					}
					if alloc.Offset != 0 {
						return fmt.Errorf("transient cursor not reset: offset %d", alloc.Offset)
					}
					ctx.Tracker.Dispose(buf)
					return nil
				}

				if err := h.scheduler.Run(Loop{Poll: framesLoop(60), Render: render}); err != nil {
					t.Fatal(err)
				}
				if v := h.dev.Violations(); len(v) != 0 {
					t.Fatalf("violations:\n%v", v)
				}
				if have := h.dev.Destroyed("buffer"); have != created {
					t.Fatalf("destroyed buffers:\nhave %d\nwant %d", have, created)
				}
				if have := len(h.swapchain.Presents()); have != 60 {
					t.Fatalf("presents:\nhave %d\nwant 60", have)
				}
			})
		}
	}
}

func TestSlotsRoundRobin(t *testing.T) {
	h := newHarness(t, 3, 3)
	var slots []int
	render := func(ctx *Context) error {
		slots = append(slots, ctx.Slot)
		if ctx.DepthView == nil {
			return errors.New("missing depth view")
		}
		return nil
	}
	if err := h.scheduler.Run(Loop{Poll: framesLoop(7), Render: render}); err != nil {
		t.Fatal(err)
	}
	want := []int{0, 1, 2, 0, 1, 2, 0}
	if fmt.Sprint(slots) != fmt.Sprint(want) {
		t.Fatalf("slots:\nhave %v\nwant %v", slots, want)
	}
}

func TestImageFenceWaitedBeforeReuse(t *testing.T) {
	h := newHarness(t, 2, 3)
	// Image 0 comes back while the other slot still renders to it.
	h.swapchain.Order = []uint32{0, 0, 1, 2}
	lastUse := map[uint32]int{}
	render := func(ctx *Context) error {
		subs := h.dev.Submissions()
		if i, ok := lastUse[ctx.ImageIndex]; ok && !subs[i].Done {
			return fmt.Errorf("frame %d renders image %d while submission %d is in flight", ctx.Frame, ctx.ImageIndex, i)
		}
		lastUse[ctx.ImageIndex] = len(subs)
		return nil
	}
	if err := h.scheduler.Run(Loop{Poll: framesLoop(8), Render: render}); err != nil {
		t.Fatal(err)
	}
	if v := h.dev.Violations(); len(v) != 0 {
		t.Fatalf("violations:\n%v", v)
	}
}

func TestAcquireFailures(t *testing.T) {
	h := newHarness(t, 2, 2)
	h.swapchain.AcquireErrors[1] = gpu.ErrTimeout
	h.swapchain.AcquireErrors[3] = gpu.ErrOutOfDate

	frames := 0
	var resized []gpu.Extent2D
	loop := Loop{
		Poll:    framesLoop(6),
		Render:  func(*Context) error { frames++; return nil },
		Extent:  func() gpu.Extent2D { return gpu.Extent2D{Width: 640, Height: 480} },
		Resized: func(e gpu.Extent2D) error { resized = append(resized, e); return nil },
	}
	if err := h.scheduler.Run(loop); err != nil {
		t.Fatal(err)
	}
	if frames != 4 {
		t.Fatalf("rendered frames:\nhave %d\nwant 4", frames)
	}
	if h.swapchain.Recreates() != 1 || len(resized) != 1 || resized[0].Width != 640 {
		t.Fatalf("recreation:\nhave %d recreates, resized %v\nwant one at 640x480", h.swapchain.Recreates(), resized)
	}
	if v := h.dev.Violations(); len(v) != 0 {
		t.Fatalf("violations:\n%v", v)
	}
}

func TestRenderErrorStopsLoop(t *testing.T) {
	h := newHarness(t, 2, 2)
	boom := errors.New("boom")
	cleaned := false
	n := 0
	loop := Loop{
		Render: func(*Context) error {
			n++
			if n == 3 {
				return boom
			}
			return nil
		},
		Cleanup: func() { cleaned = true },
	}
	if err := h.scheduler.Run(loop); !errors.Is(err, boom) {
		t.Fatalf("Run:\nhave %v\nwant %v", err, boom)
	}
	if !cleaned {
		t.Fatal("cleanup not run after a failed frame")
	}
	if have := len(h.dev.Submissions()); have != 2 {
		t.Fatalf("submissions:\nhave %d\nwant 2", have)
	}
}

type slowOverlay struct {
	dev   *gputest.Device
	delay time.Duration

	mu     sync.Mutex
	lists  map[int]gpu.CommandList
	tokens []Token
}

func (o *slowOverlay) Record(tok Token) (gpu.CommandList, error) {
	time.Sleep(o.delay)
	o.mu.Lock()
	defer o.mu.Unlock()
	list, ok := o.lists[tok.Slot]
	if !ok {
		var err error
		if list, err = o.dev.NewCommandList(); err != nil {
			return nil, err
		}
		o.lists[tok.Slot] = list
	}
	if err := list.Reset(); err != nil {
		return nil, err
	}
	if err := list.Begin(); err != nil {
		return nil, err
	}
	if err := list.End(); err != nil {
		return nil, err
	}
	o.tokens = append(o.tokens, tok)
	return list, nil
}

func TestSlowOverlaySubmitsAfterMain(t *testing.T) {
	h := newHarness(t, 2, 3)
	ov := &slowOverlay{dev: h.dev, delay: 5 * time.Millisecond, lists: map[int]gpu.CommandList{}}

	var mains []gpu.CommandList
	render := func(ctx *Context) error {
		mains = append(mains, ctx.Recorder.List())
		return nil
	}
	if err := h.scheduler.Run(Loop{Poll: framesLoop(6), Render: render, Overlay: ov}); err != nil {
		t.Fatal(err)
	}

	subs := h.dev.Submissions()
	if len(subs) != 6 || len(ov.tokens) != 6 {
		t.Fatalf("frames:\nhave %d submissions, %d overlay frames\nwant 6 and 6", len(subs), len(ov.tokens))
	}
	for i, s := range subs {
		if len(s.Lists) != 2 {
			t.Fatalf("submission %d:\nhave %d lists\nwant main and overlay", i, len(s.Lists))
		}
		if gpu.CommandList(s.Lists[0]) != mains[i] {
			t.Fatalf("submission %d does not start with the main list", i)
		}
		tok := ov.tokens[i]
		if tok.Frame != uint64(i) || gpu.CommandList(s.Lists[1]) != ov.lists[tok.Slot] {
			t.Fatalf("submission %d:\nhave overlay token %+v\nwant frame %d", i, tok, i)
		}
	}
	if v := h.dev.Violations(); len(v) != 0 {
		t.Fatalf("violations:\n%v", v)
	}
}

func TestStopFromAnotherGoroutine(t *testing.T) {
	h := newHarness(t, 2, 2)
	frames := 0
	render := func(*Context) error {
		frames++
		if frames == 5 {
			go h.scheduler.Stop()
			// Give the stop a chance to land before the next iteration.
			time.Sleep(10 * time.Millisecond)
		}
		return nil
	}
	if err := h.scheduler.Run(Loop{Render: render}); err != nil {
		t.Fatal(err)
	}
	if frames != 5 {
		t.Fatalf("frames:\nhave %d\nwant 5", frames)
	}
}

func TestResizeRecreatesBeforeNextFrame(t *testing.T) {
	h := newHarness(t, 2, 2)
	frames := 0
	var resized []gpu.Extent2D
	loop := Loop{
		Poll: framesLoop(4),
		Render: func(*Context) error {
			frames++
			if frames == 2 {
				h.scheduler.Resize()
			}
			return nil
		},
		Extent:  func() gpu.Extent2D { return gpu.Extent2D{Width: 800, Height: 600} },
		Resized: func(e gpu.Extent2D) error { resized = append(resized, e); return nil },
	}
	if err := h.scheduler.Run(loop); err != nil {
		t.Fatal(err)
	}
	if frames != 3 {
		t.Fatalf("rendered frames:\nhave %d\nwant 3", frames)
	}
	if h.swapchain.Recreates() != 1 || len(resized) != 1 || resized[0].Height != 600 {
		t.Fatalf("recreation:\nhave %d recreates, resized %v\nwant one at 800x600", h.swapchain.Recreates(), resized)
	}
}
