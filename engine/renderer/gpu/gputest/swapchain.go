package gputest

import (
	"sync"
	"time"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// Swapchain hands out images round-robin unless Order is set.
type Swapchain struct {
	dev    *Device
	mu     sync.Mutex
	format gpu.Format
	extent gpu.Extent2D
	images []gpu.Image

	// Order, when set, is the sequence of indices returned by Acquire; it
	// repeats once exhausted.
	Order []uint32
	// AcquireErrors maps the n-th call to Acquire (0 based) to a failure.
	AcquireErrors map[int]error

	acquires  int
	next      uint32
	presents  []uint32
	recreates int
}

func NewSwapchain(dev *Device, count int, format gpu.Format, extent gpu.Extent2D) *Swapchain {
	sc := &Swapchain{dev: dev, format: format, extent: extent, AcquireErrors: map[int]error{}}
	for i := 0; i < count; i++ {
		img, _ := dev.NewImage(gpu.ImageDesc{
			Name:      "swapchain",
			Extent:    extent,
			Format:    format,
			MipLevels: 1,
			Layers:    1,
			Usage:     gpu.ImageUsageColorAttachment,
		})
		sc.images = append(sc.images, img)
	}
	return sc
}

func (s *Swapchain) Format() gpu.Format   { return s.format }
func (s *Swapchain) Extent() gpu.Extent2D { return s.extent }
func (s *Swapchain) Images() []gpu.Image  { return s.images }

func (s *Swapchain) Acquire(signal gpu.Semaphore, timeout time.Duration) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.acquires
	s.acquires++
	if err, ok := s.AcquireErrors[n]; ok {
		return 0, err
	}

	var idx uint32
	if len(s.Order) > 0 {
		idx = s.Order[s.next%uint32(len(s.Order))]
	} else {
		idx = s.next % uint32(len(s.images))
	}
	s.next++

	if signal != nil {
		s.dev.mu.Lock()
		signal.(*Semaphore).signaled = true
		s.dev.mu.Unlock()
	}
	return idx, nil
}

func (s *Swapchain) Present(index uint32, wait gpu.Semaphore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wait != nil {
		s.dev.mu.Lock()
		sem := wait.(*Semaphore)
		if !sem.signaled {
			s.dev.violate("present of image %d waits on an unsignaled semaphore", index)
		}
		sem.signaled = false
		s.dev.mu.Unlock()
	}
	s.presents = append(s.presents, index)
	return nil
}

func (s *Swapchain) Recreate(extent gpu.Extent2D) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extent = extent
	s.recreates++
	return nil
}

// Presents lists the presented image indices in order.
func (s *Swapchain) Presents() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.presents...)
}

// Recreates counts calls to Recreate.
func (s *Swapchain) Recreates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recreates
}

func (s *Swapchain) Destroy() {
	for _, img := range s.images {
		img.Destroy()
	}
}
