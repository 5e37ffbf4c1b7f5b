// Package lifetime delays the destruction of GPU objects until the frame
// slot that last referenced them comes around again.
package lifetime

import (
	"sync"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// Disposable is any object owning a GPU handle.
type Disposable = gpu.Destroyer

// DisposeFunc adapts a plain function to Disposable.
type DisposeFunc func()

func (f DisposeFunc) Destroy() { f() }

// Tracker is a ring of per-slot buckets. An object disposed while slot k is
// current is destroyed by the NewFrame call that re-enters slot k, which the
// frame scheduler only makes after waiting on slot k's fence.
type Tracker struct {
	mu      sync.Mutex
	buckets [][]Disposable
	current int
}

func New(frames int) *Tracker {
	if frames < 1 {
		frames = 1
	}
	return &Tracker{
		buckets: make([][]Disposable, frames),
		// the first NewFrame lands on slot 0
		current: frames - 1,
	}
}

// Dispose takes ownership of obj.
func (t *Tracker) Dispose(obj Disposable) {
	if obj == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buckets[t.current] = append(t.buckets[t.current], obj)
}

// NewFrame enters the next slot, destroying what was filed under it.
func (t *Tracker) NewFrame() {
	t.mu.Lock()
	t.current = (t.current + 1) % len(t.buckets)
	bucket := t.buckets[t.current]
	t.buckets[t.current] = nil
	t.mu.Unlock()

	destroyAll(bucket)
}

// Flush destroys everything, in slot order starting after the current one.
// Only call it once the device is idle.
func (t *Tracker) Flush() {
	t.mu.Lock()
	var all []Disposable
	for i := 1; i <= len(t.buckets); i++ {
		idx := (t.current + i) % len(t.buckets)
		all = append(all, t.buckets[idx]...)
		t.buckets[idx] = nil
	}
	t.mu.Unlock()

	destroyAll(all)
}

// Slot is the bucket currently receiving disposals.
func (t *Tracker) Slot() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Pending counts objects waiting for destruction.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, b := range t.buckets {
		n += len(b)
	}
	return n
}

func destroyAll(objs []Disposable) {
	for _, o := range objs {
		o.Destroy()
	}
}
