package frame

import (
	"errors"
	"sync"
	"time"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

var (
	ErrFrameOutstanding = errors.New("previous frame not collected")
	ErrNoFrame          = errors.New("no frame started")
	ErrHandshakeClosed  = errors.New("handshake closed")
)

// Token tells the overlay goroutine which frame to record.
type Token struct {
	Frame      uint64
	Slot       int
	ImageIndex uint32
	Extent     gpu.Extent2D
	// FrameTime and FPS are the render side statistics at Begin.
	FrameTime time.Duration
	FPS       float64
}

// Result is what the overlay goroutine hands back for a frame. A nil List
// means nothing to submit.
type Result struct {
	List gpu.CommandList
	Err  error
}

// Handshake is the per-frame rendezvous between the render goroutine and the
// overlay goroutine. The render side calls Begin and later Wait exactly once
// per frame; the overlay side loops over Next and Done.
type Handshake struct {
	started chan Token
	done    chan Result

	mu          sync.Mutex
	outstanding bool
	closed      bool
}

func NewHandshake() *Handshake {
	return &Handshake{
		started: make(chan Token, 1),
		done:    make(chan Result, 1),
	}
}

// Begin releases the overlay goroutine for the frame described by tok.
func (h *Handshake) Begin(tok Token) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandshakeClosed
	}
	if h.outstanding {
		return ErrFrameOutstanding
	}
	h.outstanding = true
	h.started <- tok
	return nil
}

// Wait blocks until the overlay goroutine finished the frame opened by Begin.
func (h *Handshake) Wait() (Result, error) {
	h.mu.Lock()
	if !h.outstanding {
		h.mu.Unlock()
		return Result{}, ErrNoFrame
	}
	h.mu.Unlock()

	res := <-h.done

	h.mu.Lock()
	h.outstanding = false
	h.mu.Unlock()
	return res, nil
}

// Next blocks the overlay goroutine until a frame starts. It returns false
// once the handshake is closed.
func (h *Handshake) Next() (Token, bool) {
	tok, ok := <-h.started
	return tok, ok
}

// Done publishes the overlay result for the current frame.
func (h *Handshake) Done(res Result) {
	h.done <- res
}

// Close wakes the overlay goroutine with the shutdown signal. It must not be
// called while a frame is outstanding.
func (h *Handshake) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.started)
}
