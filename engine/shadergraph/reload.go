package shadergraph

import (
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/lifetime"
	"github.com/spaghettifunk/prism/engine/renderer/overlay"
)

// Watcher reports changes to files. *assets.AssetManager implements it.
type Watcher interface {
	// Subscribe delivers the path of every changed file among paths until
	// the returned cancel func is called.
	Subscribe(paths ...string) (<-chan string, func())
}

// Reloader owns a graph and rebuilds it when its files change, when
// Trigger is called or when the window is resized. Reloads happen in Poll,
// on the render goroutine.
type Reloader struct {
	path    string
	opts    Options
	watcher Watcher
	tracker *lifetime.Tracker

	mu      sync.Mutex
	deps    Deps
	graph   *Graph
	lastErr error

	events  <-chan string
	cancel  func()
	pending atomic.Bool
}

func NewReloader(path string, deps Deps, opts Options, watcher Watcher, tracker *lifetime.Tracker) (*Reloader, error) {
	g, err := Load(path, deps, opts)
	if err != nil {
		return nil, err
	}
	r := &Reloader{path: path, opts: opts, watcher: watcher, tracker: tracker, deps: deps, graph: g}
	r.subscribe()
	return r, nil
}

func (r *Reloader) subscribe() {
	if r.cancel != nil {
		r.cancel()
		r.cancel, r.events = nil, nil
	}
	if r.watcher != nil {
		r.events, r.cancel = r.watcher.Subscribe(r.graph.Files()...)
	}
}

func (r *Reloader) Graph() *Graph {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.graph
}

// Err is the error of the last failed reload, nil once a reload succeeds.
func (r *Reloader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Trigger requests a reload on the next Poll.
func (r *Reloader) Trigger() { r.pending.Store(true) }

// Resize rebuilds the graph for a new swapchain extent on the next Poll.
func (r *Reloader) Resize(extent gpu.Extent2D) {
	r.mu.Lock()
	r.deps.Extent = extent
	r.mu.Unlock()
	r.Trigger()
}

// Poll reloads the graph if a reload is pending. A failed reload keeps the
// current graph and returns the error; reloaded reports a successful swap.
func (r *Reloader) Poll() (reloaded bool, err error) {
	for drained := false; !drained; {
		select {
		case path, ok := <-r.events:
			if !ok {
				r.events = nil
				drained = true
				continue
			}
			core.LogDebug("shader graph file changed: %s", path)
			r.pending.Store(true)
		default:
			drained = true
		}
	}
	if !r.pending.Swap(false) {
		return false, nil
	}

	r.mu.Lock()
	deps := r.deps
	r.mu.Unlock()

	g, err := Load(r.path, deps, r.opts)
	if err != nil {
		core.LogError("shader graph reload failed, keeping the previous graph: %s", err)
		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()
		return false, err
	}

	r.mu.Lock()
	old := r.graph
	g.copyParams(old)
	r.graph, r.lastErr = g, nil
	r.mu.Unlock()

	// In-flight frames may still sample the old graph's textures.
	r.tracker.Dispose(lifetime.DisposeFunc(old.Destroy))
	r.subscribe()
	core.LogInfo("reloaded shader graph %s", r.path)
	return true, nil
}

func (r *Reloader) Render(ctx *frame.Context) error {
	return r.Graph().Render(ctx)
}

// RenderGUI declares the current graph's controls and the last reload error.
func (r *Reloader) RenderGUI(ui overlay.UI) {
	r.mu.Lock()
	g, lastErr := r.graph, r.lastErr
	r.mu.Unlock()

	g.RenderGUI(ui)
	if lastErr != nil {
		ui.Window("Reload", func() { ui.Text("%s", lastErr) })
	}
}

// Close stops watching and destroys the current graph. The device must be
// idle.
func (r *Reloader) Close() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.graph != nil {
		r.graph.Destroy()
		r.graph = nil
	}
}
