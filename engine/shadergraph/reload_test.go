package shadergraph

import (
	"errors"
	"path/filepath"
	"testing"

	pmath "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/shader/shadertest"
)

type fakeWatcher struct {
	events    chan string
	paths     []string
	cancelled int
}

func (w *fakeWatcher) Subscribe(paths ...string) (<-chan string, func()) {
	w.paths = paths
	return w.events, func() { w.cancelled++ }
}

func TestReloaderKeepsGraphOnFailure(t *testing.T) {
	e := newEnv(t, 2)
	e.fragment(t, "main.spv", nil,
		shadertest.Field{Name: "tint", Type: shadertest.Vec4},
		shadertest.Field{Name: "intensity", Type: shadertest.Float},
	)
	path := e.write(t, "graph.toml", []byte(singleStage))
	w := &fakeWatcher{events: make(chan string, 4)}

	r, err := NewReloader(path, e.deps(), e.options(MemoizeByStage), w, e.tracker)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if len(w.paths) != 1 || w.paths[0] != filepath.Join(e.dir, "main.spv") {
		t.Fatalf("watched:\nhave %v\nwant the stage shader", w.paths)
	}

	if reloaded, err := r.Poll(); reloaded || err != nil {
		t.Fatalf("idle Poll:\nhave %v %v\nwant false <nil>", reloaded, err)
	}

	before := r.Graph()
	if err := before.SetParam("main", "intensity", pmath.NewVec3(1.25, 0, 0)); err != nil {
		t.Fatal(err)
	}

	// A shader without the parameter fails to load.
	e.fragment(t, "main.spv", nil)
	w.events <- filepath.Join(e.dir, "main.spv")
	reloaded, err := r.Poll()
	if reloaded || !errors.Is(err, ErrUnknownParam) {
		t.Fatalf("broken reload:\nhave %v %v\nwant false %v", reloaded, err, ErrUnknownParam)
	}
	if r.Graph() != before || !errors.Is(r.Err(), ErrUnknownParam) {
		t.Fatal("failed reload replaced the graph")
	}
	e.render(t, r.Graph(), 0)

	// Fixing the shader swaps the graph on the next event.
	e.fragment(t, "main.spv", nil,
		shadertest.Field{Name: "tint", Type: shadertest.Vec4},
		shadertest.Field{Name: "intensity", Type: shadertest.Float},
	)
	w.events <- filepath.Join(e.dir, "main.spv")
	if reloaded, err := r.Poll(); !reloaded || err != nil {
		t.Fatalf("fixed reload:\nhave %v %v\nwant true <nil>", reloaded, err)
	}
	after := r.Graph()
	if after == before || r.Err() != nil {
		t.Fatal("successful reload kept the old graph")
	}
	if p, _ := after.Param("main", "intensity"); p.Value.X != 1.25 {
		t.Fatalf("carried intensity:\nhave %v\nwant 1.25", p.Value.X)
	}
	if w.cancelled != 1 {
		t.Fatalf("subscriptions cancelled:\nhave %d\nwant 1", w.cancelled)
	}

	// The old graph waits for in-flight frames.
	if e.tracker.Pending() == 0 {
		t.Fatal("old graph destroyed without going through the tracker")
	}
	pipelines := e.dev.Live("pipeline")
	e.tracker.Flush()
	if have := e.dev.Live("pipeline"); have != pipelines-1 {
		t.Fatalf("live pipelines after flush:\nhave %d\nwant %d", have, pipelines-1)
	}
}

func TestReloaderResize(t *testing.T) {
	e := newEnv(t, 2)
	e.fragment(t, "main.spv", nil,
		shadertest.Field{Name: "tint", Type: shadertest.Vec4},
		shadertest.Field{Name: "intensity", Type: shadertest.Float},
	)
	path := e.write(t, "graph.toml", []byte(singleStage))
	r, err := NewReloader(path, e.deps(), e.options(MemoizeByStage), nil, e.tracker)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	size := gpu.Extent2D{Width: 640, Height: 480}
	r.Resize(size)
	if reloaded, err := r.Poll(); !reloaded || err != nil {
		t.Fatalf("Poll after resize:\nhave %v %v\nwant true <nil>", reloaded, err)
	}
	if have := r.Graph().Extent(); have != size {
		t.Fatalf("extent:\nhave %v\nwant %v", have, size)
	}
}
