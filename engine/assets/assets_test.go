package assets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/shadergraph"
)

func newManager(t *testing.T) *AssetManager {
	t.Helper()
	am, err := NewAssetManager()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(am.Shutdown)
	return am
}

func TestSubscribeReportsWrites(t *testing.T) {
	am := newManager(t)
	dir := t.TempDir()
	watched := filepath.Join(dir, "blur.spv")
	other := filepath.Join(dir, "other.spv")
	for _, p := range []string{watched, other} {
		if err := os.WriteFile(p, []byte{0}, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	events, cancel := am.Subscribe(watched)
	if err := os.WriteFile(other, []byte{1}, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(watched, []byte{1}, 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case have := <-events:
		if have != watched {
			t.Fatalf("event:\nhave %s\nwant %s", have, watched)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event for the watched file")
	}

	cancel()
	cancel()
	for range events {
	}
}

func TestShutdownClosesSubscriptions(t *testing.T) {
	am, err := NewAssetManager()
	if err != nil {
		t.Fatal(err)
	}
	events, cancel := am.Subscribe(filepath.Join(t.TempDir(), "graph.toml"))
	am.Shutdown()
	if _, ok := <-events; ok {
		t.Fatal("subscription still open after Shutdown")
	}
	cancel()
	am.Shutdown()

	if _, err := am.LoadAsset("graph.toml"); !errors.Is(err, ErrClosed) {
		t.Fatalf("LoadAsset after Shutdown:\nhave %v\nwant %v", err, ErrClosed)
	}
}

func TestInitializeIndexesAndLoads(t *testing.T) {
	am := newManager(t)
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "graphs"), 0o755); err != nil {
		t.Fatal(err)
	}
	graph := filepath.Join(dir, "graphs", "main.toml")
	text := "[stages.main]\nshader = \"main.spv\"\noutput = [\"framebuffer\"]\n"
	if err := os.WriteFile(graph, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := am.Initialize(dir); err != nil {
		t.Fatal(err)
	}

	graphs := am.Assets(loaders.ResourceTypeGraph)
	if len(graphs) != 1 || graphs[0].Path != graph {
		t.Fatalf("indexed graphs:\nhave %v\nwant %s", graphs, graph)
	}

	res, err := am.LoadAsset(graph)
	if err != nil {
		t.Fatal(err)
	}
	desc := res.Data.(*shadergraph.Description)
	if _, ok := desc.Stages["main"]; !ok || res.Type != loaders.ResourceTypeGraph {
		t.Fatalf("loaded:\nhave %s %v\nwant a graph with stage main", res.Type, desc.StageNames())
	}

	if _, err := am.LoadAsset(filepath.Join(dir, "notes.txt")); !errors.Is(err, ErrNoLoader) {
		t.Fatalf("LoadAsset(notes.txt):\nhave %v\nwant %v", err, ErrNoLoader)
	}
}
