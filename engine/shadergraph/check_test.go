package shadergraph

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/shader/shadertest"
)

func TestCheckResolvesShaderInterface(t *testing.T) {
	e := newEnv(t, 1)
	e.fragment(t, "noise.spv", nil)
	e.fragment(t, "blur.spv", []string{"noise"})
	e.fragment(t, "main.spv", []string{"noise", "blurred"})
	path := e.write(t, "graph.toml", []byte(fanIn))
	if err := Check(path, e.compiler, window, gpu.FormatB8G8R8A8Unorm); err != nil {
		t.Fatal(err)
	}

	e.fragment(t, "blur.spv", []string{"other"})
	if err := Check(path, e.compiler, window, gpu.FormatB8G8R8A8Unorm); !errors.Is(err, ErrBadBinding) {
		t.Fatalf("renamed sampler:\nhave %v\nwant %v", err, ErrBadBinding)
	}

	e.fragment(t, "main.spv", nil, shadertest.Field{Name: "gain", Type: shadertest.Float})
	path = e.write(t, "single.toml", []byte(singleStage))
	if err := Check(path, e.compiler, window, gpu.FormatB8G8R8A8Unorm); !errors.Is(err, ErrUnknownParam) {
		t.Fatalf("missing parameter:\nhave %v\nwant %v", err, ErrUnknownParam)
	}
	// Nothing touches the device.
	if n := len(e.dev.Submissions()); n != 0 {
		t.Fatalf("submissions:\nhave %d\nwant 0", n)
	}
}
