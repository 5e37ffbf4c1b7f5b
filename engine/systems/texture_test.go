package systems

import (
	"errors"
	"image"
	"sync/atomic"
	"testing"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/gpu/gputest"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
)

func newTextureSystem(t *testing.T, decode DecodeFunc) (*TextureSystem, *gputest.Device) {
	t.Helper()
	dev := gputest.NewDevice()
	alloc, err := memory.New(dev, memory.Config{FramesInFlight: 2, BlockSize: 1 << 16, BlockCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	js, err := NewJobSystem(2, 4)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { js.Shutdown() })
	ts, err := NewTextureSystem(dev, alloc, js, decode)
	if err != nil {
		t.Fatal(err)
	}
	return ts, dev
}

func TestAddTextureUploadsThroughStaging(t *testing.T) {
	ts, dev := newTextureSystem(t, nil)

	h, err := ts.AddTexture("checker", make([]byte, 4*4*4), 4, 4, gpu.FormatR8G8B8A8Srgb)
	if err != nil {
		t.Fatal(err)
	}
	if ext, _ := ts.Extent(h); ext != (gpu.Extent2D{Width: 4, Height: 4}) {
		t.Fatalf("extent:\nhave %+v\nwant 4x4", ext)
	}

	subs := dev.Submissions()
	if len(subs) != 1 || !subs[0].Immediate {
		t.Fatalf("submissions:\nhave %d\nwant one immediate", len(subs))
	}
	cmds := subs[0].Lists[0].Commands()
	want := []struct {
		op     string
		layout gpu.Layout
	}{
		{"PipelineBarrier", gpu.LayoutTransferDst},
		{"CopyBufferToImage", 0},
		{"PipelineBarrier", gpu.LayoutShaderReadOnly},
	}
	if len(cmds) != len(want) {
		t.Fatalf("commands:\nhave %d\nwant %d", len(cmds), len(want))
	}
	for i, w := range want {
		if cmds[i].Op != w.op {
			t.Fatalf("command %d:\nhave %s\nwant %s", i, cmds[i].Op, w.op)
		}
		if w.op == "PipelineBarrier" && cmds[i].Barriers[0].NewLayout != w.layout {
			t.Fatalf("barrier %d:\nhave %s\nwant %s", i, cmds[i].Barriers[0].NewLayout, w.layout)
		}
	}
	// The staging buffer is gone, the image stays.
	if dev.Live("buffer") != 0 || dev.Live("image") != 1 {
		t.Fatalf("live:\nhave %d buffers %d images\nwant 0 and 1", dev.Live("buffer"), dev.Live("image"))
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}

	if err := ts.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if dev.Live("image") != 0 || dev.Live("sampler") != 0 {
		t.Fatal("Shutdown left textures alive")
	}
	if _, err := ts.View(h); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("View after Shutdown:\nhave %v\nwant %v", err, ErrInvalidHandle)
	}
}

func TestAddTextureRejectsSizeMismatch(t *testing.T) {
	ts, dev := newTextureSystem(t, nil)
	if _, err := ts.AddTexture("short", make([]byte, 10), 4, 4, gpu.FormatR8G8B8A8Unorm); !errors.Is(err, ErrTextureSize) {
		t.Fatalf("short pixels:\nhave %v\nwant %v", err, ErrTextureSize)
	}
	if dev.Created("image") != 0 {
		t.Fatal("image created for rejected pixels")
	}
}

func TestLoadFilesDecodesOnce(t *testing.T) {
	var decodes atomic.Int32
	ts, _ := newTextureSystem(t, func(path string) (*image.RGBA, error) {
		decodes.Add(1)
		if path == "missing.png" {
			return nil, errors.New("no such file")
		}
		return image.NewRGBA(image.Rect(0, 0, 2, 3)), nil
	})

	hs, err := ts.LoadFiles([]string{"a.png", "b.png"})
	if err != nil {
		t.Fatal(err)
	}
	again, err := ts.LoadFile("./a.png")
	if err != nil {
		t.Fatal(err)
	}
	if again != hs[0] || hs[0] == hs[1] {
		t.Fatalf("handles:\nhave %v %v and %v\nwant a.png cached", hs[0], hs[1], again)
	}
	if decodes.Load() != 2 || ts.Count() != 2 {
		t.Fatalf("decodes:\nhave %d for %d textures\nwant 2", decodes.Load(), ts.Count())
	}
	if ext, _ := ts.Extent(hs[1]); ext != (gpu.Extent2D{Width: 2, Height: 3}) {
		t.Fatalf("extent:\nhave %+v\nwant 2x3", ext)
	}

	if _, err := ts.LoadFile("missing.png"); err == nil {
		t.Fatal("missing.png loaded")
	}
}
