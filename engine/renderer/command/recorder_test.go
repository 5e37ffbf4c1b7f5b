package command

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	pmath "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/gpu/gputest"
	"github.com/spaghettifunk/prism/engine/renderer/lifetime"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
	"github.com/spaghettifunk/prism/engine/renderer/shader/shadertest"
)

func testPipeline(t *testing.T, dev *gputest.Device, depth bool) *pipeline.Pipeline {
	t.Helper()
	c := shader.NewCompilerWith()
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Shutdown)

	frag := shadertest.New(gpu.StageFragment).PushConstants("Params",
		shadertest.Field{Name: "intensity", Type: shadertest.Float},
		shadertest.Field{Name: "color", Type: shadertest.Vec3},
	)
	p := pipeline.New(dev, c)
	src := shader.Source{Name: "test.frag", Language: shader.LanguageSPIRV, Code: frag.Bytes()}
	if err := p.AddShaderStage(src, gpu.StageFragment); err != nil {
		t.Fatal(err)
	}
	if err := p.AddColorAttachment(gpu.FormatR8G8B8A8Unorm, gpu.LayoutUndefined, gpu.LayoutShaderReadOnly); err != nil {
		t.Fatal(err)
	}
	if depth {
		if err := p.AddDepthAttachment(); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Build(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Destroy)
	return p
}

func newRecorder(t *testing.T, dev *gputest.Device, tracker *lifetime.Tracker) (*Recorder, *gputest.CommandList) {
	t.Helper()
	list, err := dev.NewCommandList()
	if err != nil {
		t.Fatal(err)
	}
	return New(list, tracker, dev), list.(*gputest.CommandList)
}

func TestAccessTable(t *testing.T) {
	tests := []struct {
		layout      gpu.Layout
		read, write gpu.Access
	}{
		{gpu.LayoutUndefined, gpu.AccessNone, gpu.AccessNone},
		{gpu.LayoutGeneral, gpu.AccessNone, gpu.AccessNone},
		{gpu.LayoutColorAttachment, gpu.AccessColorAttachmentRead, gpu.AccessColorAttachmentWrite},
		{gpu.LayoutDepthStencilAttachment, gpu.AccessDepthStencilAttachmentRead, gpu.AccessDepthStencilAttachmentWrite},
		{gpu.LayoutDepthReadOnly, gpu.AccessDepthStencilAttachmentRead, gpu.AccessDepthStencilAttachmentRead},
		{gpu.LayoutShaderReadOnly, gpu.AccessMemoryRead, gpu.AccessMemoryWrite},
		{gpu.LayoutTransferSrc, gpu.AccessTransferRead, gpu.AccessTransferRead},
		{gpu.LayoutTransferDst, gpu.AccessTransferWrite, gpu.AccessTransferWrite},
		{gpu.LayoutPresentSrc, gpu.AccessNone, gpu.AccessNone},
	}
	for _, tt := range tests {
		t.Run(tt.layout.String(), func(t *testing.T) {
			if have := accessFor(tt.layout, true); have != tt.read {
				t.Fatalf("read access:\nhave %#x\nwant %#x", have, tt.read)
			}
			if have := accessFor(tt.layout, false); have != tt.write {
				t.Fatalf("write access:\nhave %#x\nwant %#x", have, tt.write)
			}
		})
	}
}

func TestImageTransition(t *testing.T) {
	dev := gputest.NewDevice()
	r, list := newRecorder(t, dev, lifetime.New(2))
	color, _ := dev.NewImage(gpu.ImageDesc{Extent: gpu.Extent2D{Width: 8, Height: 8}, Format: gpu.FormatR8G8B8A8Unorm, MipLevels: 3, Layers: 1})
	depth, _ := dev.NewImage(gpu.ImageDesc{Extent: gpu.Extent2D{Width: 8, Height: 8}, Format: gpu.FormatD32Sfloat, MipLevels: 1, Layers: 1})

	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	r.ImageTransition(color, gpu.PipelineStageTransfer, gpu.PipelineStageFragmentShader, gpu.LayoutTransferDst, gpu.LayoutShaderReadOnly)
	r.ImageTransition(depth, gpu.PipelineStageTopOfPipe, gpu.PipelineStageEarlyFragmentTests, gpu.LayoutUndefined, gpu.LayoutDepthStencilAttachment)
	if err := r.End(); err != nil {
		t.Fatal(err)
	}

	cmds := list.Commands()
	if len(cmds) != 2 {
		t.Fatalf("commands:\nhave %v\nwant two barriers", list.Ops())
	}
	b := cmds[0].Barriers[0]
	if b.SrcAccess != gpu.AccessTransferWrite || b.DstAccess != gpu.AccessMemoryRead || b.Aspect != gpu.AspectColor || b.MipCount != 3 {
		t.Fatalf("color barrier:\nhave %+v", b)
	}
	if cmds[0].SrcStage != gpu.PipelineStageTransfer || cmds[0].DstStage != gpu.PipelineStageFragmentShader {
		t.Fatalf("color barrier stages:\nhave %v -> %v", cmds[0].SrcStage, cmds[0].DstStage)
	}
	if b := cmds[1].Barriers[0]; b.Aspect != gpu.AspectDepth || b.SrcAccess != gpu.AccessNone || b.DstAccess != gpu.AccessDepthStencilAttachmentRead {
		t.Fatalf("depth barrier:\nhave %+v", b)
	}
}

func TestWithRenderPassViews(t *testing.T) {
	dev := gputest.NewDevice()
	tracker := lifetime.New(2)
	tracker.NewFrame()
	r, list := newRecorder(t, dev, tracker)
	p := testPipeline(t, dev, true)

	target, _ := dev.NewImage(gpu.ImageDesc{Extent: gpu.Extent2D{Width: 4, Height: 4}, Format: gpu.FormatR8G8B8A8Unorm, MipLevels: 1, Layers: 1})
	depth, _ := dev.NewImage(gpu.ImageDesc{Extent: gpu.Extent2D{Width: 4, Height: 4}, Format: gpu.FormatD32Sfloat, MipLevels: 1, Layers: 1})

	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	extent := gpu.Extent2D{Width: 4, Height: 4}
	err := r.WithRenderPassViews(p, []gpu.ImageView{target.View(), depth.View()}, extent, func() error {
		if err := r.BindPipeline(p); err != nil {
			return err
		}
		r.Draw(3, 0, 1, 0)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.End(); err != nil {
		t.Fatal(err)
	}

	want := []string{"BeginRenderPass", "BindPipeline", "Draw", "EndRenderPass"}
	ops := list.Ops()
	if len(ops) != len(want) {
		t.Fatalf("ops:\nhave %v\nwant %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("ops:\nhave %v\nwant %v", ops, want)
		}
	}

	clears := list.Commands()[0].Clears
	if len(clears) != 2 || clears[0].Color != [4]float32{} || !clears[1].IsDepth || clears[1].Depth != 1 {
		t.Fatalf("clears:\nhave %+v\nwant zero color and depth one", clears)
	}
	if have := list.Commands()[2].Counts; have != [4]uint32{3, 1, 0, 0} {
		t.Fatalf("draw counts:\nhave %v\nwant [3 1 0 0]", have)
	}

	if have := tracker.Pending(); have != 1 {
		t.Fatalf("tracked framebuffers:\nhave %d\nwant 1", have)
	}
	if have := dev.Live("framebuffer"); have != 1 {
		t.Fatalf("live framebuffers before slot reuse:\nhave %d\nwant 1", have)
	}
	tracker.NewFrame()
	tracker.NewFrame()
	if have := dev.Live("framebuffer"); have != 0 {
		t.Fatalf("live framebuffers after slot reuse:\nhave %d\nwant 0", have)
	}
}

func TestRenderPassErrors(t *testing.T) {
	dev := gputest.NewDevice()
	r, _ := newRecorder(t, dev, lifetime.New(2))
	p := testPipeline(t, dev, false)
	target, _ := dev.NewImage(gpu.ImageDesc{Extent: gpu.Extent2D{Width: 4, Height: 4}, Format: gpu.FormatR8G8B8A8Unorm, MipLevels: 1, Layers: 1})
	views := []gpu.ImageView{target.View()}
	extent := gpu.Extent2D{Width: 4, Height: 4}
	noop := func() error { return nil }

	if err := r.WithRenderPassViews(p, views, extent, noop); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("pass outside recording:\nhave %v\nwant %v", err, ErrNotRecording)
	}

	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	err := r.WithRenderPassViews(p, views, extent, func() error {
		return r.WithRenderPassViews(p, views, extent, noop)
	})
	if !errors.Is(err, ErrNestedRenderPass) {
		t.Fatalf("nested pass:\nhave %v\nwant %v", err, ErrNestedRenderPass)
	}

	boom := errors.New("boom")
	if err := r.WithRenderPassViews(p, views, extent, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("callback error:\nhave %v\nwant %v", err, boom)
	}
	if err := r.End(); err != nil {
		t.Fatalf("End after failed callbacks: %v", err)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("violations:\n%v", v)
	}
}

func TestNamedPushes(t *testing.T) {
	dev := gputest.NewDevice()
	r, list := newRecorder(t, dev, lifetime.New(2))
	p := testPipeline(t, dev, false)

	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := r.PushFloat(p, "intensity", 0.5); err != nil {
		t.Fatal(err)
	}
	if err := r.PushVec3(p, "color", pmath.NewVec3(1, 2, 3)); err != nil {
		t.Fatal(err)
	}
	if err := r.PushFloat(p, "missing", 1); !errors.Is(err, ErrUnknownMember) {
		t.Fatalf("unknown member:\nhave %v\nwant %v", err, ErrUnknownMember)
	}
	if err := r.End(); err != nil {
		t.Fatal(err)
	}

	cmds := list.Commands()
	if len(cmds) != 2 {
		t.Fatalf("ops:\nhave %v\nwant two pushes", list.Ops())
	}
	if cmds[0].Offset != 0 || cmds[0].Stages != gpu.StageFragment {
		t.Fatalf("intensity push:\nhave offset %d stages %s", cmds[0].Offset, cmds[0].Stages)
	}
	if have := math.Float32frombits(binary.LittleEndian.Uint32(cmds[0].Data)); have != 0.5 {
		t.Fatalf("intensity value:\nhave %v\nwant 0.5", have)
	}
	if cmds[1].Offset != 16 || len(cmds[1].Data) != 12 {
		t.Fatalf("color push:\nhave offset %d size %d\nwant offset 16 size 12", cmds[1].Offset, len(cmds[1].Data))
	}
	if have := math.Float32frombits(binary.LittleEndian.Uint32(cmds[1].Data[8:])); have != 3 {
		t.Fatalf("color.z:\nhave %v\nwant 3", have)
	}
}
