package gputest

import (
	"strings"
	"testing"
	"time"

	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

func recordDraw(t *testing.T, d *Device, fb gpu.Framebuffer, pass gpu.RenderPass) gpu.CommandList {
	t.Helper()
	list, err := d.NewCommandList()
	if err != nil {
		t.Fatal(err)
	}
	if err := list.Begin(); err != nil {
		t.Fatal(err)
	}
	list.BeginRenderPass(pass, fb, gpu.Rect2D{}, nil)
	list.Draw(3, 1, 0, 0)
	list.EndRenderPass()
	if err := list.End(); err != nil {
		t.Fatal(err)
	}
	return list
}

func TestDestroyWhileInFlight(t *testing.T) {
	d := NewDevice()
	img, _ := d.NewImage(gpu.ImageDesc{Format: gpu.FormatR8G8B8A8Unorm})
	pass, _ := d.NewRenderPass(gpu.RenderPassDesc{Colors: []gpu.AttachmentDesc{{Format: gpu.FormatR8G8B8A8Unorm}}})
	fb, _ := d.NewFramebuffer(pass, []gpu.ImageView{img.View()}, gpu.Extent2D{Width: 4, Height: 4})
	fence, _ := d.NewFence(false)

	list := recordDraw(t, d, fb, pass)
	if err := d.Submit([]gpu.CommandList{list}, nil, 0, nil, fence); err != nil {
		t.Fatal(err)
	}
	fb.Destroy()

	v := d.Violations()
	if len(v) != 1 || !strings.Contains(v[0], "in flight") {
		t.Fatalf("Violations:\nhave %q\nwant one in-flight destruction", v)
	}
}

func TestFenceWaitCompletesInOrder(t *testing.T) {
	d := NewDevice()
	f1, _ := d.NewFence(false)
	f2, _ := d.NewFence(false)
	l1, _ := d.NewCommandList()
	l2, _ := d.NewCommandList()
	for _, l := range []gpu.CommandList{l1, l2} {
		_ = l.Begin()
		_ = l.End()
	}
	_ = d.Submit([]gpu.CommandList{l1}, nil, 0, nil, f1)
	_ = d.Submit([]gpu.CommandList{l2}, nil, 0, nil, f2)

	if f1.Signaled() || f2.Signaled() {
		t.Fatal("fences signaled before any wait")
	}
	if err := f2.Wait(time.Second); err != nil {
		t.Fatal(err)
	}
	if !f1.Signaled() {
		t.Fatal("waiting the later fence did not complete the earlier submission")
	}
	if len(d.Violations()) != 0 {
		t.Fatalf("Violations: %q", d.Violations())
	}
}

func TestPaceCompletesOldest(t *testing.T) {
	d := NewDevice()
	d.Pace = func(pending int) int { return pending - 1 }
	var fences []gpu.Fence
	for i := 0; i < 3; i++ {
		f, _ := d.NewFence(false)
		l, _ := d.NewCommandList()
		_ = l.Begin()
		_ = l.End()
		_ = d.Submit([]gpu.CommandList{l}, nil, 0, nil, f)
		fences = append(fences, f)
	}
	if !fences[0].Signaled() || !fences[1].Signaled() || fences[2].Signaled() {
		t.Fatalf("signaled:\nhave %v %v %v\nwant true true false",
			fences[0].Signaled(), fences[1].Signaled(), fences[2].Signaled())
	}
}

func TestDescriptorPoolCapacity(t *testing.T) {
	d := NewDevice()
	layout, _ := d.NewDescriptorLayout(nil)
	pool, _ := d.NewDescriptorPool(gpu.DescriptorPoolDesc{MaxSets: 1})
	if _, err := pool.Allocate(layout, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Allocate(layout, 0); err != gpu.ErrDescriptorPoolExhausted {
		t.Fatalf("Allocate past capacity:\nhave %v\nwant %v", err, gpu.ErrDescriptorPoolExhausted)
	}
	_ = pool.Reset()
	if _, err := pool.Allocate(layout, 0); err != nil {
		t.Fatalf("Allocate after Reset: %v", err)
	}
}
