package lifetime

import (
	"fmt"
	"testing"
)

type probe struct {
	name  string
	trace *[]string
}

func (p probe) Destroy() { *p.trace = append(*p.trace, p.name) }

func TestDestroyedWhenSlotReenters(t *testing.T) {
	for _, frames := range []int{2, 3, 4} {
		t.Run(fmt.Sprintf("N=%d", frames), func(t *testing.T) {
			var trace []string
			tr := New(frames)
			tr.NewFrame()
			if tr.Slot() != 0 {
				t.Fatalf("Slot after first NewFrame:\nhave %d\nwant 0", tr.Slot())
			}
			tr.Dispose(probe{"a", &trace})
			tr.Dispose(probe{"b", &trace})

			for i := 1; i < frames; i++ {
				tr.NewFrame()
				if len(trace) != 0 {
					t.Fatalf("destroyed %v after %d frames, before slot 0 came back", trace, i)
				}
			}
			tr.NewFrame()
			if len(trace) != 2 || trace[0] != "a" || trace[1] != "b" {
				t.Fatalf("destroy order:\nhave %v\nwant [a b]", trace)
			}
			if tr.Pending() != 0 {
				t.Fatalf("Pending:\nhave %d\nwant 0", tr.Pending())
			}
		})
	}
}

func TestFlushDestroysEverything(t *testing.T) {
	var trace []string
	tr := New(3)
	for i := 0; i < 3; i++ {
		tr.NewFrame()
		tr.Dispose(probe{fmt.Sprint(i), &trace})
	}
	if tr.Pending() != 3 {
		t.Fatalf("Pending:\nhave %d\nwant 3", tr.Pending())
	}
	tr.Flush()
	if len(trace) != 3 || trace[0] != "0" || trace[2] != "2" {
		t.Fatalf("Flush order:\nhave %v\nwant [0 1 2]", trace)
	}
}

func TestDisposeFunc(t *testing.T) {
	called := false
	tr := New(2)
	tr.NewFrame()
	tr.Dispose(DisposeFunc(func() { called = true }))
	tr.Dispose(nil)
	tr.NewFrame()
	tr.NewFrame()
	if !called {
		t.Fatal("DisposeFunc was not run")
	}
}
