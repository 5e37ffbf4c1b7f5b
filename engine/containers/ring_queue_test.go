package containers

import (
	"errors"
	"testing"
)

func TestRingQueueOrder(t *testing.T) {
	q := NewRingQueue[int](3)
	for i := 1; i <= 3; i++ {
		if err := q.Enqueue(i); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	if err := q.Enqueue(4); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Enqueue on full queue:\nhave %v\nwant %v", err, ErrQueueFull)
	}
	for want := 1; want <= 3; want++ {
		have, err := q.Dequeue()
		if err != nil {
			t.Fatal(err)
		}
		if have != want {
			t.Fatalf("Dequeue:\nhave %d\nwant %d", have, want)
		}
	}
	if _, err := q.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("Dequeue on empty queue:\nhave %v\nwant %v", err, ErrQueueEmpty)
	}
}

func TestRingQueuePushDropsOldest(t *testing.T) {
	q := NewRingQueue[string](2)
	q.Push("a")
	q.Push("b")
	q.Push("c")

	var got []string
	q.Each(func(s string) { got = append(got, s) })
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("Each:\nhave %v\nwant [b c]", got)
	}
	if v, _ := q.Peek(); v != "b" {
		t.Fatalf("Peek:\nhave %q\nwant %q", v, "b")
	}
}
