package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIDGeneratorReuse(t *testing.T) {
	g := NewIDGenerator()
	a := g.Acquire("a")
	b := g.Acquire("b")
	if a != 0 || b != 1 {
		t.Fatalf("Acquire:\nhave %d, %d\nwant 0, 1", a, b)
	}
	if err := g.Release(a); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if c := g.Acquire("c"); c != a {
		t.Fatalf("Acquire after release:\nhave %d\nwant %d", c, a)
	}
	if owner := g.Owner(b); owner != "b" {
		t.Fatalf("Owner:\nhave %v\nwant b", owner)
	}
	if err := g.Release(42); !errors.Is(err, ErrIDOutOfRange) {
		t.Fatalf("Release(42):\nhave %v\nwant %v", err, ErrIDOutOfRange)
	}
	_ = g.Release(b)
	if err := g.Release(b); !errors.Is(err, ErrIDNotAcquired) {
		t.Fatalf("double Release:\nhave %v\nwant %v", err, ErrIDNotAcquired)
	}
}

func TestIDGeneratorNames(t *testing.T) {
	g := NewIDGenerator()
	a, b := g.NewName("texture"), g.NewName("texture")
	if a == b {
		t.Fatalf("NewName returned %q twice", a)
	}
	if !strings.HasPrefix(a, "texture-") {
		t.Fatalf("NewName:\nhave %q\nwant prefix texture-", a)
	}
}

func TestClock(t *testing.T) {
	now := time.Unix(100, 0)
	c := NewClockWithSource(func() time.Time { return now })
	c.Update()
	if c.Elapsed() != 0 {
		t.Fatalf("Elapsed before Start:\nhave %v\nwant 0", c.Elapsed())
	}
	c.Start()
	now = now.Add(16 * time.Millisecond)
	c.Update()
	now = now.Add(20 * time.Millisecond)
	c.Update()
	if c.Elapsed() != 36*time.Millisecond {
		t.Fatalf("Elapsed:\nhave %v\nwant %v", c.Elapsed(), 36*time.Millisecond)
	}
	if c.Delta() != 20*time.Millisecond {
		t.Fatalf("Delta:\nhave %v\nwant %v", c.Delta(), 20*time.Millisecond)
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 100; i++ {
		m.Update(10 * time.Millisecond)
	}
	if m.FrameTime() != 10*time.Millisecond {
		t.Fatalf("FrameTime:\nhave %v\nwant 10ms", m.FrameTime())
	}
	if m.FPS() < 99 || m.FPS() > 101 {
		t.Fatalf("FPS:\nhave %v\nwant 100", m.FPS())
	}
	if m.Frames() != 100 {
		t.Fatalf("Frames:\nhave %d\nwant 100", m.Frames())
	}
	if table := m.Table(); !strings.Contains(table, "Avg frame") {
		t.Fatalf("Table is missing its header:\n%s", table)
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want LogLevel
	}{
		{"", LevelInfo},
		{"debug", LevelDebug},
		{"WARN", LevelWarn},
		{"error", LevelError},
	} {
		have, err := ParseLogLevel(tc.in)
		if err != nil {
			t.Fatalf("ParseLogLevel(%q): %v", tc.in, err)
		}
		if have != tc.want {
			t.Fatalf("ParseLogLevel(%q):\nhave %v\nwant %v", tc.in, have, tc.want)
		}
	}
	if _, err := ParseLogLevel("loud"); err == nil {
		t.Fatal("ParseLogLevel(loud) succeeded")
	}
}

func TestInputKeyPressed(t *testing.T) {
	in := NewInput()
	in.ProcessKey(KEY_F5, true)
	if !in.KeyPressed(KEY_F5) {
		t.Fatal("KeyPressed false on the frame the key went down")
	}
	in.Update()
	if in.KeyPressed(KEY_F5) {
		t.Fatal("KeyPressed still true one frame later")
	}
	in.ProcessMouseMove(12, 34)
	if x, y := in.MousePosition(); x != 12 || y != 34 {
		t.Fatalf("MousePosition:\nhave %v, %v\nwant 12, 34", x, y)
	}
}
