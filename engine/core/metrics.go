package core

import (
	"bytes"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spaghettifunk/prism/engine/containers"
)

const AVG_COUNT = 30

// Metrics keeps a rolling frame-time average and the frames per second.
// It is owned by the render goroutine.
type Metrics struct {
	samples     *containers.RingQueue[time.Duration]
	avg         time.Duration
	min         time.Duration
	max         time.Duration
	total       time.Duration
	frames      uint64
	secondFrame int
	accumulated time.Duration
	fps         float64
}

func NewMetrics() *Metrics {
	return &Metrics{
		samples: containers.NewRingQueue[time.Duration](AVG_COUNT),
	}
}

// Update records the duration of one frame.
func (m *Metrics) Update(frame time.Duration) {
	m.samples.Push(frame)
	var sum time.Duration
	m.samples.Each(func(d time.Duration) { sum += d })
	m.avg = sum / time.Duration(m.samples.Len())

	if m.frames == 0 || frame < m.min {
		m.min = frame
	}
	if frame > m.max {
		m.max = frame
	}
	m.total += frame
	m.frames++

	// Calculate frames per second.
	m.secondFrame++
	m.accumulated += frame
	if m.accumulated >= time.Second {
		m.fps = float64(m.secondFrame) / m.accumulated.Seconds()
		m.accumulated = 0
		m.secondFrame = 0
	}
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

// FrameTime is the average over the last AVG_COUNT frames.
func (m *Metrics) FrameTime() time.Duration {
	return m.avg
}

func (m *Metrics) Frames() uint64 {
	return m.frames
}

// Table renders a summary of the run.
func (m *Metrics) Table() string {
	var buf bytes.Buffer
	var mean time.Duration
	if m.frames > 0 {
		mean = m.total / time.Duration(m.frames)
	}

	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Frames", "FPS", "Avg frame", "Min frame", "Max frame"})
	table.Append([]string{
		fmt.Sprintf("%d", m.frames),
		fmt.Sprintf("%.1f", m.fps),
		m.avg.String(),
		m.min.String(),
		m.max.String(),
	})
	table.SetFooter([]string{"", "", "", "MEAN", mean.String()})
	table.Render()
	return buf.String()
}
