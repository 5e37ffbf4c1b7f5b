package testbed

import (
	"math"
	"sync"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/core"
	pmath "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/overlay"
	"github.com/spaghettifunk/prism/engine/shadergraph"
)

// TestGame sweeps one float parameter of the running graph between its
// bounds, at a speed chosen in the overlay.
type TestGame struct {
	*engine.Application

	Stage string
	Param string

	mu sync.Mutex
	// speed is in sweeps per second; zero leaves the parameter alone.
	speed float32
}

func NewTestGame(stage, param string) *TestGame {
	tg := &TestGame{Stage: stage, Param: param}
	tg.Application = &engine.Application{
		Name:     "Prism Testbed",
		Update:   tg.Update,
		GUI:      tg.GUI,
		OnResize: tg.OnResize,
	}
	return tg
}

func (g *TestGame) Speed() float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.speed
}

func (g *TestGame) SetSpeed(v float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.speed = pmath.Clamp(v, 0, 4)
}

func (g *TestGame) Update(ctx *frame.Context, graph *shadergraph.Graph) error {
	speed := g.Speed()
	if speed == 0 || g.Param == "" {
		return nil
	}
	p, ok := graph.Param(g.Stage, g.Param)
	if !ok || p.Kind != shadergraph.KindFloat {
		return nil
	}
	phase := ctx.Elapsed.Seconds() * float64(speed) * 2 * math.Pi
	t := float32(0.5 + 0.5*math.Sin(phase))
	return graph.SetParam(g.Stage, g.Param, pmath.NewVec3(pmath.Lerp(p.Min.X, p.Max.X, t), 0, 0))
}

func (g *TestGame) GUI(ui overlay.UI) {
	ui.Window("Testbed", func() {
		if g.Param == "" {
			ui.Text("no parameter to sweep")
			return
		}
		ui.Text("sweeping %s.%s", g.Stage, g.Param)
		speed := g.Speed()
		if ui.SliderFloat("speed", &speed, 0, 4) {
			g.SetSpeed(speed)
		}
	})
}

func (g *TestGame) OnResize(extent gpu.Extent2D) error {
	core.LogDebug("testbed resized to %dx%d", extent.Width, extent.Height)
	return nil
}
