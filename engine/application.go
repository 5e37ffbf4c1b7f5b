package engine

import (
	"github.com/spaghettifunk/prism/engine/renderer/frame"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/overlay"
	"github.com/spaghettifunk/prism/engine/shadergraph"
)

// Application hooks into the engine loop. Every field is optional.
type Application struct {
	// Name overrides the window title.
	Name string
	// Update runs on the render goroutine before the graph records.
	Update func(ctx *frame.Context, graph *shadergraph.Graph) error
	// GUI declares extra overlay windows. It runs on the overlay goroutine.
	GUI overlay.GUIFunc
	// OnResize runs after the swapchain was recreated.
	OnResize func(extent gpu.Extent2D) error
}
