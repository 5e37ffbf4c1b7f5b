// Package overlay draws the debug UI on top of every frame. Widgets are
// declared immediate mode through UI on the overlay goroutine, collected into
// a DrawList and recorded by a Layer into the frame's second command list.
package overlay

import (
	pmath "github.com/spaghettifunk/prism/engine/math"
)

// UI is the declaration sink handed to GUI callbacks. It makes no GPU calls.
type UI interface {
	// Window groups the widgets declared by fn under a title bar.
	Window(title string, fn func())
	Text(format string, args ...interface{})
	// TreeNode draws a collapsible header and runs fn when it is open. The
	// open state is kept across frames, keyed by the path of labels.
	TreeNode(label string, fn func()) bool
	// SliderFloat edits v in [min, max] by dragging. It reports whether v
	// changed this frame.
	SliderFloat(label string, v *float32, min, max float32) bool
	SliderVec3(label string, v *pmath.Vec3, min, max pmath.Vec3) bool
}

// GUIFunc declares the widgets of one frame.
type GUIFunc func(ui UI)

// Theme colors.
var (
	colorWindow   = pmath.NewVec4(0.06, 0.06, 0.08, 0.86)
	colorTitle    = pmath.NewVec4(0.16, 0.29, 0.48, 1)
	colorHeader   = pmath.NewVec4(0.26, 0.59, 0.98, 0.31)
	colorFrame    = pmath.NewVec4(0.16, 0.29, 0.48, 0.54)
	colorGrab     = pmath.NewVec4(0.24, 0.52, 0.88, 1)
	colorGrabDrag = pmath.NewVec4(0.26, 0.59, 0.98, 1)
	colorText     = pmath.NewVec4(1, 1, 1, 1)
)

const (
	windowWidth  = 340
	padding      = 6
	indent       = 14
	sliderWidth  = 180
	windowMargin = 10
)
