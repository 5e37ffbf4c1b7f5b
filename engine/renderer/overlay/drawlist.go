package overlay

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/prism/engine/core"
	pmath "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// Vertex is one overlay vertex. Pos is in pixels until the layer maps it to
// clip space; a negative UV.X marks an untextured vertex.
type Vertex struct {
	Pos   pmath.Vec2
	UV    pmath.Vec2
	Color pmath.Vec4
}

// VertexSize is the byte stride of Vertex in the vertex buffer.
const VertexSize = 8 * 4

var solidUV = pmath.NewVec2(-1, -1)

// rect is a pixel rectangle.
type rect struct {
	X, Y, W, H float32
}

func (r rect) contains(x, y float32) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// DrawList implements UI by turning widgets into triangles. One DrawList
// lives on the overlay goroutine; Reset starts a frame.
type DrawList struct {
	font *Font

	extent    gpu.Extent2D
	mouse     core.MouseState
	prevMouse core.MouseState

	vertices []Vertex
	// open is the tree node state, keyed by label path.
	open map[string]bool
	// active is the slider being dragged.
	active string

	path    []string
	cursorX float32
	cursorY float32
	// nextY is where the next window starts.
	nextY float32
}

func NewDrawList(font *Font) *DrawList {
	if font == nil {
		font = FixedFont(8, 16)
	}
	return &DrawList{font: font, open: map[string]bool{}}
}

func (d *DrawList) Font() *Font { return d.font }

// Reset clears the previous frame's geometry and latches the input state
// widgets react to this frame.
func (d *DrawList) Reset(extent gpu.Extent2D, mouse, prevMouse core.MouseState) {
	d.extent = extent
	d.mouse = mouse
	d.prevMouse = prevMouse
	d.vertices = d.vertices[:0]
	d.path = d.path[:0]
	d.nextY = windowMargin
	if !mouse.Buttons[core.BUTTON_LEFT] {
		d.active = ""
	}
}

func (d *DrawList) Vertices() []Vertex { return d.vertices }

func (d *DrawList) rowHeight() float32 { return d.font.LineHeight + 4 }

func (d *DrawList) id(label string) string {
	if len(d.path) == 0 {
		return label
	}
	return strings.Join(d.path, "/") + "/" + label
}

func (d *DrawList) clicked(r rect) bool {
	down := d.mouse.Buttons[core.BUTTON_LEFT]
	wasDown := d.prevMouse.Buttons[core.BUTTON_LEFT]
	return down && !wasDown && r.contains(float32(d.mouse.X), float32(d.mouse.Y))
}

func (d *DrawList) addRect(r rect, color pmath.Vec4) {
	d.addQuad(quad{
		Min:   pmath.NewVec2(r.X, r.Y),
		Max:   pmath.NewVec2(r.X+r.W, r.Y+r.H),
		UVMin: solidUV,
		UVMax: solidUV,
	}, color)
}

func (d *DrawList) addQuad(q quad, color pmath.Vec4) {
	tl := Vertex{Pos: q.Min, UV: q.UVMin, Color: color}
	br := Vertex{Pos: q.Max, UV: q.UVMax, Color: color}
	tr := Vertex{Pos: pmath.NewVec2(q.Max.X, q.Min.Y), UV: pmath.NewVec2(q.UVMax.X, q.UVMin.Y), Color: color}
	bl := Vertex{Pos: pmath.NewVec2(q.Min.X, q.Max.Y), UV: pmath.NewVec2(q.UVMin.X, q.UVMax.Y), Color: color}
	d.vertices = append(d.vertices, tl, bl, br, tl, br, tr)
}

func (d *DrawList) addText(text string, x, y float32) {
	d.font.layout(text, x, y, func(q quad) { d.addQuad(q, colorText) })
}

func (d *DrawList) Window(title string, fn func()) {
	x := float32(windowMargin)
	y := d.nextY
	row := d.rowHeight()

	// The background goes first so it is drawn below the widgets; its
	// height is only known once fn returned.
	bg := len(d.vertices)
	d.addRect(rect{}, colorWindow)
	d.addRect(rect{X: x, Y: y, W: windowWidth, H: row}, colorTitle)
	d.addText(title, x+padding, y+2)

	d.cursorX = x + padding
	d.cursorY = y + row + padding
	d.path = append(d.path, title)
	fn()
	d.path = d.path[:len(d.path)-1]

	h := d.cursorY + padding - y
	// quadVertices may grow d.vertices, so slice only after it returned.
	vs := d.quadVertices(rect{X: x, Y: y, W: windowWidth, H: h}, colorWindow)
	copy(d.vertices[bg:bg+6], vs)
	d.nextY = y + h + windowMargin
}

func (d *DrawList) quadVertices(r rect, color pmath.Vec4) []Vertex {
	n := len(d.vertices)
	d.addRect(r, color)
	vs := append([]Vertex(nil), d.vertices[n:]...)
	d.vertices = d.vertices[:n]
	return vs
}

func (d *DrawList) Text(format string, args ...interface{}) {
	d.addText(fmt.Sprintf(format, args...), d.cursorX, d.cursorY)
	d.cursorY += d.rowHeight()
}

func (d *DrawList) TreeNode(label string, fn func()) bool {
	id := d.id(label)
	header := rect{X: d.cursorX, Y: d.cursorY, W: windowWidth - (d.cursorX - windowMargin) - padding, H: d.rowHeight()}
	if d.clicked(header) {
		d.open[id] = !d.open[id]
	}
	open := d.open[id]

	marker := "+ "
	if open {
		marker = "- "
	}
	d.addRect(header, colorHeader)
	d.addText(marker+label, header.X+2, header.Y+2)
	d.cursorY += d.rowHeight() + 2

	if open {
		d.path = append(d.path, label)
		d.cursorX += indent
		fn()
		d.cursorX -= indent
		d.path = d.path[:len(d.path)-1]
	}
	return open
}

func (d *DrawList) SliderFloat(label string, v *float32, min, max float32) bool {
	id := d.id(label)
	frame := rect{X: d.cursorX, Y: d.cursorY, W: sliderWidth, H: d.rowHeight()}
	if d.clicked(frame) {
		d.active = id
	}

	changed := false
	if d.active == id && d.mouse.Buttons[core.BUTTON_LEFT] && max > min {
		t := pmath.Clamp((float32(d.mouse.X)-frame.X)/frame.W, 0, 1)
		nv := pmath.Lerp(min, max, t)
		if nv != *v {
			*v = nv
			changed = true
		}
	}

	t := float32(0)
	if max > min {
		t = pmath.Clamp(pmath.InverseLerp(min, max, *v), 0, 1)
	}
	grab := colorGrab
	if d.active == id {
		grab = colorGrabDrag
	}
	d.addRect(frame, colorFrame)
	d.addRect(rect{X: frame.X, Y: frame.Y, W: frame.W * t, H: frame.H}, grab)
	d.addText(fmt.Sprintf("%.3f", *v), frame.X+padding, frame.Y+2)
	d.addText(label, frame.X+frame.W+padding, frame.Y+2)
	d.cursorY += d.rowHeight() + 2
	return changed
}

func (d *DrawList) SliderVec3(label string, v *pmath.Vec3, min, max pmath.Vec3) bool {
	d.addText(label, d.cursorX, d.cursorY)
	d.cursorY += d.rowHeight()

	d.path = append(d.path, label)
	changed := d.SliderFloat("X", &v.X, min.X, max.X)
	changed = d.SliderFloat("Y", &v.Y, min.Y, max.Y) || changed
	changed = d.SliderFloat("Z", &v.Z, min.Z, max.Z) || changed
	d.path = d.path[:len(d.path)-1]
	return changed
}
