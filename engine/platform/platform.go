package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

var keys = map[glfw.Key]core.KeyCode{
	glfw.KeyEscape: core.KEY_ESCAPE,
	glfw.KeyF1:     core.KEY_F1,
	glfw.KeyF5:     core.KEY_F5,
	glfw.KeySpace:  core.KEY_SPACE,
}

var buttons = map[glfw.MouseButton]core.Button{
	glfw.MouseButtonLeft:   core.BUTTON_LEFT,
	glfw.MouseButtonRight:  core.BUTTON_RIGHT,
	glfw.MouseButtonMiddle: core.BUTTON_MIDDLE,
}

// Platform owns the window and feeds its events into Input. Every method
// must be called from the main goroutine.
type Platform struct {
	Window *glfw.Window
	Input  *core.Input

	resized bool
}

func New(input *core.Input) *Platform {
	if input == nil {
		input = core.NewInput()
	}
	return &Platform{Input: input}
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetMouseButtonCallback(p.mouseButtonCallback)
	p.Window.SetCursorPosCallback(p.cursorPosCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages advances input state by one frame and processes pending
// window events. It returns false once the window was asked to close.
func (p *Platform) PumpMessages() bool {
	p.Input.Update()
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

func (p *Platform) Close() {
	p.Window.SetShouldClose(true)
}

// FramebufferSize is the drawable size in pixels; zero while minimized.
func (p *Platform) FramebufferSize() gpu.Extent2D {
	w, h := p.Window.GetFramebufferSize()
	return gpu.Extent2D{Width: uint32(w), Height: uint32(h)}
}

// Resized reports whether the framebuffer changed size since the last call.
func (p *Platform) Resized() bool {
	r := p.resized
	p.resized = false
	return r
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action == glfw.Repeat {
		return
	}
	if code, ok := keys[key]; ok {
		p.Input.ProcessKey(code, action == glfw.Press)
	}
}

func (p *Platform) mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	if b, ok := buttons[button]; ok {
		p.Input.ProcessButton(b, action == glfw.Press)
	}
}

func (p *Platform) cursorPosCallback(w *glfw.Window, xpos, ypos float64) {
	// The cursor is reported in screen coordinates, the overlay works in pixels.
	ww, wh := w.GetSize()
	fw, fh := w.GetFramebufferSize()
	if ww > 0 && wh > 0 {
		xpos *= float64(fw) / float64(ww)
		ypos *= float64(fh) / float64(wh)
	}
	p.Input.ProcessMouseMove(xpos, ypos)
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	core.LogDebug("Window resize: %d, %d", width, height)
	p.resized = true
}
