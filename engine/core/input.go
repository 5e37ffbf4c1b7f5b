package core

import "sync"

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// Key code definitions. Only the keys the engine reacts to are tracked.
type KeyCode uint16

const (
	KEY_ESCAPE KeyCode = iota
	KEY_F1
	KEY_F5
	KEY_SPACE
	KEYS_MAX_KEYS
)

// Mouse state structure
type MouseState struct {
	X       float64
	Y       float64
	Buttons [BUTTON_MAX_BUTTONS]bool // button states (pressed/released)
}

// Keyboard state structure
type KeyboardState struct {
	Keys [KEYS_MAX_KEYS]bool
}

// Input holds current and previous states for keyboard and mouse.
// The platform layer writes it from the render goroutine, the overlay
// goroutine reads it, so every access goes through the mutex.
type Input struct {
	mu               sync.Mutex
	keyboardCurrent  KeyboardState
	keyboardPrevious KeyboardState
	mouseCurrent     MouseState
	mousePrevious    MouseState
}

func NewInput() *Input {
	return &Input{}
}

// Update copies current states to previous states. Call once per frame.
func (in *Input) Update() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.keyboardPrevious = in.keyboardCurrent
	in.mousePrevious = in.mouseCurrent
}

func (in *Input) IsKeyDown(key KeyCode) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.keyboardCurrent.Keys[key]
}

func (in *Input) WasKeyDown(key KeyCode) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.keyboardPrevious.Keys[key]
}

// KeyPressed is true on the frame a key went down.
func (in *Input) KeyPressed(key KeyCode) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.keyboardCurrent.Keys[key] && !in.keyboardPrevious.Keys[key]
}

func (in *Input) ProcessKey(key KeyCode, pressed bool) {
	if key >= KEYS_MAX_KEYS {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.keyboardCurrent.Keys[key] = pressed
}

func (in *Input) IsButtonDown(button Button) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mouseCurrent.Buttons[button]
}

func (in *Input) WasButtonDown(button Button) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mousePrevious.Buttons[button]
}

func (in *Input) ProcessButton(button Button, pressed bool) {
	if button >= BUTTON_MAX_BUTTONS {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.mouseCurrent.Buttons[button] = pressed
}

func (in *Input) ProcessMouseMove(x, y float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.mouseCurrent.X = x
	in.mouseCurrent.Y = y
}

func (in *Input) MousePosition() (float64, float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mouseCurrent.X, in.mouseCurrent.Y
}

// Mouse returns a copy of the current mouse state.
func (in *Input) Mouse() MouseState {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mouseCurrent
}
