package gpu

import "errors"

var (
	ErrDescriptorPoolExhausted = errors.New("descriptor pool exhausted")
	ErrOutOfDate               = errors.New("swapchain out of date")
	ErrTimeout                 = errors.New("timed out waiting for the GPU")
	ErrDeviceLost              = errors.New("device lost")
	ErrNotRecording            = errors.New("command list is not recording")
)
