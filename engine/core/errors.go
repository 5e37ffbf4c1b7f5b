package core

import (
	"errors"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrIDOutOfRange  = errors.New("identifier out of range")
	ErrIDNotAcquired = errors.New("identifier was never acquired")
)
