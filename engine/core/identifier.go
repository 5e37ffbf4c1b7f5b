package core

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator hands out small integer identifiers, reusing released ones.
// It is safe for concurrent use.
type IDGenerator struct {
	mu     sync.Mutex
	owners []interface{}
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{
		owners: make([]interface{}, 0, 100),
	}
}

// Acquire returns the lowest free id and records owner against it.
func (g *IDGenerator) Acquire(owner interface{}) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range g.owners {
		// Existing free spot. Take it.
		if g.owners[i] == nil {
			g.owners[i] = owner
			return uint32(i)
		}
	}
	g.owners = append(g.owners, owner)
	return uint32(len(g.owners) - 1)
}

// Release makes id available again.
func (g *IDGenerator) Release(id uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if int(id) >= len(g.owners) {
		return fmt.Errorf("release id '%d' (max=%d): %w", id, len(g.owners), ErrIDOutOfRange)
	}
	if g.owners[id] == nil {
		return fmt.Errorf("release id '%d': %w", id, ErrIDNotAcquired)
	}
	g.owners[id] = nil
	return nil
}

// Owner returns whatever was registered for id, nil when free.
func (g *IDGenerator) Owner(id uint32) interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if int(id) >= len(g.owners) {
		return nil
	}
	return g.owners[id]
}

// NewName returns a unique, human readable name such as "texture-6f1c...".
func (g *IDGenerator) NewName(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}
