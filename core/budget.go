package core

import (
	"fmt"
	"sync"
)

// IterationBudget bounds the number of model round-trips a single agentic
// run may take.
type IterationBudget struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewIterationBudget creates a budget with the given ceiling.
// If max == 0, unlimited iterations are allowed.
func NewIterationBudget(max int) *IterationBudget {
	return &IterationBudget{max: max}
}

// Increment consumes one iteration and returns an error once the ceiling is exceeded.
func (b *IterationBudget) Increment() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count++
	if b.max > 0 && b.count > b.max {
		return fmt.Errorf("exceeded max iterations: %d", b.max)
	}

	return nil
}

// Count returns the number of iterations consumed.
func (b *IterationBudget) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}
