package testutil

import (
	"fmt"
	"sync"
)

// SequentialPassGenerator names passes "<prefix>-0001", "<prefix>-0002", ...
// It never runs out, unlike engine.FixedGenerator, which suits scenarios
// whose pass count is not known up front. It satisfies
// engine.PassGenerator.
type SequentialPassGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialPassGenerator creates a generator. An empty prefix is
// "pass".
func NewSequentialPassGenerator(prefix string) *SequentialPassGenerator {
	if prefix == "" {
		prefix = "pass"
	}
	return &SequentialPassGenerator{prefix: prefix}
}

// Generate returns the next pass ID.
func (g *SequentialPassGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
