package testfixtures

import (
	"strconv"
	"sync"
)

// IDGenerator produces deterministic identifiers for tests. Each prefix has
// its own sequence.
type IDGenerator struct {
	mu       sync.Mutex
	prefix   string
	counters map[string]uint64
}

// NewIDGenerator constructs a generator whose Next uses prefix. When prefix
// is empty, "id" is used.
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix, counters: make(map[string]uint64)}
}

// Next returns the next identifier in the default sequence.
func (g *IDGenerator) Next() string {
	return g.next(g.prefix)
}

// NextFunc exposes Next as a function suitable for dependency injection.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// For returns a generator function for the sequence named prefix.
func (g *IDGenerator) For(prefix string) func() string {
	return func() string { return g.next(prefix) }
}

func (g *IDGenerator) next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[prefix]++
	return prefix + "-" + strconv.FormatUint(g.counters[prefix], 10)
}
