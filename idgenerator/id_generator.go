// Package idgenerator hands out generation keys: monotonically increasing
// uint64 values used to identify short-lived entries (such as accepted
// connections) without comparing pointers.
package idgenerator

import "sync/atomic"

// Invalid is never returned by Next and can mark an unassigned key.
const Invalid uint64 = 0

// IdGenerator generates monotonically increasing uint64 keys in a
// concurrency-safe manner. The first key returned is 1.
type IdGenerator struct {
	last atomic.Uint64
}

// NewIdGenerator creates an IdGenerator whose first Next returns 1.
func NewIdGenerator() *IdGenerator {
	return &IdGenerator{}
}

// Next returns the next key by atomically incrementing the counter.
//
// Returns:
//   - A key that has not been returned by this generator before
func (g *IdGenerator) Next() uint64 {
	return g.last.Add(1)
}

// Last returns the most recently issued key, or Invalid if none was issued.
func (g *IdGenerator) Last() uint64 {
	return g.last.Load()
}
