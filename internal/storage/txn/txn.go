// Package txn coalesces the operations emitted by a possibly-nested write
// scope into a single ordered buffer: a nested `write` call joins the outer
// scope instead of producing its own transaction record, and ops are
// collected in the order their originating store call returns — including
// ops from a nested scope, which land in the buffer at the point the
// nested scope closes, not when the nested call began.
//
// Coalescer is deliberately not safe for concurrent use on its own: the
// engine holds its own reentrant mutex for the whole duration of a write
// scope, one buffer per holder of the mutex, and Coalescer's
// Begin/Append/End are only ever called while that mutex is held by the
// calling goroutine.
package txn

import "github.com/clustersched/logstorage/pkg/schema"

// Coalescer tracks one engine's current write-scope nesting depth and the
// ops buffered for the outermost scope in progress, if any.
type Coalescer struct {
	depth  int
	buffer []schema.Op
}

// New returns an empty Coalescer.
func New() *Coalescer {
	return &Coalescer{}
}

// Begin enters one level of write scope, returning true if this call opened
// the outermost scope (depth 0 -> 1) and false if it joined an
// already-open scope (reentrant nesting).
func (c *Coalescer) Begin() bool {
	c.depth++
	return c.depth == 1
}

// Depth reports the current scope nesting depth (0 when no scope is open).
func (c *Coalescer) Depth() int {
	return c.depth
}

// Append adds op to the buffer for the currently open scope, wherever in
// the nesting it originated.
func (c *Coalescer) Append(op schema.Op) {
	c.buffer = append(c.buffer, op)
}

// End closes one level of write scope. If this call closes the outermost
// scope (depth 1 -> 0), it returns the accumulated ops (nil if none were
// appended) and true; the buffer is reset for the next scope. Otherwise it
// returns nil, false, leaving the buffer intact for the enclosing scope.
func (c *Coalescer) End() (ops []schema.Op, outermost bool) {
	if c.depth == 0 {
		return nil, false
	}
	c.depth--
	if c.depth > 0 {
		return nil, false
	}
	ops = c.buffer
	c.buffer = nil
	return ops, true
}
