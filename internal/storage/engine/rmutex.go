package engine

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// rmutex is a reentrant mutex: the goroutine already holding it may lock it
// again without blocking, so a write scope entered from code that already
// holds the mutex joins the outer scope instead of deadlocking. Go's stdlib
// has no reentrant lock because the language has no first-class goroutine
// identity. gate is the real blocking lock held for the critical section's
// whole duration; state (holder/depth) is small bookkeeping protected by
// its own mutex so a goroutine can check "do I already hold gate" without
// blocking on gate itself. goroutineID extracts the runtime's own goroutine
// id from its debug stack trace, the same technique a handful of
// reentrancy-sensitive packages use when no other identity is available;
// it costs one small allocation per Lock call, acceptable since writes are
// not a hot loop here.
type rmutex struct {
	gate sync.Mutex

	state  sync.Mutex
	holder uint64 // 0 means unheld; goroutine ids are never 0
	depth  int
}

func newRMutex() *rmutex {
	return &rmutex{}
}

// Lock acquires the mutex, or increments the reentrancy depth if the
// calling goroutine already holds it. It reports whether this call opened
// the outermost critical section (true) or joined one already open on this
// goroutine (false).
func (m *rmutex) Lock() (outermost bool) {
	gid := goroutineID()

	m.state.Lock()
	if m.holder == gid {
		m.depth++
		m.state.Unlock()
		return false
	}
	m.state.Unlock()

	m.gate.Lock()

	m.state.Lock()
	m.holder = gid
	m.depth = 1
	m.state.Unlock()
	return true
}

// Unlock decrements the reentrancy depth, releasing the mutex entirely once
// the outermost Lock call's matching Unlock runs.
func (m *rmutex) Unlock() {
	m.state.Lock()
	m.depth--
	done := m.depth == 0
	if done {
		m.holder = 0
	}
	m.state.Unlock()

	if done {
		m.gate.Unlock()
	}
}

func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.Fields(buf[:n])[1]
	id, err := strconv.ParseUint(string(field), 10, 64)
	if err != nil {
		panic("engine: could not parse goroutine id: " + err.Error())
	}
	return id
}
