// Package logmanager opens the underlying log exactly once and hands the
// resulting Stream to a StreamManager built via an injected factory, so
// serializer policy (deflation, deduplication, max entry size) stays a
// caller-configurable concern rather than something the engine hardcodes.
// The log is opened on the first Open call and never reopened for the
// process lifetime.
package logmanager

import (
	"fmt"
	"sync"

	"github.com/clustersched/logstorage/internal/storage/logstream"
)

// Factory builds a StreamManager over an opened Stream. Tests and callers
// that want non-default Options (deflate, no-dedup, small max entry size
// for frame-splitting tests) supply their own factory; production code uses
// NewDefaultFactory.
type Factory func(logstream.Stream) *logstream.Manager

// NewDefaultFactory returns a Factory that applies opts uniformly.
func NewDefaultFactory(opts logstream.Options) Factory {
	return func(stream logstream.Stream) *logstream.Manager {
		return logstream.NewManager(stream, opts)
	}
}

// Manager opens log exactly once across its lifetime and exposes the
// resulting StreamManager. A second Open call after success returns the
// same StreamManager without touching the underlying Log again.
type Manager struct {
	log     logstream.Log
	factory Factory

	mu     sync.Mutex
	stream *logstream.Manager
	opened bool
}

// New builds a Manager around log, using factory to construct the
// StreamManager once the underlying Stream is open.
func New(log logstream.Log, factory Factory) *Manager {
	return &Manager{log: log, factory: factory}
}

// Open opens the underlying log (idempotent) and returns the StreamManager
// built over it.
func (m *Manager) Open() (*logstream.Manager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opened {
		return m.stream, nil
	}

	stream, err := m.log.Open()
	if err != nil {
		return nil, fmt.Errorf("logmanager: open underlying log: %w", err)
	}

	m.stream = m.factory(stream)
	m.opened = true
	return m.stream, nil
}
