package logstream

import "sync"

// MemoryLog is an in-memory Stream: an index-addressed slice guarded by a
// sync.RWMutex, holding opaque append-only byte records identified only by
// Position, with a one-sided TruncateBefore rather than a general
// DeleteRange.
//
// A MemoryLog instance itself implements Stream — Open returns the same
// backing store every call, so a MemoryLog can stand in for a log that
// survives repeated Open calls within one process (e.g. simulating restart
// in tests without touching disk).
type MemoryLog struct {
	mu      sync.RWMutex
	entries []Entry
	nextPos Position
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Open returns the log itself as a Stream.
func (m *MemoryLog) Open() (Stream, error) {
	return m, nil
}

// ReadAll implements Stream.
func (m *MemoryLog) ReadAll(handler func(Entry) error) error {
	m.mu.RLock()
	snapshot := make([]Entry, len(m.entries))
	copy(snapshot, m.entries)
	m.mu.RUnlock()

	for _, e := range snapshot {
		if err := handler(e); err != nil {
			return err
		}
	}
	return nil
}

// Append implements Stream.
func (m *MemoryLog) Append(data []byte) (Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos := m.nextPos
	m.nextPos++
	cp := make([]byte, len(data))
	copy(cp, data)
	m.entries = append(m.entries, Entry{Position: pos, Data: cp})
	return pos, nil
}

// TruncateBefore implements Stream.
func (m *MemoryLog) TruncateBefore(pos Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0:0]
	for _, e := range m.entries {
		if e.Position >= pos {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return nil
}
