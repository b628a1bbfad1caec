// Package events provides the EventSink the engine posts
// HostAttributesChanged to when a host attribute save actually changes
// stored state, using a plain buffered channel rather than a callback
// registry or event-bus abstraction.
package events

import "github.com/clustersched/logstorage/pkg/domain"

// HostAttributesChanged is posted once per successful, state-changing
// SaveHostAttributes call.
type HostAttributesChanged struct {
	Attributes domain.HostAttributes
}

// Sink is a buffered channel of events. Posting to a full sink drops the
// event rather than blocking the caller — publishing must never slow down
// a write scope.
type Sink struct {
	ch chan interface{}
}

// NewSink creates a Sink with the given buffer capacity.
func NewSink(capacity int) *Sink {
	return &Sink{ch: make(chan interface{}, capacity)}
}

// Post enqueues event, dropping it silently if the buffer is full.
func (s *Sink) Post(event interface{}) {
	select {
	case s.ch <- event:
	default:
	}
}

// Events exposes the channel for a consumer to range over.
func (s *Sink) Events() <-chan interface{} {
	return s.ch
}
