// Package schedule runs a function on a fixed interval until stopped, via a
// reusable ticker-plus-stop-channel pattern. The engine uses one instance
// to drive both periodic snapshots and periodic job update history
// pruning.
package schedule

import (
	"log/slog"
	"sync"
	"time"
)

// Service runs runnables on a timer, one ticker goroutine per DoEvery call.
type Service struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopChs []chan struct{}
	log     *slog.Logger
}

// New builds a Service that logs via log (or slog.Default if nil).
func New(log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{log: log}
}

// DoEvery starts running runnable once per interval in its own goroutine.
// It returns immediately; runnable's first invocation happens after the
// first tick, not immediately on start — the engine schedules this only
// once recovery has already run.
func (s *Service) DoEvery(interval time.Duration, runnable func()) {
	stop := make(chan struct{})

	s.mu.Lock()
	s.stopChs = append(s.stopChs, stop)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				runnable()
			}
		}
	}()
}

// Stop signals every running DoEvery loop to exit and waits for them to
// return.
func (s *Service) Stop() {
	s.mu.Lock()
	chs := s.stopChs
	s.stopChs = nil
	s.mu.Unlock()

	for _, ch := range chs {
		close(ch)
	}
	s.wg.Wait()
}
