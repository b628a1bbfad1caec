package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRMutexReentrantLockDoesNotDeadlock(t *testing.T) {
	m := newRMutex()

	outer := m.Lock()
	assert.True(t, outer)

	inner := m.Lock()
	assert.False(t, inner, "a nested Lock on the same goroutine must join, not block")

	m.Unlock()
	m.Unlock()
}

func TestRMutexExcludesOtherGoroutines(t *testing.T) {
	m := newRMutex()
	m.Lock()

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
		m.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("a different goroutine must not acquire the mutex while held")
	case <-time.After(20 * time.Millisecond):
	}

	m.Unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("the other goroutine should acquire the mutex once released")
	}
}

func TestRMutexSerializesConcurrentCriticalSections(t *testing.T) {
	m := newRMutex()
	var counter int
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock()
			defer m.Unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
