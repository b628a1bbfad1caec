// Package engine implements the log-backed storage engine: lifecycle
// orchestration (prepare, start, write, snapshot, stop), mutation routing
// through the domain stores and the append-only log, and replay dispatch
// during recovery. A single struct holds every collaborator, a
// mutex-guarded critical section wraps state mutation, and startup follows
// a restore-then-replay-then-go sequence, driven by a reentrant mutex plus
// scheduled snapshot and prune loops.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/clustersched/logstorage/internal/metrics"
	"github.com/clustersched/logstorage/internal/storage/events"
	"github.com/clustersched/logstorage/internal/storage/logmanager"
	"github.com/clustersched/logstorage/internal/storage/logstream"
	"github.com/clustersched/logstorage/internal/storage/schedule"
	"github.com/clustersched/logstorage/internal/storage/stores"
	"github.com/clustersched/logstorage/internal/storage/txn"
	"github.com/clustersched/logstorage/pkg/schema"
)

var log = slog.Default()

// SnapshotProvider is the external collaborator that can materialize and
// restore the full domain state as a single snapshot value.
type SnapshotProvider interface {
	CreateSnapshot(timestampMs int64) schema.Snapshot
	ApplySnapshot(snap schema.Snapshot)
}

// Options configures the engine's periodic snapshot and history-pruning
// cadence.
type Options struct {
	SnapshotInterval time.Duration

	// PruneInterval, if positive, schedules a second periodic job
	// (alongside snapshotting) that runs PruneJobUpdateHistory on the same
	// SchedulingService, matching Aurora's LogStorage running pruning on
	// its own timer rather than only inside an explicit write (see
	// SPEC_FULL.md's supplemented-features section).
	PruneInterval     time.Duration
	PrunePerJobRetain int
	PruneThresholdMs  int64
}

// Engine is the storage engine: it fronts a Stores bundle with a
// write-ahead log, replays that log on start, and periodically snapshots.
type Engine struct {
	logMgr    *logmanager.Manager
	stores    stores.Stores
	snapshots SnapshotProvider
	scheduler *schedule.Service
	eventSink *events.Sink
	opts      Options

	mu        *rmutex
	coalescer *txn.Coalescer
	stream    *logstream.Manager
	metrics   *metrics.Collector

	poisoned        bool
	pendingTruncate *logstream.Position

	// recoveryApplied/recoveryDropped tally the most recent Start call's
	// replay pass, reported to metrics as one RecordReplay call rather
	// than one per record.
	recoveryApplied int
	recoveryDropped int
}

// New builds an Engine. eventSink and collector may both be nil: eventSink
// if no caller wants HostAttributesChanged notifications, collector if the
// process runs without Prometheus instrumentation.
func New(logMgr *logmanager.Manager, st stores.Stores, snapshots SnapshotProvider, scheduler *schedule.Service, eventSink *events.Sink, opts Options, collector *metrics.Collector) *Engine {
	if opts.SnapshotInterval <= 0 {
		opts.SnapshotInterval = 5 * time.Minute
	}
	return &Engine{
		logMgr:    logMgr,
		stores:    st,
		snapshots: snapshots,
		scheduler: scheduler,
		eventSink: eventSink,
		opts:      opts,
		mu:        newRMutex(),
		coalescer: txn.New(),
		metrics:   collector,
	}
}

// Prepare is idempotent; this reference implementation's in-memory stores
// need no separate preparation step, unlike a database-backed store that
// might need to run migrations here.
func (e *Engine) Prepare() error {
	return nil
}

// Start opens the log, replays every record forward through the domain
// stores, runs initializationWork (if non-nil) inside the same write
// scope so any mutations it makes are coalesced into one trailing
// transaction, then schedules periodic snapshots.
func (e *Engine) Start(initializationWork func(*Mutations) error) (err error) {
	e.mu.Lock()
	e.coalescer.Begin()
	defer func() {
		ops, outermost := e.coalescer.End()
		if !outermost {
			e.mu.Unlock()
			return
		}
		if err == nil && len(ops) > 0 {
			if appendErr := e.appendTransaction(ops); appendErr != nil {
				e.poisoned = true
				err = fmt.Errorf("engine: start: append initialization transaction: %w", appendErr)
			}
		}
		e.mu.Unlock()
	}()

	stream, openErr := e.logMgr.Open()
	if openErr != nil {
		return fmt.Errorf("engine: start: %w", openErr)
	}
	e.stream = stream

	e.recoveryApplied, e.recoveryDropped = 0, 0
	start := time.Now()
	if replayErr := e.stream.ReadFromBeginning(e.replayRecord); replayErr != nil {
		return replayErr
	}
	duration := time.Since(start)
	log.Info("recovery completed", "duration", duration, "applied", e.recoveryApplied, "dropped", e.recoveryDropped)
	if e.metrics != nil {
		e.metrics.RecordReplay(duration.Seconds(), e.recoveryApplied, e.recoveryDropped)
	}

	if initializationWork != nil {
		if initErr := initializationWork(&Mutations{e: e}); initErr != nil {
			err = &StoreError{Cause: initErr}
			return err
		}
	}

	if e.scheduler != nil {
		e.scheduler.DoEvery(e.opts.SnapshotInterval, e.snapshotTick)
		if e.opts.PruneInterval > 0 {
			e.scheduler.DoEvery(e.opts.PruneInterval, e.pruneTick)
		}
	}
	return nil
}

// pruneTick runs PruneJobUpdateHistory inside its own write scope, on the
// same SchedulingService that drives snapshotTick.
func (e *Engine) pruneTick() {
	_, err := Write(e, func(m *Mutations) (struct{}, error) {
		m.PruneJobUpdateHistory(e.opts.PrunePerJobRetain, e.opts.PruneThresholdMs)
		return struct{}{}, nil
	})
	if err != nil {
		log.Error("scheduled job update history pruning failed", "error", err)
	}
}

// Write establishes (or joins, if called reentrantly on the same
// goroutine) a write scope, running work against a Mutations facade that
// forwards each store call to both the domain store and the scope's
// operation buffer. On the outermost scope's completion, a non-empty
// buffer is appended as a single Transaction.
func Write[T any](e *Engine, work func(*Mutations) (T, error)) (result T, err error) {
	e.mu.Lock()
	e.coalescer.Begin()
	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(*StoreError)
			if !ok {
				panic(r)
			}
			err = se
		}

		ops, outermost := e.coalescer.End()
		if !outermost {
			e.mu.Unlock()
			return
		}
		if err == nil && len(ops) > 0 {
			if appendErr := e.appendTransaction(ops); appendErr != nil {
				e.poisoned = true
				err = fmt.Errorf("engine: write: %w", appendErr)
			}
		}
		e.mu.Unlock()
	}()

	// Checked under e.mu so a concurrent Write that poisons the engine
	// during its own append-failure handling can't unlock and let this
	// goroutine proceed against the domain stores anyway.
	if e.poisoned {
		return result, ErrEnginePoisoned
	}

	result, err = work(&Mutations{e: e})
	return result, err
}

// appendTransaction writes ops to the log, timing the append for metrics.
func (e *Engine) appendTransaction(ops []schema.Op) error {
	start := time.Now()
	_, err := e.stream.WriteTransaction(ops)
	if err == nil && e.metrics != nil {
		e.metrics.RecordAppend(time.Since(start).Seconds())
	}
	return err
}

// Read runs work against the domain stores directly, with no locking or
// buffering — the read-only path delegates straight through. Individual
// stores are responsible for their own read-path concurrency safety.
func Read[T any](e *Engine, work func(stores.Stores) (T, error)) (T, error) {
	return work(e.stores)
}

// Snapshot synchronously takes a fresh snapshot, appends it, and truncates
// the log prefix before it, returning the snapshot that was written (the
// zero value if only a pending truncate was retried). If a prior call's
// truncate failed after its append already succeeded, this call retries
// only the truncate against the previously recorded position instead of
// writing a duplicate snapshot.
func (e *Engine) Snapshot() (schema.Snapshot, error) {
	e.mu.Lock()
	e.coalescer.Begin()
	defer func() {
		e.coalescer.End()
		e.mu.Unlock()
	}()

	if e.poisoned {
		return schema.Snapshot{}, ErrEnginePoisoned
	}

	if e.pendingTruncate != nil {
		pos := *e.pendingTruncate
		if err := e.stream.TruncateBefore(pos); err != nil {
			return schema.Snapshot{}, err
		}
		e.pendingTruncate = nil
		if e.metrics != nil {
			e.metrics.RecordTruncation()
		}
		return schema.Snapshot{}, nil
	}

	start := time.Now()
	snap := e.snapshots.CreateSnapshot(time.Now().UnixMilli())
	pos, err := e.stream.WriteSnapshot(snap)
	if err != nil {
		return schema.Snapshot{}, err
	}
	if e.metrics != nil {
		e.metrics.RecordSnapshot(time.Since(start).Seconds())
	}
	if err := e.stream.TruncateBefore(pos); err != nil {
		e.pendingTruncate = &pos
		return schema.Snapshot{}, err
	}
	if e.metrics != nil {
		e.metrics.RecordTruncation()
	}
	return snap, nil
}

// snapshotTick is the periodic executor's runnable: failures log and skip,
// the next tick retries.
func (e *Engine) snapshotTick() {
	if _, err := e.Snapshot(); err != nil {
		log.Error("scheduled snapshot failed, will retry next tick", "error", err)
		return
	}
	if e.metrics != nil {
		if size, err := e.stream.Size(); err == nil {
			e.metrics.SetWALBytes(size)
		}
	}
}

// Stop halts scheduled snapshots. Nothing is flushed: the log is
// append-only and every completed write is already durable.
func (e *Engine) Stop() {
	if e.scheduler != nil {
		e.scheduler.Stop()
	}
}
