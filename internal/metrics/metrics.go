// Package metrics collects and exposes the storage engine's Prometheus
// metrics: append/replay/snapshot throughput and latency, transaction ops
// dropped during recovery, and the underlying log's size. One struct bundles every
// metric, a single NewCollector builds and registers them all, and a
// StartServer helper exposes them over /metrics.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is the storage engine's Prometheus metric set.
type Collector struct {
	appendsTotal         prometheus.Counter
	appendLatency        prometheus.Histogram
	snapshotsTotal       prometheus.Counter
	snapshotDuration     prometheus.Histogram
	truncationsTotal     prometheus.Counter
	replayDuration       prometheus.Histogram
	replayedRecordsTotal prometheus.Counter
	droppedRecordsTotal  prometheus.Counter
	walBytes             prometheus.Gauge
}

// NewCollector builds and registers the storage engine's metrics against
// the default Prometheus registerer. Constructing a second Collector in the
// same process panics on duplicate registration — a process is expected to
// hold exactly one.
func NewCollector() *Collector {
	c := &Collector{
		appendsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logstorage_appends_total",
			Help: "Total number of transactions and snapshots appended to the log",
		}),
		appendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "logstorage_append_latency_seconds",
			Help:    "Latency of a single append to the underlying log",
			Buckets: prometheus.DefBuckets,
		}),
		snapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logstorage_snapshots_total",
			Help: "Total number of snapshots written",
		}),
		snapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "logstorage_snapshot_duration_seconds",
			Help:    "Time taken to materialize and append a snapshot",
			Buckets: prometheus.DefBuckets,
		}),
		truncationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logstorage_truncations_total",
			Help: "Total number of successful log prefix truncations",
		}),
		replayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "logstorage_replay_duration_seconds",
			Help:    "Time taken to replay the log forward during recovery",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		replayedRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logstorage_replayed_records_total",
			Help: "Total number of transaction ops successfully applied during recovery",
		}),
		droppedRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logstorage_dropped_records_total",
			Help: "Total number of transaction ops silently dropped during recovery (host attributes without a slave id, unresolvable legacy update ids)",
		}),
		walBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logstorage_wal_bytes",
			Help: "Approximate size in bytes of the underlying log",
		}),
	}

	prometheus.MustRegister(c.appendsTotal)
	prometheus.MustRegister(c.appendLatency)
	prometheus.MustRegister(c.snapshotsTotal)
	prometheus.MustRegister(c.snapshotDuration)
	prometheus.MustRegister(c.truncationsTotal)
	prometheus.MustRegister(c.replayDuration)
	prometheus.MustRegister(c.replayedRecordsTotal)
	prometheus.MustRegister(c.droppedRecordsTotal)
	prometheus.MustRegister(c.walBytes)

	return c
}

// RecordAppend records one append's latency.
func (c *Collector) RecordAppend(latencySeconds float64) {
	c.appendsTotal.Inc()
	c.appendLatency.Observe(latencySeconds)
}

// RecordSnapshot records one snapshot write's duration.
func (c *Collector) RecordSnapshot(durationSeconds float64) {
	c.snapshotsTotal.Inc()
	c.snapshotDuration.Observe(durationSeconds)
}

// RecordTruncation records one successful prefix truncation.
func (c *Collector) RecordTruncation() {
	c.truncationsTotal.Inc()
}

// RecordReplay records the recovery pass's total duration and how many
// records it applied versus silently dropped.
func (c *Collector) RecordReplay(durationSeconds float64, applied, dropped int) {
	c.replayDuration.Observe(durationSeconds)
	c.replayedRecordsTotal.Add(float64(applied))
	c.droppedRecordsTotal.Add(float64(dropped))
}

// SetWALBytes reports the underlying log's current approximate size.
func (c *Collector) SetWALBytes(bytes int64) {
	c.walBytes.Set(float64(bytes))
}

// StartServer exposes the registered metrics over /metrics on port.
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
