package wal

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Append failure stages, used as the "stage" label.
const (
	stageEncode   = "encode"
	stageWrite    = "write"
	stageSync     = "fsync"
	stageRollback = "rollback"
	stageClosed   = "closed"
	stagePoisoned = "poisoned"
)

// Metrics holds the Prometheus collectors for one or more logs
type Metrics struct {
	appends          prometheus.Counter
	appendErrors     *prometheus.CounterVec
	appendDuration   prometheus.Histogram
	fsyncDuration    prometheus.Histogram
	replays          prometheus.Counter
	corruptedRecords prometheus.Counter
	lastSequence     prometheus.Gauge
	sizeBytes        prometheus.Gauge
}

// NewMetrics creates the WAL collectors and registers them with reg. A nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		appends: factory.NewCounter(prometheus.CounterOpts{
			Name: "walstore_wal_appends_total",
			Help: "Total number of durably appended log entries",
		}),
		appendErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walstore_wal_append_errors_total",
				Help: "Total number of failed appends by failing stage",
			},
			[]string{"stage"},
		),
		appendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "walstore_wal_append_duration_seconds",
			Help:    "Duration of appends including the fsync",
			Buckets: prometheus.DefBuckets,
		}),
		fsyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "walstore_wal_fsync_duration_seconds",
			Help:    "Duration of the durability fence",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		replays: factory.NewCounter(prometheus.CounterOpts{
			Name: "walstore_wal_replays_total",
			Help: "Total number of full log scans",
		}),
		corruptedRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "walstore_wal_corrupted_records_total",
			Help: "Total number of records skipped during scans because they could not be decoded",
		}),
		lastSequence: factory.NewGauge(prometheus.GaugeOpts{
			Name: "walstore_wal_last_sequence",
			Help: "Highest sequence number assigned",
		}),
		sizeBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "walstore_wal_size_bytes",
			Help: "Current size of the log file in bytes",
		}),
	}
}

func (m *Metrics) observeAppend(start time.Time, seq uint64, size int64) {
	m.appends.Inc()
	m.appendDuration.Observe(time.Since(start).Seconds())
	m.lastSequence.Set(float64(seq))
	m.sizeBytes.Set(float64(size))
}

func (m *Metrics) observeAppendError(stage string) {
	m.appendErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) observeScan(res *ReplayResult) {
	m.replays.Inc()
	m.corruptedRecords.Add(float64(res.Corrupted()))
}
