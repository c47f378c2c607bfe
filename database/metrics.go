package database

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/safing/recordstore/log"
)

type storeMetrics struct {
	set *metrics.Set

	cacheHits     *metrics.Counter
	cacheMisses   *metrics.Counter
	droppedEvents *metrics.Counter
}

func newStoreMetrics() *storeMetrics {
	set := metrics.NewSet()
	return &storeMetrics{
		set:           set,
		cacheHits:     set.NewCounter("recordstore_cache_hits_total"),
		cacheMisses:   set.NewCounter("recordstore_cache_misses_total"),
		droppedEvents: set.NewCounter("recordstore_dropped_events_total"),
	}
}

func (m *storeMetrics) registerGauges(s *Store) {
	m.set.NewGauge("recordstore_cache_entries", func() float64 {
		return float64(s.cache.len())
	})
	m.set.NewGauge("recordstore_collection_locks", func() float64 {
		return float64(s.locks.size())
	})
	m.set.NewGauge(`recordstore_log_lines_total{level="warning"}`, func() float64 {
		return float64(log.TotalWarningLogLines())
	})
	m.set.NewGauge(`recordstore_log_lines_total{level="error"}`, func() float64 {
		return float64(log.TotalErrorLogLines())
	})
	m.set.NewGauge(`recordstore_log_lines_total{level="critical"}`, func() float64 {
		return float64(log.TotalCriticalLogLines())
	})
}

func (m *storeMetrics) observe(op Operation, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`recordstore_operations_total{op=%q,outcome=%q}`, op, outcome)).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(`recordstore_operation_duration_seconds{op=%q}`, op)).UpdateDuration(started)
}

// Metrics returns the metrics set of the store, so that related components
// can add their own metrics.
func (s *Store) Metrics() *metrics.Set {
	return s.metrics.set
}

// WriteMetrics writes all metrics of the store in the Prometheus text format.
func (s *Store) WriteMetrics(w io.Writer) {
	s.metrics.set.WritePrometheus(w)
}
