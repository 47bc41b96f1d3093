package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Directory operation metrics. They live in a standalone package so that the client facade and
// the HTTP API can share them without import cycles.

var (
	OperationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clusterdir_operation_duration_seconds",
		Help:    "Latency of directory operations",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"operation"})

	OperationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clusterdir_operation_errors_total",
		Help: "Failed directory operations by error kind",
	}, []string{"operation", "kind"})

	SkippedWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clusterdir_skipped_writes_total",
		Help: "Writes avoided because the stored value was unchanged",
	})
)

// Register registers the directory metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{OperationLatency, OperationErrors, SkippedWrites} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// Observe records the outcome of one operation started at start. kind classifies err; it is
// ignored when err is nil.
func Observe(operation string, start time.Time, err error, kind func(error) string) {
	OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		OperationErrors.WithLabelValues(operation, kind(err)).Inc()
	}
}
