// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package davstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultOK              = "ok"
	directionDownload     = "download"
	directionUpload       = "upload"
	directionPatchReplace = "patch"
)

// Metrics holds the adapter's collectors. A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bytes      *prometheus.CounterVec
}

// NewMetrics registers the adapter collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zapdav",
				Subsystem: "adapter",
				Name:      "operations_total",
				Help:      "Storage adapter operations by result (ok, not_found, body_unavailable, backend)",
			},
			[]string{"op", "result"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "zapdav",
				Subsystem: "adapter",
				Name:      "operation_duration_seconds",
				Help:      "Time spent in the object store per adapter operation",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		bytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zapdav",
				Subsystem: "adapter",
				Name:      "bytes_total",
				Help:      "Content bytes streamed through the adapter",
			},
			[]string{"direction"}, // download, upload, patch
		),
	}
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := resultOK
	if err != nil {
		result = KindOf(err).String()
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) addBytes(direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.WithLabelValues(direction).Add(float64(n))
}
