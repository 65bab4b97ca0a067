// Package metrics provides Prometheus metrics for a harvesting run
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sources of an asset in the aggregate, and the ways an asset can miss it.
const (
	SourcePrevious  = "previous"
	SourceCache     = "cache"
	SourceExtracted = "extracted"
	SourceFailed    = "failed"
	SourceSkipped   = "skipped"
)

// Metrics holds the Prometheus metrics of one run. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	AssetsTotal         *prometheus.CounterVec
	RemoteBytesTotal    prometheus.Counter
	RemoteRequestsTotal prometheus.Counter
	ExtractDuration     prometheus.Histogram
	RunStartTimeSeconds prometheus.Gauge
	RunDurationSeconds  prometheus.Gauge
	start               time.Time
	remoteBytes         atomic.Uint64
}

// NewMetrics creates the metrics in a registry of their own.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &Metrics{
		Registry: reg,
		start:    time.Now(),
	}

	m.AssetsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nwbmeta_assets_total",
			Help: "Total number of NWB assets by where their metadata came from",
		},
		[]string{"source"},
	)
	for _, src := range []string{SourcePrevious, SourceCache, SourceExtracted, SourceFailed, SourceSkipped} {
		m.AssetsTotal.WithLabelValues(src)
	}

	m.RemoteBytesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "nwbmeta_remote_bytes_total",
			Help: "Total number of bytes read from remote files",
		},
	)

	m.RemoteRequestsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "nwbmeta_remote_requests_total",
			Help: "Total number of range requests to remote files",
		},
	)

	m.ExtractDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nwbmeta_extract_duration_seconds",
			Help:    "Duration of metadata extraction from one remote file",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	m.RunStartTimeSeconds = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "nwbmeta_run_start_time_seconds",
			Help: "Unix time the run started",
		},
	)
	m.RunStartTimeSeconds.Set(float64(m.start.Unix()))

	m.RunDurationSeconds = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "nwbmeta_run_duration_seconds",
			Help: "Duration of the run so far",
		},
	)

	return m
}

// RecordAsset counts one asset under source.
func (m *Metrics) RecordAsset(source string) {
	if m == nil {
		return
	}
	m.AssetsTotal.WithLabelValues(source).Inc()
}

// ObserveFetch counts one remote request of n bytes.
func (m *Metrics) ObserveFetch(n int) {
	if m == nil {
		return
	}
	m.RemoteRequestsTotal.Inc()
	m.RemoteBytesTotal.Add(float64(n))
	m.remoteBytes.Add(uint64(n))
}

// RemoteBytes returns the bytes fetched so far.
func (m *Metrics) RemoteBytes() uint64 {
	if m == nil {
		return 0
	}
	return m.remoteBytes.Load()
}

// ObserveExtract records how long one extraction took.
func (m *Metrics) ObserveExtract(d time.Duration) {
	if m == nil {
		return
	}
	m.ExtractDuration.Observe(d.Seconds())
}

// WriteTextfile writes the metrics for the node exporter's textfile
// collector. An empty filename writes nothing.
func (m *Metrics) WriteTextfile(filename string) error {
	if m == nil || filename == "" {
		return nil
	}
	m.RunDurationSeconds.Set(time.Since(m.start).Seconds())
	if err := prometheus.WriteToTextfile(filename, m.Registry); err != nil {
		return errors.Wrap(err, "writing metrics textfile")
	}
	return nil
}
