// Package metrics exposes detection pipeline counters over Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application counters. Counters are plain atomics so
// the frame loop never touches a Prometheus collector directly; the
// registry reads them lazily on scrape.
type Metrics struct {
	ImageRuns        atomic.Uint64
	VideoRuns        atomic.Uint64
	CameraRuns       atomic.Uint64
	FailedRuns       atomic.Uint64
	FramesProcessed  atomic.Uint64
	DetectionsTotal  atomic.Uint64
	ReportsGenerated atomic.Uint64
	ActiveJobs       atomic.Int64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own Prometheus registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	gauge := func(name, help string, read func() float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help},
			read,
		))
	}

	gauge("oilscan_image_runs_total", "Total image detection runs",
		func() float64 { return float64(m.ImageRuns.Load()) })
	gauge("oilscan_video_runs_total", "Total video detection runs",
		func() float64 { return float64(m.VideoRuns.Load()) })
	gauge("oilscan_camera_runs_total", "Total camera snapshot runs",
		func() float64 { return float64(m.CameraRuns.Load()) })
	gauge("oilscan_failed_runs_total", "Total runs that ended in an error",
		func() float64 { return float64(m.FailedRuns.Load()) })
	gauge("oilscan_frames_processed_total", "Total video frames processed",
		func() float64 { return float64(m.FramesProcessed.Load()) })
	gauge("oilscan_detections_total", "Total oil spill detections across all runs",
		func() float64 { return float64(m.DetectionsTotal.Load()) })
	gauge("oilscan_reports_generated_total", "Total report exports",
		func() float64 { return float64(m.ReportsGenerated.Load()) })
	gauge("oilscan_active_jobs", "Video jobs currently processing",
		func() float64 { return float64(m.ActiveJobs.Load()) })
}

// Handler returns the Prometheus scrape handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
