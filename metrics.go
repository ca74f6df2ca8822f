package vidstab

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the per-registry collectors. Each Options.Metrics registry
// gets its own set; nothing is registered globally.
type metrics struct {
	jobsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	framesTotal   *prometheus.CounterVec
	lowConfidence prometheus.Counter
	cropScale     prometheus.Gauge
	activeWorkers prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidstab_jobs_total",
			Help: "Total number of stabilization jobs, by status",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vidstab_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidstab_frames_total",
			Help: "Total number of frames processed, by pass",
		}, []string{"pass"}),
		lowConfidence: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vidstab_low_confidence_pairs_total",
			Help: "Frame pairs that fell back to the identity transform",
		}),
		cropScale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vidstab_crop_scale",
			Help: "Crop factor of the most recent job",
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vidstab_active_workers",
			Help: "Number of warp workers currently running",
		}),
	}
	if reg == nil {
		return m
	}

	collectors := []prometheus.Collector{
		m.jobsTotal, m.stageDuration, m.framesTotal, m.lowConfidence, m.cropScale, m.activeWorkers,
	}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			// Reuse collectors already registered by an earlier job.
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				collectors[i] = are.ExistingCollector
			}
		}
	}
	if c, ok := collectors[0].(*prometheus.CounterVec); ok {
		m.jobsTotal = c
	}
	if c, ok := collectors[1].(*prometheus.HistogramVec); ok {
		m.stageDuration = c
	}
	if c, ok := collectors[2].(*prometheus.CounterVec); ok {
		m.framesTotal = c
	}
	if c, ok := collectors[3].(prometheus.Counter); ok {
		m.lowConfidence = c
	}
	if c, ok := collectors[4].(prometheus.Gauge); ok {
		m.cropScale = c
	}
	if c, ok := collectors[5].(prometheus.Gauge); ok {
		m.activeWorkers = c
	}
	return m
}
