// Package metrics collects per-run extraction counters on a private
// Prometheus registry and dumps them in text exposition format, suitable for
// the node_exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	reg *prometheus.Registry

	FilesTotal      prometheus.Counter
	EmptyFilesTotal prometheus.Counter
	RowsTotal       prometheus.Counter
	AudioSeconds    prometheus.Counter
	EmbedDuration   prometheus.Histogram
	RowsPerFile     prometheus.Histogram
	RunDuration     prometheus.Gauge
}

// New registers the run metrics, labelled with the split name.
func New(split string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	labels := prometheus.Labels{"split": split}
	return &Metrics{
		reg: reg,
		FilesTotal: f.NewCounter(prometheus.CounterOpts{
			Name:        "w2vfeat_files_total",
			Help:        "Audio files embedded and committed",
			ConstLabels: labels,
		}),
		EmptyFilesTotal: f.NewCounter(prometheus.CounterOpts{
			Name:        "w2vfeat_empty_files_total",
			Help:        "Files whose feature matrix had zero rows",
			ConstLabels: labels,
		}),
		RowsTotal: f.NewCounter(prometheus.CounterOpts{
			Name:        "w2vfeat_rows_total",
			Help:        "Feature rows appended to the array",
			ConstLabels: labels,
		}),
		AudioSeconds: f.NewCounter(prometheus.CounterOpts{
			Name:        "w2vfeat_audio_seconds_total",
			Help:        "Seconds of audio embedded",
			ConstLabels: labels,
		}),
		EmbedDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:        "w2vfeat_embed_duration_seconds",
			Help:        "Latency of one embedding call",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		RowsPerFile: f.NewHistogram(prometheus.HistogramOpts{
			Name:        "w2vfeat_rows_per_file",
			Help:        "Distribution of feature rows per file",
			ConstLabels: labels,
			Buckets:     []float64{0, 50, 100, 250, 500, 1000, 2000, 5000},
		}),
		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Name:        "w2vfeat_run_duration_seconds",
			Help:        "Wall time of the extraction run",
			ConstLabels: labels,
		}),
	}
}

func (m *Metrics) ObserveFile(rows int, audioSeconds float64, embed time.Duration) {
	m.FilesTotal.Inc()
	if rows == 0 {
		m.EmptyFilesTotal.Inc()
	}
	m.RowsTotal.Add(float64(rows))
	m.AudioSeconds.Add(audioSeconds)
	m.EmbedDuration.Observe(embed.Seconds())
	m.RowsPerFile.Observe(float64(rows))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// WriteFile atomically writes the metrics to path.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}
