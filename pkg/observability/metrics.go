package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the reconstruction pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Scan metrics
	SegmentsScannedTotal *prometheus.CounterVec
	ScanFailuresTotal    *prometheus.CounterVec

	// Stage metrics
	StageSeconds *prometheus.HistogramVec

	// Analysis metrics
	AnalysesTotal    *prometheus.CounterVec
	AnalysisCacheHit *prometheus.CounterVec

	// Compile metrics
	ConversionsTotal      *prometheus.CounterVec
	CompiledSegmentsTotal prometheus.Counter
	CompiledAudioSeconds  prometheus.Histogram
	ArtifactsTotal        *prometheus.CounterVec
}

// NewMetrics creates a new set of pipeline metrics registered on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SegmentsScannedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxreel_segments_scanned_total",
				Help: "Total audio files examined by the scanner",
			},
			[]string{"status"},
		),
		ScanFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxreel_scan_failures_total",
				Help: "Files skipped during scanning, by stage and error code",
			},
			[]string{"stage", "code"},
		),
		StageSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voxreel_stage_seconds",
				Help:    "Wall time per pipeline stage",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			},
			[]string{"stage"},
		),
		AnalysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxreel_analyses_total",
				Help: "Total segment analyses by outcome",
			},
			[]string{"status"},
		),
		AnalysisCacheHit: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxreel_analysis_cache_lookups_total",
				Help: "Analysis cache lookups by result",
			},
			[]string{"result"},
		),
		ConversionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxreel_format_conversions_total",
				Help: "Format conversions applied while compiling",
			},
			[]string{"kind"},
		),
		CompiledSegmentsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "voxreel_compiled_segments_total",
				Help: "Segments appended to compiled artifacts",
			},
		),
		CompiledAudioSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "voxreel_compiled_audio_seconds",
				Help:    "Duration of compiled artifacts",
				Buckets: []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 7200, 14400},
			},
		),
		ArtifactsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxreel_artifacts_total",
				Help: "Compilation attempts by outcome",
			},
			[]string{"status"},
		),
	}
}

// NewRegistry returns a fresh registry with pipeline metrics registered on it.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, NewMetrics(reg)
}

// WriteTextfile writes every metric gathered from g to path in the text
// exposition format read by node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}

// RecordScanned records one examined file.
func (m *Metrics) RecordScanned(status string) {
	if m == nil {
		return
	}
	m.SegmentsScannedTotal.WithLabelValues(status).Inc()
}

// RecordScanFailure records a skipped file.
func (m *Metrics) RecordScanFailure(stage, code string) {
	if m == nil {
		return
	}
	m.ScanFailuresTotal.WithLabelValues(stage, code).Inc()
}

// RecordStage records how long a stage took.
func (m *Metrics) RecordStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordAnalysis records an analysis outcome.
func (m *Metrics) RecordAnalysis(status string) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(status).Inc()
}

// RecordCacheLookup records an analysis cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.AnalysisCacheHit.WithLabelValues(result).Inc()
}

// RecordConversion records a format conversion such as resampling.
func (m *Metrics) RecordConversion(kind string) {
	if m == nil {
		return
	}
	m.ConversionsTotal.WithLabelValues(kind).Inc()
}

// RecordArtifact records a compilation outcome.
func (m *Metrics) RecordArtifact(status string, segments int, seconds float64) {
	if m == nil {
		return
	}
	m.ArtifactsTotal.WithLabelValues(status).Inc()
	if status == StatusSuccess {
		m.CompiledSegmentsTotal.Add(float64(segments))
		m.CompiledAudioSeconds.Observe(seconds)
	}
}

// Outcome labels.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
	StatusCached  = "cached"
)
