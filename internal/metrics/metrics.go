// Package metrics holds the Prometheus instruments of a flowmow run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oceanlab/flowmow/pkg/instrument"
)

const namespace = "flowmow"

// Drop reasons.
const (
	ReasonDecode    = "decode"
	ReasonStructure = "structure"
	ReasonRange     = "range"
)

// Metrics holds the Prometheus counters and histograms of the pipeline.
type Metrics struct {
	LinesScanned   *prometheus.CounterVec   // labels: instrument
	RecordsParsed  *prometheus.CounterVec   // labels: instrument
	LinesDropped   *prometheus.CounterVec   // labels: instrument, reason={decode,structure,range}
	ParseErrors    *prometheus.CounterVec   // labels: instrument
	FetchDuration  *prometheus.HistogramVec // labels: outcome={success,error}
	RowsWritten    *prometheus.CounterVec   // labels: sink
	QCIssues       *prometheus.CounterVec   // labels: instrument, type
	LastRunSuccess prometheus.Gauge
}

// New creates the metrics and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LinesScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_scanned_total",
			Help:      "Log lines read, per instrument scanned for.",
		}, []string{"instrument"}),
		RecordsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_parsed_total",
			Help:      "Records extracted from logs and navigation files.",
		}, []string{"instrument"}),
		LinesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_dropped_total",
			Help:      "Lines that produced no record, by reason.",
		}, []string{"instrument", "reason"}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Sources aborted by a payload or format error.",
		}, []string{"instrument"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time to open a remote blob.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Table rows handed to each sink.",
		}, []string{"sink"}),
		QCIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "qc_issues_total",
			Help:      "Sampling checks failed, by issue type.",
		}, []string{"instrument", "type"}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished without error.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.LinesScanned,
			m.RecordsParsed,
			m.LinesDropped,
			m.ParseErrors,
			m.FetchDuration,
			m.RowsWritten,
			m.QCIssues,
			m.LastRunSuccess,
		)
	}

	return m
}

// ObserveScan records the statistics of one scan.
func (m *Metrics) ObserveScan(kind instrument.Kind, s instrument.Stats) {
	k := string(kind)
	m.LinesScanned.WithLabelValues(k).Add(float64(s.Lines))
	m.RecordsParsed.WithLabelValues(k).Add(float64(s.Records))
	m.LinesDropped.WithLabelValues(k, ReasonDecode).Add(float64(s.DecodeErrors))
	m.LinesDropped.WithLabelValues(k, ReasonStructure).Add(float64(s.Malformed))
	m.LinesDropped.WithLabelValues(k, ReasonRange).Add(float64(s.Implausible))
}

// ObserveFetch records how long opening a blob took.
func (m *Metrics) ObserveFetch(d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.FetchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// WriteTextfile writes everything gathered by g to path in the text
// exposition format, for the node exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
