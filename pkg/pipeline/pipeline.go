// Package pipeline turns the instrument logs of a set of dives into
// calibrated tables and delivers them to sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/oceanlab/flowmow/internal/metrics"
	"github.com/oceanlab/flowmow/pkg/blob"
	"github.com/oceanlab/flowmow/pkg/calib"
	"github.com/oceanlab/flowmow/pkg/config"
	"github.com/oceanlab/flowmow/pkg/instrument"
	"github.com/oceanlab/flowmow/pkg/output"
	"github.com/oceanlab/flowmow/pkg/parser"
	"github.com/oceanlab/flowmow/pkg/qc"
	"github.com/oceanlab/flowmow/pkg/sink"
	"github.com/oceanlab/flowmow/pkg/table"
)

// ErrNoFetcher is returned when a source names blobs but no fetcher is set.
var ErrNoFetcher = errors.New("source has blobs but no retrieval backend is configured")

// Pipeline processes dives source by source.
type Pipeline struct {
	fetcher     blob.Fetcher
	sinks       []sink.Sink
	calibration config.CalibrationConfig
	where       string

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	clock   clockwork.Clock
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFetcher sets the backend used to open blob inputs.
func WithFetcher(f blob.Fetcher) Option {
	return func(p *Pipeline) {
		p.fetcher = f
	}
}

// WithSinks sets the destinations of assembled tables.
func WithSinks(sinks ...sink.Sink) Option {
	return func(p *Pipeline) {
		p.sinks = append(p.sinks, sinks...)
	}
}

// WithCalibration sets the coefficients applied to assembled tables.
func WithCalibration(c config.CalibrationConfig) Option {
	return func(p *Pipeline) {
		p.calibration = c
	}
}

// WithWhere filters the rows of every table.
func WithWhere(where string) Option {
	return func(p *Pipeline) {
		p.where = where
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithMetrics sets the metrics updated while running.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithClock sets the clock used for timings and report metadata.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) {
		p.clock = c
	}
}

// New creates a pipeline. Without options it has no sinks, an unregistered
// set of metrics, a no-op logger and the real clock.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = zap.NewNop().Sugar()
	}
	if p.metrics == nil {
		p.metrics = metrics.New(nil)
	}
	if p.clock == nil {
		p.clock = clockwork.NewRealClock()
	}
	return p
}

// Run processes every source of every dive in order and returns the run
// report. A failing source stops the run; the returned report then covers
// the sources completed before it.
func (p *Pipeline) Run(ctx context.Context, configFile string, dives []config.DiveConfig) (*output.Report, error) {
	started := p.clock.Now()
	var summaries []output.SourceSummary

	for _, dive := range dives {
		for _, src := range dive.Sources {
			summary, err := p.ProcessSource(ctx, dive.Number, src)
			if err != nil {
				report := output.NewReport(configFile, started, p.clock.Now(), summaries)
				return report, fmt.Errorf("dive %d %s: %w", dive.Number, src.Instrument, err)
			}
			summaries = append(summaries, summary)
		}
	}

	finished := p.clock.Now()
	p.metrics.LastRunSuccess.Set(float64(finished.Unix()))

	report := output.NewReport(configFile, started, finished, summaries)
	p.logger.Infow("run complete",
		"dives", report.Summary.Dives,
		"sources", report.Summary.Sources,
		"records", report.Summary.Records,
		"dropped", report.Summary.Dropped,
		"duration", report.Metadata.Duration,
	)
	return report, nil
}

// ProcessSource reads, assembles, calibrates, filters and delivers the
// table of one instrument of one dive.
func (p *Pipeline) ProcessSource(ctx context.Context, dive int, src config.SourceConfig) (output.SourceSummary, error) {
	kind, err := instrument.ParseKind(src.Instrument)
	if err != nil {
		return output.SourceSummary{}, err
	}

	log := p.logger.With("dive", dive, "instrument", kind)
	summary := output.SourceSummary{Dive: dive, Instrument: kind}

	inputs, err := p.inputs(src)
	if err != nil {
		return summary, err
	}

	var seqs [][]instrument.Record
	for _, in := range inputs {
		summary.Inputs = append(summary.Inputs, in.name)

		recs, stats, err := p.read(ctx, kind, dive, in)
		if err != nil {
			if isFormatFailure(err) {
				p.metrics.ParseErrors.WithLabelValues(string(kind)).Inc()
			}
			return summary, err
		}
		summary.Stats.Add(stats)
		seqs = append(seqs, recs)

		if kind.IsText() {
			p.metrics.ObserveScan(kind, stats)
			if stats.Dropped() > 0 || stats.DecodeErrors > 0 {
				log.Debugw("lines dropped",
					"input", in.name,
					"malformed", stats.Malformed,
					"implausible", stats.Implausible,
					"decode_errors", stats.DecodeErrors,
				)
			}
		} else {
			p.metrics.RecordsParsed.WithLabelValues(string(kind)).Add(float64(stats.Records))
		}
	}

	merged := instrument.Merge(seqs...)
	if rules := src.Rules(); rules.Enabled() {
		summary.Issues = qc.Check(merged, rules)
		for _, issue := range summary.Issues {
			p.metrics.QCIssues.WithLabelValues(string(kind), string(issue.Type)).Inc()
			log.Warnw("sampling check failed", "type", issue.Type, "issue", issue.Description)
		}
	}

	t, err := table.Assemble(kind, merged)
	if err != nil {
		return summary, err
	}

	if err := p.calibrate(kind, t); err != nil {
		return summary, err
	}

	for _, where := range []string{p.where, src.Where} {
		if t, err = t.Where(where); err != nil {
			return summary, err
		}
	}
	summary.Rows = t.Len()

	for _, s := range p.sinks {
		dest, err := s.Write(ctx, dive, t)
		if err != nil {
			return summary, fmt.Errorf("%s sink: %w", s.Name(), err)
		}
		p.metrics.RowsWritten.WithLabelValues(s.Name()).Add(float64(t.Len()))
		summary.Outputs = append(summary.Outputs, dest)
		log.Infow("table written", "sink", s.Name(), "dest", dest, "rows", t.Len())
	}

	if summary.Stats.Records == 0 {
		log.Warnw("source produced no records", "inputs", summary.Inputs, "lines", summary.Stats.Lines)
	}
	return summary, nil
}

// input is one file or blob of a source.
type input struct {
	name string
	blob bool
}

func (p *Pipeline) inputs(src config.SourceConfig) ([]input, error) {
	var inputs []input
	for _, id := range src.Blobs {
		inputs = append(inputs, input{name: id, blob: true})
	}

	if len(src.Files) > 0 {
		files, err := parser.ExpandGlobs(src.Files)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			inputs = append(inputs, input{name: f})
		}
	}
	return inputs, nil
}

func (p *Pipeline) open(ctx context.Context, in input) (io.ReadCloser, error) {
	if !in.blob {
		f, err := os.Open(in.name) // #nosec G304 -- paths come from the run configuration
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", in.name, err)
		}
		return f, nil
	}

	if p.fetcher == nil {
		return nil, fmt.Errorf("blob %s: %w", in.name, ErrNoFetcher)
	}

	start := p.clock.Now()
	rc, err := p.fetcher.Fetch(ctx, in.name)
	elapsed := p.clock.Since(start)
	p.metrics.ObserveFetch(elapsed, err)
	if err != nil {
		return nil, err
	}
	p.logger.Debugw("blob opened", "id", in.name, "elapsed", elapsed)
	return rc, nil
}

// read turns one input into records in input order.
func (p *Pipeline) read(ctx context.Context, kind instrument.Kind, dive int, in input) ([]instrument.Record, instrument.Stats, error) {
	rc, err := p.open(ctx, in)
	if err != nil {
		return nil, instrument.Stats{}, err
	}

	if kind == instrument.Navigation {
		defer rc.Close()

		samples, err := instrument.ReadNavigation(in.name, rc, dive)
		if err != nil {
			return nil, instrument.Stats{}, err
		}
		recs := make([]instrument.Record, len(samples))
		for i, s := range samples {
			recs[i] = s
		}
		return recs, instrument.Stats{Records: len(recs)}, nil
	}

	d, ok := instrument.Lookup(kind)
	if !ok {
		rc.Close()
		return nil, instrument.Stats{}, fmt.Errorf("no recognizer for %s", kind)
	}

	res, err := instrument.ScanReader(ctx, in.name, rc, d, dive)
	if err != nil {
		return nil, instrument.Stats{}, err
	}
	return res.Records, res.Stats, nil
}

func (p *Pipeline) calibrate(kind instrument.Kind, t *table.Table) error {
	switch kind {
	case instrument.Paros:
		if c := p.calibration.Paros; c != nil {
			return calib.ApplyParos(t, *c)
		}
	case instrument.SBE3:
		if c := p.calibration.SBE3; c != nil {
			return calib.ApplySBE3(t, c.Channel0, c.Channel1)
		}
	}
	return nil
}

// isFormatFailure reports whether err means the content of an input did not
// match its format, as opposed to the input being unavailable.
func isFormatFailure(err error) bool {
	var pe *instrument.ParseError
	var fe *instrument.FormatError
	return errors.As(err, &pe) || errors.As(err, &fe)
}
