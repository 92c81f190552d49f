// Package detector coordinates the independent anomaly detection
// methods: statistical (z-score, IQR), temporal (volume, seasonal),
// domain heuristics and multivariate. Detectors are embarrassingly
// parallel over one immutable batch; a failing detector is recorded and
// never blocks the others.
package detector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"dataguard/domain/anomaly"
	"dataguard/domain/contract"
	"dataguard/internal/config"
	"dataguard/ports"
)

// Request carries per-batch detection parameters.
type Request struct {
	TableID        string
	TimestampField string
}

// Detector is one independent detection method.
type Detector interface {
	Name() string
	Detect(ctx context.Context, ds ports.TabularDataset, req Request) ([]anomaly.Result, error)
}

// Engine fans detection out over its detectors and merges the results
// into one report with per-method accounting.
type Engine struct {
	detectors []Detector
	cfg       config.AnomalyConfig
	log       *zap.Logger
}

// NewEngine wires the standard detector set. scorer may be
// UnavailableScorer{}; the multivariate method then reports itself as
// skipped instead of failing.
func NewEngine(cfg config.AnomalyConfig, scorer ports.MultivariateScorer, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		detectors: []Detector{
			NewZScore(cfg),
			NewIQR(cfg),
			NewVolumeChange(cfg),
			NewSeasonal(cfg),
			NewDomain(cfg),
			NewMultivariate(cfg, scorer),
		},
		cfg: cfg,
		log: log,
	}
}

type detectorOutcome struct {
	index   int
	name    string
	results []anomaly.Result
	err     error
}

// DetectAll runs every detector concurrently and concatenates results.
// Skips (insufficient data, unavailable scorer) and failures are
// surfaced in the report's method lists, never silently omitted.
func (e *Engine) DetectAll(ctx context.Context, ds ports.TabularDataset, req Request) *anomaly.Report {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	outcomes := make(chan detectorOutcome, len(e.detectors))
	for i, det := range e.detectors {
		go func(idx int, det Detector) {
			outcome := detectorOutcome{index: idx, name: det.Name()}
			defer func() {
				if r := recover(); r != nil {
					outcome.results = nil
					outcome.err = fmt.Errorf("%w: %s panicked: %v", contract.ErrDetector, det.Name(), r)
				}
				outcomes <- outcome
			}()
			outcome.results, outcome.err = det.Detect(ctx, ds, req)
		}(i, det)
	}

	report := &anomaly.Report{
		TotalRecords:     ds.RowCount(),
		CountsByType:     make(map[anomaly.Type]int),
		CountsBySeverity: make(map[anomaly.Severity]int),
	}

	ordered := make([]detectorOutcome, len(e.detectors))
	for range e.detectors {
		o := <-outcomes
		ordered[o.index] = o
	}

	for _, o := range ordered {
		switch {
		case o.err == nil:
			report.MethodsUsed = append(report.MethodsUsed, o.name)
			report.Merge(o.results)
		case contract.IsSkip(o.err):
			report.MethodsSkipped = append(report.MethodsSkipped, anomaly.MethodSkip{
				Method: o.name,
				Reason: o.err.Error(),
			})
			e.log.Debug("detector skipped", zap.String("method", o.name), zap.Error(o.err))
		case errors.Is(o.err, context.DeadlineExceeded) || errors.Is(o.err, context.Canceled):
			report.TimedOut = true
			report.MethodsSkipped = append(report.MethodsSkipped, anomaly.MethodSkip{
				Method: o.name,
				Reason: "deadline exceeded",
			})
			// Partial results produced before expiry stay usable.
			report.Merge(o.results)
		default:
			report.MethodsErrored = append(report.MethodsErrored, anomaly.MethodError{
				Method: o.name,
				Error:  o.err.Error(),
			})
			e.log.Warn("detector failed",
				zap.String("table_id", req.TableID),
				zap.String("method", o.name),
				zap.Error(o.err))
		}
	}

	return report
}

// severityFromPct grades a flagged percentage against tier cutoffs
// ordered critical, high, medium.
func severityFromPct(pct float64, tiers [3]float64) anomaly.Severity {
	switch {
	case pct > tiers[0]:
		return anomaly.SeverityCritical
	case pct > tiers[1]:
		return anomaly.SeverityHigh
	case pct > tiers[2]:
		return anomaly.SeverityMedium
	}
	return anomaly.SeverityLow
}

// anomalyScore normalizes a flagged percentage into the 0-10 band.
func anomalyScore(pct float64) float64 {
	score := pct / 10
	if score > 10 {
		return 10
	}
	return score
}
