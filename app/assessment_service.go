// Package app wires the drift detector, rule engine and anomaly engine
// into the top-level batch assessment entry point.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dataguard/domain/anomaly"
	"dataguard/domain/contract"
	"dataguard/internal/config"
	"dataguard/internal/detector"
	"dataguard/internal/drift"
	"dataguard/internal/rules"
	"dataguard/ports"
)

// AssessmentService runs the full quality assessment for one batch:
// schema drift, rule evaluation and anomaly detection, merged into a
// single report with a pass/fail gate. Its job is to always return a
// report; failures inside any step degrade the report instead of
// raising.
type AssessmentService struct {
	drift     *drift.Detector
	rules     *rules.Engine
	anomalies *detector.Engine
	sink      ports.EventSink
	notifier  ports.AlertNotifier
	cfg       config.Config
	log       *zap.Logger
}

// NewAssessmentService creates the orchestrator. sink and notifier are
// optional; a nil logger is replaced with a nop logger.
func NewAssessmentService(
	driftDetector *drift.Detector,
	ruleEngine *rules.Engine,
	anomalyEngine *detector.Engine,
	sink ports.EventSink,
	notifier ports.AlertNotifier,
	cfg config.Config,
	log *zap.Logger,
) *AssessmentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AssessmentService{
		drift:     driftDetector,
		rules:     ruleEngine,
		anomalies: anomalyEngine,
		sink:      sink,
		notifier:  notifier,
		cfg:       cfg,
		log:       log,
	}
}

// AssessBatch assesses one immutable batch snapshot. Breaking drift
// withholds registration but rule and anomaly evaluation still run
// best-effort against the incoming schema; the report's drift action
// tells callers registration was withheld so they can gate downstream
// writes.
func (s *AssessmentService) AssessBatch(ctx context.Context, tableID string, ds ports.TabularDataset, timestampField string) (*contract.QualityReport, error) {
	if ds == nil {
		return nil, fmt.Errorf("nil dataset for table %s", tableID)
	}

	report := &contract.QualityReport{
		TableID:        tableID,
		BatchTimestamp: time.Now().UTC(),
		RecordCount:    ds.RowCount(),
	}

	driftOutcome, err := s.drift.Detect(ctx, tableID, ds.FieldDescriptors())
	if err != nil {
		// Registration conflicts and store failures degrade the report;
		// assessment continues against the incoming schema. Compatibility
		// stays unknown: nothing was diffed, so nothing may claim full.
		report.Errors = append(report.Errors, fmt.Sprintf("drift detection: %v", err))
		driftOutcome = contract.DriftOutcome{
			TableID:       tableID,
			Compatibility: contract.CompatibilityUnknown,
			Action:        contract.ActionRequiresManualResolution,
		}
	}
	report.Drift = driftOutcome

	// Rule evaluation and anomaly detection read the same snapshot and
	// share no state; run them in parallel.
	var assessment *contract.AssessmentResult
	var anomalyReport *anomaly.Report

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = nil
				s.appendError(report, fmt.Sprintf("rule engine panicked: %v", r))
			}
		}()
		res, aerr := s.rules.Assess(gctx, ds, tableID)
		if aerr != nil {
			s.appendError(report, fmt.Sprintf("rule evaluation: %v", aerr))
			return nil
		}
		assessment = res
		return nil
	})
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = nil
				s.appendError(report, fmt.Sprintf("anomaly engine panicked: %v", r))
			}
		}()
		anomalyReport = s.anomalies.DetectAll(gctx, ds, detector.Request{
			TableID:        tableID,
			TimestampField: timestampField,
		})
		return nil
	})
	_ = g.Wait()

	s.merge(report, assessment, anomalyReport)

	report.Passed = report.OverallScore >= s.cfg.PassThreshold &&
		report.Drift.Compatibility != contract.CompatibilityBreaking

	s.log.Info("batch assessed",
		zap.String("table_id", tableID),
		zap.Int("records", report.RecordCount),
		zap.Float64("overall_score", report.OverallScore),
		zap.String("drift_action", string(report.Drift.Action)),
		zap.Bool("passed", report.Passed))

	s.publish(ctx, report)
	return report, nil
}

func (s *AssessmentService) merge(report *contract.QualityReport, assessment *contract.AssessmentResult, anomalyReport *anomaly.Report) {
	if assessment != nil {
		report.OverallScore = assessment.OverallScore
		report.DimensionScores = assessment.DimensionScores
		report.Issues = assessment.Issues
		report.Recommendations = append(report.Recommendations, assessment.Recommendations...)
		report.TimedOut = report.TimedOut || assessment.TimedOut
	} else {
		// No assessment at all: score conservatively.
		report.OverallScore = 0
		report.DimensionScores = map[contract.QualityDimension]float64{}
	}
	if anomalyReport != nil {
		report.Anomalies = anomalyReport.Anomalies
		report.TimedOut = report.TimedOut || anomalyReport.TimedOut
		for _, me := range anomalyReport.MethodsErrored {
			report.Errors = append(report.Errors, fmt.Sprintf("detector %s: %s", me.Method, me.Error))
		}
	}
	report.Recommendations = append(report.Recommendations, report.Drift.Recommendations...)
}

func (s *AssessmentService) appendError(report *contract.QualityReport, msg string) {
	report.Errors = append(report.Errors, msg)
}

// publish hands the finished report to the event sink and raises an
// alert when the gate failed or critical findings exist. Delivery
// failures are logged, never fatal.
func (s *AssessmentService) publish(ctx context.Context, report *contract.QualityReport) {
	if s.sink != nil {
		if err := s.sink.Publish(ctx, report); err != nil {
			s.log.Warn("report publish failed", zap.String("table_id", report.TableID), zap.Error(err))
		}
	}
	if s.notifier == nil || (report.Passed && !report.HasCritical()) {
		return
	}

	severity := contract.SeverityWarning
	if report.HasCritical() || report.Drift.Compatibility == contract.CompatibilityBreaking {
		severity = contract.SeverityCritical
	}
	alert := ports.Alert{
		Severity:    severity,
		Title:       fmt.Sprintf("Quality gate failed for %s", report.TableID),
		Description: fmt.Sprintf("Overall score %.1f, drift action %s, %d issues, %d anomalies", report.OverallScore, report.Drift.Action, len(report.Issues), len(report.Anomalies)),
		Context: map[string]any{
			"table_id":      report.TableID,
			"overall_score": report.OverallScore,
			"drift_action":  string(report.Drift.Action),
			"record_count":  report.RecordCount,
		},
	}
	if err := s.notifier.Notify(ctx, alert); err != nil {
		s.log.Warn("alert delivery failed", zap.String("table_id", report.TableID), zap.Error(err))
	}
}
