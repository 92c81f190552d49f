// Package alerting provides the default log-backed implementations of
// the report sink and alert notifier ports.
package alerting

import (
	"context"

	"go.uber.org/zap"

	"dataguard/domain/contract"
	"dataguard/ports"
)

// LogSink publishes finished reports as structured log records.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates the sink. A nil logger is replaced with a nop
// logger.
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Publish(ctx context.Context, report *contract.QualityReport) error {
	s.log.Info("quality report",
		zap.String("table_id", report.TableID),
		zap.Time("batch_timestamp", report.BatchTimestamp),
		zap.Int("record_count", report.RecordCount),
		zap.Float64("overall_score", report.OverallScore),
		zap.String("drift_action", string(report.Drift.Action)),
		zap.String("compatibility", string(report.Drift.Compatibility)),
		zap.Int("issues", len(report.Issues)),
		zap.Int("anomalies", len(report.Anomalies)),
		zap.Bool("passed", report.Passed),
		zap.Bool("timed_out", report.TimedOut))
	return nil
}

// LogNotifier writes alerts to the log; warning severity logs at Warn,
// critical at Error.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates the notifier. A nil logger is replaced with a
// nop logger.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, alert ports.Alert) error {
	fields := []zap.Field{
		zap.String("severity", string(alert.Severity)),
		zap.String("title", alert.Title),
		zap.String("description", alert.Description),
		zap.Any("context", alert.Context),
	}
	if alert.Severity == contract.SeverityCritical {
		n.log.Error("quality alert", fields...)
	} else {
		n.log.Warn("quality alert", fields...)
	}
	return nil
}
