package contract

import (
	"time"

	"dataguard/domain/anomaly"
)

// QualityResult is the outcome of one (rule, field) evaluation.
// Results are created fresh per assessment run and never mutated after
// creation; callers persist them if needed.
type QualityResult struct {
	RuleName       string           `json:"rule_name"`
	FieldName      string           `json:"field_name"`
	Dimension      QualityDimension `json:"dimension"`
	Severity       RuleSeverity     `json:"severity"`
	PassedCount    int              `json:"passed_count"`
	ViolationCount int              `json:"violation_count"`
	TotalCount     int              `json:"total_count"`
	Score          float64          `json:"score"` // 0-100
	Passed         bool             `json:"passed"`
	Error          string           `json:"error,omitempty"`
}

// Issue is one actionable quality finding derived from scores and
// thresholds.
type Issue struct {
	Severity       RuleSeverity     `json:"severity"`
	Dimension      QualityDimension `json:"dimension,omitempty"`
	FieldName      string           `json:"field_name,omitempty"`
	Description    string           `json:"description"`
	Recommendation string           `json:"recommendation,omitempty"`
}

// AssessmentResult is the rule engine's output for one batch.
type AssessmentResult struct {
	TableID         string                       `json:"table_id"`
	Results         []QualityResult              `json:"results"`
	DimensionScores map[QualityDimension]float64 `json:"dimension_scores"`
	OverallScore    float64                      `json:"overall_score"`
	Issues          []Issue                      `json:"issues"`
	Recommendations []string                     `json:"recommendations"`
	TimedOut        bool                         `json:"timed_out,omitempty"`
}

// QualityReport is the aggregate root produced once per assessment.
// It is owned exclusively by the caller that requested the assessment;
// the engines never retain a reference after returning it.
type QualityReport struct {
	TableID         string                       `json:"table_id"`
	BatchTimestamp  time.Time                    `json:"batch_timestamp"`
	RecordCount     int                          `json:"record_count"`
	Drift           DriftOutcome                 `json:"drift"`
	OverallScore    float64                      `json:"overall_score"`
	DimensionScores map[QualityDimension]float64 `json:"dimension_scores"`
	Issues          []Issue                      `json:"issues"`
	Anomalies       []anomaly.Result             `json:"anomalies"`
	Recommendations []string                     `json:"recommendations"`
	Passed          bool                         `json:"passed"`
	Errors          []string                     `json:"errors,omitempty"`
	TimedOut        bool                         `json:"timed_out,omitempty"`
}

// HasCritical reports whether the report carries any critical issue or
// critical anomaly, which routes it to the alert notifier.
func (r *QualityReport) HasCritical() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	for _, a := range r.Anomalies {
		if a.Severity == anomaly.SeverityCritical {
			return true
		}
	}
	return false
}
