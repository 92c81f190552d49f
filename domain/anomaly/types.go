// Package anomaly defines the closed result types shared by every
// anomaly detector: statistical, temporal, domain-heuristic and
// multivariate findings all reduce to the same Result shape so the
// coordinator can merge them into one report.
package anomaly

import "github.com/google/uuid"

// Type classifies what kind of unusual pattern was detected.
type Type string

const (
	TypeStatisticalOutlier    Type = "statistical_outlier"
	TypePatternDeviation      Type = "pattern_deviation"
	TypeVolumeAnomaly         Type = "volume_anomaly"
	TypeTemporalAnomaly       Type = "temporal_anomaly"
	TypeMultivariateAnomaly   Type = "multivariate_anomaly"
	TypeBusinessRuleViolation Type = "business_rule_violation"
	TypeDataDrift             Type = "data_drift"
	TypeDomainSpecific        Type = "domain_specific"
)

// Severity grades how unusual a finding is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Result is one aggregated anomaly finding. Detectors emit one result
// per (field, method), not one per record; AffectedRecords carries the
// record count.
type Result struct {
	ID              string         `json:"id"`
	Type            Type           `json:"type"`
	Severity        Severity       `json:"severity"`
	FieldName       string         `json:"field_name,omitempty"`
	Description     string         `json:"description"`
	Score           float64        `json:"score"` // 0-10
	AffectedRecords int            `json:"affected_records"`
	Threshold       float64        `json:"threshold"`
	DetectionMethod string         `json:"detection_method"`
	Context         map[string]any `json:"context,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

// NewResult allocates a Result with a fresh id.
func NewResult(t Type, method string) Result {
	return Result{
		ID:              uuid.NewString(),
		Type:            t,
		DetectionMethod: method,
	}
}

// MethodSkip records a detector that was skipped with its documented
// reason (insufficient data, scorer unavailable).
type MethodSkip struct {
	Method string `json:"method"`
	Reason string `json:"reason"`
}

// MethodError records a detector that failed. Failures degrade report
// confidence but never block the other detectors.
type MethodError struct {
	Method string `json:"method"`
	Error  string `json:"error"`
}

// Report is the merged output of one detection run over a batch.
type Report struct {
	TotalRecords     int              `json:"total_records"`
	MethodsUsed      []string         `json:"methods_used"`
	MethodsSkipped   []MethodSkip     `json:"methods_skipped,omitempty"`
	MethodsErrored   []MethodError    `json:"methods_errored,omitempty"`
	Anomalies        []Result         `json:"anomalies"`
	CountsByType     map[Type]int     `json:"counts_by_type"`
	CountsBySeverity map[Severity]int `json:"counts_by_severity"`
	TimedOut         bool             `json:"timed_out,omitempty"`
}

// Merge folds a batch of results into the report's counters.
func (r *Report) Merge(results []Result) {
	if r.CountsByType == nil {
		r.CountsByType = make(map[Type]int)
	}
	if r.CountsBySeverity == nil {
		r.CountsBySeverity = make(map[Severity]int)
	}
	for _, res := range results {
		r.Anomalies = append(r.Anomalies, res)
		r.CountsByType[res.Type]++
		r.CountsBySeverity[res.Severity]++
	}
}
