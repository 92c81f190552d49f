package contract

import (
	"fmt"
	"strings"
)

// QualityDimension is one axis of data quality, scored independently
// and combined via configured weights.
type QualityDimension string

const (
	DimensionCompleteness QualityDimension = "completeness"
	DimensionValidity     QualityDimension = "validity"
	DimensionConsistency  QualityDimension = "consistency"
	DimensionAccuracy     QualityDimension = "accuracy"
	DimensionTimeliness   QualityDimension = "timeliness"
	DimensionUniqueness   QualityDimension = "uniqueness"
)

// AllDimensions lists every quality dimension in scoring order.
func AllDimensions() []QualityDimension {
	return []QualityDimension{
		DimensionCompleteness,
		DimensionValidity,
		DimensionConsistency,
		DimensionAccuracy,
		DimensionTimeliness,
		DimensionUniqueness,
	}
}

// ParseDimension converts a string into a known QualityDimension.
func ParseDimension(s string) (QualityDimension, error) {
	d := QualityDimension(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllDimensions() {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: unknown dimension %q", ErrInvalidRule, s)
}

// RuleSeverity indicates how serious a rule violation is.
type RuleSeverity string

const (
	SeverityInfo     RuleSeverity = "info"
	SeverityWarning  RuleSeverity = "warning"
	SeverityCritical RuleSeverity = "critical"
)

// ParseSeverity converts a string into a known RuleSeverity.
func ParseSeverity(s string) (RuleSeverity, error) {
	sev := RuleSeverity(strings.ToLower(strings.TrimSpace(s)))
	switch sev {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return sev, nil
	}
	return "", fmt.Errorf("%w: unknown severity %q", ErrInvalidRule, s)
}

// ValidationRule is one configurable data-quality check. Rules are
// matched to fields via FieldPattern and evaluated by the rule engine
// against an immutable batch snapshot. Names are unique within an
// engine; registering a duplicate name overwrites.
type ValidationRule struct {
	Name          string           `json:"name"`
	Description   string           `json:"description,omitempty"`
	Dimension     QualityDimension `json:"dimension"`
	Severity      RuleSeverity     `json:"severity"`
	Predicate     Predicate        `json:"-"`
	FieldPattern  string           `json:"field_pattern"`
	Threshold     *float64         `json:"threshold,omitempty"`
	Enabled       bool             `json:"enabled"`
	AutoRemediate bool             `json:"auto_remediate"`
	Tags          []string         `json:"tags,omitempty"`
}

// Validate rejects malformed rules eagerly, before they enter a
// registry. Uniqueness rules carry no predicate; every other dimension
// requires one.
func (r ValidationRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: rule name is required", ErrInvalidRule)
	}
	if _, err := ParseDimension(string(r.Dimension)); err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	if _, err := ParseSeverity(string(r.Severity)); err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	if strings.TrimSpace(r.FieldPattern) == "" {
		return fmt.Errorf("%w: rule %q has no field pattern", ErrInvalidRule, r.Name)
	}
	if r.Threshold != nil && (*r.Threshold < 0 || *r.Threshold > 100) {
		return fmt.Errorf("%w: rule %q threshold %.2f outside [0,100]", ErrInvalidRule, r.Name, *r.Threshold)
	}
	if r.Dimension == DimensionUniqueness {
		return nil
	}
	if r.Predicate == nil {
		return fmt.Errorf("%w: rule %q has no predicate", ErrInvalidRule, r.Name)
	}
	return nil
}

// HasTag reports whether the rule carries the given tag.
func (r ValidationRule) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
