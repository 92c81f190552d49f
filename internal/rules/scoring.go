package rules

import (
	"fmt"
	"math"

	"dataguard/domain/contract"
	"dataguard/ports"
)

// aggregateDimensions averages rule scores per (field, dimension), then
// means across fields that have a score for that dimension. Fields with
// no applicable rule for a dimension are excluded from the average, not
// zero-filled, and a dimension with no applicable rules anywhere
// defaults to 100: absence of evidence is not failure.
func aggregateDimensions(results []contract.QualityResult) map[contract.QualityDimension]float64 {
	type key struct {
		field string
		dim   contract.QualityDimension
	}
	sums := make(map[key]float64)
	counts := make(map[key]int)
	for _, r := range results {
		k := key{field: r.FieldName, dim: r.Dimension}
		sums[k] += r.Score
		counts[k]++
	}

	dimSums := make(map[contract.QualityDimension]float64)
	dimCounts := make(map[contract.QualityDimension]int)
	for k, sum := range sums {
		fieldScore := sum / float64(counts[k])
		dimSums[k.dim] += fieldScore
		dimCounts[k.dim]++
	}

	scores := make(map[contract.QualityDimension]float64, len(contract.AllDimensions()))
	for _, dim := range contract.AllDimensions() {
		if n := dimCounts[dim]; n > 0 {
			scores[dim] = dimSums[dim] / float64(n)
		} else {
			scores[dim] = 100
		}
	}
	return scores
}

// overallScore is the weighted sum of dimension scores normalized by
// the total weight actually present. Reported on a two-decimal scale so
// the result is independent of weight iteration order.
func (e *Engine) overallScore(dimScores map[contract.QualityDimension]float64) float64 {
	var weighted, totalWeight float64
	for dim, weight := range e.cfg.DimensionWeights {
		if weight <= 0 {
			continue
		}
		score, ok := dimScores[dim]
		if !ok {
			continue
		}
		weighted += weight * score
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 100
	}
	return math.Round(weighted/totalWeight*100) / 100
}

// buildIssues compares the overall and per-dimension scores against the
// configured critical/warning thresholds and flags fields whose null
// rate exceeds the configured maximum.
func (e *Engine) buildIssues(ds ports.TabularDataset, fields []contract.FieldDescriptor, results []contract.QualityResult, dimScores map[contract.QualityDimension]float64, overall float64) []contract.Issue {
	var issues []contract.Issue

	if overall < e.cfg.CriticalScore {
		issues = append(issues, contract.Issue{
			Severity:       contract.SeverityCritical,
			Description:    fmt.Sprintf("Overall quality score %.1f is below the critical threshold %.1f", overall, e.cfg.CriticalScore),
			Recommendation: "Quarantine this batch and investigate the failing dimensions before downstream use",
		})
	} else if overall < e.cfg.WarningScore {
		issues = append(issues, contract.Issue{
			Severity:       contract.SeverityWarning,
			Description:    fmt.Sprintf("Overall quality score %.1f is below the warning threshold %.1f", overall, e.cfg.WarningScore),
			Recommendation: "Review the lowest-scoring dimensions for this table",
		})
	}

	for _, dim := range contract.AllDimensions() {
		score := dimScores[dim]
		if score < e.cfg.CriticalScore {
			issues = append(issues, contract.Issue{
				Severity:       contract.SeverityCritical,
				Dimension:      dim,
				Description:    fmt.Sprintf("%s score %.1f is below the critical threshold %.1f", dim, score, e.cfg.CriticalScore),
				Recommendation: dimensionRemediation(dim),
			})
		} else if score < e.cfg.WarningScore {
			issues = append(issues, contract.Issue{
				Severity:       contract.SeverityWarning,
				Dimension:      dim,
				Description:    fmt.Sprintf("%s score %.1f is below the warning threshold %.1f", dim, score, e.cfg.WarningScore),
				Recommendation: dimensionRemediation(dim),
			})
		}
	}

	issues = append(issues, e.nullRateIssues(ds, fields)...)
	return issues
}

// nullRateIssues flags fields above the configured null-rate threshold
// even when no completeness rule is registered for them.
func (e *Engine) nullRateIssues(ds ports.TabularDataset, fields []contract.FieldDescriptor) []contract.Issue {
	total := ds.RowCount()
	if total == 0 || e.cfg.MaxNullRatePct <= 0 {
		return nil
	}
	var issues []contract.Issue
	for _, field := range fields {
		nulls, err := ds.CountWhere(field.Name, contract.IsNull)
		if err != nil {
			continue
		}
		pct := 100 * float64(nulls) / float64(total)
		if pct > e.cfg.MaxNullRatePct {
			issues = append(issues, contract.Issue{
				Severity:       contract.SeverityWarning,
				Dimension:      contract.DimensionCompleteness,
				FieldName:      field.Name,
				Description:    fmt.Sprintf("Field %q is %.1f%% null, above the %.1f%% threshold", field.Name, pct, e.cfg.MaxNullRatePct),
				Recommendation: fmt.Sprintf("Verify upstream population of %q or mark the field nullable by contract", field.Name),
			})
		}
	}
	return issues
}

// buildRecommendations derives deterministic, templated advice from
// which dimensions and rules fired.
func (e *Engine) buildRecommendations(results []contract.QualityResult, dimScores map[contract.QualityDimension]float64, issues []contract.Issue) []string {
	var recs []string
	seen := map[string]bool{}
	add := func(rec string) {
		if rec != "" && !seen[rec] {
			seen[rec] = true
			recs = append(recs, rec)
		}
	}

	for _, dim := range contract.AllDimensions() {
		if dimScores[dim] < e.cfg.WarningScore {
			add(dimensionRemediation(dim))
		}
	}

	// Rules tagged with a domain code carry their own remediation
	// context; surface them when they actually failed.
	for _, r := range results {
		if r.Passed || r.Error != "" {
			continue
		}
		if r.Dimension == contract.DimensionValidity {
			add(fmt.Sprintf("Field %q failed validity rule %q: correct the offending records at the source", r.FieldName, r.RuleName))
		}
	}

	for _, issue := range issues {
		if issue.Severity == contract.SeverityCritical {
			add("Critical quality issues present: gate downstream writes until resolved")
			break
		}
	}
	return recs
}

func dimensionRemediation(dim contract.QualityDimension) string {
	switch dim {
	case contract.DimensionCompleteness:
		return "Improve upstream collection so required fields arrive populated"
	case contract.DimensionValidity:
		return "Tighten input validation at the producer for the failing fields"
	case contract.DimensionConsistency:
		return "Reconcile conflicting representations of the same values across sources"
	case contract.DimensionAccuracy:
		return "Cross-check the failing fields against a reference source"
	case contract.DimensionTimeliness:
		return "Investigate ingestion lag for this table"
	case contract.DimensionUniqueness:
		return "Deduplicate the batch or repair the upstream key generation"
	}
	return ""
}
