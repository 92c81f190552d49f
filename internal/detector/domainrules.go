package detector

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"dataguard/domain/anomaly"
	"dataguard/domain/contract"
	"dataguard/internal/config"
	"dataguard/ports"
)

// Domain runs the configured business heuristics. Every heuristic is
// independent, returns at most one aggregated result, and knows field
// names only from configuration: domain-specific instantiations are
// config values, never hardcoded rules.
type Domain struct {
	cfg config.AnomalyConfig
}

// NewDomain creates the domain-heuristic detector.
func NewDomain(cfg config.AnomalyConfig) *Domain {
	return &Domain{cfg: cfg}
}

func (d *Domain) Name() string { return "domain_heuristics" }

func (d *Domain) Detect(ctx context.Context, ds ports.TabularDataset, req Request) ([]anomaly.Result, error) {
	if len(d.cfg.ValueRanges) == 0 && len(d.cfg.Activity) == 0 {
		return nil, fmt.Errorf("%w: no domain heuristics configured", contract.ErrInsufficientData)
	}

	var results []anomaly.Result
	for _, h := range d.cfg.ValueRanges {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := d.valueRange(ds, h)
		if err != nil {
			return results, err
		}
		if res != nil {
			results = append(results, *res)
		}
	}
	for _, h := range d.cfg.Activity {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := d.activity(ds, h)
		if err != nil {
			return results, err
		}
		if res != nil {
			results = append(results, *res)
		}
	}
	return results, nil
}

// valueRange flags zero-value and extreme-value clusters on one numeric
// field.
func (d *Domain) valueRange(ds ports.TabularDataset, h config.ValueRangeHeuristic) (*anomaly.Result, error) {
	values, err := collectNumeric(ds, h.Field)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	zeros, outOfRange, flagged := 0, 0, 0
	for _, v := range values {
		isZero := v == 0
		isOut := v < h.Min || v > h.Max
		if isZero {
			zeros++
		}
		if isOut {
			outOfRange++
		}
		if isZero || isOut {
			flagged++
		}
	}
	zeroShare := float64(zeros) / float64(len(values))
	outShare := float64(outOfRange) / float64(len(values))

	zeroExceeded := h.MaxZeroShare > 0 && zeroShare > h.MaxZeroShare
	outExceeded := h.MaxOutShare > 0 && outShare > h.MaxOutShare
	if !zeroExceeded && !outExceeded {
		return nil, nil
	}

	worstGroup := ""
	if h.GroupBy != "" {
		worstGroup = d.worstGroup(ds, h)
	}

	ratio := 1.0
	if zeroExceeded && h.MaxZeroShare > 0 {
		ratio = zeroShare / h.MaxZeroShare
	}
	if outExceeded && h.MaxOutShare > 0 && outShare/h.MaxOutShare > ratio {
		ratio = outShare / h.MaxOutShare
	}

	res := anomaly.NewResult(anomaly.TypeBusinessRuleViolation, d.Name())
	res.FieldName = h.Field
	res.Severity = severityFromRatio(ratio, d.cfg.HeuristicSeverityTiers)
	res.Score = clampScore(ratio * 2.5)
	res.AffectedRecords = flagged
	res.Threshold = h.Max
	res.Description = fmt.Sprintf("Heuristic %q: %.1f%% zero values and %.1f%% outside [%.2f, %.2f] in %q",
		h.Name, zeroShare*100, outShare*100, h.Min, h.Max, h.Field)
	res.Context = map[string]any{
		"heuristic":    h.Name,
		"zero_share":   zeroShare,
		"out_share":    outShare,
		"sample_size":  len(values),
	}
	if worstGroup != "" {
		res.Context["worst_group"] = worstGroup
	}
	res.Recommendations = []string{
		fmt.Sprintf("Audit the producers writing %q for the %q pattern", h.Field, h.Name),
	}
	return &res, nil
}

// worstGroup returns the categorical group contributing the most
// flagged values, best effort.
func (d *Domain) worstGroup(ds ports.TabularDataset, h config.ValueRangeHeuristic) string {
	grouped, err := ds.GroupCount(h.GroupBy, h.Field)
	if err != nil {
		return ""
	}
	flaggedPerGroup := make(map[string]int)
	for key, count := range grouped {
		parts := strings.SplitN(key, "|", 2)
		if len(parts) != 2 {
			continue
		}
		v, err := cast.ToFloat64E(parts[1])
		if err != nil {
			continue
		}
		if v == 0 || v < h.Min || v > h.Max {
			flaggedPerGroup[parts[0]] += count
		}
	}
	worst, worstCount := "", 0
	for group, count := range flaggedPerGroup {
		if count > worstCount {
			worst, worstCount = group, count
		}
	}
	return worst
}

// activity flags entities with excessive event counts or too many
// distinct partners.
func (d *Domain) activity(ds ports.TabularDataset, h config.ActivityHeuristic) (*anomaly.Result, error) {
	perEntity, err := ds.GroupCount(h.EntityField)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrDetector, err)
	}

	overActive := make(map[string]int)
	if h.MaxEvents > 0 {
		for entity, count := range perEntity {
			if count > h.MaxEvents {
				overActive[entity] = count
			}
		}
	}

	shopping := make(map[string]int)
	if h.PartnerField != "" && h.MaxPartners > 0 {
		pairs, err := ds.GroupCount(h.EntityField, h.PartnerField)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contract.ErrDetector, err)
		}
		partners := make(map[string]int)
		for key := range pairs {
			parts := strings.SplitN(key, "|", 2)
			if len(parts) != 2 {
				continue
			}
			partners[parts[0]]++
		}
		for entity, n := range partners {
			if n > h.MaxPartners {
				shopping[entity] = n
			}
		}
	}

	if len(overActive) == 0 && len(shopping) == 0 {
		return nil, nil
	}

	affected := 0
	for entity := range overActive {
		affected += perEntity[entity]
	}
	for entity := range shopping {
		if _, counted := overActive[entity]; !counted {
			affected += perEntity[entity]
		}
	}

	flaggedEntities := len(overActive) + len(shopping)
	share := float64(flaggedEntities) / float64(len(perEntity))

	res := anomaly.NewResult(anomaly.TypeDomainSpecific, d.Name())
	res.FieldName = h.EntityField
	res.Severity = severityFromRatio(1+share*10, d.cfg.HeuristicSeverityTiers)
	res.Score = clampScore(share * 100 / 10)
	res.AffectedRecords = affected
	res.Threshold = float64(h.MaxEvents)
	res.Description = fmt.Sprintf("Heuristic %q: %d entities exceed activity limits (%d over event limit, %d over partner limit)",
		h.Name, flaggedEntities, len(overActive), len(shopping))
	res.Context = map[string]any{
		"heuristic":          h.Name,
		"entities_total":     len(perEntity),
		"over_event_limit":   len(overActive),
		"over_partner_limit": len(shopping),
	}
	res.Recommendations = []string{
		fmt.Sprintf("Review the flagged %q values for duplicated feeds or abusive activity", h.EntityField),
	}
	return &res, nil
}

// severityFromRatio grades by how far past its threshold a heuristic
// landed.
func severityFromRatio(ratio float64, tiers [3]float64) anomaly.Severity {
	switch {
	case ratio > tiers[0]:
		return anomaly.SeverityCritical
	case ratio > tiers[1]:
		return anomaly.SeverityHigh
	case ratio > tiers[2]:
		return anomaly.SeverityMedium
	}
	return anomaly.SeverityLow
}
