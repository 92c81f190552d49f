package detector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/spf13/cast"

	"dataguard/domain/anomaly"
	"dataguard/domain/contract"
	"dataguard/internal/config"
	"dataguard/ports"
)

// VolumeChange buckets records by hour and flags buckets whose count
// moved more than the configured fraction relative to the previous
// bucket.
type VolumeChange struct {
	cfg config.AnomalyConfig
}

// NewVolumeChange creates the hourly volume-change detector.
func NewVolumeChange(cfg config.AnomalyConfig) *VolumeChange {
	return &VolumeChange{cfg: cfg}
}

func (d *VolumeChange) Name() string { return "volume_change" }

func (d *VolumeChange) Detect(ctx context.Context, ds ports.TabularDataset, req Request) ([]anomaly.Result, error) {
	times, err := collectTimes(ds, req.TimestampField)
	if err != nil {
		return nil, err
	}
	if len(times) < 2 {
		return nil, fmt.Errorf("%w: %d timestamped records", contract.ErrInsufficientData, len(times))
	}

	counts := make(map[time.Time]int)
	for _, t := range times {
		if t.IsZero() {
			continue
		}
		counts[t.Truncate(time.Hour)]++
	}
	buckets := make([]time.Time, 0, len(counts))
	for b := range counts {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Before(buckets[j]) })

	var results []anomaly.Result
	for i := 1; i < len(buckets); i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		prev := counts[buckets[i-1]]
		cur := counts[buckets[i]]
		if prev == 0 {
			continue
		}
		change := abs(float64(cur-prev)) / float64(prev)
		if change <= d.cfg.VolumeChangeThreshold {
			continue
		}

		res := anomaly.NewResult(anomaly.TypeVolumeAnomaly, d.Name())
		res.FieldName = req.TimestampField
		res.Severity = severityFromChange(change, d.cfg.VolumeSeverityTiers)
		res.Score = clampScore(change * 10)
		res.AffectedRecords = cur
		res.Threshold = d.cfg.VolumeChangeThreshold
		res.Description = fmt.Sprintf("Hourly volume moved %.0f%% at %s (%d -> %d records)",
			change*100, buckets[i].Format(time.RFC3339), prev, cur)
		res.Context = map[string]any{
			"bucket":          buckets[i].Format(time.RFC3339),
			"previous_count":  prev,
			"current_count":   cur,
			"relative_change": change,
		}
		res.Recommendations = []string{
			"Check upstream producers for outages or replays around the flagged hour",
		}
		results = append(results, res)
	}
	return results, nil
}

// Seasonal profiles a numeric field per (hour-of-day, day-of-week)
// bucket built from the batch itself and flags records deviating from
// their bucket's expectation.
type Seasonal struct {
	cfg config.AnomalyConfig
}

// NewSeasonal creates the seasonal-profile detector.
func NewSeasonal(cfg config.AnomalyConfig) *Seasonal {
	return &Seasonal{cfg: cfg}
}

func (d *Seasonal) Name() string { return "seasonal" }

type seasonalKey struct {
	hour    int
	weekday time.Weekday
}

func (d *Seasonal) Detect(ctx context.Context, ds ports.TabularDataset, req Request) ([]anomaly.Result, error) {
	if d.cfg.SeasonalValueField == "" {
		return nil, fmt.Errorf("%w: no seasonal value field configured", contract.ErrInsufficientData)
	}
	times, err := collectTimes(ds, req.TimestampField)
	if err != nil {
		return nil, err
	}
	valueSeq, err := ds.ColumnValues(d.cfg.SeasonalValueField)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrDetector, err)
	}
	var values []float64
	var valueOK []bool
	for v := range valueSeq {
		f, err := cast.ToFloat64E(v)
		ok := err == nil && !contract.IsNull(v)
		values = append(values, f)
		valueOK = append(valueOK, ok)
	}
	if len(values) != len(times) {
		return nil, fmt.Errorf("%w: timestamp and value columns differ in length", contract.ErrDetector)
	}
	if len(times) < d.cfg.MinSamples {
		return nil, fmt.Errorf("%w: %d samples, need %d", contract.ErrInsufficientData, len(times), d.cfg.MinSamples)
	}

	// First pass: per-bucket mean and stddev.
	sums := make(map[seasonalKey][]float64)
	for i, t := range times {
		if !valueOK[i] || t.IsZero() {
			continue
		}
		k := seasonalKey{hour: t.Hour(), weekday: t.Weekday()}
		sums[k] = append(sums[k], values[i])
	}
	type profile struct{ mean, stdDev float64 }
	profiles := make(map[seasonalKey]profile, len(sums))
	for k, vs := range sums {
		if len(vs) < 2 {
			continue
		}
		m := meanOf(vs)
		sd := stdDevOf(vs, m)
		if sd > 0 {
			profiles[k] = profile{mean: m, stdDev: sd}
		}
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: no seasonal bucket has enough samples", contract.ErrInsufficientData)
	}

	// Second pass: z-score each record against its bucket.
	flagged := 0
	scored := 0
	var devSum float64
	for i, t := range times {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !valueOK[i] || t.IsZero() {
			continue
		}
		p, ok := profiles[seasonalKey{hour: t.Hour(), weekday: t.Weekday()}]
		if !ok {
			continue
		}
		scored++
		z := abs(values[i]-p.mean) / p.stdDev
		if z > d.cfg.SeasonalZThreshold {
			flagged++
			devSum += z
		}
	}
	if flagged == 0 || scored == 0 {
		return nil, nil
	}

	pct := 100 * float64(flagged) / float64(scored)
	meanDev := devSum / float64(flagged)
	res := anomaly.NewResult(anomaly.TypeTemporalAnomaly, d.Name())
	res.FieldName = d.cfg.SeasonalValueField
	res.Severity = seasonalSeverity(pct, meanDev, d.cfg.SeasonalSeverityTiers, d.cfg.SeasonalDeviationTiers)
	res.Score = clampScore(pct/10 + meanDev/4)
	res.AffectedRecords = flagged
	res.Threshold = d.cfg.SeasonalZThreshold
	res.Description = fmt.Sprintf("%d of %d records in %q deviate from their hour/weekday profile (mean z %.1f)",
		flagged, scored, d.cfg.SeasonalValueField, meanDev)
	res.Context = map[string]any{
		"pct_flagged":    pct,
		"mean_deviation": meanDev,
		"period_hours":   d.cfg.SeasonalPeriodHours,
	}
	res.Recommendations = []string{
		"Compare the flagged window against known seasonal events before treating it as a defect",
	}
	return []anomaly.Result{res}, nil
}

// seasonalSeverity grades from both the flagged fraction and the mean
// deviation magnitude, whichever tier is worse.
func seasonalSeverity(pct, meanDev float64, pctTiers, devTiers [3]float64) anomaly.Severity {
	switch {
	case pct > pctTiers[0] || meanDev > devTiers[0]:
		return anomaly.SeverityCritical
	case pct > pctTiers[1] || meanDev > devTiers[1]:
		return anomaly.SeverityHigh
	case pct > pctTiers[2] || meanDev > devTiers[2]:
		return anomaly.SeverityMedium
	}
	return anomaly.SeverityLow
}

func severityFromChange(change float64, tiers [3]float64) anomaly.Severity {
	switch {
	case change > tiers[0]:
		return anomaly.SeverityCritical
	case change > tiers[1]:
		return anomaly.SeverityHigh
	case change > tiers[2]:
		return anomaly.SeverityMedium
	}
	return anomaly.SeverityLow
}

// collectTimes parses the timestamp column, preserving record order.
// Records with unparseable timestamps are dropped.
func collectTimes(ds ports.TabularDataset, field string) ([]time.Time, error) {
	if field == "" {
		return nil, fmt.Errorf("%w: no timestamp field", contract.ErrInsufficientData)
	}
	seq, err := ds.ColumnValues(field)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrDetector, err)
	}
	var times []time.Time
	for v := range seq {
		if contract.IsNull(v) {
			times = append(times, time.Time{})
			continue
		}
		t, err := cast.ToTimeE(v)
		if err != nil {
			times = append(times, time.Time{})
			continue
		}
		times = append(times, t)
	}
	return times, nil
}

func meanOf(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func stdDevOf(vs []float64, mean float64) float64 {
	if len(vs) < 2 {
		return 0
	}
	var ss float64
	for _, v := range vs {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(vs)))
}

func clampScore(s float64) float64 {
	if s > 10 {
		return 10
	}
	if s < 0 {
		return 0
	}
	return s
}
