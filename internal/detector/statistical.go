package detector

import (
	"context"
	"errors"
	"fmt"

	"github.com/montanaflynn/stats"
	"github.com/spf13/cast"

	"dataguard/domain/anomaly"
	"dataguard/domain/contract"
	"dataguard/internal/config"
	"dataguard/ports"
)

// ZScore flags values whose distance from the field mean exceeds a
// stddev multiple. One aggregated result per field, never one per
// record.
type ZScore struct {
	cfg config.AnomalyConfig
}

// NewZScore creates the z-score detector.
func NewZScore(cfg config.AnomalyConfig) *ZScore {
	return &ZScore{cfg: cfg}
}

func (z *ZScore) Name() string { return "z_score" }

func (z *ZScore) Detect(ctx context.Context, ds ports.TabularDataset, req Request) ([]anomaly.Result, error) {
	var results []anomaly.Result
	for _, field := range numericFields(ds) {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		values, err := collectNumeric(ds, field.Name)
		if err != nil {
			return results, err
		}
		if len(values) < 2 {
			continue
		}

		mean, err := stats.Mean(values)
		if err != nil {
			return results, fmt.Errorf("%w: %v", contract.ErrDetector, err)
		}
		stdDev, err := stats.StandardDeviation(values)
		if err != nil {
			return results, fmt.Errorf("%w: %v", contract.ErrDetector, err)
		}
		if stdDev == 0 {
			// A constant column has no outliers by this method.
			continue
		}

		flagged := 0
		for _, v := range values {
			if abs(v-mean)/stdDev > z.cfg.ZScoreThreshold {
				flagged++
			}
		}
		if flagged == 0 {
			continue
		}

		pct := 100 * float64(flagged) / float64(len(values))
		res := anomaly.NewResult(anomaly.TypeStatisticalOutlier, z.Name())
		res.FieldName = field.Name
		res.Severity = severityFromPct(pct, z.cfg.ZScoreSeverityTiers)
		res.Score = anomalyScore(pct)
		res.AffectedRecords = flagged
		res.Threshold = z.cfg.ZScoreThreshold
		res.Description = fmt.Sprintf("%d of %d values in %q deviate more than %.1f standard deviations from the mean",
			flagged, len(values), field.Name, z.cfg.ZScoreThreshold)
		res.Context = map[string]any{
			"mean":        mean,
			"std_dev":     stdDev,
			"pct_flagged": pct,
		}
		res.Recommendations = []string{
			fmt.Sprintf("Inspect the extreme values of %q for data-entry or unit errors", field.Name),
		}
		results = append(results, res)
	}
	return results, nil
}

// IQR flags values outside [Q1 - k*IQR, Q3 + k*IQR].
type IQR struct {
	cfg config.AnomalyConfig
}

// NewIQR creates the interquartile-range detector.
func NewIQR(cfg config.AnomalyConfig) *IQR {
	return &IQR{cfg: cfg}
}

func (d *IQR) Name() string { return "iqr" }

func (d *IQR) Detect(ctx context.Context, ds ports.TabularDataset, req Request) ([]anomaly.Result, error) {
	var results []anomaly.Result
	for _, field := range numericFields(ds) {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		values, err := collectNumeric(ds, field.Name)
		if err != nil {
			return results, err
		}
		if len(values) < 4 {
			continue
		}

		// Quartiles come from the dataset so substrates that can push
		// the computation down do.
		q1, err := ds.Percentile(field.Name, 25)
		if err != nil {
			if errors.Is(err, contract.ErrInsufficientData) {
				continue
			}
			return results, fmt.Errorf("%w: %v", contract.ErrDetector, err)
		}
		q3, err := ds.Percentile(field.Name, 75)
		if err != nil {
			return results, fmt.Errorf("%w: %v", contract.ErrDetector, err)
		}
		iqr := q3 - q1
		lower := q1 - d.cfg.IQRMultiplier*iqr
		upper := q3 + d.cfg.IQRMultiplier*iqr

		flagged := 0
		for _, v := range values {
			if v < lower || v > upper {
				flagged++
			}
		}
		if flagged == 0 {
			continue
		}

		pct := 100 * float64(flagged) / float64(len(values))
		res := anomaly.NewResult(anomaly.TypeStatisticalOutlier, d.Name())
		res.FieldName = field.Name
		res.Severity = severityFromPct(pct, d.cfg.IQRSeverityTiers)
		res.Score = anomalyScore(pct)
		res.AffectedRecords = flagged
		res.Threshold = d.cfg.IQRMultiplier
		res.Description = fmt.Sprintf("%d of %d values in %q fall outside [%.2f, %.2f]",
			flagged, len(values), field.Name, lower, upper)
		res.Context = map[string]any{
			"q1":          q1,
			"q3":          q3,
			"lower_bound": lower,
			"upper_bound": upper,
			"pct_flagged": pct,
		}
		res.Recommendations = []string{
			fmt.Sprintf("Review whether the tails of %q reflect real events or ingestion noise", field.Name),
		}
		results = append(results, res)
	}
	return results, nil
}

// numericFields returns the batch fields declared or inferred numeric.
func numericFields(ds ports.TabularDataset) []contract.FieldDescriptor {
	var out []contract.FieldDescriptor
	for _, f := range ds.FieldDescriptors() {
		if f.Type == contract.FieldTypeInt || f.Type == contract.FieldTypeFloat {
			out = append(out, f)
		}
	}
	return out
}

// collectNumeric gathers a column's non-null numeric values in order.
func collectNumeric(ds ports.TabularDataset, field string) ([]float64, error) {
	seq, err := ds.ColumnValues(field)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrDetector, err)
	}
	var values []float64
	for v := range seq {
		if contract.IsNull(v) {
			continue
		}
		f, err := cast.ToFloat64E(v)
		if err != nil {
			continue
		}
		values = append(values, f)
	}
	return values, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
