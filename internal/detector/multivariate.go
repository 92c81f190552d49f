package detector

import (
	"context"
	"fmt"

	"github.com/montanaflynn/stats"

	"dataguard/domain/anomaly"
	"dataguard/domain/contract"
	"dataguard/internal/config"
	"dataguard/ports"
)

// Multivariate scores the joint feature space of several numeric fields
// through the pluggable scorer. Below the minimum sample size the
// method is skipped, not errored, and an unavailable scorer degrades to
// a skip as well.
type Multivariate struct {
	cfg    config.AnomalyConfig
	scorer ports.MultivariateScorer
}

// NewMultivariate creates the multivariate detector.
func NewMultivariate(cfg config.AnomalyConfig, scorer ports.MultivariateScorer) *Multivariate {
	if scorer == nil {
		scorer = UnavailableScorer{}
	}
	return &Multivariate{cfg: cfg, scorer: scorer}
}

func (d *Multivariate) Name() string { return "multivariate" }

func (d *Multivariate) Detect(ctx context.Context, ds ports.TabularDataset, req Request) ([]anomaly.Result, error) {
	fields := d.cfg.MultivariateFields
	if len(fields) == 0 {
		for _, f := range numericFields(ds) {
			fields = append(fields, f.Name)
		}
	}
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: %d numeric fields, need at least 2", contract.ErrInsufficientData, len(fields))
	}

	rows, err := d.featureRows(ds, fields)
	if err != nil {
		return nil, err
	}
	if len(rows) < d.cfg.MinSamples {
		return nil, fmt.Errorf("%w: %d complete rows, need %d", contract.ErrInsufficientData, len(rows), d.cfg.MinSamples)
	}

	// Memory cap, independent of the deadline: evenly strided sample.
	sampled := len(rows)
	if d.cfg.MaxSampleSize > 0 && len(rows) > d.cfg.MaxSampleSize {
		stride := len(rows) / d.cfg.MaxSampleSize
		kept := rows[:0:0]
		for i := 0; i < len(rows); i += stride {
			kept = append(kept, rows[i])
		}
		rows = kept
		sampled = len(rows)
	}

	scores, err := d.scorer.Score(ctx, rows)
	if err != nil {
		return nil, err
	}

	cutoff, err := stats.Percentile(scores, 100*(1-d.cfg.Contamination))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrDetector, err)
	}
	flagged := 0
	for _, s := range scores {
		if s > cutoff {
			flagged++
		}
	}
	if flagged == 0 {
		return nil, nil
	}

	pct := 100 * float64(flagged) / float64(len(scores))
	res := anomaly.NewResult(anomaly.TypeMultivariateAnomaly, d.Name())
	res.Severity = severityFromPct(pct, d.cfg.MultivariateSeverityTiers)
	res.Score = anomalyScore(pct)
	res.AffectedRecords = flagged
	res.Threshold = cutoff
	res.Description = fmt.Sprintf("%d of %d sampled records are joint-space outliers across %d fields (%s)",
		flagged, len(scores), len(fields), d.scorer.Name())
	res.Context = map[string]any{
		"fields":        fields,
		"sample_size":   sampled,
		"contamination": d.cfg.Contamination,
		"scorer":        d.scorer.Name(),
	}
	res.Recommendations = []string{
		"Inspect the flagged records jointly: per-field statistics looked normal but their combination does not",
	}
	return []anomaly.Result{res}, nil
}

// featureRows builds row-major feature vectors from records where every
// feature is present and numeric.
func (d *Multivariate) featureRows(ds ports.TabularDataset, fields []string) ([][]float64, error) {
	columns := make([][]any, len(fields))
	for i, f := range fields {
		seq, err := ds.ColumnValues(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contract.ErrDetector, err)
		}
		for v := range seq {
			columns[i] = append(columns[i], v)
		}
	}

	n := ds.RowCount()
	var rows [][]float64
	for r := 0; r < n; r++ {
		row := make([]float64, len(fields))
		complete := true
		for c := range fields {
			if r >= len(columns[c]) {
				complete = false
				break
			}
			f, ok := toFloat(columns[c][r])
			if !ok {
				complete = false
				break
			}
			row[c] = f
		}
		if complete {
			rows = append(rows, row)
		}
	}
	return rows, nil
}
