// Package config holds the typed, validated configuration for the
// assessment core: dimension weights, severity thresholds, detector
// parameters and domain heuristics, all with documented defaults.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"dataguard/domain/contract"
)

// Config is the complete recognized-options struct for one assessment
// core instance.
type Config struct {
	// PassThreshold is the minimum overall score (0-100) for a batch to
	// pass its quality gate.
	PassThreshold float64

	Scoring ScoringConfig
	Anomaly AnomalyConfig
}

// ScoringConfig drives the rule engine's aggregation and issue
// generation.
type ScoringConfig struct {
	// DimensionWeights weight each dimension's score in the overall
	// score. The sum need not be 1; the overall score normalizes by the
	// total weight actually present.
	DimensionWeights map[contract.QualityDimension]float64

	// CriticalScore and WarningScore are the issue thresholds on the
	// 0-100 scale.
	CriticalScore float64
	WarningScore  float64

	// MaxNullRatePct flags any field whose null percentage exceeds it.
	MaxNullRatePct float64

	// Workers bounds parallel rule evaluation across fields.
	Workers int

	// Timeout caps one assessment; on expiry the engine returns its
	// best partial result flagged timed_out.
	Timeout time.Duration
}

// AnomalyConfig drives every anomaly detector. Severity tier constants
// live here as the single source of truth rather than being hardcoded
// per detector.
type AnomalyConfig struct {
	ZScoreThreshold       float64
	IQRMultiplier         float64
	VolumeChangeThreshold float64

	SeasonalPeriodHours int
	SeasonalZThreshold  float64
	// SeasonalValueField is the numeric field profiled against the
	// (hour-of-day, day-of-week) expectation; empty disables the
	// seasonal method.
	SeasonalValueField string

	// ZScoreSeverityTiers, IQRSeverityTiers and
	// MultivariateSeverityTiers are flagged-percentage cutoffs ordered
	// critical, high, medium. VolumeSeverityTiers are relative-change
	// cutoffs.
	ZScoreSeverityTiers       [3]float64
	IQRSeverityTiers          [3]float64
	VolumeSeverityTiers       [3]float64
	MultivariateSeverityTiers [3]float64

	// SeasonalSeverityTiers are flagged-percentage cutoffs,
	// SeasonalDeviationTiers mean-z cutoffs; a result grades by
	// whichever tier is worse. HeuristicSeverityTiers are
	// threshold-overshoot ratios for the domain heuristics.
	SeasonalSeverityTiers  [3]float64
	SeasonalDeviationTiers [3]float64
	HeuristicSeverityTiers [3]float64

	// Multivariate detection.
	Contamination      float64
	MultivariateFields []string
	MinSamples         int
	MaxSampleSize      int

	// Domain heuristics, fully parameterized: domain-specific
	// instantiations are configuration, never hardcoded rules.
	ValueRanges []ValueRangeHeuristic
	Activity    []ActivityHeuristic

	Timeout time.Duration
}

// ValueRangeHeuristic flags zero-value and extreme-value clusters on a
// numeric field, optionally per categorical group.
type ValueRangeHeuristic struct {
	Name         string  `yaml:"name"`
	Field        string  `yaml:"field"`
	GroupBy      string  `yaml:"group_by,omitempty"`
	Min          float64 `yaml:"min"`
	Max          float64 `yaml:"max"`
	MaxZeroShare float64 `yaml:"max_zero_share"`
	MaxOutShare  float64 `yaml:"max_out_share"`
}

// ActivityHeuristic flags entities with excessive event counts or an
// excessive number of distinct partners ("shopping" patterns).
type ActivityHeuristic struct {
	Name         string `yaml:"name"`
	EntityField  string `yaml:"entity_field"`
	MaxEvents    int    `yaml:"max_events"`
	PartnerField string `yaml:"partner_field,omitempty"`
	MaxPartners  int    `yaml:"max_partners,omitempty"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		PassThreshold: 60,
		Scoring: ScoringConfig{
			DimensionWeights: map[contract.QualityDimension]float64{
				contract.DimensionCompleteness: 0.25,
				contract.DimensionValidity:     0.30,
				contract.DimensionConsistency:  0.20,
				contract.DimensionAccuracy:     0.15,
				contract.DimensionTimeliness:   0.10,
			},
			CriticalScore:  60,
			WarningScore:   80,
			MaxNullRatePct: 20,
			Workers:        runtime.NumCPU(),
			Timeout:        2 * time.Minute,
		},
		Anomaly: AnomalyConfig{
			ZScoreThreshold:       3.0,
			IQRMultiplier:         1.5,
			VolumeChangeThreshold: 0.5,
			SeasonalPeriodHours:   24,
			SeasonalZThreshold:    2.5,
			ZScoreSeverityTiers:   [3]float64{10, 5, 1},
			IQRSeverityTiers:      [3]float64{15, 8, 3},
			VolumeSeverityTiers:   [3]float64{0.8, 0.6, 0.4},

			MultivariateSeverityTiers: [3]float64{15, 10, 5},
			SeasonalSeverityTiers:     [3]float64{20, 10, 5},
			SeasonalDeviationTiers:    [3]float64{6, 5, 4},
			HeuristicSeverityTiers:    [3]float64{3, 2, 1.5},
			Contamination:         0.05,
			MinSamples:            100,
			MaxSampleSize:         10000,
			Timeout:               2 * time.Minute,
		},
	}
}

// Load builds a Config from defaults overlaid with environment
// variables. A .env file is honored when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	cfg.PassThreshold = getEnvFloatOrDefault("DQ_PASS_THRESHOLD", cfg.PassThreshold)
	cfg.Scoring.CriticalScore = getEnvFloatOrDefault("DQ_CRITICAL_SCORE", cfg.Scoring.CriticalScore)
	cfg.Scoring.WarningScore = getEnvFloatOrDefault("DQ_WARNING_SCORE", cfg.Scoring.WarningScore)
	cfg.Scoring.MaxNullRatePct = getEnvFloatOrDefault("DQ_MAX_NULL_RATE_PCT", cfg.Scoring.MaxNullRatePct)
	cfg.Scoring.Workers = getEnvIntOrDefault("DQ_WORKERS", cfg.Scoring.Workers)
	cfg.Scoring.Timeout = getEnvDurationOrDefault("DQ_SCORING_TIMEOUT", cfg.Scoring.Timeout)
	cfg.Anomaly.ZScoreThreshold = getEnvFloatOrDefault("DQ_ZSCORE_THRESHOLD", cfg.Anomaly.ZScoreThreshold)
	cfg.Anomaly.IQRMultiplier = getEnvFloatOrDefault("DQ_IQR_MULTIPLIER", cfg.Anomaly.IQRMultiplier)
	cfg.Anomaly.VolumeChangeThreshold = getEnvFloatOrDefault("DQ_VOLUME_CHANGE_THRESHOLD", cfg.Anomaly.VolumeChangeThreshold)
	cfg.Anomaly.Contamination = getEnvFloatOrDefault("DQ_CONTAMINATION", cfg.Anomaly.Contamination)
	cfg.Anomaly.MinSamples = getEnvIntOrDefault("DQ_MIN_SAMPLES", cfg.Anomaly.MinSamples)
	cfg.Anomaly.MaxSampleSize = getEnvIntOrDefault("DQ_MAX_SAMPLE_SIZE", cfg.Anomaly.MaxSampleSize)
	cfg.Anomaly.SeasonalValueField = getEnvOrDefault("DQ_SEASONAL_VALUE_FIELD", cfg.Anomaly.SeasonalValueField)
	cfg.Anomaly.Timeout = getEnvDurationOrDefault("DQ_ANOMALY_TIMEOUT", cfg.Anomaly.Timeout)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate fails fast on malformed values instead of letting bad
// thresholds leak into scoring.
func (c Config) Validate() error {
	if c.PassThreshold < 0 || c.PassThreshold > 100 {
		return fmt.Errorf("pass threshold %.2f outside [0,100]", c.PassThreshold)
	}
	if c.Scoring.CriticalScore > c.Scoring.WarningScore {
		return fmt.Errorf("critical score %.2f above warning score %.2f",
			c.Scoring.CriticalScore, c.Scoring.WarningScore)
	}
	for dim, w := range c.Scoring.DimensionWeights {
		if _, err := contract.ParseDimension(string(dim)); err != nil {
			return err
		}
		if w < 0 {
			return fmt.Errorf("negative weight %.2f for dimension %s", w, dim)
		}
	}
	if c.Scoring.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Scoring.Workers)
	}
	if c.Anomaly.Contamination <= 0 || c.Anomaly.Contamination >= 1 {
		return fmt.Errorf("contamination %.3f outside (0,1)", c.Anomaly.Contamination)
	}
	if c.Anomaly.MinSamples < 1 {
		return fmt.Errorf("min samples must be positive, got %d", c.Anomaly.MinSamples)
	}
	for _, h := range c.Anomaly.ValueRanges {
		if h.Field == "" {
			return fmt.Errorf("value range heuristic %q has no field", h.Name)
		}
		if h.Min > h.Max {
			return fmt.Errorf("value range heuristic %q: min %.2f above max %.2f", h.Name, h.Min, h.Max)
		}
	}
	for _, h := range c.Anomaly.Activity {
		if h.EntityField == "" {
			return fmt.Errorf("activity heuristic %q has no entity field", h.Name)
		}
	}
	return nil
}

// Environment parsing helpers.

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
