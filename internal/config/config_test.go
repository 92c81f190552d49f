package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataguard/domain/contract"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 60.0, cfg.PassThreshold)
	assert.Equal(t, 3.0, cfg.Anomaly.ZScoreThreshold)
	assert.Equal(t, 1.5, cfg.Anomaly.IQRMultiplier)
	assert.Equal(t, 100, cfg.Anomaly.MinSamples)
	assert.Equal(t, 10000, cfg.Anomaly.MaxSampleSize)
	assert.Equal(t, 2*time.Minute, cfg.Scoring.Timeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DQ_PASS_THRESHOLD", "75")
	t.Setenv("DQ_ZSCORE_THRESHOLD", "2.5")
	t.Setenv("DQ_WORKERS", "4")
	t.Setenv("DQ_SCORING_TIMEOUT", "30s")
	t.Setenv("DQ_SEASONAL_VALUE_FIELD", "load")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 75.0, cfg.PassThreshold)
	assert.Equal(t, 2.5, cfg.Anomaly.ZScoreThreshold)
	assert.Equal(t, 4, cfg.Scoring.Workers)
	assert.Equal(t, 30*time.Second, cfg.Scoring.Timeout)
	assert.Equal(t, "load", cfg.Anomaly.SeasonalValueField)
}

func TestLoad_MalformedEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("DQ_PASS_THRESHOLD", "not-a-number")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().PassThreshold, cfg.PassThreshold)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"pass threshold above 100", func(c *Config) { c.PassThreshold = 120 }},
		{"negative pass threshold", func(c *Config) { c.PassThreshold = -1 }},
		{"critical above warning", func(c *Config) { c.Scoring.CriticalScore = 90; c.Scoring.WarningScore = 80 }},
		{"negative dimension weight", func(c *Config) {
			c.Scoring.DimensionWeights[contract.DimensionValidity] = -1
		}},
		{"unknown dimension", func(c *Config) {
			c.Scoring.DimensionWeights["sparkle"] = 1
		}},
		{"zero workers", func(c *Config) { c.Scoring.Workers = 0 }},
		{"contamination out of range", func(c *Config) { c.Anomaly.Contamination = 1 }},
		{"zero min samples", func(c *Config) { c.Anomaly.MinSamples = 0 }},
		{"value range without field", func(c *Config) {
			c.Anomaly.ValueRanges = []ValueRangeHeuristic{{Name: "broken"}}
		}},
		{"value range min above max", func(c *Config) {
			c.Anomaly.ValueRanges = []ValueRangeHeuristic{{Name: "broken", Field: "v", Min: 10, Max: 1}}
		}},
		{"activity without entity field", func(c *Config) {
			c.Anomaly.Activity = []ActivityHeuristic{{Name: "broken"}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseRules_ValidFile(t *testing.T) {
	raw := []byte(`
version: "1"
rules:
  - name: email_format
    description: emails must look like emails
    dimension: validity
    severity: warning
    field_pattern: "*email*"
    threshold: 95
    tags: [pii]
    predicate:
      type: regex
      pattern: "^[^@]+@[^@]+$"
  - name: order_id_unique
    dimension: uniqueness
    severity: critical
    field_pattern: order_id
  - name: status_known
    dimension: validity
    severity: info
    field_pattern: status
    enabled: false
    predicate:
      type: in_set
      values: [open, closed, pending]
  - name: amount_sane
    dimension: accuracy
    severity: warning
    field_pattern: amount
    predicate:
      type: all_of
      predicates:
        - type: not_null
        - type: range
          min: 0
          max: 100000
`)
	rules, err := ParseRules(raw)
	require.NoError(t, err)
	require.Len(t, rules, 4)

	byName := map[string]contract.ValidationRule{}
	for _, r := range rules {
		byName[r.Name] = r
	}

	email := byName["email_format"]
	assert.Equal(t, contract.DimensionValidity, email.Dimension)
	require.NotNil(t, email.Threshold)
	assert.Equal(t, 95.0, *email.Threshold)
	assert.True(t, email.Enabled)
	assert.True(t, email.HasTag("pii"))
	assert.True(t, email.Predicate.Matches("alice@example.com"))
	assert.False(t, email.Predicate.Matches("not-an-email"))

	unique := byName["order_id_unique"]
	assert.Equal(t, contract.DimensionUniqueness, unique.Dimension)
	assert.Nil(t, unique.Predicate)

	assert.False(t, byName["status_known"].Enabled)

	sane := byName["amount_sane"]
	assert.True(t, sane.Predicate.Matches(500))
	assert.False(t, sane.Predicate.Matches(-1))
	assert.False(t, sane.Predicate.Matches(nil))
}

func TestParseRules_Rejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"unknown top-level key", "version: \"1\"\nextra: true\nrules: []"},
		{"unknown rule key", `
rules:
  - name: x
    dimension: validity
    severity: warning
    field_pattern: "*"
    wat: true
    predicate: {type: not_null}
`},
		{"bad dimension", `
rules:
  - name: x
    dimension: shinyness
    severity: warning
    field_pattern: "*"
    predicate: {type: not_null}
`},
		{"bad severity", `
rules:
  - name: x
    dimension: validity
    severity: shouty
    field_pattern: "*"
    predicate: {type: not_null}
`},
		{"bad regex", `
rules:
  - name: x
    dimension: validity
    severity: warning
    field_pattern: "*"
    predicate: {type: regex, pattern: "(("}
`},
		{"range without bounds", `
rules:
  - name: x
    dimension: validity
    severity: warning
    field_pattern: "*"
    predicate: {type: range}
`},
		{"empty in_set", `
rules:
  - name: x
    dimension: validity
    severity: warning
    field_pattern: "*"
    predicate: {type: in_set}
`},
		{"unknown predicate type", `
rules:
  - name: x
    dimension: validity
    severity: warning
    field_pattern: "*"
    predicate: {type: quantum}
`},
		{"missing predicate", `
rules:
  - name: x
    dimension: validity
    severity: warning
    field_pattern: "*"
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tc.raw))
			assert.Error(t, err)
		})
	}
}
