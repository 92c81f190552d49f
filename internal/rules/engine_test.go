package rules

import (
	"context"
	"testing"

	"dataguard/domain/contract"
	"dataguard/internal/config"
	"dataguard/internal/dataset"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(config.Default().Scoring, nil)
}

func singleColumn(t *testing.T, name string, ft contract.FieldType, values []any) *dataset.Memory {
	t.Helper()
	ds, err := dataset.NewMemory(
		[]contract.FieldDescriptor{{Name: name, Type: ft, Nullable: true}},
		map[string][]any{name: values},
	)
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	return ds
}

func floatPtr(v float64) *float64 { return &v }

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern string
		field   string
		want    bool
	}{
		{"*", "anything", true},
		{"amount", "amount", true},
		{"amount", "Amount", true},
		{"amount", "amounts", false},
		{"amount*", "amount_usd", true},
		{"amount*", "total_amount", false},
		{"*_id", "customer_id", true},
		{"*_id", "identity", false},
		{"*email*", "primary_email_address", true},
		{"*email*", "phone", false},
	}
	for _, tc := range cases {
		if got := MatchPattern(tc.pattern, tc.field); got != tc.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", tc.pattern, tc.field, got, tc.want)
		}
	}
}

func TestRegister_RejectsInvalidRule(t *testing.T) {
	e := testEngine(t)
	err := e.Register(contract.ValidationRule{
		Name:         "broken",
		Dimension:    contract.DimensionValidity,
		Severity:     contract.SeverityWarning,
		FieldPattern: "*",
		// no predicate for a non-uniqueness dimension
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestAssess_EmptyDatasetScoresFull(t *testing.T) {
	e := testEngine(t)
	mustRegister(t, e, contract.ValidationRule{
		Name:         "not_null_all",
		Dimension:    contract.DimensionCompleteness,
		Severity:     contract.SeverityWarning,
		Predicate:    contract.NotNull{},
		FieldPattern: "*",
		Enabled:      true,
	})

	ds := singleColumn(t, "amount", contract.FieldTypeFloat, nil)
	res, err := e.Assess(context.Background(), ds, "orders")
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if res.OverallScore != 100 {
		t.Fatalf("overall = %f, want 100 for empty batch", res.OverallScore)
	}
	if len(res.Results) != 1 || !res.Results[0].Passed {
		t.Fatalf("results = %+v, want single passing result", res.Results)
	}
}

func TestAssess_NullRateScoresProportionally(t *testing.T) {
	e := testEngine(t)
	mustRegister(t, e, contract.ValidationRule{
		Name:         "amount_not_null",
		Dimension:    contract.DimensionCompleteness,
		Severity:     contract.SeverityCritical,
		Predicate:    contract.NotNull{},
		FieldPattern: "amount",
		Enabled:      true,
	})

	// 7 populated, 3 null: completeness 70.
	values := []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, nil, nil, nil}
	ds := singleColumn(t, "amount", contract.FieldTypeFloat, values)

	res, err := e.Assess(context.Background(), ds, "orders")
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if len(res.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(res.Results))
	}
	r := res.Results[0]
	if r.Score != 70 {
		t.Fatalf("score = %f, want 70", r.Score)
	}
	if r.ViolationCount != 3 || r.PassedCount != 7 {
		t.Fatalf("violations=%d passed=%d, want 3/7", r.ViolationCount, r.PassedCount)
	}
	if r.Passed {
		t.Fatal("rule without threshold must fail on any violation")
	}
	if res.DimensionScores[contract.DimensionCompleteness] != 70 {
		t.Fatalf("completeness = %f, want 70", res.DimensionScores[contract.DimensionCompleteness])
	}
}

func TestAssess_ThresholdTolerance(t *testing.T) {
	e := testEngine(t)
	mustRegister(t, e, contract.ValidationRule{
		Name:         "amount_mostly_populated",
		Dimension:    contract.DimensionCompleteness,
		Severity:     contract.SeverityWarning,
		Predicate:    contract.NotNull{},
		FieldPattern: "amount",
		Threshold:    floatPtr(60),
		Enabled:      true,
	})

	values := []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, nil, nil, nil}
	ds := singleColumn(t, "amount", contract.FieldTypeFloat, values)

	res, err := e.Assess(context.Background(), ds, "orders")
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if !res.Results[0].Passed {
		t.Fatal("score 70 with threshold 60 should pass")
	}
}

func TestAssess_UniquenessUsesDistinctCount(t *testing.T) {
	e := testEngine(t)
	mustRegister(t, e, contract.ValidationRule{
		Name:         "id_unique",
		Dimension:    contract.DimensionUniqueness,
		Severity:     contract.SeverityCritical,
		FieldPattern: "order_id",
		Enabled:      true,
	})

	values := []any{"a", "b", "b", "c", "c"}
	ds := singleColumn(t, "order_id", contract.FieldTypeString, values)

	res, err := e.Assess(context.Background(), ds, "orders")
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	r := res.Results[0]
	if r.ViolationCount != 2 {
		t.Fatalf("duplicates = %d, want 2", r.ViolationCount)
	}
	if r.Score != 60 {
		t.Fatalf("score = %f, want 60", r.Score)
	}
}

func TestAssess_DisabledRuleSkipped(t *testing.T) {
	e := testEngine(t)
	mustRegister(t, e, contract.ValidationRule{
		Name:         "disabled",
		Dimension:    contract.DimensionValidity,
		Severity:     contract.SeverityWarning,
		Predicate:    contract.NotNull{},
		FieldPattern: "*",
		Enabled:      false,
	})

	ds := singleColumn(t, "amount", contract.FieldTypeFloat, []any{nil, nil})
	res, err := e.Assess(context.Background(), ds, "orders")
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if len(res.Results) != 0 {
		t.Fatalf("expected no results for disabled rule, got %d", len(res.Results))
	}
}

// panicPredicate simulates a defective predicate implementation.
type panicPredicate struct{}

func (panicPredicate) Matches(any) bool { panic("boom") }
func (panicPredicate) Describe() string { return "panics" }

func TestAssess_RuleFailureIsIsolated(t *testing.T) {
	e := testEngine(t)
	mustRegister(t, e, contract.ValidationRule{
		Name:         "defective",
		Dimension:    contract.DimensionValidity,
		Severity:     contract.SeverityWarning,
		Predicate:    panicPredicate{},
		FieldPattern: "amount",
		Enabled:      true,
	})
	mustRegister(t, e, contract.ValidationRule{
		Name:         "healthy",
		Dimension:    contract.DimensionCompleteness,
		Severity:     contract.SeverityWarning,
		Predicate:    contract.NotNull{},
		FieldPattern: "amount",
		Enabled:      true,
	})

	ds := singleColumn(t, "amount", contract.FieldTypeFloat, []any{1.0, 2.0})
	res, err := e.Assess(context.Background(), ds, "orders")
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res.Results))
	}

	byName := map[string]contract.QualityResult{}
	for _, r := range res.Results {
		byName[r.RuleName] = r
	}
	defective := byName["defective"]
	if defective.Error == "" || defective.Score != 0 || defective.Passed {
		t.Fatalf("defective rule = %+v, want score 0 with recorded error", defective)
	}
	healthy := byName["healthy"]
	if !healthy.Passed || healthy.Score != 100 {
		t.Fatalf("healthy rule = %+v, want passing score 100", healthy)
	}
}

func TestAssess_RangePredicate(t *testing.T) {
	e := testEngine(t)
	mustRegister(t, e, contract.ValidationRule{
		Name:         "amount_positive",
		Dimension:    contract.DimensionValidity,
		Severity:     contract.SeverityCritical,
		Predicate:    contract.Range{Min: floatPtr(0)},
		FieldPattern: "amount",
		Enabled:      true,
	})

	values := []any{10.0, -5.0, 20.0, -1.0}
	ds := singleColumn(t, "amount", contract.FieldTypeFloat, values)

	res, err := e.Assess(context.Background(), ds, "orders")
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if res.Results[0].ViolationCount != 2 {
		t.Fatalf("violations = %d, want 2", res.Results[0].ViolationCount)
	}
}

func mustRegister(t *testing.T, e *Engine, rule contract.ValidationRule) {
	t.Helper()
	if err := e.Register(rule); err != nil {
		t.Fatalf("Register(%s) failed: %v", rule.Name, err)
	}
}
