// Package rules implements the configurable data-quality rule engine:
// a registry of validation rules matched to fields by pattern and
// evaluated against one immutable batch snapshot.
package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dataguard/domain/contract"
	"dataguard/internal/config"
	"dataguard/ports"
)

// Engine owns a rule registry. Instances are independent: multiple
// tables or tenants use separate engines or a keyed map owned by the
// orchestrator, never process-wide state.
type Engine struct {
	mu    sync.RWMutex
	rules map[string]contract.ValidationRule

	cfg config.ScoringConfig
	log *zap.Logger
}

// NewEngine creates an empty rule engine.
func NewEngine(cfg config.ScoringConfig, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Engine{
		rules: make(map[string]contract.ValidationRule),
		cfg:   cfg,
		log:   log,
	}
}

// Register validates and stores a rule. Duplicate names overwrite.
func (e *Engine) Register(rule contract.ValidationRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[rule.Name] = rule
	return nil
}

// RegisterAll registers a batch of rules, stopping at the first invalid
// one.
func (e *Engine) RegisterAll(rules []contract.ValidationRule) error {
	for _, rule := range rules {
		if err := e.Register(rule); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes a rule by name.
func (e *Engine) Unregister(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rules, name)
}

// Rules returns all registered rules ordered by name.
func (e *Engine) Rules() []contract.ValidationRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]contract.ValidationRule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ApplicableRules returns the rules whose field pattern matches the
// given field name, ordered by rule name.
func (e *Engine) ApplicableRules(fieldName string) []contract.ValidationRule {
	var out []contract.ValidationRule
	for _, r := range e.Rules() {
		if MatchPattern(r.FieldPattern, fieldName) {
			out = append(out, r)
		}
	}
	return out
}

// MatchPattern matches a field name against a rule pattern. Supported
// forms, all case-insensitive: exact, "*" (all fields), "prefix*",
// "*suffix" and "*contains*".
func MatchPattern(pattern, fieldName string) bool {
	p := strings.ToLower(strings.TrimSpace(pattern))
	f := strings.ToLower(fieldName)
	switch {
	case p == "*":
		return true
	case strings.HasPrefix(p, "*") && strings.HasSuffix(p, "*") && len(p) > 1:
		return strings.Contains(f, strings.Trim(p, "*"))
	case strings.HasSuffix(p, "*"):
		return strings.HasPrefix(f, strings.TrimSuffix(p, "*"))
	case strings.HasPrefix(p, "*"):
		return strings.HasSuffix(f, strings.TrimPrefix(p, "*"))
	}
	return p == f
}

// Assess evaluates every applicable enabled rule against every field
// and aggregates per-field and per-dimension scores into issues and
// recommendations. Rule failures are isolated per rule; deadline expiry
// returns the best partial result flagged timed_out.
func (e *Engine) Assess(ctx context.Context, ds ports.TabularDataset, tableID string) (*contract.AssessmentResult, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	fields := ds.FieldDescriptors()
	perField := make([][]contract.QualityResult, len(fields))
	timedOut := false
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Workers)
	for i, field := range fields {
		if ctx.Err() != nil {
			timedOut = true
			break
		}
		g.Go(func() error {
			results := e.assessField(ctx, ds, field)
			mu.Lock()
			perField[i] = results
			if ctx.Err() != nil {
				timedOut = true
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var results []contract.QualityResult
	for _, fr := range perField {
		results = append(results, fr...)
	}

	dimScores := aggregateDimensions(results)
	overall := e.overallScore(dimScores)
	issues := e.buildIssues(ds, fields, results, dimScores, overall)
	recs := e.buildRecommendations(results, dimScores, issues)

	e.log.Debug("assessment complete",
		zap.String("table_id", tableID),
		zap.Int("rules_evaluated", len(results)),
		zap.Float64("overall_score", overall),
		zap.Bool("timed_out", timedOut))

	return &contract.AssessmentResult{
		TableID:         tableID,
		Results:         results,
		DimensionScores: dimScores,
		OverallScore:    overall,
		Issues:          issues,
		Recommendations: recs,
		TimedOut:        timedOut,
	}, nil
}

func (e *Engine) assessField(ctx context.Context, ds ports.TabularDataset, field contract.FieldDescriptor) []contract.QualityResult {
	var results []contract.QualityResult
	for _, rule := range e.ApplicableRules(field.Name) {
		if !rule.Enabled {
			continue
		}
		if ctx.Err() != nil {
			return results
		}
		results = append(results, evaluateRule(ds, field, rule))
	}
	return results
}

// evaluateRule produces one QualityResult. An evaluation error or
// panic downgrades the rule's result to score 0 with the error recorded
// and never aborts the remaining rules.
func evaluateRule(ds ports.TabularDataset, field contract.FieldDescriptor, rule contract.ValidationRule) (res contract.QualityResult) {
	res = contract.QualityResult{
		RuleName:  rule.Name,
		FieldName: field.Name,
		Dimension: rule.Dimension,
		Severity:  rule.Severity,
	}
	defer func() {
		if r := recover(); r != nil {
			res.Score = 0
			res.Passed = false
			res.Error = fmt.Sprintf("%v: %v", contract.ErrRuleEvaluation, r)
		}
	}()

	total := ds.RowCount()
	res.TotalCount = total
	if total == 0 {
		res.Score = 100
		res.Passed = true
		return res
	}

	var violations int
	if rule.Dimension == contract.DimensionUniqueness {
		distinct, err := ds.DistinctCount(field.Name)
		if err != nil {
			return errorResult(res, err)
		}
		violations = total - distinct
	} else {
		matched, err := ds.CountWhere(field.Name, rule.Predicate.Matches)
		if err != nil {
			return errorResult(res, err)
		}
		violations = total - matched
	}

	res.ViolationCount = violations
	res.PassedCount = total - violations
	res.Score = 100 * float64(res.PassedCount) / float64(total)
	res.Passed = violations == 0 || (rule.Threshold != nil && res.Score >= *rule.Threshold)
	return res
}

func errorResult(res contract.QualityResult, err error) contract.QualityResult {
	res.Score = 0
	res.Passed = false
	res.Error = fmt.Sprintf("%v: %v", contract.ErrRuleEvaluation, err)
	return res
}
