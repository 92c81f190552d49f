package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"dataguard/domain/contract"
)

// RulesFile is the YAML shape for externally defined validation rules.
type RulesFile struct {
	Version string     `yaml:"version"`
	Rules   []RuleSpec `yaml:"rules"`
}

// RuleSpec is one rule definition as written in YAML. Unknown keys and
// malformed values are rejected eagerly at load time.
type RuleSpec struct {
	Name          string        `yaml:"name"`
	Description   string        `yaml:"description,omitempty"`
	Dimension     string        `yaml:"dimension"`
	Severity      string        `yaml:"severity"`
	FieldPattern  string        `yaml:"field_pattern"`
	Threshold     *float64      `yaml:"threshold,omitempty"`
	Enabled       *bool         `yaml:"enabled,omitempty"`
	AutoRemediate bool          `yaml:"auto_remediate,omitempty"`
	Tags          []string      `yaml:"tags,omitempty"`
	Predicate     PredicateSpec `yaml:"predicate,omitempty"`
}

// PredicateSpec is the YAML form of the typed predicate tree.
type PredicateSpec struct {
	Type    string          `yaml:"type"` // not_null, regex, range, in_set, not, all_of, any_of
	Pattern string          `yaml:"pattern,omitempty"`
	Min     *float64        `yaml:"min,omitempty"`
	Max     *float64        `yaml:"max,omitempty"`
	Values  []string        `yaml:"values,omitempty"`
	Preds   []PredicateSpec `yaml:"predicates,omitempty"`
}

// LoadRules reads and validates a YAML rule file.
func LoadRules(path string) ([]contract.ValidationRule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	return ParseRules(raw)
}

// ParseRules decodes rule definitions from YAML, failing on unknown
// keys so typos never silently drop a check.
func ParseRules(raw []byte) ([]contract.ValidationRule, error) {
	var file RulesFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrInvalidRule, err)
	}

	rules := make([]contract.ValidationRule, 0, len(file.Rules))
	for _, spec := range file.Rules {
		rule, err := spec.toRule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (s RuleSpec) toRule() (contract.ValidationRule, error) {
	dim, err := contract.ParseDimension(s.Dimension)
	if err != nil {
		return contract.ValidationRule{}, fmt.Errorf("rule %q: %w", s.Name, err)
	}
	sev, err := contract.ParseSeverity(s.Severity)
	if err != nil {
		return contract.ValidationRule{}, fmt.Errorf("rule %q: %w", s.Name, err)
	}

	var pred contract.Predicate
	if dim != contract.DimensionUniqueness {
		pred, err = s.Predicate.toPredicate()
		if err != nil {
			return contract.ValidationRule{}, fmt.Errorf("rule %q: %w", s.Name, err)
		}
	}

	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}

	rule := contract.ValidationRule{
		Name:          s.Name,
		Description:   s.Description,
		Dimension:     dim,
		Severity:      sev,
		Predicate:     pred,
		FieldPattern:  s.FieldPattern,
		Threshold:     s.Threshold,
		Enabled:       enabled,
		AutoRemediate: s.AutoRemediate,
		Tags:          s.Tags,
	}
	if err := rule.Validate(); err != nil {
		return contract.ValidationRule{}, err
	}
	return rule, nil
}

func (s PredicateSpec) toPredicate() (contract.Predicate, error) {
	switch s.Type {
	case "not_null":
		return contract.NotNull{}, nil
	case "regex":
		return contract.NewPattern(s.Pattern)
	case "range":
		if s.Min == nil && s.Max == nil {
			return nil, fmt.Errorf("%w: range predicate needs min or max", contract.ErrInvalidRule)
		}
		return contract.Range{Min: s.Min, Max: s.Max}, nil
	case "in_set":
		if len(s.Values) == 0 {
			return nil, fmt.Errorf("%w: in_set predicate needs values", contract.ErrInvalidRule)
		}
		return contract.InSet{Values: s.Values}, nil
	case "not":
		if len(s.Preds) != 1 {
			return nil, fmt.Errorf("%w: not predicate needs exactly one child", contract.ErrInvalidRule)
		}
		inner, err := s.Preds[0].toPredicate()
		if err != nil {
			return nil, err
		}
		return contract.Not{Inner: inner}, nil
	case "all_of", "any_of":
		if len(s.Preds) == 0 {
			return nil, fmt.Errorf("%w: %s predicate needs children", contract.ErrInvalidRule, s.Type)
		}
		children := make([]contract.Predicate, len(s.Preds))
		for i, child := range s.Preds {
			p, err := child.toPredicate()
			if err != nil {
				return nil, err
			}
			children[i] = p
		}
		if s.Type == "all_of" {
			return contract.AllOf{Preds: children}, nil
		}
		return contract.AnyOf{Preds: children}, nil
	case "":
		return nil, fmt.Errorf("%w: predicate type is required", contract.ErrInvalidRule)
	}
	return nil, fmt.Errorf("%w: unknown predicate type %q", contract.ErrInvalidRule, s.Type)
}
