package contract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cast"
)

// Predicate is a typed condition evaluated per value of a single field.
// It replaces raw query-engine condition strings: predicates never see
// a SQL dialect and are evaluated directly against the batch snapshot.
type Predicate interface {
	// Matches reports whether a single column value satisfies the
	// condition. A record passes a rule when its value matches.
	Matches(value any) bool
	// Describe returns a short human-readable form for reports.
	Describe() string
}

// IsNull reports whether a raw column value counts as missing.
// nil and empty/whitespace-only strings are treated as null, matching
// how loosely-typed batch sources deliver absent values.
func IsNull(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// NotNull passes when a value is present.
type NotNull struct{}

func (NotNull) Matches(value any) bool { return !IsNull(value) }
func (NotNull) Describe() string       { return "is not null" }

// Pattern passes when the value's string form matches a regular
// expression. Null values fail.
type Pattern struct {
	expr *regexp.Regexp
}

// NewPattern compiles a regex predicate, failing eagerly on a bad
// expression.
func NewPattern(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: invalid pattern %q: %v", ErrInvalidRule, expr, err)
	}
	return Pattern{expr: re}, nil
}

func (p Pattern) Matches(value any) bool {
	if IsNull(value) {
		return false
	}
	return p.expr.MatchString(cast.ToString(value))
}

func (p Pattern) Describe() string { return fmt.Sprintf("matches /%s/", p.expr.String()) }

// Range passes when a numeric value lies inside [Min, Max]. Either
// bound may be nil for a half-open range. Non-numeric and null values
// fail.
type Range struct {
	Min *float64
	Max *float64
}

func (r Range) Matches(value any) bool {
	if IsNull(value) {
		return false
	}
	v, err := cast.ToFloat64E(value)
	if err != nil {
		return false
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

func (r Range) Describe() string {
	switch {
	case r.Min != nil && r.Max != nil:
		return fmt.Sprintf("in [%g, %g]", *r.Min, *r.Max)
	case r.Min != nil:
		return fmt.Sprintf(">= %g", *r.Min)
	case r.Max != nil:
		return fmt.Sprintf("<= %g", *r.Max)
	}
	return "any value"
}

// InSet passes when the value's string form is one of the allowed
// values. Comparison is case-insensitive.
type InSet struct {
	Values []string
}

func (s InSet) Matches(value any) bool {
	if IsNull(value) {
		return false
	}
	v := cast.ToString(value)
	for _, allowed := range s.Values {
		if strings.EqualFold(v, allowed) {
			return true
		}
	}
	return false
}

func (s InSet) Describe() string { return fmt.Sprintf("in {%s}", strings.Join(s.Values, ", ")) }

// Not inverts a predicate.
type Not struct {
	Inner Predicate
}

func (n Not) Matches(value any) bool { return !n.Inner.Matches(value) }
func (n Not) Describe() string       { return "not (" + n.Inner.Describe() + ")" }

// AllOf passes when every child predicate passes.
type AllOf struct {
	Preds []Predicate
}

func (a AllOf) Matches(value any) bool {
	for _, p := range a.Preds {
		if !p.Matches(value) {
			return false
		}
	}
	return true
}

func (a AllOf) Describe() string { return describeComposite("and", a.Preds) }

// AnyOf passes when at least one child predicate passes.
type AnyOf struct {
	Preds []Predicate
}

func (a AnyOf) Matches(value any) bool {
	for _, p := range a.Preds {
		if p.Matches(value) {
			return true
		}
	}
	return false
}

func (a AnyOf) Describe() string { return describeComposite("or", a.Preds) }

func describeComposite(op string, preds []Predicate) string {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.Describe()
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")"
}
