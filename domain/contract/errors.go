package contract

import (
	"errors"
	"fmt"
)

// Centralized error taxonomy. Evaluation-time failures inside the
// engines are recorded in reports rather than raised; only
// configuration errors and exhausted registry conflicts reach callers
// as hard errors.
var (
	// ErrNoActiveVersion is returned by a schema store when a table has
	// never been registered.
	ErrNoActiveVersion = errors.New("no active schema version")

	// ErrVersionConflict is the store-level compare-and-swap failure:
	// the active version moved between read and write.
	ErrVersionConflict = errors.New("schema version conflict")

	// ErrSchemaRegistrationConflict is raised after CAS retries are
	// exhausted for one table.
	ErrSchemaRegistrationConflict = errors.New("schema registration conflict: retries exhausted")

	// ErrInvalidRule rejects malformed rule definitions at registration
	// time.
	ErrInvalidRule = errors.New("invalid rule configuration")

	// ErrRuleEvaluation marks a rule whose evaluation failed; the rule's
	// result is downgraded to score 0, the run continues.
	ErrRuleEvaluation = errors.New("rule evaluation failed")

	// ErrDetector marks an anomaly detector that failed; it is recorded
	// in the report's errored method list.
	ErrDetector = errors.New("detector failed")

	// ErrInsufficientData is a documented skip condition, not a failure:
	// a detector had too few samples to produce a meaningful result.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrScorerUnavailable signals that the optional multivariate scorer
	// is not wired in; the method is reported as skipped.
	ErrScorerUnavailable = errors.New("multivariate scorer unavailable")

	// ErrUnknownField is returned by dataset implementations for a field
	// absent from the batch.
	ErrUnknownField = errors.New("unknown field")
)

// NewRegistrationConflict wraps the exhausted-retries error with table
// context.
func NewRegistrationConflict(tableID string, attempts int) error {
	return fmt.Errorf("%w: table %s after %d attempts", ErrSchemaRegistrationConflict, tableID, attempts)
}

// IsSkip reports whether an error is a documented skip condition rather
// than a detector failure.
func IsSkip(err error) bool {
	return errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrScorerUnavailable)
}

// IsConflict reports whether an error is a store-level CAS conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
