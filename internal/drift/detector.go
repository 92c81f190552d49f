// Package drift diffs incoming batch schemas against the registry's
// active version, classifies the change set and decides whether a new
// version is registered automatically.
package drift

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"dataguard/domain/contract"
	"dataguard/ports"
)

// registration retries against a concurrently moved active version.
const maxRegisterAttempts = 3

// Detector owns the drift policy for one schema store.
type Detector struct {
	store ports.SchemaStore
	log   *zap.Logger
}

// New creates a drift detector. A nil logger is replaced with a nop
// logger.
func New(store ports.SchemaStore, log *zap.Logger) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{store: store, log: log}
}

// Diff compares a registered schema against an incoming one field by
// field. It is pure and idempotent: Diff(S, S) is empty.
func Diff(old, incoming []contract.FieldDescriptor) []contract.SchemaChange {
	oldByName := make(map[string]contract.FieldDescriptor, len(old))
	for _, f := range old {
		oldByName[f.Name] = f
	}
	newByName := make(map[string]contract.FieldDescriptor, len(incoming))
	for _, f := range incoming {
		newByName[f.Name] = f
	}

	var changes []contract.SchemaChange

	for _, f := range old {
		if _, ok := newByName[f.Name]; !ok {
			changes = append(changes, contract.SchemaChange{
				FieldName: f.Name,
				Kind:      contract.ChangeFieldRemoved,
				Old:       string(f.Type),
			})
		}
	}

	for _, f := range incoming {
		prev, existed := oldByName[f.Name]
		if !existed {
			changes = append(changes, contract.SchemaChange{
				FieldName: f.Name,
				Kind:      contract.ChangeFieldAdded,
				New:       string(f.Type),
			})
			continue
		}
		if prev.Type != f.Type {
			changes = append(changes, contract.SchemaChange{
				FieldName: f.Name,
				Kind:      contract.ChangeTypeChanged,
				Old:       string(prev.Type),
				New:       string(f.Type),
			})
			continue
		}
		if prev.Nullable != f.Nullable {
			changes = append(changes, contract.SchemaChange{
				FieldName: f.Name,
				Kind:      contract.ChangeNullabilityChanged,
				Old:       nullability(prev.Nullable),
				New:       nullability(f.Nullable),
			})
		}
	}

	return changes
}

func nullability(nullable bool) string {
	if nullable {
		return "nullable"
	}
	return "not null"
}

// Classify derives the compatibility level from a change set. Breaking
// dominates; purely additive sets are forward compatible; nullability
// flips alone are backward compatible.
func Classify(changes []contract.SchemaChange) contract.CompatibilityLevel {
	if len(changes) == 0 {
		return contract.CompatibilityFull
	}
	additiveOnly := true
	for _, c := range changes {
		switch c.Kind {
		case contract.ChangeTypeChanged, contract.ChangeFieldRemoved:
			return contract.CompatibilityBreaking
		case contract.ChangeNullabilityChanged:
			additiveOnly = false
		}
	}
	if additiveOnly {
		return contract.CompatibilityForward
	}
	return contract.CompatibilityBackward
}

// Detect diffs the incoming schema against the table's active version
// and applies the registration policy: full/forward drift registers a
// new version automatically, backward drift registers with a warning,
// breaking drift withholds registration so the caller can branch to a
// quarantine policy. Registration losses against concurrent writers are
// retried against the freshly read state.
func (d *Detector) Detect(ctx context.Context, tableID string, incoming []contract.FieldDescriptor) (contract.DriftOutcome, error) {
	for attempt := 1; attempt <= maxRegisterAttempts; attempt++ {
		outcome, err := d.detectOnce(ctx, tableID, incoming)
		if err == nil {
			return outcome, nil
		}
		if !contract.IsConflict(err) {
			return contract.DriftOutcome{}, err
		}
		d.log.Warn("schema registration conflict, retrying",
			zap.String("table_id", tableID),
			zap.Int("attempt", attempt))
	}
	return contract.DriftOutcome{}, contract.NewRegistrationConflict(tableID, maxRegisterAttempts)
}

func (d *Detector) detectOnce(ctx context.Context, tableID string, incoming []contract.FieldDescriptor) (contract.DriftOutcome, error) {
	active, err := d.store.GetActive(ctx, tableID)
	if err != nil {
		if errors.Is(err, contract.ErrNoActiveVersion) {
			return d.registerInitial(ctx, tableID, incoming)
		}
		return contract.DriftOutcome{}, fmt.Errorf("reading active schema for %s: %w", tableID, err)
	}

	changes := Diff(active.Fields, incoming)
	level := Classify(changes)

	outcome := contract.DriftOutcome{
		TableID:         tableID,
		Changes:         changes,
		Compatibility:   level,
		ActiveVersion:   active.Version,
		Recommendations: recommend(changes, level),
	}

	switch level {
	case contract.CompatibilityFull:
		outcome.Action = contract.ActionAutoRegistered
		if len(changes) == 0 {
			// Identical schema: nothing to write, the active version
			// stays current.
			return outcome, nil
		}
	case contract.CompatibilityForward:
		outcome.Action = contract.ActionAutoRegistered
	case contract.CompatibilityBackward:
		outcome.Action = contract.ActionRegisteredWithWarning
	case contract.CompatibilityBreaking:
		outcome.Action = contract.ActionRequiresManualResolution
		d.log.Info("breaking drift detected, registration withheld",
			zap.String("table_id", tableID),
			zap.Int("changes", len(changes)))
		return outcome, nil
	}

	registered, err := d.store.Register(ctx, tableID, incoming, changes, active.Version)
	if err != nil {
		return contract.DriftOutcome{}, err
	}
	outcome.ActiveVersion = registered.Version

	d.log.Info("schema version registered",
		zap.String("table_id", tableID),
		zap.Uint64("version", registered.Version),
		zap.String("compatibility", string(level)))
	return outcome, nil
}

func (d *Detector) registerInitial(ctx context.Context, tableID string, incoming []contract.FieldDescriptor) (contract.DriftOutcome, error) {
	registered, err := d.store.Register(ctx, tableID, incoming, nil, 0)
	if err != nil {
		return contract.DriftOutcome{}, err
	}
	d.log.Info("initial schema registered",
		zap.String("table_id", tableID),
		zap.Uint64("version", registered.Version))
	return contract.DriftOutcome{
		TableID:       tableID,
		Changes:       nil,
		Compatibility: contract.CompatibilityFull,
		Action:        contract.ActionInitialRegistration,
		ActiveVersion: registered.Version,
	}, nil
}

// recommend produces actionable advice per change class, highest
// severity first.
func recommend(changes []contract.SchemaChange, level contract.CompatibilityLevel) []string {
	if len(changes) == 0 {
		return nil
	}

	var hasTypeChange, hasRemoval, hasAddition, hasNullability bool
	for _, c := range changes {
		switch c.Kind {
		case contract.ChangeTypeChanged:
			hasTypeChange = true
		case contract.ChangeFieldRemoved:
			hasRemoval = true
		case contract.ChangeFieldAdded:
			hasAddition = true
		case contract.ChangeNullabilityChanged:
			hasNullability = true
		}
	}

	var recs []string
	if level == contract.CompatibilityBreaking {
		recs = append(recs, "Breaking drift detected: resolve manually before downstream writes consume this table")
	}
	if hasTypeChange {
		recs = append(recs, "Type changes detected: review transformation logic reading the affected fields")
	}
	if hasRemoval {
		recs = append(recs, "Field removals detected: update downstream references to the removed fields")
	}
	if hasNullability {
		recs = append(recs, "Nullability changes detected: verify consumers handle missing values in the affected fields")
	}
	if hasAddition && !hasTypeChange && !hasRemoval {
		recs = append(recs, "Additive changes only: new fields are available to consumers")
	}
	return recs
}
