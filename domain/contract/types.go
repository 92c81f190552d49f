package contract

import (
	"time"
)

// FieldType is the declared type of a field in a registered schema.
type FieldType string

const (
	FieldTypeInt       FieldType = "int"
	FieldTypeFloat     FieldType = "float"
	FieldTypeString    FieldType = "string"
	FieldTypeBool      FieldType = "bool"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeUnknown   FieldType = "unknown"
)

// FieldDescriptor describes one field of a tabular schema.
type FieldDescriptor struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Nullable bool      `json:"nullable"`
}

// SchemaVersion is one immutable snapshot of a table's schema.
// Exactly one version per table is active at any time, and Version
// strictly increases per table.
type SchemaVersion struct {
	ID           string            `json:"id"`
	TableID      string            `json:"table_id"`
	Version      uint64            `json:"version"`
	Fields       []FieldDescriptor `json:"fields"`
	RegisteredAt time.Time         `json:"registered_at"`
	IsActive     bool              `json:"is_active"`
}

// Field returns the descriptor for name, if present.
func (sv SchemaVersion) Field(name string) (FieldDescriptor, bool) {
	for _, f := range sv.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// ChangeKind classifies a single field-level schema change.
type ChangeKind string

const (
	ChangeFieldAdded         ChangeKind = "field_added"
	ChangeFieldRemoved       ChangeKind = "field_removed"
	ChangeTypeChanged        ChangeKind = "type_changed"
	ChangeNullabilityChanged ChangeKind = "nullability_changed"
)

// SchemaChange records one detected difference between a registered
// schema version and an incoming batch schema. Old/New carry the type
// names for type changes and "nullable"/"not null" for nullability
// changes.
type SchemaChange struct {
	FieldName string     `json:"field_name"`
	Kind      ChangeKind `json:"kind"`
	Old       string     `json:"old,omitempty"`
	New       string     `json:"new,omitempty"`
}

// CompatibilityLevel classifies the severity of a set of schema changes.
type CompatibilityLevel string

const (
	// CompatibilityFull means no changes at all.
	CompatibilityFull CompatibilityLevel = "full"
	// CompatibilityForward means purely additive changes.
	CompatibilityForward CompatibilityLevel = "forward"
	// CompatibilityBackward means non-breaking, non-additive changes
	// (nullability only).
	CompatibilityBackward CompatibilityLevel = "backward"
	// CompatibilityBreaking means a type change or field removal exists.
	CompatibilityBreaking CompatibilityLevel = "breaking"
	// CompatibilityUnknown means drift detection could not run, e.g.
	// the registry was unreachable. Never produced by classification.
	CompatibilityUnknown CompatibilityLevel = "unknown"
)

// DriftAction is the registration decision taken for an incoming schema.
type DriftAction string

const (
	ActionInitialRegistration      DriftAction = "initial_registration"
	ActionAutoRegistered           DriftAction = "auto_registered"
	ActionRegisteredWithWarning    DriftAction = "registered_with_warning"
	ActionRequiresManualResolution DriftAction = "requires_manual_resolution"
)

// DriftOutcome is the result of diffing one incoming batch schema
// against the registry's active version for a table.
type DriftOutcome struct {
	TableID         string             `json:"table_id"`
	Changes         []SchemaChange     `json:"changes"`
	Compatibility   CompatibilityLevel `json:"compatibility"`
	Action          DriftAction        `json:"action"`
	ActiveVersion   uint64             `json:"active_version"`
	Recommendations []string           `json:"recommendations,omitempty"`
}
