package drift

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"dataguard/domain/contract"
	"dataguard/internal/registry"
)

func field(name string, ft contract.FieldType, nullable bool) contract.FieldDescriptor {
	return contract.FieldDescriptor{Name: name, Type: ft, Nullable: nullable}
}

var baseSchema = []contract.FieldDescriptor{
	field("id", contract.FieldTypeInt, false),
	field("amount", contract.FieldTypeFloat, false),
	field("status", contract.FieldTypeString, true),
}

func TestDiff_IdenticalSchemasAreEmpty(t *testing.T) {
	if changes := Diff(baseSchema, baseSchema); len(changes) != 0 {
		t.Fatalf("Diff(S, S) = %v, want empty", changes)
	}
}

func TestDiff_DetectsEveryChangeKind(t *testing.T) {
	incoming := []contract.FieldDescriptor{
		field("id", contract.FieldTypeInt, false),
		field("amount", contract.FieldTypeString, false), // type changed
		field("status", contract.FieldTypeString, false), // nullability changed
		field("channel", contract.FieldTypeString, true), // added
		// "removed" only exists in old
	}
	old := append(baseSchema[:len(baseSchema):len(baseSchema)],
		field("removed", contract.FieldTypeBool, false))

	changes := Diff(old, incoming)

	byKind := map[contract.ChangeKind][]contract.SchemaChange{}
	for _, c := range changes {
		byKind[c.Kind] = append(byKind[c.Kind], c)
	}
	if len(byKind[contract.ChangeFieldRemoved]) != 1 || byKind[contract.ChangeFieldRemoved][0].FieldName != "removed" {
		t.Errorf("removed changes = %v", byKind[contract.ChangeFieldRemoved])
	}
	if len(byKind[contract.ChangeFieldAdded]) != 1 || byKind[contract.ChangeFieldAdded][0].FieldName != "channel" {
		t.Errorf("added changes = %v", byKind[contract.ChangeFieldAdded])
	}
	if len(byKind[contract.ChangeTypeChanged]) != 1 || byKind[contract.ChangeTypeChanged][0].FieldName != "amount" {
		t.Errorf("type changes = %v", byKind[contract.ChangeTypeChanged])
	}
	if len(byKind[contract.ChangeNullabilityChanged]) != 1 || byKind[contract.ChangeNullabilityChanged][0].FieldName != "status" {
		t.Errorf("nullability changes = %v", byKind[contract.ChangeNullabilityChanged])
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		changes []contract.SchemaChange
		want    contract.CompatibilityLevel
	}{
		{"empty", nil, contract.CompatibilityFull},
		{"additive only", []contract.SchemaChange{
			{Kind: contract.ChangeFieldAdded},
		}, contract.CompatibilityForward},
		{"nullability flip", []contract.SchemaChange{
			{Kind: contract.ChangeNullabilityChanged},
		}, contract.CompatibilityBackward},
		{"added plus nullability", []contract.SchemaChange{
			{Kind: contract.ChangeFieldAdded},
			{Kind: contract.ChangeNullabilityChanged},
		}, contract.CompatibilityBackward},
		{"type change dominates", []contract.SchemaChange{
			{Kind: contract.ChangeFieldAdded},
			{Kind: contract.ChangeTypeChanged},
		}, contract.CompatibilityBreaking},
		{"removal dominates", []contract.SchemaChange{
			{Kind: contract.ChangeNullabilityChanged},
			{Kind: contract.ChangeFieldRemoved},
		}, contract.CompatibilityBreaking},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.changes); got != tc.want {
				t.Fatalf("Classify = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDetect_InitialRegistration(t *testing.T) {
	store := registry.NewMemoryStore()
	det := New(store, nil)

	outcome, err := det.Detect(context.Background(), "orders", baseSchema)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if outcome.Action != contract.ActionInitialRegistration {
		t.Fatalf("action = %s, want initial registration", outcome.Action)
	}
	if outcome.ActiveVersion != 1 {
		t.Fatalf("active version = %d, want 1", outcome.ActiveVersion)
	}
}

func TestDetect_IdenticalSchemaKeepsVersion(t *testing.T) {
	store := registry.NewMemoryStore()
	det := New(store, nil)
	ctx := context.Background()

	if _, err := det.Detect(ctx, "orders", baseSchema); err != nil {
		t.Fatalf("initial detect failed: %v", err)
	}
	outcome, err := det.Detect(ctx, "orders", baseSchema)
	if err != nil {
		t.Fatalf("second detect failed: %v", err)
	}
	if outcome.Action != contract.ActionAutoRegistered {
		t.Fatalf("action = %s, want auto registered", outcome.Action)
	}
	if outcome.ActiveVersion != 1 {
		t.Fatalf("active version = %d, want 1 (unchanged)", outcome.ActiveVersion)
	}
	versions, _ := store.ListVersions(ctx, "orders")
	if len(versions) != 1 {
		t.Fatalf("expected 1 stored version, got %d", len(versions))
	}
}

func TestDetect_AdditiveChangeAutoRegisters(t *testing.T) {
	store := registry.NewMemoryStore()
	det := New(store, nil)
	ctx := context.Background()

	if _, err := det.Detect(ctx, "orders", baseSchema); err != nil {
		t.Fatalf("initial detect failed: %v", err)
	}

	widened := append(baseSchema[:len(baseSchema):len(baseSchema)],
		field("channel", contract.FieldTypeString, true))
	outcome, err := det.Detect(ctx, "orders", widened)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if outcome.Compatibility != contract.CompatibilityForward {
		t.Fatalf("compatibility = %s, want forward", outcome.Compatibility)
	}
	if outcome.Action != contract.ActionAutoRegistered {
		t.Fatalf("action = %s, want auto registered", outcome.Action)
	}
	if outcome.ActiveVersion != 2 {
		t.Fatalf("active version = %d, want 2", outcome.ActiveVersion)
	}
}

func TestDetect_NullabilityRegistersWithWarning(t *testing.T) {
	store := registry.NewMemoryStore()
	det := New(store, nil)
	ctx := context.Background()

	if _, err := det.Detect(ctx, "orders", baseSchema); err != nil {
		t.Fatalf("initial detect failed: %v", err)
	}

	flipped := []contract.FieldDescriptor{
		field("id", contract.FieldTypeInt, false),
		field("amount", contract.FieldTypeFloat, true),
		field("status", contract.FieldTypeString, true),
	}
	outcome, err := det.Detect(ctx, "orders", flipped)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if outcome.Action != contract.ActionRegisteredWithWarning {
		t.Fatalf("action = %s, want registered with warning", outcome.Action)
	}
	if outcome.ActiveVersion != 2 {
		t.Fatalf("active version = %d, want 2", outcome.ActiveVersion)
	}
}

func TestDetect_BreakingDriftWithholdsRegistration(t *testing.T) {
	store := registry.NewMemoryStore()
	det := New(store, nil)
	ctx := context.Background()

	if _, err := det.Detect(ctx, "orders", baseSchema); err != nil {
		t.Fatalf("initial detect failed: %v", err)
	}

	broken := []contract.FieldDescriptor{
		field("id", contract.FieldTypeInt, false),
		field("amount", contract.FieldTypeString, false),
		field("status", contract.FieldTypeString, true),
	}
	outcome, err := det.Detect(ctx, "orders", broken)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if outcome.Compatibility != contract.CompatibilityBreaking {
		t.Fatalf("compatibility = %s, want breaking", outcome.Compatibility)
	}
	if outcome.Action != contract.ActionRequiresManualResolution {
		t.Fatalf("action = %s, want requires manual resolution", outcome.Action)
	}
	if len(outcome.Recommendations) == 0 {
		t.Fatal("expected recommendations for breaking drift")
	}

	// The active version must be untouched.
	active, err := store.GetActive(ctx, "orders")
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if active.Version != 1 {
		t.Fatalf("active version = %d, want 1", active.Version)
	}
}

// conflictStore fails registration with a version conflict a fixed
// number of times before delegating to the real store.
type conflictStore struct {
	*registry.MemoryStore
	failures int
}

func (s *conflictStore) Register(ctx context.Context, tableID string, fields []contract.FieldDescriptor, changes []contract.SchemaChange, expectedVersion uint64) (*contract.SchemaVersion, error) {
	if s.failures > 0 {
		s.failures--
		return nil, fmt.Errorf("%w: simulated race", contract.ErrVersionConflict)
	}
	return s.MemoryStore.Register(ctx, tableID, fields, changes, expectedVersion)
}

func TestDetect_RetriesRegistrationConflicts(t *testing.T) {
	store := &conflictStore{MemoryStore: registry.NewMemoryStore(), failures: 2}
	det := New(store, nil)

	outcome, err := det.Detect(context.Background(), "orders", baseSchema)
	if err != nil {
		t.Fatalf("Detect failed after retries: %v", err)
	}
	if outcome.ActiveVersion != 1 {
		t.Fatalf("active version = %d, want 1", outcome.ActiveVersion)
	}
}

func TestDetect_GivesUpAfterMaxAttempts(t *testing.T) {
	store := &conflictStore{MemoryStore: registry.NewMemoryStore(), failures: maxRegisterAttempts}
	det := New(store, nil)

	_, err := det.Detect(context.Background(), "orders", baseSchema)
	if !errors.Is(err, contract.ErrSchemaRegistrationConflict) {
		t.Fatalf("expected ErrSchemaRegistrationConflict, got %v", err)
	}
}
