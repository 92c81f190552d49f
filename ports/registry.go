package ports

import (
	"context"

	"dataguard/domain/contract"
)

// SchemaStore persists versioned schema snapshots per table. The only
// shared mutable resource in the system is the per-table active-version
// pointer, guarded by compare-and-swap: Register takes the version the
// caller read as active and fails with contract.ErrVersionConflict if a
// concurrent registration moved it. The caller owns the retry loop.
type SchemaStore interface {
	// GetActive returns the single active version for a table, or
	// contract.ErrNoActiveVersion if the table was never registered.
	GetActive(ctx context.Context, tableID string) (*contract.SchemaVersion, error)

	// Register writes fields as the next active version, deactivating
	// the prior one. expectedVersion is the active version number the
	// caller observed (0 when none existed); on mismatch the store
	// returns contract.ErrVersionConflict and writes nothing.
	Register(ctx context.Context, tableID string, fields []contract.FieldDescriptor, changes []contract.SchemaChange, expectedVersion uint64) (*contract.SchemaVersion, error)

	// ListVersions returns all versions for a table ordered by version
	// ascending.
	ListVersions(ctx context.Context, tableID string) ([]contract.SchemaVersion, error)
}
