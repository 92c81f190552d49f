// Package registry provides the in-memory SchemaStore used by tests
// and single-process deployments. The persistent implementation lives
// in adapters/postgres.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"dataguard/domain/contract"
)

// MemoryStore keeps schema versions per table under a mutex and
// enforces the compare-and-swap contract: a register racing against a
// concurrent writer loses with contract.ErrVersionConflict and must
// retry against the freshly read state.
type MemoryStore struct {
	mu       sync.Mutex
	versions map[string][]contract.SchemaVersion
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{versions: make(map[string][]contract.SchemaVersion)}
}

// GetActive returns the single active version for a table.
func (s *MemoryStore) GetActive(ctx context.Context, tableID string) (*contract.SchemaVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.versions[tableID] {
		if v.IsActive {
			active := v
			return &active, nil
		}
	}
	return nil, fmt.Errorf("%w: table %s", contract.ErrNoActiveVersion, tableID)
}

// Register writes the next version as active. expectedVersion is the
// active version number the caller observed; 0 means the caller
// expects the table to be unregistered.
func (s *MemoryStore) Register(ctx context.Context, tableID string, fields []contract.FieldDescriptor, changes []contract.SchemaChange, expectedVersion uint64) (*contract.SchemaVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current uint64
	activeIdx := -1
	for i, v := range s.versions[tableID] {
		if v.IsActive {
			current = v.Version
			activeIdx = i
		}
	}
	if current != expectedVersion {
		return nil, fmt.Errorf("%w: table %s expected v%d, active is v%d",
			contract.ErrVersionConflict, tableID, expectedVersion, current)
	}

	if activeIdx >= 0 {
		s.versions[tableID][activeIdx].IsActive = false
	}

	next := contract.SchemaVersion{
		ID:           uuid.NewString(),
		TableID:      tableID,
		Version:      current + 1,
		Fields:       cloneFields(fields),
		RegisteredAt: time.Now().UTC(),
		IsActive:     true,
	}
	s.versions[tableID] = append(s.versions[tableID], next)
	return &next, nil
}

// ListVersions returns all versions for a table ordered by version
// ascending.
func (s *MemoryStore) ListVersions(ctx context.Context, tableID string) ([]contract.SchemaVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]contract.SchemaVersion, len(s.versions[tableID]))
	copy(out, s.versions[tableID])
	return out, nil
}

func cloneFields(fields []contract.FieldDescriptor) []contract.FieldDescriptor {
	out := make([]contract.FieldDescriptor, len(fields))
	copy(out, fields)
	return out
}
