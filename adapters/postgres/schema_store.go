// Package postgres persists schema versions in PostgreSQL. The
// compare-and-swap contract is implemented with a row lock on the
// active version inside one transaction.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"dataguard/domain/contract"
	"dataguard/ports"
)

// Schema DDL for the versions table; applied by EnsureSchema.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_versions (
	id            UUID PRIMARY KEY,
	table_id      TEXT NOT NULL,
	version       BIGINT NOT NULL,
	fields        JSONB NOT NULL,
	registered_at TIMESTAMPTZ NOT NULL,
	is_active     BOOLEAN NOT NULL,
	changes       JSONB,
	UNIQUE (table_id, version)
);
CREATE UNIQUE INDEX IF NOT EXISTS schema_versions_active_idx
	ON schema_versions (table_id) WHERE is_active;
`

// SchemaStore implements ports.SchemaStore on a sqlx connection.
type SchemaStore struct {
	db *sqlx.DB
}

// NewSchemaStore creates a store over an open connection.
func NewSchemaStore(db *sqlx.DB) ports.SchemaStore {
	return &SchemaStore{db: db}
}

// EnsureSchema applies the store's DDL.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("applying schema store DDL: %w", err)
	}
	return nil
}

// GetActive returns the single active version for a table.
func (s *SchemaStore) GetActive(ctx context.Context, tableID string) (*contract.SchemaVersion, error) {
	query := `SELECT id, table_id, version, fields, registered_at, is_active
		FROM schema_versions WHERE table_id = $1 AND is_active`

	row := s.db.QueryRowContext(ctx, query, tableID)
	sv, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: table %s", contract.ErrNoActiveVersion, tableID)
		}
		return nil, fmt.Errorf("failed to get active schema: %w", err)
	}
	return sv, nil
}

// Register writes the next active version inside one transaction,
// locking the current active row so two concurrent registrations for
// the same table serialize. The loser of the race observes a moved
// version and gets contract.ErrVersionConflict.
func (s *SchemaStore) Register(ctx context.Context, tableID string, fields []contract.FieldDescriptor, changes []contract.SchemaChange, expectedVersion uint64) (*contract.SchemaVersion, error) {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fields: %w", err)
	}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal changes: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin registration: %w", err)
	}
	defer tx.Rollback()

	var current uint64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM schema_versions WHERE table_id = $1 AND is_active FOR UPDATE`,
		tableID).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read active version: %w", err)
	}
	if current != expectedVersion {
		return nil, fmt.Errorf("%w: table %s expected v%d, active is v%d",
			contract.ErrVersionConflict, tableID, expectedVersion, current)
	}

	if current > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE schema_versions SET is_active = FALSE WHERE table_id = $1 AND is_active`,
			tableID); err != nil {
			return nil, fmt.Errorf("failed to deactivate version: %w", err)
		}
	}

	next := contract.SchemaVersion{
		ID:           uuid.NewString(),
		TableID:      tableID,
		Version:      current + 1,
		Fields:       fields,
		RegisteredAt: time.Now().UTC(),
		IsActive:     true,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_versions (id, table_id, version, fields, registered_at, is_active, changes)
		 VALUES ($1, $2, $3, $4, $5, TRUE, $6)`,
		next.ID, next.TableID, next.Version, fieldsJSON, next.RegisteredAt, changesJSON); err != nil {
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit registration: %w", err)
	}
	return &next, nil
}

// ListVersions returns all versions for a table ordered by version
// ascending.
func (s *SchemaStore) ListVersions(ctx context.Context, tableID string) ([]contract.SchemaVersion, error) {
	query := `SELECT id, table_id, version, fields, registered_at, is_active
		FROM schema_versions WHERE table_id = $1 ORDER BY version`

	rows, err := s.db.QueryContext(ctx, query, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []contract.SchemaVersion
	for rows.Next() {
		sv, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, *sv)
	}
	return versions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*contract.SchemaVersion, error) {
	var sv contract.SchemaVersion
	var fieldsJSON []byte
	if err := row.Scan(&sv.ID, &sv.TableID, &sv.Version, &fieldsJSON, &sv.RegisteredAt, &sv.IsActive); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fieldsJSON, &sv.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	return &sv, nil
}
