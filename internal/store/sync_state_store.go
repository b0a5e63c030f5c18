package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"notesync-engine/internal/domain"
)

type SyncStateStore interface {
	// Upsert writes the row for (EntityType, EntityID), inserting or
	// replacing atomically; the one-row-per-entity invariant lives here.
	Upsert(ctx context.Context, state *domain.SyncState) error
	Get(ctx context.Context, entityType domain.EntityType, entityID string) (*domain.SyncState, error)
	CountByStatus(ctx context.Context, status domain.SyncStatus) (int, error)
}

type syncStateStore struct {
	db *sql.DB
}

func NewSyncStateStore(db *sql.DB) SyncStateStore {
	return &syncStateStore{db: db}
}

func (s *syncStateStore) Upsert(ctx context.Context, state *domain.SyncState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_states (entity_type, entity_id, local_version, remote_version,
			last_synced_at, status, conflict_payload, checksum, attempt_count, last_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			local_version = excluded.local_version,
			remote_version = excluded.remote_version,
			last_synced_at = excluded.last_synced_at,
			status = excluded.status,
			conflict_payload = excluded.conflict_payload,
			checksum = excluded.checksum,
			attempt_count = excluded.attempt_count,
			last_error = excluded.last_error`,
		state.EntityType, state.EntityID, state.LocalVersion, state.RemoteVersion,
		toMillisPtr(state.LastSyncedAt), state.Status, state.ConflictPayload,
		state.Checksum, state.AttemptCount, state.LastError)
	if err != nil {
		return fmt.Errorf("failed to upsert sync state: %w", err)
	}
	return nil
}

func (s *syncStateStore) Get(ctx context.Context, entityType domain.EntityType, entityID string) (*domain.SyncState, error) {
	var (
		state    domain.SyncState
		syncedAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT entity_type, entity_id, local_version, remote_version, last_synced_at,
			status, conflict_payload, checksum, attempt_count, last_error
		 FROM sync_states WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID).Scan(
		&state.EntityType, &state.EntityID, &state.LocalVersion, &state.RemoteVersion,
		&syncedAt, &state.Status, &state.ConflictPayload, &state.Checksum,
		&state.AttemptCount, &state.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync state %s/%s: %w", entityType, entityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	state.LastSyncedAt = fromMillisPtr(syncedAt)
	return &state, nil
}

func (s *syncStateStore) CountByStatus(ctx context.Context, status domain.SyncStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_states WHERE status = ?`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sync states: %w", err)
	}
	return n, nil
}
