package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"notesync-engine/internal/domain"
)

type ConflictStore interface {
	Insert(ctx context.Context, rec *domain.ConflictRecord) error
	Get(ctx context.Context, id string) (*domain.ConflictRecord, error)
	ListUnresolved(ctx context.Context, limit int) ([]*domain.ConflictRecord, error)
	MarkResolved(ctx context.Context, id, resolvedBy string, strategy domain.ResolutionStrategy) error
	CountUnresolved(ctx context.Context) (int, error)
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type conflictStore struct {
	db *sql.DB
}

func NewConflictStore(db *sql.DB) ConflictStore {
	return &conflictStore{db: db}
}

const conflictColumns = `id, entity_type, entity_id, kind, detail, local_payload, remote_payload,
	merged_payload, strategy, resolved_at, resolved_by, confidence, resolved, notes,
	affected_fields, field_strategies, detected_at, operation_id`

func (s *conflictStore) Insert(ctx context.Context, rec *domain.ConflictRecord) error {
	affected, err := json.Marshal(rec.AffectedFields)
	if err != nil {
		return fmt.Errorf("failed to encode affected fields: %w", err)
	}
	if rec.AffectedFields == nil {
		affected = []byte("[]")
	}
	strategies, err := json.Marshal(rec.FieldStrategies)
	if err != nil {
		return fmt.Errorf("failed to encode field strategies: %w", err)
	}
	if rec.FieldStrategies == nil {
		strategies = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO conflict_records (`+conflictColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EntityType, rec.EntityID, rec.Kind, rec.Detail,
		rec.LocalPayload, rec.RemotePayload, rec.MergedPayload, rec.Strategy,
		toMillisPtr(rec.ResolvedAt), rec.ResolvedBy, rec.Confidence, rec.Resolved,
		rec.Notes, string(affected), string(strategies), toMillis(rec.DetectedAt), rec.OperationID)
	if err != nil {
		return fmt.Errorf("failed to insert conflict record: %w", err)
	}

	return nil
}

func (s *conflictStore) Get(ctx context.Context, id string) (*domain.ConflictRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conflictColumns+` FROM conflict_records WHERE id = ?`, id)
	rec, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conflict %s: %w", id, ErrNotFound)
	}
	return rec, err
}

func (s *conflictStore) ListUnresolved(ctx context.Context, limit int) ([]*domain.ConflictRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conflictColumns+` FROM conflict_records
		 WHERE resolved = 0 ORDER BY detected_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var recs []*domain.ConflictRecord
	for rows.Next() {
		rec, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

func (s *conflictStore) MarkResolved(ctx context.Context, id, resolvedBy string, strategy domain.ResolutionStrategy) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conflict_records
		 SET resolved = 1, resolved_at = ?, resolved_by = ?, strategy = ?
		 WHERE id = ? AND resolved = 0`,
		toMillis(time.Now()), resolvedBy, strategy, id)
	if err != nil {
		return fmt.Errorf("failed to mark conflict resolved: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("unresolved conflict %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *conflictStore) CountUnresolved(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conflict_records WHERE resolved = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count conflicts: %w", err)
	}
	return n, nil
}

func (s *conflictStore) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conflict_records WHERE resolved = 1 AND resolved_at < ?`,
		toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to purge conflicts: %w", err)
	}
	return res.RowsAffected()
}

func scanConflict(row rowScanner) (*domain.ConflictRecord, error) {
	var (
		rec        domain.ConflictRecord
		resolvedAt sql.NullInt64
		detectedAt int64
		affected   string
		strategies string
	)

	err := row.Scan(&rec.ID, &rec.EntityType, &rec.EntityID, &rec.Kind, &rec.Detail,
		&rec.LocalPayload, &rec.RemotePayload, &rec.MergedPayload, &rec.Strategy,
		&resolvedAt, &rec.ResolvedBy, &rec.Confidence, &rec.Resolved, &rec.Notes,
		&affected, &strategies, &detectedAt, &rec.OperationID)
	if err != nil {
		return nil, err
	}

	rec.ResolvedAt = fromMillisPtr(resolvedAt)
	rec.DetectedAt = fromMillis(detectedAt)

	if err := json.Unmarshal([]byte(affected), &rec.AffectedFields); err != nil {
		return nil, fmt.Errorf("failed to decode affected fields: %w", err)
	}
	if err := json.Unmarshal([]byte(strategies), &rec.FieldStrategies); err != nil {
		return nil, fmt.Errorf("failed to decode field strategies: %w", err)
	}

	return &rec, nil
}
