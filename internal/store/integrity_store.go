package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"notesync-engine/internal/domain"
)

type IntegrityStore interface {
	Insert(ctx context.Context, rec *domain.IntegrityRecord) error
	Latest(ctx context.Context, entityType domain.EntityType, entityID string) (*domain.IntegrityRecord, error)
	// CountInvalid counts entities whose most recent validation failed.
	CountInvalid(ctx context.Context) (int, error)
}

type integrityStore struct {
	db *sql.DB
}

func NewIntegrityStore(db *sql.DB) IntegrityStore {
	return &integrityStore{db: db}
}

const integrityColumns = `id, entity_type, entity_id, validated_at, valid, rules_checked,
	failed_rules, details, correction_applied, correction_note, checksum,
	schema_version, severity, auto_fixable, fix_description`

func (s *integrityStore) Insert(ctx context.Context, rec *domain.IntegrityRecord) error {
	checked, err := json.Marshal(rec.RulesChecked)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	failed, err := json.Marshal(rec.FailedRules)
	if err != nil {
		return fmt.Errorf("failed to encode failed rules: %w", err)
	}
	if rec.FailedRules == nil {
		failed = []byte("[]")
	}
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}
	if rec.Details == nil {
		details = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO integrity_records (`+integrityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EntityType, rec.EntityID, toMillis(rec.ValidatedAt), rec.Valid,
		string(checked), string(failed), string(details), rec.CorrectionApplied,
		rec.CorrectionNote, rec.Checksum, rec.SchemaVersion, rec.Severity,
		rec.AutoFixable, rec.FixDescription)
	if err != nil {
		return fmt.Errorf("failed to insert integrity record: %w", err)
	}

	return nil
}

func (s *integrityStore) Latest(ctx context.Context, entityType domain.EntityType, entityID string) (*domain.IntegrityRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+integrityColumns+` FROM integrity_records
		 WHERE entity_type = ? AND entity_id = ?
		 ORDER BY validated_at DESC LIMIT 1`, entityType, entityID)

	var (
		rec         domain.IntegrityRecord
		validatedAt int64
		checked     string
		failed      string
		details     string
	)
	err := row.Scan(&rec.ID, &rec.EntityType, &rec.EntityID, &validatedAt, &rec.Valid,
		&checked, &failed, &details, &rec.CorrectionApplied, &rec.CorrectionNote,
		&rec.Checksum, &rec.SchemaVersion, &rec.Severity, &rec.AutoFixable, &rec.FixDescription)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("integrity record %s/%s: %w", entityType, entityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get integrity record: %w", err)
	}

	rec.ValidatedAt = fromMillis(validatedAt)
	if err := json.Unmarshal([]byte(checked), &rec.RulesChecked); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	if err := json.Unmarshal([]byte(failed), &rec.FailedRules); err != nil {
		return nil, fmt.Errorf("failed to decode failed rules: %w", err)
	}
	if err := json.Unmarshal([]byte(details), &rec.Details); err != nil {
		return nil, fmt.Errorf("failed to decode details: %w", err)
	}

	return &rec, nil
}

func (s *integrityStore) CountInvalid(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM integrity_records r
		 WHERE r.valid = 0
		   AND r.validated_at = (
			SELECT MAX(r2.validated_at) FROM integrity_records r2
			WHERE r2.entity_type = r.entity_type AND r2.entity_id = r.entity_id)`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count invalid entities: %w", err)
	}
	return n, nil
}
