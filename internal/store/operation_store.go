package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"notesync-engine/internal/domain"
)

var ErrNotFound = errors.New("not found")

type OperationStore interface {
	Insert(ctx context.Context, op *domain.Operation) error
	Get(ctx context.Context, id string) (*domain.Operation, error)
	// UpdateStatus flips only the status column; used for the
	// pending->processing and pending->cancelled transitions.
	UpdateStatus(ctx context.Context, id string, from, to domain.OperationStatus) error
	// RecordOutcome writes the result of an execution attempt in one
	// statement: status, retry count, error, next schedule, attempt time.
	RecordOutcome(ctx context.Context, id string, status domain.OperationStatus, retryCount int, lastError string, scheduledAt, attemptedAt time.Time) error
	Reschedule(ctx context.Context, id string, at time.Time) error
	// SetResolutionHint stamps a human conflict decision on the row; the
	// executor honors it on the next attempt.
	SetResolutionHint(ctx context.Context, id, hint string) error
	FetchExecutable(ctx context.Context, label domain.NetworkRequirement, now time.Time, limit int) ([]*domain.Operation, error)
	FetchRetryEligible(ctx context.Context, attemptedBefore time.Time, limit int) ([]*domain.Operation, error)
	StatusByIDs(ctx context.Context, ids []string) (map[string]domain.OperationStatus, error)
	CountsByStatus(ctx context.Context) (map[domain.OperationStatus]int, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type operationStore struct {
	db *sql.DB
}

func NewOperationStore(db *sql.DB) OperationStore {
	return &operationStore{db: db}
}

const operationColumns = `id, kind, entity_type, entity_id, status, priority, created_at,
	scheduled_at, last_attempt_at, retry_count, max_retries, network_requirement,
	estimated_size, payload, depends_on, last_error, resolution_hint, metadata`

func (s *operationStore) Insert(ctx context.Context, op *domain.Operation) error {
	dependsOn, err := json.Marshal(op.DependsOn)
	if err != nil {
		return fmt.Errorf("failed to encode dependencies: %w", err)
	}
	metadata, err := json.Marshal(op.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if op.Metadata == nil {
		metadata = []byte("{}")
	}
	if op.DependsOn == nil {
		dependsOn = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO operations (`+operationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.Kind, op.EntityType, op.EntityID, op.Status, op.Priority,
		toMillis(op.CreatedAt), toMillis(op.ScheduledAt), toMillisPtr(op.LastAttemptAt),
		op.RetryCount, op.MaxRetries, op.NetworkRequirement, op.EstimatedSize,
		string(op.Payload), string(dependsOn), op.LastError, op.ResolutionHint, string(metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to insert operation: %w", err)
	}

	return nil
}

func (s *operationStore) Get(ctx context.Context, id string) (*domain.Operation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+operationColumns+` FROM operations WHERE id = ?`, id)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("operation %s: %w", id, ErrNotFound)
	}
	return op, err
}

func (s *operationStore) UpdateStatus(ctx context.Context, id string, from, to domain.OperationStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE operations SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update operation status: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("operation %s not in status %s: %w", id, from, ErrNotFound)
	}
	return nil
}

func (s *operationStore) RecordOutcome(ctx context.Context, id string, status domain.OperationStatus, retryCount int, lastError string, scheduledAt, attemptedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE operations
		 SET status = ?, retry_count = ?, last_error = ?, scheduled_at = ?, last_attempt_at = ?
		 WHERE id = ?`,
		status, retryCount, lastError, toMillis(scheduledAt), toMillis(attemptedAt), id)
	if err != nil {
		return fmt.Errorf("failed to record operation outcome: %w", err)
	}
	return nil
}

func (s *operationStore) Reschedule(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE operations SET status = ?, scheduled_at = ? WHERE id = ?`,
		domain.StatusPending, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("failed to reschedule operation: %w", err)
	}
	return nil
}

func (s *operationStore) SetResolutionHint(ctx context.Context, id, hint string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE operations SET resolution_hint = ? WHERE id = ?`, hint, id)
	if err != nil {
		return fmt.Errorf("failed to set resolution hint: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("operation %s: %w", id, ErrNotFound)
	}
	return nil
}

// allowedRequirements maps the current network label to the operation
// requirements it can serve.
func allowedRequirements(label domain.NetworkRequirement) []string {
	switch label {
	case "NONE":
		return []string{string(domain.RequireAny)}
	case domain.RequireWifiOnly:
		return []string{string(domain.RequireAny), string(domain.RequireWifiOnly), string(domain.RequireMobileDataOK)}
	default: // mobile or other connected link: anything except wifi-only
		return []string{string(domain.RequireAny), string(domain.RequireMobileDataOK)}
	}
}

func (s *operationStore) FetchExecutable(ctx context.Context, label domain.NetworkRequirement, now time.Time, limit int) ([]*domain.Operation, error) {
	reqs := allowedRequirements(label)
	placeholders := strings.Repeat("?,", len(reqs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(reqs)+3)
	args = append(args, domain.StatusPending)
	for _, r := range reqs {
		args = append(args, r)
	}
	args = append(args, toMillis(now), limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+operationColumns+` FROM operations
		 WHERE status = ? AND network_requirement IN (`+placeholders+`) AND scheduled_at <= ?
		 ORDER BY priority ASC, created_at ASC
		 LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch executable operations: %w", err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

// FetchRetryEligible sweeps operations owed another attempt: FAILED rows
// below the retry cap whose last attempt is old enough, and RETRYING rows
// past their delayed schedule that never made it back to PENDING (a crash
// between the outcome write and the reschedule strands them there).
func (s *operationStore) FetchRetryEligible(ctx context.Context, attemptedBefore time.Time, limit int) ([]*domain.Operation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+operationColumns+` FROM operations
		 WHERE (status = ? AND retry_count < max_retries
		        AND (last_attempt_at IS NULL OR last_attempt_at <= ?))
		    OR (status = ? AND scheduled_at <= ?)
		 ORDER BY priority ASC, created_at ASC
		 LIMIT ?`,
		domain.StatusFailed, toMillis(attemptedBefore),
		domain.StatusRetrying, toMillis(attemptedBefore), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch retry-eligible operations: %w", err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

func (s *operationStore) StatusByIDs(ctx context.Context, ids []string) (map[string]domain.OperationStatus, error) {
	result := make(map[string]domain.OperationStatus, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status FROM operations WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch operation statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var status domain.OperationStatus
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		result[id] = status
	}

	return result, rows.Err()
}

func (s *operationStore) CountsByStatus(ctx context.Context) (map[domain.OperationStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM operations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count operations: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.OperationStatus]int)
	for rows.Next() {
		var status domain.OperationStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

func (s *operationStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM operations
		 WHERE created_at < ?
		   AND (status = ? OR status = ? OR (status = ? AND retry_count >= max_retries))`,
		toMillis(cutoff), domain.StatusSuccess, domain.StatusCancelled, domain.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up operations: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(row rowScanner) (*domain.Operation, error) {
	var (
		op          domain.Operation
		createdAt   int64
		scheduledAt int64
		attemptAt   sql.NullInt64
		payload     string
		dependsOn   string
		metadata    string
	)

	err := row.Scan(&op.ID, &op.Kind, &op.EntityType, &op.EntityID, &op.Status, &op.Priority,
		&createdAt, &scheduledAt, &attemptAt, &op.RetryCount, &op.MaxRetries,
		&op.NetworkRequirement, &op.EstimatedSize, &payload, &dependsOn,
		&op.LastError, &op.ResolutionHint, &metadata)
	if err != nil {
		return nil, err
	}

	op.CreatedAt = fromMillis(createdAt)
	op.ScheduledAt = fromMillis(scheduledAt)
	op.LastAttemptAt = fromMillisPtr(attemptAt)
	op.Payload = json.RawMessage(payload)

	if err := json.Unmarshal([]byte(dependsOn), &op.DependsOn); err != nil {
		return nil, fmt.Errorf("failed to decode dependencies: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &op.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	return &op, nil
}

func scanOperations(rows *sql.Rows) ([]*domain.Operation, error) {
	var ops []*domain.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
