package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"notesync-engine/internal/domain"
	"notesync-engine/internal/store"
)

type mockOperationStore struct {
	mu  sync.Mutex
	ops map[string]*domain.Operation
}

func newMockOperationStore() *mockOperationStore {
	return &mockOperationStore{ops: make(map[string]*domain.Operation)}
}

func (m *mockOperationStore) Insert(ctx context.Context, op *domain.Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *op
	m.ops[op.ID] = &cp
	return nil
}

func (m *mockOperationStore) Get(ctx context.Context, id string) (*domain.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[id]
	if !ok {
		return nil, fmt.Errorf("operation %s: %w", id, store.ErrNotFound)
	}
	cp := *op
	return &cp, nil
}

func (m *mockOperationStore) UpdateStatus(ctx context.Context, id string, from, to domain.OperationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[id]
	if !ok || op.Status != from {
		return fmt.Errorf("operation %s not in status %s: %w", id, from, store.ErrNotFound)
	}
	op.Status = to
	return nil
}

func (m *mockOperationStore) RecordOutcome(ctx context.Context, id string, status domain.OperationStatus, retryCount int, lastError string, scheduledAt, attemptedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[id]
	if !ok {
		return errors.New("no such operation")
	}
	op.Status = status
	op.RetryCount = retryCount
	op.LastError = lastError
	op.ScheduledAt = scheduledAt
	at := attemptedAt
	op.LastAttemptAt = &at
	return nil
}

func (m *mockOperationStore) Reschedule(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[id]
	if !ok {
		return errors.New("no such operation")
	}
	op.Status = domain.StatusPending
	op.ScheduledAt = at
	return nil
}

func (m *mockOperationStore) SetResolutionHint(ctx context.Context, id, hint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[id]
	if !ok {
		return fmt.Errorf("operation %s: %w", id, store.ErrNotFound)
	}
	op.ResolutionHint = hint
	return nil
}

func (m *mockOperationStore) FetchExecutable(ctx context.Context, label domain.NetworkRequirement, now time.Time, limit int) ([]*domain.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := map[domain.NetworkRequirement]bool{domain.RequireAny: true}
	switch label {
	case domain.RequireWifiOnly:
		allowed[domain.RequireWifiOnly] = true
		allowed[domain.RequireMobileDataOK] = true
	case "NONE":
	default:
		allowed[domain.RequireMobileDataOK] = true
	}

	var out []*domain.Operation
	for _, op := range m.ops {
		if len(out) >= limit {
			break
		}
		if op.Status == domain.StatusPending && allowed[op.NetworkRequirement] && !op.ScheduledAt.After(now) {
			cp := *op
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockOperationStore) FetchRetryEligible(ctx context.Context, attemptedBefore time.Time, limit int) ([]*domain.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Operation
	for _, op := range m.ops {
		if len(out) >= limit {
			break
		}
		stranded := op.Status == domain.StatusRetrying && !op.ScheduledAt.After(attemptedBefore)
		failedBelowCap := op.Status == domain.StatusFailed && op.RetryCount < op.MaxRetries &&
			(op.LastAttemptAt == nil || !op.LastAttemptAt.After(attemptedBefore))
		if stranded || failedBelowCap {
			cp := *op
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockOperationStore) StatusByIDs(ctx context.Context, ids []string) (map[string]domain.OperationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.OperationStatus, len(ids))
	for _, id := range ids {
		if op, ok := m.ops[id]; ok {
			out[id] = op.Status
		}
	}
	return out, nil
}

func (m *mockOperationStore) CountsByStatus(ctx context.Context) (map[domain.OperationStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[domain.OperationStatus]int)
	for _, op := range m.ops {
		counts[op.Status]++
	}
	return counts, nil
}

func (m *mockOperationStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, op := range m.ops {
		terminal := op.Status == domain.StatusSuccess || op.Status == domain.StatusCancelled ||
			(op.Status == domain.StatusFailed && op.RetryCount >= op.MaxRetries)
		if terminal && op.CreatedAt.Before(cutoff) {
			delete(m.ops, id)
			n++
		}
	}
	return n, nil
}

type mockSyncStateStore struct {
	mu     sync.Mutex
	states map[string]*domain.SyncState
}

func newMockSyncStateStore() *mockSyncStateStore {
	return &mockSyncStateStore{states: make(map[string]*domain.SyncState)}
}

func syncKey(entityType domain.EntityType, entityID string) string {
	return string(entityType) + "/" + entityID
}

func (m *mockSyncStateStore) Upsert(ctx context.Context, state *domain.SyncState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.states[syncKey(state.EntityType, state.EntityID)] = &cp
	return nil
}

func (m *mockSyncStateStore) Get(ctx context.Context, entityType domain.EntityType, entityID string) (*domain.SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[syncKey(entityType, entityID)]
	if !ok {
		return nil, fmt.Errorf("sync state: %w", store.ErrNotFound)
	}
	cp := *state
	return &cp, nil
}

func (m *mockSyncStateStore) CountByStatus(ctx context.Context, status domain.SyncStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.states {
		if s.Status == status {
			n++
		}
	}
	return n, nil
}

type mockConflictStore struct {
	mu      sync.Mutex
	records map[string]*domain.ConflictRecord
}

func newMockConflictStore() *mockConflictStore {
	return &mockConflictStore{records: make(map[string]*domain.ConflictRecord)}
}

func (m *mockConflictStore) Insert(ctx context.Context, rec *domain.ConflictRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockConflictStore) Get(ctx context.Context, id string) (*domain.ConflictRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("conflict %s: %w", id, store.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (m *mockConflictStore) ListUnresolved(ctx context.Context, limit int) ([]*domain.ConflictRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ConflictRecord
	for _, rec := range m.records {
		if len(out) >= limit {
			break
		}
		if !rec.Resolved {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockConflictStore) MarkResolved(ctx context.Context, id, resolvedBy string, strategy domain.ResolutionStrategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("conflict %s: %w", id, store.ErrNotFound)
	}
	now := time.Now()
	rec.Resolved = true
	rec.ResolvedAt = &now
	rec.ResolvedBy = resolvedBy
	rec.Strategy = strategy
	return nil
}

func (m *mockConflictStore) CountUnresolved(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.records {
		if !rec.Resolved {
			n++
		}
	}
	return n, nil
}

func (m *mockConflictStore) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.records {
		if rec.Resolved && rec.ResolvedAt != nil && rec.ResolvedAt.Before(cutoff) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// mockCollaborators counts calls and can be told to fail a number of times
// before succeeding.
type mockCollaborators struct {
	mu           sync.Mutex
	failuresLeft int
	categories   int
	analyses     int
	sessions     int
}

func (m *mockCollaborators) maybeFail() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failuresLeft > 0 {
		m.failuresLeft--
		return errors.New("collaborator unavailable")
	}
	return nil
}

func (m *mockCollaborators) CreateCategory(ctx context.Context, name string, color int64) (*domain.Category, error) {
	if err := m.maybeFail(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.categories++
	m.mu.Unlock()
	return &domain.Category{ID: "cat-" + name, Name: name, Color: color, CreatedAt: time.Now()}, nil
}

func (m *mockCollaborators) AnalyzeNote(ctx context.Context, noteID, analysisType string) error {
	if err := m.maybeFail(); err != nil {
		return err
	}
	m.mu.Lock()
	m.analyses++
	m.mu.Unlock()
	return nil
}

func (m *mockCollaborators) SyncCollaborativeSession(ctx context.Context, sessionID, noteID string) error {
	if err := m.maybeFail(); err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions++
	m.mu.Unlock()
	return nil
}
