// Package engine is the durable operation queue and its manager: it
// persists deferred mutations, schedules them against network policy and
// the dependency graph, executes them with bounded concurrency, and records
// every outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"notesync-engine/internal/domain"
	"notesync-engine/internal/netmon"
	"notesync-engine/internal/notestore"
	"notesync-engine/internal/store"
)

type Config struct {
	ProcessInterval      time.Duration
	StatsInterval        time.Duration
	CleanupInterval      time.Duration
	CleanupAge           time.Duration
	ConflictRetention    time.Duration
	BatchSize            int
	ChunkSize            int
	MaxRetries           int
	BackoffBase          time.Duration
	BackoffMax           time.Duration
	DependencyRetryDelay time.Duration
	RetryScanAge         time.Duration
	RetryBatchSize       int
	// DependencyFailurePolicy is "wait" (dependents keep rescheduling, the
	// default) or "fail" (a terminally failed dependency fails dependents).
	DependencyFailurePolicy string
}

func DefaultConfig() Config {
	return Config{
		ProcessInterval:         5 * time.Second,
		StatsInterval:           10 * time.Second,
		CleanupInterval:         24 * time.Hour,
		CleanupAge:              7 * 24 * time.Hour,
		ConflictRetention:       30 * 24 * time.Hour,
		BatchSize:               10,
		ChunkSize:               3,
		MaxRetries:              3,
		BackoffBase:             time.Second,
		BackoffMax:              5 * time.Minute,
		DependencyRetryDelay:    30 * time.Second,
		RetryScanAge:            60 * time.Second,
		RetryBatchSize:          5,
		DependencyFailurePolicy: "wait",
	}
}

type EventType string

const (
	EventOperation EventType = "operation"
	EventConflict  EventType = "conflict"
	EventStats     EventType = "stats"
)

// Event is the observable record of an engine state change, fanned out to
// subscribers (status UIs, the websocket hub).
type Event struct {
	Type        EventType              `json:"type"`
	OperationID string                 `json:"operation_id,omitempty"`
	Status      domain.OperationStatus `json:"status,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Conflict    *domain.ConflictRecord `json:"conflict,omitempty"`
	Stats       *domain.QueueStats     `json:"stats,omitempty"`
}

// Manager owns the operation, sync-state, and conflict tables. All mutations
// go through its methods; they are safe for concurrent callers.
type Manager struct {
	cfg        Config
	ops        store.OperationStore
	syncStates store.SyncStateStore
	conflicts  store.ConflictStore
	notes      notestore.NoteStore
	monitor    *netmon.Monitor
	exec       *executor
	validate   *validator.Validate

	// statusMap mirrors persisted status for fast observation.
	statusMu  sync.RWMutex
	statusMap map[string]domain.OperationStatus

	// inFlight prevents double-processing of an operation id.
	inFlightMu sync.Mutex
	inFlight   map[string]bool

	processingMu sync.Mutex
	isProcessing bool

	statsMu sync.RWMutex
	stats   domain.QueueStats

	subsMu sync.Mutex
	subs   []chan Event

	kick chan struct{}
}

func NewManager(
	cfg Config,
	ops store.OperationStore,
	syncStates store.SyncStateStore,
	conflicts store.ConflictStore,
	notes notestore.NoteStore,
	monitor *netmon.Monitor,
	collab Collaborators,
) *Manager {
	return &Manager{
		cfg:        cfg,
		ops:        ops,
		syncStates: syncStates,
		conflicts:  conflicts,
		notes:      notes,
		monitor:    monitor,
		exec:       newExecutor(notes, conflicts, collab),
		validate:   validator.New(),
		statusMap:  make(map[string]domain.OperationStatus),
		inFlight:   make(map[string]bool),
		kick:       make(chan struct{}, 1),
	}
}

// EnqueueOptions tune a queued operation; zero values get defaults.
type EnqueueOptions struct {
	Priority           domain.Priority
	NetworkRequirement domain.NetworkRequirement
	DependsOn          []string
	ScheduledAt        time.Time
	MaxRetries         int
	ResolutionHint     string
	EstimatedSize      int64
	Metadata           map[string]string
}

// Enqueue validates and persists an operation, returning the stored row.
func (m *Manager) Enqueue(ctx context.Context, payload domain.Payload, opts EnqueueOptions) (*domain.Operation, error) {
	if err := m.validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	raw, err := domain.EncodePayload(payload)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	op := &domain.Operation{
		ID:                 uuid.New().String(),
		Kind:               payload.Kind(),
		EntityType:         entityTypeFor(payload),
		EntityID:           entityIDFor(payload),
		Status:             domain.StatusPending,
		Priority:           opts.Priority,
		CreatedAt:          now,
		ScheduledAt:        now,
		MaxRetries:         m.cfg.MaxRetries,
		NetworkRequirement: domain.RequireAny,
		EstimatedSize:      opts.EstimatedSize,
		Payload:            raw,
		DependsOn:          opts.DependsOn,
		ResolutionHint:     opts.ResolutionHint,
		Metadata:           opts.Metadata,
	}
	if opts.NetworkRequirement != "" {
		op.NetworkRequirement = opts.NetworkRequirement
	}
	if !opts.ScheduledAt.IsZero() {
		op.ScheduledAt = opts.ScheduledAt
	}
	if opts.MaxRetries > 0 {
		op.MaxRetries = opts.MaxRetries
	}
	if op.EstimatedSize == 0 {
		op.EstimatedSize = int64(len(raw))
	}

	if err := m.ops.Insert(ctx, op); err != nil {
		return nil, err
	}

	m.setStatus(op.ID, domain.StatusPending)
	m.publish(Event{Type: EventOperation, OperationID: op.ID, Status: domain.StatusPending})

	if op.EntityType == domain.EntityNote && op.EntityID != "" {
		m.markSyncPending(ctx, op)
	}

	return op, nil
}

// Cancel moves a PENDING operation to CANCELLED. Operations already picked
// up run to completion.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	err := m.ops.UpdateStatus(ctx, id, domain.StatusPending, domain.StatusCancelled)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("operation %s: %w", id, ErrNotCancellable)
	}
	if err != nil {
		return err
	}

	m.setStatus(id, domain.StatusCancelled)
	m.publish(Event{Type: EventOperation, OperationID: id, Status: domain.StatusCancelled})
	return nil
}

// Get returns the persisted operation.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Operation, error) {
	return m.ops.Get(ctx, id)
}

// Status reads the in-memory status mirror.
func (m *Manager) Status(id string) (domain.OperationStatus, bool) {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	s, ok := m.statusMap[id]
	return s, ok
}

// Stats returns the latest queue summary snapshot.
func (m *Manager) Stats() domain.QueueStats {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()
	return m.stats
}

// Conflicts lists unresolved conflict records.
func (m *Manager) Conflicts(ctx context.Context, limit int) ([]*domain.ConflictRecord, error) {
	return m.conflicts.ListUnresolved(ctx, limit)
}

// ResolveConflict records a human decision, stamps it on the originating
// operation, and requeues it; the executor applies the chosen strategy on
// the next attempt instead of re-detecting the same conflict.
func (m *Manager) ResolveConflict(ctx context.Context, conflictID, resolvedBy string, strategy domain.ResolutionStrategy) error {
	rec, err := m.conflicts.Get(ctx, conflictID)
	if err != nil {
		return err
	}

	if err := m.conflicts.MarkResolved(ctx, conflictID, resolvedBy, strategy); err != nil {
		return err
	}

	if rec.OperationID != "" {
		if err := m.ops.SetResolutionHint(ctx, rec.OperationID, string(strategy)); err != nil {
			log.Printf("engine: failed to stamp resolution on %s: %v", rec.OperationID, err)
			return err
		}
		if err := m.ops.Reschedule(ctx, rec.OperationID, time.Now()); err != nil {
			log.Printf("engine: failed to requeue operation %s after resolution: %v", rec.OperationID, err)
		} else {
			m.setStatus(rec.OperationID, domain.StatusPending)
			m.publish(Event{Type: EventOperation, OperationID: rec.OperationID, Status: domain.StatusPending})
		}
	}

	m.ForceSyncAll()
	return nil
}

// ForceSyncAll triggers an immediate processing scan.
func (m *Manager) ForceSyncAll() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Subscribe returns a channel receiving engine events. Slow subscribers
// drop events rather than blocking the engine.
func (m *Manager) Subscribe() <-chan Event {
	ch := make(chan Event, 32)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) publish(ev Event) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (m *Manager) setStatus(id string, status domain.OperationStatus) {
	m.statusMu.Lock()
	m.statusMap[id] = status
	m.statusMu.Unlock()
}

func (m *Manager) markSyncPending(ctx context.Context, op *domain.Operation) {
	state, err := m.syncStates.Get(ctx, op.EntityType, op.EntityID)
	if errors.Is(err, store.ErrNotFound) {
		state = &domain.SyncState{EntityType: op.EntityType, EntityID: op.EntityID}
	} else if err != nil {
		log.Printf("engine: failed to load sync state for %s/%s: %v", op.EntityType, op.EntityID, err)
		return
	}

	state.Status = domain.SyncStatusPending
	if err := m.syncStates.Upsert(ctx, state); err != nil {
		log.Printf("engine: failed to mark sync pending for %s/%s: %v", op.EntityType, op.EntityID, err)
	}
}

func entityTypeFor(p domain.Payload) domain.EntityType {
	switch p.(type) {
	case domain.CreateCategoryPayload:
		return domain.EntityCategory
	case domain.SyncCollabSessionPayload:
		return domain.EntitySession
	default:
		return domain.EntityNote
	}
}

func entityIDFor(p domain.Payload) string {
	switch v := p.(type) {
	case domain.CreateNotePayload:
		return v.Note.ID
	case domain.UpdateNotePayload:
		return v.NoteID
	case domain.DeleteNotePayload:
		return v.NoteID
	case domain.AIAnalysisPayload:
		return v.NoteID
	case domain.SyncCollabSessionPayload:
		return v.SessionID
	default:
		return ""
	}
}
