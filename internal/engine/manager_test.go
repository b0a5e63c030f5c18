package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"notesync-engine/internal/domain"
	"notesync-engine/internal/notestore"
)

func newTestManager(cfg Config) (*Manager, *mockOperationStore, *mockSyncStateStore, *mockConflictStore, *notestore.MemoryStore, *mockCollaborators) {
	ops := newMockOperationStore()
	syncStates := newMockSyncStateStore()
	conflicts := newMockConflictStore()
	notes := notestore.NewMemoryStore()
	collab := &mockCollaborators{}
	m := NewManager(cfg, ops, syncStates, conflicts, notes, nil, collab)
	return m, ops, syncStates, conflicts, notes, collab
}

func TestEnqueuePersistsOperation(t *testing.T) {
	m, ops, syncStates, _, _, _ := newTestManager(DefaultConfig())
	ctx := context.Background()

	op, err := m.Enqueue(ctx, domain.CreateNotePayload{
		Note: domain.NoteData{ID: "n1", Title: "Hello", Content: "world"},
	}, EnqueueOptions{Priority: domain.PriorityHigh})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if op.ID == "" {
		t.Error("expected a generated operation ID")
	}
	if op.Status != domain.StatusPending {
		t.Errorf("status = %s, want pending", op.Status)
	}
	if op.Kind != domain.OpCreateNote {
		t.Errorf("kind = %s, want CREATE_NOTE", op.Kind)
	}
	if op.NetworkRequirement != domain.RequireAny {
		t.Errorf("network requirement = %s, want ANY default", op.NetworkRequirement)
	}
	if op.MaxRetries != DefaultConfig().MaxRetries {
		t.Errorf("max retries = %d, want config default", op.MaxRetries)
	}

	stored, err := ops.Get(ctx, op.ID)
	if err != nil {
		t.Fatalf("operation not persisted: %v", err)
	}
	if stored.EntityType != domain.EntityNote || stored.EntityID != "n1" {
		t.Errorf("entity = %s/%s, want note/n1", stored.EntityType, stored.EntityID)
	}

	state, err := syncStates.Get(ctx, domain.EntityNote, "n1")
	if err != nil {
		t.Fatalf("sync state not marked: %v", err)
	}
	if state.Status != domain.SyncStatusPending {
		t.Errorf("sync status = %s, want pending", state.Status)
	}
}

func TestEnqueueRejectsInvalidPayload(t *testing.T) {
	m, _, _, _, _, _ := newTestManager(DefaultConfig())

	// Title is required.
	_, err := m.Enqueue(context.Background(), domain.CreateNotePayload{
		Note: domain.NoteData{Content: "no title"},
	}, EnqueueOptions{})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCancelPendingOperation(t *testing.T) {
	m, ops, _, _, _, _ := newTestManager(DefaultConfig())
	ctx := context.Background()

	op, err := m.Enqueue(ctx, domain.DeleteNotePayload{NoteID: "n1"}, EnqueueOptions{})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := m.Cancel(ctx, op.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	stored, _ := ops.Get(ctx, op.ID)
	if stored.Status != domain.StatusCancelled {
		t.Errorf("status = %s, want cancelled", stored.Status)
	}
}

func TestCancelRejectsNonPending(t *testing.T) {
	m, ops, _, _, _, _ := newTestManager(DefaultConfig())
	ctx := context.Background()

	op, _ := m.Enqueue(ctx, domain.DeleteNotePayload{NoteID: "n1"}, EnqueueOptions{})
	ops.UpdateStatus(ctx, op.ID, domain.StatusPending, domain.StatusProcessing)

	err := m.Cancel(ctx, op.ID)
	if !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("err = %v, want ErrNotCancellable", err)
	}
}

func TestProcessOneSuccess(t *testing.T) {
	m, ops, syncStates, _, notes, _ := newTestManager(DefaultConfig())
	ctx := context.Background()

	op, err := m.Enqueue(ctx, domain.CreateNotePayload{
		Note: domain.NoteData{ID: "n1", Title: "Standalone", Content: "entirely new"},
	}, EnqueueOptions{})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	m.processOne(ctx, op)

	stored, _ := ops.Get(ctx, op.ID)
	if stored.Status != domain.StatusSuccess {
		t.Fatalf("status = %s (%s), want success", stored.Status, stored.LastError)
	}

	note, err := notes.GetByID(ctx, "n1")
	if err != nil {
		t.Fatalf("note not created: %v", err)
	}
	if note.Category != domain.DefaultCategory {
		t.Errorf("category = %q, want default", note.Category)
	}

	state, err := syncStates.Get(ctx, domain.EntityNote, "n1")
	if err != nil {
		t.Fatalf("sync state missing: %v", err)
	}
	if state.Status != domain.SyncStatusSynced {
		t.Errorf("sync status = %s, want synced", state.Status)
	}
	if state.Checksum == "" {
		t.Error("expected checksum recorded on sync state")
	}
}

func TestProcessOneWaitsForDependencies(t *testing.T) {
	m, ops, _, _, _, _ := newTestManager(DefaultConfig())
	ctx := context.Background()

	dep, _ := m.Enqueue(ctx, domain.DeleteNotePayload{NoteID: "other"}, EnqueueOptions{})
	op, _ := m.Enqueue(ctx, domain.CreateNotePayload{
		Note: domain.NoteData{ID: "n1", Title: "Dependent"},
	}, EnqueueOptions{DependsOn: []string{dep.ID}})

	before := time.Now()
	m.processOne(ctx, op)

	stored, _ := ops.Get(ctx, op.ID)
	if stored.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending while dependency is unresolved", stored.Status)
	}
	if !stored.ScheduledAt.After(before) {
		t.Error("expected the operation to be deferred to a later schedule")
	}
	if stored.RetryCount != 0 {
		t.Errorf("retry count = %d, deferral must not consume retries", stored.RetryCount)
	}
}

func TestProcessOneRunsAfterDependencySucceeds(t *testing.T) {
	m, ops, _, _, notes, _ := newTestManager(DefaultConfig())
	ctx := context.Background()

	dep, _ := m.Enqueue(ctx, domain.CreateNotePayload{
		Note: domain.NoteData{ID: "n1", Title: "First"},
	}, EnqueueOptions{})
	op, _ := m.Enqueue(ctx, domain.UpdateNotePayload{
		NoteID:          "n1",
		PreviousVersion: 1,
		Changes:         map[string]string{"title": "Renamed"},
	}, EnqueueOptions{DependsOn: []string{dep.ID}})

	m.processOne(ctx, dep)
	m.processOne(ctx, op)

	stored, _ := ops.Get(ctx, op.ID)
	if stored.Status != domain.StatusSuccess {
		t.Fatalf("status = %s (%s), want success", stored.Status, stored.LastError)
	}

	note, _ := notes.GetByID(ctx, "n1")
	if note.Title != "Renamed" {
		t.Errorf("title = %q, want Renamed", note.Title)
	}
	if note.Version != 2 {
		t.Errorf("version = %d, want 2", note.Version)
	}
}

func TestProcessOneDependencyFailurePolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DependencyFailurePolicy = "fail"
	m, ops, _, _, _, _ := newTestManager(cfg)
	ctx := context.Background()

	dep, _ := m.Enqueue(ctx, domain.DeleteNotePayload{NoteID: "other"}, EnqueueOptions{})
	if err := m.Cancel(ctx, dep.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	op, _ := m.Enqueue(ctx, domain.CreateNotePayload{
		Note: domain.NoteData{ID: "n1", Title: "Doomed"},
	}, EnqueueOptions{DependsOn: []string{dep.ID}})

	m.processOne(ctx, op)

	stored, _ := ops.Get(ctx, op.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed under the fail policy", stored.Status)
	}
	if stored.RetryCount != stored.MaxRetries {
		t.Error("dependency failure must be terminal, not retried")
	}
}

func TestProcessOneRetriesWithBackoff(t *testing.T) {
	m, ops, _, _, _, _ := newTestManager(DefaultConfig())
	ctx := context.Background()

	// Updating a note that does not exist fails and is retryable.
	op, _ := m.Enqueue(ctx, domain.UpdateNotePayload{
		NoteID:          "missing",
		PreviousVersion: 1,
		Changes:         map[string]string{"title": "x"},
	}, EnqueueOptions{})

	before := time.Now()
	m.processOne(ctx, op)

	stored, _ := ops.Get(ctx, op.ID)
	if stored.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending after reschedule", stored.Status)
	}
	if stored.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", stored.RetryCount)
	}
	if stored.LastError == "" {
		t.Error("expected last error recorded")
	}
	if !stored.ScheduledAt.After(before) {
		t.Error("expected a backoff delay on the next schedule")
	}
}

func TestProcessOneExhaustsRetries(t *testing.T) {
	m, ops, syncStates, _, _, _ := newTestManager(DefaultConfig())
	ctx := context.Background()

	op, _ := m.Enqueue(ctx, domain.UpdateNotePayload{
		NoteID:          "missing",
		PreviousVersion: 1,
		Changes:         map[string]string{"title": "x"},
	}, EnqueueOptions{})

	for i := 0; i < op.MaxRetries; i++ {
		current, _ := ops.Get(ctx, op.ID)
		m.processOne(ctx, current)
	}

	stored, _ := ops.Get(ctx, op.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed after exhausting retries", stored.Status)
	}
	if stored.RetryCount != op.MaxRetries {
		t.Errorf("retry count = %d, want %d", stored.RetryCount, op.MaxRetries)
	}

	state, err := syncStates.Get(ctx, domain.EntityNote, "missing")
	if err != nil {
		t.Fatalf("sync state missing: %v", err)
	}
	if state.Status != domain.SyncStatusError {
		t.Errorf("sync status = %s, want error", state.Status)
	}
}

func TestProcessOneInvalidPayloadIsTerminal(t *testing.T) {
	m, ops, _, _, _, _ := newTestManager(DefaultConfig())
	ctx := context.Background()

	op, _ := m.Enqueue(ctx, domain.DeleteNotePayload{NoteID: "n1"}, EnqueueOptions{})

	// Corrupt the stored payload behind the engine's back.
	stored, _ := ops.Get(ctx, op.ID)
	stored.Payload = []byte(`{"type":"UNKNOWN_OP"}`)

	m.processOne(ctx, stored)

	final, _ := ops.Get(ctx, op.ID)
	if final.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.RetryCount != final.MaxRetries {
		t.Error("malformed payloads must not be retried")
	}
}

func TestResolveConflictRequeuesOperation(t *testing.T) {
	m, ops, _, conflicts, notes, _ := newTestManager(DefaultConfig())
	ctx := context.Background()

	// Seed a diverged note so the update conflicts.
	notes.Insert(ctx, &domain.Note{ID: "n1", Title: "Note", Content: "remote side", Version: 5})

	op, _ := m.Enqueue(ctx, domain.UpdateNotePayload{
		NoteID:          "n1",
		PreviousVersion: 1,
		Changes:         map[string]string{"content": "local side"},
		BaseContent:     "ancient base",
	}, EnqueueOptions{})

	for i := 0; i < op.MaxRetries; i++ {
		current, _ := ops.Get(ctx, op.ID)
		if current.Status != domain.StatusPending {
			break
		}
		m.processOne(ctx, current)
	}

	failed, _ := ops.Get(ctx, op.ID)
	if failed.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed on conflict", failed.Status)
	}

	recs, _ := conflicts.ListUnresolved(ctx, 10)
	if len(recs) != 1 {
		t.Fatalf("expected 1 unresolved conflict, got %d", len(recs))
	}
	if recs[0].OperationID != op.ID {
		t.Error("conflict record must point back at the originating operation")
	}

	if err := m.ResolveConflict(ctx, recs[0].ID, "tester", domain.ResolutionAcceptLocal); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	requeued, _ := ops.Get(ctx, op.ID)
	if requeued.Status != domain.StatusPending {
		t.Errorf("status = %s, want pending after resolution", requeued.Status)
	}
	if requeued.ResolutionHint != string(domain.ResolutionAcceptLocal) {
		t.Errorf("resolution hint = %q, want the human decision stamped", requeued.ResolutionHint)
	}

	// The retry must apply the decision and converge, not re-detect the
	// same conflict.
	m.processOne(ctx, requeued)

	done, _ := ops.Get(ctx, op.ID)
	if done.Status != domain.StatusSuccess {
		t.Fatalf("status = %s (%s), want success after applying the decision", done.Status, done.LastError)
	}

	note, _ := notes.GetByID(ctx, "n1")
	if note.Content != "local side" {
		t.Errorf("content = %q, want the accepted local edit", note.Content)
	}
	if note.Version != 6 {
		t.Errorf("version = %d, want 6", note.Version)
	}

	n, _ := conflicts.CountUnresolved(ctx)
	if n != 0 {
		t.Errorf("unresolved conflicts = %d, want 0 after convergence", n)
	}
}

func TestResolveConflictAcceptRemoteKeepsStoredNote(t *testing.T) {
	m, ops, _, conflicts, notes, _ := newTestManager(DefaultConfig())
	ctx := context.Background()

	notes.Insert(ctx, &domain.Note{ID: "n1", Title: "Note", Content: "remote side", Version: 5})

	op, _ := m.Enqueue(ctx, domain.UpdateNotePayload{
		NoteID:          "n1",
		PreviousVersion: 1,
		Changes:         map[string]string{"content": "local side"},
		BaseContent:     "ancient base",
	}, EnqueueOptions{})

	m.processOne(ctx, op)

	recs, _ := conflicts.ListUnresolved(ctx, 10)
	if len(recs) != 1 {
		t.Fatalf("expected 1 unresolved conflict, got %d", len(recs))
	}

	if err := m.ResolveConflict(ctx, recs[0].ID, "tester", domain.ResolutionAcceptRemote); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	requeued, _ := ops.Get(ctx, op.ID)
	m.processOne(ctx, requeued)

	done, _ := ops.Get(ctx, op.ID)
	if done.Status != domain.StatusSuccess {
		t.Fatalf("status = %s (%s), want success", done.Status, done.LastError)
	}

	// Dropping the queued edit leaves the note untouched.
	note, _ := notes.GetByID(ctx, "n1")
	if note.Content != "remote side" || note.Version != 5 {
		t.Errorf("note = %q v%d, want the stored side untouched", note.Content, note.Version)
	}

	n, _ := conflicts.CountUnresolved(ctx)
	if n != 0 {
		t.Errorf("unresolved conflicts = %d, want 0", n)
	}
}

func TestRetryScanRecoversStrandedOperation(t *testing.T) {
	m, ops, _, _, notes, _ := newTestManager(DefaultConfig())
	ctx := context.Background()

	op, _ := m.Enqueue(ctx, domain.CreateNotePayload{
		Note: domain.NoteData{ID: "n1", Title: "Stranded", Content: "body"},
	}, EnqueueOptions{})

	// Simulate a crash between the RETRYING outcome write and the
	// reschedule: the row sits in RETRYING with its schedule in the past.
	past := time.Now().Add(-2 * time.Minute)
	if err := ops.RecordOutcome(ctx, op.ID, domain.StatusRetrying, 1, "transient", past, past); err != nil {
		t.Fatalf("failed to strand operation: %v", err)
	}

	m.retryFailed(ctx)

	recovered, _ := ops.Get(ctx, op.ID)
	if recovered.Status != domain.StatusSuccess {
		t.Fatalf("status = %s (%s), want success after recovery scan", recovered.Status, recovered.LastError)
	}
	if _, err := notes.GetByID(ctx, "n1"); err != nil {
		t.Errorf("recovered operation did not execute: %v", err)
	}
}

func TestSubscribeObservesStatusChanges(t *testing.T) {
	m, _, _, _, _, _ := newTestManager(DefaultConfig())
	ctx := context.Background()

	events := m.Subscribe()

	op, _ := m.Enqueue(ctx, domain.CreateNotePayload{
		Note: domain.NoteData{ID: "n1", Title: "Observed"},
	}, EnqueueOptions{})
	m.processOne(ctx, op)

	seen := make(map[domain.OperationStatus]bool)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventOperation && ev.OperationID == op.ID {
				seen[ev.Status] = true
			}
		default:
			if !seen[domain.StatusPending] || !seen[domain.StatusProcessing] || !seen[domain.StatusSuccess] {
				t.Errorf("missing lifecycle events, saw %v", seen)
			}
			return
		}
	}
}

func TestCollaboratorOperations(t *testing.T) {
	m, ops, _, _, _, collab := newTestManager(DefaultConfig())
	ctx := context.Background()

	op, err := m.Enqueue(ctx, domain.CreateCategoryPayload{Name: "Work", Color: 0xFF0000}, EnqueueOptions{})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if op.EntityType != domain.EntityCategory {
		t.Errorf("entity type = %s, want category", op.EntityType)
	}

	m.processOne(ctx, op)

	stored, _ := ops.Get(ctx, op.ID)
	if stored.Status != domain.StatusSuccess {
		t.Fatalf("status = %s (%s), want success", stored.Status, stored.LastError)
	}
	if collab.categories != 1 {
		t.Errorf("collaborator calls = %d, want 1", collab.categories)
	}
}

func TestCollaboratorFailureRetries(t *testing.T) {
	m, ops, _, _, _, collab := newTestManager(DefaultConfig())
	collab.failuresLeft = 1
	ctx := context.Background()

	op, _ := m.Enqueue(ctx, domain.AIAnalysisPayload{NoteID: "n1", AnalysisType: "summary"}, EnqueueOptions{})

	m.processOne(ctx, op)
	stored, _ := ops.Get(ctx, op.ID)
	if stored.Status != domain.StatusPending || stored.RetryCount != 1 {
		t.Fatalf("after first attempt: status=%s retries=%d, want pending/1", stored.Status, stored.RetryCount)
	}

	m.processOne(ctx, stored)
	stored, _ = ops.Get(ctx, op.ID)
	if stored.Status != domain.StatusSuccess {
		t.Fatalf("status = %s, want success on retry", stored.Status)
	}
	if collab.analyses != 1 {
		t.Errorf("analyses = %d, want 1", collab.analyses)
	}
}
