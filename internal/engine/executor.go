package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"notesync-engine/internal/domain"
	"notesync-engine/internal/notestore"
	"notesync-engine/internal/resolve"
	"notesync-engine/internal/store"
	"notesync-engine/pkg/checksum"
)

// Similarity floors for treating an existing note as a create-conflict
// candidate.
const (
	candidateTitleThreshold   = 0.8
	candidateContentThreshold = 0.7
)

// Collaborators are the external services some operation kinds delegate to;
// the engine only manages queuing and retry around them.
type Collaborators interface {
	CreateCategory(ctx context.Context, name string, color int64) (*domain.Category, error)
	AnalyzeNote(ctx context.Context, noteID, analysisType string) error
	SyncCollaborativeSession(ctx context.Context, sessionID, noteID string) error
}

// execResult carries what the manager needs to update sync state after a
// successful execution.
type execResult struct {
	entityType domain.EntityType
	entityID   string
	version    int64
	checksum   string
}

// executor dispatches a decoded operation payload to its kind-specific
// semantics. All failures come back as errors; the manager turns them into
// recorded status changes.
type executor struct {
	notes     notestore.NoteStore
	conflicts store.ConflictStore
	collab    Collaborators
}

func newExecutor(notes notestore.NoteStore, conflicts store.ConflictStore, collab Collaborators) *executor {
	return &executor{notes: notes, conflicts: conflicts, collab: collab}
}

func (e *executor) execute(ctx context.Context, op *domain.Operation, payload domain.Payload) (*execResult, error) {
	switch p := payload.(type) {
	case domain.CreateNotePayload:
		return e.createNote(ctx, op, p)
	case domain.UpdateNotePayload:
		return e.updateNote(ctx, op, p)
	case domain.DeleteNotePayload:
		return e.deleteNote(ctx, p)
	case domain.CreateCategoryPayload:
		cat, err := e.collab.CreateCategory(ctx, p.Name, p.Color)
		if err != nil {
			return nil, fmt.Errorf("failed to create category: %w", err)
		}
		return &execResult{entityType: domain.EntityCategory, entityID: cat.ID, version: 1}, nil
	case domain.AIAnalysisPayload:
		if err := e.collab.AnalyzeNote(ctx, p.NoteID, p.AnalysisType); err != nil {
			return nil, fmt.Errorf("failed to run analysis: %w", err)
		}
		return &execResult{entityType: domain.EntityNote, entityID: p.NoteID}, nil
	case domain.SyncCollabSessionPayload:
		if err := e.collab.SyncCollaborativeSession(ctx, p.SessionID, p.NoteID); err != nil {
			return nil, fmt.Errorf("failed to sync session: %w", err)
		}
		return &execResult{entityType: domain.EntitySession, entityID: p.SessionID}, nil
	default:
		return nil, fmt.Errorf("%w: unhandled payload %T", ErrInvalidOperationData, payload)
	}
}

func (e *executor) createNote(ctx context.Context, op *domain.Operation, p domain.CreateNotePayload) (*execResult, error) {
	note := noteFromData(p.Note)

	candidates, err := e.findCreateCandidates(ctx, note)
	if err != nil {
		return nil, err
	}

	resolution := resolve.ResolveCreateConflict(note, candidates)

	switch resolution.Strategy {
	case domain.ResolutionAutoMerge:
		merged := resolution.Note
		merged.UpdatedAt = time.Now()
		merged.Checksum = checksum.Note(merged.ID, merged.Title, merged.Content, merged.Category, merged.Tags, merged.Version)
		if err := e.notes.Update(ctx, merged); err != nil {
			return nil, fmt.Errorf("failed to persist merged note: %w", err)
		}
		if err := e.recordResolvedConflict(ctx, op, note, merged, resolution); err != nil {
			return nil, err
		}
		return &execResult{entityType: domain.EntityNote, entityID: merged.ID, version: merged.Version, checksum: merged.Checksum}, nil

	case domain.ResolutionUserChoice:
		if decision := humanDecision(op); decision != "" {
			return e.applyCreateDecision(ctx, note, resolution.Note, decision)
		}
		if err := e.recordUnresolvedConflict(ctx, op, note, resolution.Note, resolution, domain.ConflictKindData); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("similar note %s exists: %w", resolution.Note.ID, ErrConflictRequiresUser)

	default: // accept the new note unchanged
		id, err := e.notes.Insert(ctx, note)
		if err != nil {
			return nil, fmt.Errorf("failed to insert note: %w", err)
		}
		return &execResult{entityType: domain.EntityNote, entityID: id, version: note.Version, checksum: note.Checksum}, nil
	}
}

func (e *executor) findCreateCandidates(ctx context.Context, note *domain.Note) ([]*domain.Note, error) {
	existing, err := e.notes.Search(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to search for similar notes: %w", err)
	}

	var candidates []*domain.Note
	for _, cand := range existing {
		if resolve.LevenshteinSimilarity(note.Title, cand.Title) > candidateTitleThreshold ||
			resolve.ContentSimilarity(note.Content, cand.Content) > candidateContentThreshold {
			candidates = append(candidates, cand)
		}
	}

	return candidates, nil
}

func (e *executor) updateNote(ctx context.Context, op *domain.Operation, p domain.UpdateNotePayload) (*execResult, error) {
	current, err := e.notes.GetByID(ctx, p.NoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load note for update: %w", err)
	}

	if current.Version > p.PreviousVersion {
		return e.updateWithConflict(ctx, op, current, p)
	}

	updated := applyChanges(current, p.Changes)
	if err := e.notes.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}

	return &execResult{entityType: domain.EntityNote, entityID: updated.ID, version: updated.Version, checksum: updated.Checksum}, nil
}

func (e *executor) updateWithConflict(ctx context.Context, op *domain.Operation, current *domain.Note, p domain.UpdateNotePayload) (*execResult, error) {
	if decision := humanDecision(op); decision != "" {
		return e.applyUpdateDecision(ctx, current, p, op.CreatedAt, decision)
	}

	conflictType := resolve.ConflictMetadata
	if _, hasContent := p.Changes["content"]; hasContent {
		conflictType = resolve.ConflictVersion
	}
	if hint := resolve.ConflictType(op.ResolutionHint); hint == resolve.ConflictCollaborative || hint == resolve.ConflictStructural || hint == resolve.ConflictContent {
		conflictType = hint
	}

	// An absent base must not pose as either side: with an empty base,
	// independent edits become conflict blocks and defer to the user
	// instead of silently dropping the local edit.
	data := resolve.ConflictData{
		Type:          conflictType,
		BaseContent:   p.BaseContent,
		LocalContent:  p.Changes["content"],
		RemoteContent: current.Content,
	}

	resolution := resolve.ResolveUpdateConflict(current, p.Changes, data)

	if resolution.Strategy == domain.ResolutionAutoMerge {
		updated := applyChanges(current, resolution.Changes)
		if err := e.notes.Update(ctx, updated); err != nil {
			return nil, fmt.Errorf("failed to persist resolved update: %w", err)
		}
		if err := e.recordResolvedConflict(ctx, op, current, updated, resolution); err != nil {
			return nil, err
		}
		return &execResult{entityType: domain.EntityNote, entityID: updated.ID, version: updated.Version, checksum: updated.Checksum}, nil
	}

	// USER_CHOICE and AI_ASSISTED both defer to a human; no further
	// automatic adjudication is wired.
	if err := e.recordUnresolvedConflict(ctx, op, proposedNote(current, p.Changes), current, resolution, domain.ConflictKindSync); err != nil {
		return nil, err
	}

	return nil, fmt.Errorf("note %s diverged (version %d > %d): %w",
		p.NoteID, current.Version, p.PreviousVersion, ErrConflictRequiresUser)
}

// humanDecision extracts a stamped resolution choice from the operation's
// hint. Conflict-type hints (VERSION, CONTENT, ...) map to "".
func humanDecision(op *domain.Operation) domain.ResolutionStrategy {
	switch s := domain.ResolutionStrategy(op.ResolutionHint); s {
	case domain.ResolutionAcceptLocal, domain.ResolutionAcceptRemote,
		domain.ResolutionAutoMerge, domain.ResolutionLastWriteWins:
		return s
	default:
		return ""
	}
}

// applyUpdateDecision executes a human conflict decision for a diverged
// update, bypassing re-detection.
func (e *executor) applyUpdateDecision(ctx context.Context, current *domain.Note, p domain.UpdateNotePayload, queuedAt time.Time, decision domain.ResolutionStrategy) (*execResult, error) {
	changes := p.Changes

	switch decision {
	case domain.ResolutionAcceptRemote:
		// The stored note stands; the queued edit is dropped.
		return &execResult{entityType: domain.EntityNote, entityID: current.ID, version: current.Version, checksum: current.Checksum}, nil

	case domain.ResolutionLastWriteWins:
		if !queuedAt.After(current.UpdatedAt) {
			return &execResult{entityType: domain.EntityNote, entityID: current.ID, version: current.Version, checksum: current.Checksum}, nil
		}
		// The queued edit is the later write; apply it below.

	case domain.ResolutionAutoMerge:
		merge := resolve.MergeThreeWay(p.BaseContent, p.Changes["content"], current.Content)
		changes = make(map[string]string, len(p.Changes))
		for k, v := range p.Changes {
			changes[k] = v
		}
		// Unreconciled lines keep their conflict blocks for manual cleanup.
		changes["content"] = merge.Content
	}

	updated := applyChanges(current, changes)
	if err := e.notes.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to apply resolution: %w", err)
	}

	return &execResult{entityType: domain.EntityNote, entityID: updated.ID, version: updated.Version, checksum: updated.Checksum}, nil
}

// applyCreateDecision executes a human decision for a create that collided
// with an existing similar note.
func (e *executor) applyCreateDecision(ctx context.Context, incoming, existing *domain.Note, decision domain.ResolutionStrategy) (*execResult, error) {
	switch decision {
	case domain.ResolutionAcceptRemote:
		// Keep the existing note, drop the incoming one.
		return &execResult{entityType: domain.EntityNote, entityID: existing.ID, version: existing.Version, checksum: existing.Checksum}, nil

	case domain.ResolutionAutoMerge:
		merged := resolve.MergeNotes(existing, incoming)
		merged.UpdatedAt = time.Now()
		merged.Checksum = checksum.Note(merged.ID, merged.Title, merged.Content, merged.Category, merged.Tags, merged.Version)
		if err := e.notes.Update(ctx, merged); err != nil {
			return nil, fmt.Errorf("failed to persist merged note: %w", err)
		}
		return &execResult{entityType: domain.EntityNote, entityID: merged.ID, version: merged.Version, checksum: merged.Checksum}, nil

	default:
		// ACCEPT_LOCAL; LAST_WRITE_WINS reduces to it, the incoming note
		// being the newer write.
		id, err := e.notes.Insert(ctx, incoming)
		if err != nil {
			return nil, fmt.Errorf("failed to insert note: %w", err)
		}
		return &execResult{entityType: domain.EntityNote, entityID: id, version: incoming.Version, checksum: incoming.Checksum}, nil
	}
}

func (e *executor) deleteNote(ctx context.Context, p domain.DeleteNotePayload) (*execResult, error) {
	if err := e.notes.Delete(ctx, p.NoteID, p.Hard); err != nil {
		return nil, fmt.Errorf("failed to delete note: %w", err)
	}
	return &execResult{entityType: domain.EntityNote, entityID: p.NoteID}, nil
}

func (e *executor) recordResolvedConflict(ctx context.Context, op *domain.Operation, local, merged *domain.Note, res resolve.Resolution) error {
	now := time.Now()
	rec := &domain.ConflictRecord{
		ID:              uuid.New().String(),
		EntityType:      domain.EntityNote,
		EntityID:        merged.ID,
		Kind:            domain.ConflictKindData,
		Detail:          res.Reason,
		LocalPayload:    mustJSON(local),
		MergedPayload:   mustJSON(merged),
		Strategy:        res.Strategy,
		ResolvedAt:      &now,
		ResolvedBy:      "system",
		Confidence:      res.Confidence,
		Resolved:        true,
		AffectedFields:  res.AffectedFields,
		FieldStrategies: res.FieldStrategies,
		DetectedAt:      now,
		OperationID:     op.ID,
	}
	if err := e.conflicts.Insert(ctx, rec); err != nil {
		return fmt.Errorf("failed to record resolved conflict: %w", err)
	}
	return nil
}

func (e *executor) recordUnresolvedConflict(ctx context.Context, op *domain.Operation, local, remote *domain.Note, res resolve.Resolution, kind domain.ConflictKind) error {
	rec := &domain.ConflictRecord{
		ID:              uuid.New().String(),
		EntityType:      domain.EntityNote,
		EntityID:        remote.ID,
		Kind:            kind,
		Detail:          resolve.RenderDiff(local.Content, remote.Content),
		LocalPayload:    mustJSON(local),
		RemotePayload:   mustJSON(remote),
		Strategy:        res.Strategy,
		Confidence:      res.Confidence,
		Notes:           res.Reason,
		AffectedFields:  res.AffectedFields,
		FieldStrategies: res.FieldStrategies,
		DetectedAt:      time.Now(),
		OperationID:     op.ID,
	}
	if res.Merge != nil {
		rec.MergedPayload = res.Merge.Content
	}
	if err := e.conflicts.Insert(ctx, rec); err != nil {
		return fmt.Errorf("failed to record conflict: %w", err)
	}
	return nil
}

func noteFromData(d domain.NoteData) *domain.Note {
	now := time.Now()
	note := &domain.Note{
		ID:        d.ID,
		Title:     d.Title,
		Content:   d.Content,
		Category:  d.Category,
		Tags:      d.Tags,
		Format:    domain.NoteFormat(d.Format),
		Color:     d.Color,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	if note.Category == "" {
		note.Category = domain.DefaultCategory
	}
	if note.Format == "" {
		note.Format = domain.FormatPlainText
	}
	note.WordCount = len(strings.Fields(note.Content))
	note.Checksum = checksum.Note(note.ID, note.Title, note.Content, note.Category, note.Tags, note.Version)
	return note
}

// applyChanges overlays resolved field changes onto a copy of the note,
// bumping version and timestamps.
func applyChanges(note *domain.Note, changes map[string]string) *domain.Note {
	updated := note.Clone()

	for field, value := range changes {
		switch field {
		case "title":
			updated.Title = value
		case "content":
			updated.Content = value
			updated.WordCount = len(strings.Fields(value))
		case "category":
			updated.Category = value
		case "tags":
			var tags []string
			for _, t := range strings.Split(value, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tags = append(tags, t)
				}
			}
			updated.Tags = tags
		case "format":
			updated.Format = domain.NoteFormat(value)
		case "color":
			if c, err := strconv.ParseInt(value, 10, 64); err == nil {
				updated.Color = c
			}
		}
	}

	updated.Version++
	updated.UpdatedAt = time.Now()
	updated.Checksum = checksum.Note(updated.ID, updated.Title, updated.Content, updated.Category, updated.Tags, updated.Version)

	return updated
}

func proposedNote(current *domain.Note, changes map[string]string) *domain.Note {
	n := applyChanges(current, changes)
	n.Version = current.Version // proposal, not yet accepted
	return n
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
