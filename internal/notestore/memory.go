package notestore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"notesync-engine/internal/domain"
)

// MemoryStore is an in-process NoteStore for tests and for running the
// engine without a CouchDB instance.
type MemoryStore struct {
	mu    sync.RWMutex
	notes map[string]*domain.Note
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notes: make(map[string]*domain.Note)}
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*domain.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	note, ok := m.notes[id]
	if !ok {
		return nil, fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	return note.Clone(), nil
}

func (m *MemoryStore) Insert(ctx context.Context, note *domain.Note) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	m.notes[note.ID] = note.Clone()
	return note.ID, nil
}

func (m *MemoryStore) Update(ctx context.Context, note *domain.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notes[note.ID]; !ok {
		return fmt.Errorf("note %s: %w", note.ID, ErrNotFound)
	}
	m.notes[note.ID] = note.Clone()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string, hard bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	note, ok := m.notes[id]
	if !ok {
		return fmt.Errorf("note %s: %w", id, ErrNotFound)
	}

	if hard {
		delete(m.notes, id)
		return nil
	}

	now := time.Now()
	note.IsDeleted = true
	note.DeletedAt = &now
	note.UpdatedAt = now
	note.Version++
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, query string) ([]*domain.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q := strings.ToLower(query)
	var matched []*domain.Note
	for _, n := range m.notes {
		if n.IsDeleted {
			continue
		}
		if q == "" ||
			strings.Contains(strings.ToLower(n.Title), q) ||
			strings.Contains(strings.ToLower(n.Content), q) {
			matched = append(matched, n.Clone())
		}
	}

	return matched, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*domain.Note, error) {
	return m.Search(ctx, "")
}
