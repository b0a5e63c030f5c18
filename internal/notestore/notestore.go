// Package notestore is the note persistence collaborator the engine
// executes operations against.
package notestore

import (
	"context"
	"errors"

	"notesync-engine/internal/domain"
)

var ErrNotFound = errors.New("note not found")

type NoteStore interface {
	GetByID(ctx context.Context, id string) (*domain.Note, error)
	Insert(ctx context.Context, note *domain.Note) (string, error)
	Update(ctx context.Context, note *domain.Note) error
	// Delete soft-deletes by default; hard removes the row entirely.
	Delete(ctx context.Context, id string, hard bool) error
	// Search returns non-deleted notes whose title or content matches the
	// query; an empty query returns everything.
	Search(ctx context.Context, query string) ([]*domain.Note, error)
	List(ctx context.Context) ([]*domain.Note, error)
}
