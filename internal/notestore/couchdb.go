package notestore

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-kivik/kivik/v4"

	"notesync-engine/internal/domain"
)

type couchStore struct {
	client *kivik.Client
	dbName string
}

// NewCouchStore returns a NoteStore backed by a CouchDB database. Documents
// are keyed "note:<id>".
func NewCouchStore(client *kivik.Client, dbName string) NoteStore {
	return &couchStore{client: client, dbName: dbName}
}

func noteDocID(id string) string {
	return fmt.Sprintf("note:%s", id)
}

func (s *couchStore) GetByID(ctx context.Context, id string) (*domain.Note, error) {
	db := s.client.DB(s.dbName)

	row := db.Get(ctx, noteDocID(id))

	var note domain.Note
	if err := row.ScanDoc(&note); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, fmt.Errorf("note %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get note: %w", err)
	}

	return &note, nil
}

func (s *couchStore) Insert(ctx context.Context, note *domain.Note) (string, error) {
	db := s.client.DB(s.dbName)

	if _, err := db.Put(ctx, noteDocID(note.ID), note); err != nil {
		return "", fmt.Errorf("failed to insert note: %w", err)
	}

	return note.ID, nil
}

func (s *couchStore) Update(ctx context.Context, note *domain.Note) error {
	db := s.client.DB(s.dbName)
	docID := noteDocID(note.ID)

	// CouchDB needs the current _rev; fetch, overlay, put back.
	var existing map[string]interface{}
	row := db.Get(ctx, docID)
	if err := row.ScanDoc(&existing); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return fmt.Errorf("note %s: %w", note.ID, ErrNotFound)
		}
		return fmt.Errorf("failed to fetch note for update: %w", err)
	}

	existing["title"] = note.Title
	existing["content"] = note.Content
	existing["category"] = note.Category
	existing["tags"] = note.Tags
	existing["format"] = note.Format
	existing["color"] = note.Color
	existing["word_count"] = note.WordCount
	existing["read_time_minutes"] = note.ReadTimeMinutes
	existing["updated_at"] = note.UpdatedAt
	existing["is_deleted"] = note.IsDeleted
	existing["deleted_at"] = note.DeletedAt
	existing["version"] = note.Version
	existing["checksum"] = note.Checksum

	if _, err := db.Put(ctx, docID, existing); err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}

	return nil
}

func (s *couchStore) Delete(ctx context.Context, id string, hard bool) error {
	db := s.client.DB(s.dbName)
	docID := noteDocID(id)

	var existing map[string]interface{}
	row := db.Get(ctx, docID)
	if err := row.ScanDoc(&existing); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return fmt.Errorf("note %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to fetch note for delete: %w", err)
	}

	if hard {
		rev, _ := existing["_rev"].(string)
		if _, err := db.Delete(ctx, docID, rev); err != nil {
			return fmt.Errorf("failed to delete note: %w", err)
		}
		return nil
	}

	existing["is_deleted"] = true
	existing["deleted_at"] = time.Now()
	existing["updated_at"] = time.Now()
	if v, ok := existing["version"].(float64); ok {
		existing["version"] = int64(v) + 1
	}

	if _, err := db.Put(ctx, docID, existing); err != nil {
		return fmt.Errorf("failed to soft-delete note: %w", err)
	}

	return nil
}

func (s *couchStore) Search(ctx context.Context, query string) ([]*domain.Note, error) {
	notes, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return notes, nil
	}

	q := strings.ToLower(query)
	var matched []*domain.Note
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n.Title), q) ||
			strings.Contains(strings.ToLower(n.Content), q) {
			matched = append(matched, n)
		}
	}

	return matched, nil
}

func (s *couchStore) List(ctx context.Context) ([]*domain.Note, error) {
	db := s.client.DB(s.dbName)

	selector := map[string]interface{}{
		"selector": map[string]interface{}{
			"title":      map[string]interface{}{"$exists": true},
			"is_deleted": false,
		},
	}

	rows := db.Find(ctx, selector)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*domain.Note
	for rows.Next() {
		var note domain.Note
		if err := rows.ScanDoc(&note); err != nil {
			continue
		}
		notes = append(notes, &note)
	}

	return notes, nil
}
