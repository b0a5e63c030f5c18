package integrity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"notesync-engine/internal/domain"
	"notesync-engine/internal/notestore"
	"notesync-engine/internal/store"
)

type mockIntegrityStore struct {
	mu      sync.Mutex
	records []*domain.IntegrityRecord
}

func (m *mockIntegrityStore) Insert(ctx context.Context, rec *domain.IntegrityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *mockIntegrityStore) Latest(ctx context.Context, entityType domain.EntityType, entityID string) (*domain.IntegrityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].EntityType == entityType && m.records[i].EntityID == entityID {
			cp := *m.records[i]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("integrity record: %w", store.ErrNotFound)
}

func (m *mockIntegrityStore) CountInvalid(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	latest := make(map[string]*domain.IntegrityRecord)
	for _, rec := range m.records {
		latest[string(rec.EntityType)+"/"+rec.EntityID] = rec
	}

	n := 0
	for _, rec := range latest {
		if !rec.Valid {
			n++
		}
	}
	return n, nil
}

func validNote() *domain.Note {
	now := time.Now()
	return &domain.Note{
		ID:        "n1",
		Title:     "Weekly report",
		Content:   "Four plain words here",
		Category:  "Work",
		Tags:      []string{"status"},
		Format:    domain.FormatPlainText,
		WordCount: 4,
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now,
		Version:   1,
	}
}

func TestValidateNoteValid(t *testing.T) {
	records := &mockIntegrityStore{}
	c := NewChecker(notestore.NewMemoryStore(), records)

	result, err := c.ValidateNote(context.Background(), validNote())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !result.Valid {
		t.Fatalf("expected valid, violations: %+v", result.Errors)
	}
	if result.Checksum == "" {
		t.Error("expected a checksum")
	}
	if result.Record == nil || !result.Record.Valid {
		t.Error("expected a persisted valid record")
	}
	if len(records.records) != 1 {
		t.Errorf("persisted records = %d, want 1", len(records.records))
	}
}

func TestValidateNoteStructureViolations(t *testing.T) {
	c := NewChecker(notestore.NewMemoryStore(), &mockIntegrityStore{})

	note := validNote()
	note.Title = ""
	note.Version = 0

	result, err := c.ValidateNote(context.Background(), note)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if result.Valid {
		t.Fatal("expected violations")
	}
	if result.Record.Severity != domain.SeverityCritical {
		t.Errorf("severity = %s, want critical", result.Record.Severity)
	}

	rules := make(map[string]bool)
	for _, v := range result.Errors {
		rules[v.Rule] = true
	}
	if !rules["structure.required_fields"] || !rules["structure.version"] {
		t.Errorf("failed rules = %v, want required_fields and version", rules)
	}
}

func TestValidateNoteRuleViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Note)
		rule   string
	}{
		{"incoherent timestamps", func(n *domain.Note) {
			n.UpdatedAt = n.CreatedAt.Add(-time.Hour)
		}, "structure.timestamps"},
		{"implausible word count", func(n *domain.Note) {
			n.WordCount = 500
		}, "content.word_count"},
		{"control characters", func(n *domain.Note) {
			n.Content = "bad\x00byte"
			n.WordCount = 1
		}, "content.charset"},
		{"missing category", func(n *domain.Note) {
			n.Category = ""
		}, "metadata.category"},
		{"invalid tag", func(n *domain.Note) {
			n.Tags = []string{"ok", "no/slashes"}
		}, "metadata.tags"},
		{"unknown format", func(n *domain.Note) {
			n.Format = "pdf"
		}, "metadata.format"},
		{"negative color", func(n *domain.Note) {
			n.Color = -1
		}, "metadata.color"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(notestore.NewMemoryStore(), &mockIntegrityStore{})
			note := validNote()
			tt.mutate(note)

			result, err := c.ValidateNote(context.Background(), note)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result.Valid {
				t.Fatal("expected a violation")
			}

			found := false
			for _, v := range result.Errors {
				if v.Rule == tt.rule {
					found = true
				}
			}
			if !found {
				t.Errorf("violations %+v missing rule %s", result.Errors, tt.rule)
			}
			if len(result.Suggestions) == 0 {
				t.Error("expected a correction suggestion")
			}
		})
	}
}

func TestApplyCorrectionsFixesNote(t *testing.T) {
	records := &mockIntegrityStore{}
	c := NewChecker(notestore.NewMemoryStore(), records)
	ctx := context.Background()

	note := validNote()
	note.Category = ""
	note.Format = "pdf"
	note.Color = -5
	note.WordCount = 999
	note.Content = "two\x00words"

	result, err := c.ValidateNote(ctx, note)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if result.Valid {
		t.Fatal("expected violations")
	}

	fixed, sum, err := c.ApplyCorrections(ctx, note, result.Suggestions)
	if err != nil {
		t.Fatalf("corrections failed: %v", err)
	}
	if sum == "" || fixed.Checksum != sum {
		t.Error("expected the corrected checksum on the note")
	}
	if fixed.Category != domain.DefaultCategory {
		t.Errorf("category = %q, want default", fixed.Category)
	}
	if fixed.Format != domain.FormatPlainText {
		t.Errorf("format = %s, want plain_text", fixed.Format)
	}
	if fixed.Color != 0 {
		t.Errorf("color = %d, want 0", fixed.Color)
	}
	if fixed.Content != "twowords" {
		t.Errorf("content = %q, control bytes must be stripped", fixed.Content)
	}
	if fixed.WordCount != 1 {
		t.Errorf("word count = %d, want recomputed 1", fixed.WordCount)
	}
	// The input note must be untouched.
	if note.Category != "" || note.Color != -5 {
		t.Error("ApplyCorrections mutated its input")
	}

	// Re-validating the corrected note should pass.
	revalidated, err := c.ValidateNote(ctx, fixed)
	if err != nil {
		t.Fatalf("revalidate failed: %v", err)
	}
	if !revalidated.Valid {
		t.Errorf("corrected note still invalid: %+v", revalidated.Errors)
	}
}

func TestApplyCorrectionsIdempotent(t *testing.T) {
	c := NewChecker(notestore.NewMemoryStore(), &mockIntegrityStore{})
	ctx := context.Background()

	note := validNote()
	note.Tags = []string{" messy ", "", "this-tag-is-way-too-long-to-survive-the-cap-rule"}

	suggestions := []Correction{{Field: "tags", Description: "truncate and cap tags"}}

	once, sum1, err := c.ApplyCorrections(ctx, note, suggestions)
	if err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	twice, sum2, err := c.ApplyCorrections(ctx, once, suggestions)
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}

	if sum1 != sum2 {
		t.Errorf("checksums differ across passes: %s vs %s", sum1, sum2)
	}
	if len(once.Tags) != len(twice.Tags) {
		t.Errorf("tags changed across passes: %v vs %v", once.Tags, twice.Tags)
	}
}

func TestScanAllCorrects(t *testing.T) {
	notes := notestore.NewMemoryStore()
	records := &mockIntegrityStore{}
	c := NewChecker(notes, records)
	ctx := context.Background()

	good := validNote()
	notes.Insert(ctx, good)

	bad := validNote()
	bad.ID = "n2"
	bad.Category = ""
	bad.Color = -1
	notes.Insert(ctx, bad)

	report, err := c.ScanAll(ctx, true)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	if report.Scanned != 2 {
		t.Errorf("scanned = %d, want 2", report.Scanned)
	}
	if report.Valid != 1 || report.Invalid != 1 {
		t.Errorf("valid/invalid = %d/%d, want 1/1", report.Valid, report.Invalid)
	}
	if report.Corrected != 1 {
		t.Errorf("corrected = %d, want 1", report.Corrected)
	}

	persisted, err := notes.GetByID(ctx, "n2")
	if err != nil {
		t.Fatalf("corrected note missing: %v", err)
	}
	if persisted.Category != domain.DefaultCategory {
		t.Errorf("category = %q, correction was not persisted", persisted.Category)
	}
}
