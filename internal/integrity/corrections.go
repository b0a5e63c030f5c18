package integrity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"notesync-engine/internal/domain"
	"notesync-engine/pkg/checksum"
)

// ApplyCorrections produces a corrected copy of the note for the given
// suggestions. Each fixup is idempotent: applying the result again yields
// the same note and checksum.
func (c *Checker) ApplyCorrections(ctx context.Context, note *domain.Note, suggestions []Correction) (*domain.Note, string, error) {
	fixed := note.Clone()
	var applied []string

	for _, s := range suggestions {
		switch s.Field {
		case "timestamps":
			now := time.Now()
			if fixed.CreatedAt.IsZero() {
				fixed.CreatedAt = now
			}
			if fixed.UpdatedAt.IsZero() || fixed.UpdatedAt.Before(fixed.CreatedAt) {
				fixed.UpdatedAt = fixed.CreatedAt
			}
		case "version":
			if fixed.Version <= 0 {
				fixed.Version = 1
			}
		case "content":
			fixed.Content = strings.Map(func(r rune) rune {
				if isDisallowedRune(r) {
					return -1
				}
				return r
			}, fixed.Content)
			recomputeDerived(fixed)
		case "word_count":
			recomputeDerived(fixed)
		case "category":
			if fixed.Category == "" || len(fixed.Category) > maxCategoryLen {
				fixed.Category = domain.DefaultCategory
			}
		case "tags":
			fixed.Tags = fixTags(fixed.Tags)
		case "format":
			switch fixed.Format {
			case domain.FormatPlainText, domain.FormatMarkdown, domain.FormatRichText:
			default:
				fixed.Format = domain.FormatPlainText
			}
		case "color":
			if fixed.Color < 0 {
				fixed.Color = 0
			}
		default:
			return nil, "", fmt.Errorf("unknown correction field %q", s.Field)
		}
		applied = append(applied, s.Field)
	}

	sum := checksum.Note(fixed.ID, fixed.Title, fixed.Content, fixed.Category, fixed.Tags, fixed.Version)
	fixed.Checksum = sum

	if len(applied) > 0 {
		// Best effort: the correction itself succeeded even if the audit
		// record write fails.
		_ = c.records.Insert(ctx, &domain.IntegrityRecord{
			ID:                uuid.New().String(),
			EntityType:        domain.EntityNote,
			EntityID:          fixed.ID,
			ValidatedAt:       time.Now(),
			Valid:             true,
			RulesChecked:      allRules,
			CorrectionApplied: true,
			CorrectionNote:    fmt.Sprintf("corrected fields: %s", strings.Join(applied, ", ")),
			Checksum:          sum,
			SchemaVersion:     schemaVersion,
			Severity:          domain.SeverityInfo,
		})
	}

	return fixed, sum, nil
}

func recomputeDerived(note *domain.Note) {
	words := wordRegex.FindAllString(note.Content, -1)
	note.WordCount = len(words)
	note.ReadTimeMinutes = (len(words) + wordsPerMinute - 1) / wordsPerMinute
	if note.WordCount == 0 {
		note.ReadTimeMinutes = 0
	}
}

func fixTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if len(t) > maxTagLen {
			t = t[:maxTagLen]
		}
		if !tagFormat.MatchString(t) {
			continue
		}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}
