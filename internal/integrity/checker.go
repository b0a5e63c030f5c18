// Package integrity validates note structure, content, and metadata,
// computes content checksums, and proposes or applies corrections.
package integrity

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"notesync-engine/internal/domain"
	"notesync-engine/internal/notestore"
	"notesync-engine/internal/store"
	"notesync-engine/pkg/checksum"
)

const (
	schemaVersion    = 1
	maxCategoryLen   = 50
	maxTagLen        = 30
	maxTags          = 10
	wordsPerMinute   = 200
	wordCountLeeway  = 0.5
)

var (
	tagFormat = regexp.MustCompile(`^[\w\- ]+$`)
	wordRegex = regexp.MustCompile(`\S+`)
)

// noteStructure mirrors the structural constraints so validator tags can
// enforce them; timestamp coherence needs code and is checked separately.
type noteStructure struct {
	ID      string `validate:"required"`
	Title   string `validate:"required,max=200"`
	Version int64  `validate:"gt=0"`
}

type RuleViolation struct {
	Rule     string          `json:"rule"`
	Message  string          `json:"message"`
	Severity domain.Severity `json:"severity"`
}

type Correction struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

type ValidationResult struct {
	Valid       bool            `json:"valid"`
	Checksum    string          `json:"checksum"`
	Errors      []RuleViolation `json:"errors,omitempty"`
	Suggestions []Correction    `json:"suggestions,omitempty"`
	Record      *domain.IntegrityRecord
}

type Checker struct {
	notes    notestore.NoteStore
	records  store.IntegrityStore
	validate *validator.Validate
}

func NewChecker(notes notestore.NoteStore, records store.IntegrityStore) *Checker {
	return &Checker{
		notes:    notes,
		records:  records,
		validate: validator.New(),
	}
}

var allRules = []string{
	"structure.required_fields", "structure.timestamps", "structure.version",
	"content.word_count", "content.charset",
	"metadata.category", "metadata.tags", "metadata.format", "metadata.color",
}

// ValidateNote runs every rule group, persists an IntegrityRecord, and
// returns the result with correction suggestions for anything fixable.
func (c *Checker) ValidateNote(ctx context.Context, note *domain.Note) (*ValidationResult, error) {
	var violations []RuleViolation
	var suggestions []Correction

	violations = append(violations, c.structureRules(note, &suggestions)...)
	violations = append(violations, c.contentRules(note, &suggestions)...)
	violations = append(violations, c.metadataRules(note, &suggestions)...)

	sum := checksum.Note(note.ID, note.Title, note.Content, note.Category, note.Tags, note.Version)

	result := &ValidationResult{
		Valid:       len(violations) == 0,
		Checksum:    sum,
		Errors:      violations,
		Suggestions: suggestions,
	}

	rec := &domain.IntegrityRecord{
		ID:            uuid.New().String(),
		EntityType:    domain.EntityNote,
		EntityID:      note.ID,
		ValidatedAt:   time.Now(),
		Valid:         result.Valid,
		RulesChecked:  allRules,
		Checksum:      sum,
		SchemaVersion: schemaVersion,
		Severity:      aggregateSeverity(violations),
		AutoFixable:   len(violations) > 0 && len(suggestions) >= len(violations),
	}
	for _, v := range violations {
		rec.FailedRules = append(rec.FailedRules, v.Rule)
		if rec.Details == nil {
			rec.Details = make(map[string]string)
		}
		rec.Details[v.Rule] = v.Message
	}
	if len(suggestions) > 0 {
		descs := make([]string, len(suggestions))
		for i, s := range suggestions {
			descs[i] = s.Description
		}
		rec.FixDescription = strings.Join(descs, "; ")
	}

	if err := c.records.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist integrity record: %w", err)
	}
	result.Record = rec

	return result, nil
}

func (c *Checker) structureRules(note *domain.Note, suggestions *[]Correction) []RuleViolation {
	var out []RuleViolation

	if err := c.validate.Struct(noteStructure{ID: note.ID, Title: note.Title, Version: note.Version}); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				rule := "structure.required_fields"
				if fe.Field() == "Version" {
					rule = "structure.version"
					*suggestions = append(*suggestions, Correction{Field: "version", Description: "reset version to 1"})
				}
				out = append(out, RuleViolation{
					Rule:     rule,
					Message:  fmt.Sprintf("field %s failed %s", fe.Field(), fe.Tag()),
					Severity: domain.SeverityCritical,
				})
			}
		}
	}

	if note.CreatedAt.IsZero() || note.UpdatedAt.IsZero() || note.UpdatedAt.Before(note.CreatedAt) {
		out = append(out, RuleViolation{
			Rule:     "structure.timestamps",
			Message:  "timestamps missing or incoherent",
			Severity: domain.SeverityError,
		})
		*suggestions = append(*suggestions, Correction{Field: "timestamps", Description: "repair created/updated timestamps"})
	}

	return out
}

func (c *Checker) contentRules(note *domain.Note, suggestions *[]Correction) []RuleViolation {
	var out []RuleViolation

	actual := len(wordRegex.FindAllString(note.Content, -1))
	if note.WordCount > 0 || actual > 0 {
		diff := float64(actual - note.WordCount)
		if diff < 0 {
			diff = -diff
		}
		baseline := float64(actual)
		if baseline == 0 {
			baseline = 1
		}
		if diff/baseline > wordCountLeeway {
			out = append(out, RuleViolation{
				Rule:     "content.word_count",
				Message:  fmt.Sprintf("stored word count %d implausible for %d actual words", note.WordCount, actual),
				Severity: domain.SeverityWarning,
			})
			*suggestions = append(*suggestions, Correction{Field: "word_count", Description: "recompute word count and read time"})
		}
	}

	if strings.ContainsFunc(note.Content, isDisallowedRune) {
		out = append(out, RuleViolation{
			Rule:     "content.charset",
			Message:  "content contains disallowed control characters",
			Severity: domain.SeverityWarning,
		})
		*suggestions = append(*suggestions, Correction{Field: "content", Description: "strip disallowed characters"})
	}

	return out
}

func (c *Checker) metadataRules(note *domain.Note, suggestions *[]Correction) []RuleViolation {
	var out []RuleViolation

	if note.Category == "" || len(note.Category) > maxCategoryLen {
		out = append(out, RuleViolation{
			Rule:     "metadata.category",
			Message:  "category missing or too long",
			Severity: domain.SeverityWarning,
		})
		*suggestions = append(*suggestions, Correction{Field: "category", Description: "normalize category to default"})
	}

	if len(note.Tags) > maxTags || anyBadTag(note.Tags) {
		out = append(out, RuleViolation{
			Rule:     "metadata.tags",
			Message:  "tags exceed limits or contain invalid characters",
			Severity: domain.SeverityWarning,
		})
		*suggestions = append(*suggestions, Correction{Field: "tags", Description: "truncate and cap tags"})
	}

	switch note.Format {
	case domain.FormatPlainText, domain.FormatMarkdown, domain.FormatRichText:
	default:
		out = append(out, RuleViolation{
			Rule:     "metadata.format",
			Message:  fmt.Sprintf("unknown format %q", note.Format),
			Severity: domain.SeverityWarning,
		})
		*suggestions = append(*suggestions, Correction{Field: "format", Description: "normalize format to plain_text"})
	}

	if note.Color < 0 {
		out = append(out, RuleViolation{
			Rule:     "metadata.color",
			Message:  "color must be non-negative",
			Severity: domain.SeverityInfo,
		})
		*suggestions = append(*suggestions, Correction{Field: "color", Description: "clamp color to 0"})
	}

	return out
}

func anyBadTag(tags []string) bool {
	for _, t := range tags {
		if t == "" || len(t) > maxTagLen || !tagFormat.MatchString(t) {
			return true
		}
	}
	return false
}

func isDisallowedRune(r rune) bool {
	if r == '\n' || r == '\t' || r == '\r' {
		return false
	}
	return r < 0x20 || r == 0x7f
}

func aggregateSeverity(violations []RuleViolation) domain.Severity {
	rank := map[domain.Severity]int{
		domain.SeverityInfo:     0,
		domain.SeverityWarning:  1,
		domain.SeverityError:    2,
		domain.SeverityCritical: 3,
	}
	worst := domain.SeverityInfo
	for _, v := range violations {
		if rank[v.Severity] > rank[worst] {
			worst = v.Severity
		}
	}
	return worst
}
