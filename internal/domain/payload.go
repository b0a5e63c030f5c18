package domain

import (
	"encoding/json"
	"fmt"
)

// Operation payloads travel as a tagged union: {"type": "...", ...fields}.
// The tag switch below is the single place the tag->variant mapping lives;
// adding a kind means adding a variant here and nowhere else.

var ErrUnknownOperationType = fmt.Errorf("unknown operation type")

type Payload interface {
	Kind() OperationKind
}

type NoteData struct {
	ID       string   `json:"id,omitempty"`
	Title    string   `json:"title" validate:"required,max=200"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags,omitempty"`
	Format   string   `json:"format,omitempty"`
	Color    int64    `json:"color,omitempty"`
}

type CreateNotePayload struct {
	Note NoteData `json:"note" validate:"required"`
}

func (CreateNotePayload) Kind() OperationKind { return OpCreateNote }

// UpdateNotePayload carries the proposed field changes keyed by field name
// ("title", "content", "category", "tags" as a comma-joined list), the
// version the caller last saw, and the content at that version for use as
// the merge base.
type UpdateNotePayload struct {
	NoteID          string            `json:"note_id" validate:"required"`
	PreviousVersion int64             `json:"previous_version" validate:"gte=0"`
	Changes         map[string]string `json:"changes" validate:"required,min=1"`
	BaseContent     string            `json:"base_content,omitempty"`
}

func (UpdateNotePayload) Kind() OperationKind { return OpUpdateNote }

type DeleteNotePayload struct {
	NoteID string `json:"note_id" validate:"required"`
	Hard   bool   `json:"hard,omitempty"`
}

func (DeleteNotePayload) Kind() OperationKind { return OpDeleteNote }

type CreateCategoryPayload struct {
	Name  string `json:"name" validate:"required,max=50"`
	Color int64  `json:"color,omitempty"`
}

func (CreateCategoryPayload) Kind() OperationKind { return OpCreateCategory }

type AIAnalysisPayload struct {
	NoteID       string `json:"note_id" validate:"required"`
	AnalysisType string `json:"analysis_type,omitempty"`
}

func (AIAnalysisPayload) Kind() OperationKind { return OpAIAnalysis }

type SyncCollabSessionPayload struct {
	SessionID string `json:"session_id" validate:"required"`
	NoteID    string `json:"note_id,omitempty"`
}

func (SyncCollabSessionPayload) Kind() OperationKind { return OpSyncCollabSess }

type payloadEnvelope struct {
	Type OperationKind `json:"type"`
}

// EncodePayload wraps a variant with its discriminant tag. Defaults are
// populated before encoding so stored payloads are self-contained.
func EncodePayload(p Payload) (json.RawMessage, error) {
	if cp, ok := p.(CreateNotePayload); ok {
		if cp.Note.Category == "" {
			cp.Note.Category = DefaultCategory
		}
		if cp.Note.Format == "" {
			cp.Note.Format = string(FormatPlainText)
		}
		p = cp
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	tag, _ := json.Marshal(p.Kind())
	fields["type"] = tag

	return json.Marshal(fields)
}

// DecodePayload parses a stored payload back into its typed variant.
// Unknown extra fields are tolerated for forward compatibility; an unknown
// tag is not.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode payload envelope: %w", err)
	}

	var (
		p   Payload
		err error
	)
	switch env.Type {
	case OpCreateNote:
		var v CreateNotePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case OpUpdateNote:
		var v UpdateNotePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case OpDeleteNote:
		var v DeleteNotePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case OpCreateCategory:
		var v CreateCategoryPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case OpAIAnalysis:
		var v AIAnalysisPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case OpSyncCollabSess:
		var v SyncCollabSessionPayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperationType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
	}

	return p, nil
}
