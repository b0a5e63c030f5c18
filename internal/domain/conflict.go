package domain

import "time"

// ConflictKind classifies what diverged.
type ConflictKind string

const (
	ConflictKindData         ConflictKind = "data"
	ConflictKindSchema       ConflictKind = "schema"
	ConflictKindSync         ConflictKind = "sync"
	ConflictKindBusinessRule ConflictKind = "business_rule"
)

// ResolutionStrategy names how a conflict was (or should be) settled.
type ResolutionStrategy string

const (
	ResolutionAutoMerge     ResolutionStrategy = "auto_merge"
	ResolutionUserChoice    ResolutionStrategy = "user_choice"
	ResolutionAIAssisted    ResolutionStrategy = "ai_assisted"
	ResolutionLastWriteWins ResolutionStrategy = "last_write_wins"
	ResolutionAcceptNew     ResolutionStrategy = "accept_new"
	ResolutionAcceptRemote  ResolutionStrategy = "accept_remote"
	ResolutionAcceptLocal   ResolutionStrategy = "accept_local"
)

// ConflictRecord is the durable history of a detected conflict. Unresolved
// records are the actionable artifact surfaced to users; resolved ones are
// kept for a retention window then purged.
type ConflictRecord struct {
	ID              string                        `json:"id"`
	EntityType      EntityType                    `json:"entity_type"`
	EntityID        string                        `json:"entity_id"`
	Kind            ConflictKind                  `json:"kind"`
	Detail          string                        `json:"detail,omitempty"`
	LocalPayload    string                        `json:"local_payload,omitempty"`
	RemotePayload   string                        `json:"remote_payload,omitempty"`
	MergedPayload   string                        `json:"merged_payload,omitempty"`
	Strategy        ResolutionStrategy            `json:"strategy"`
	ResolvedAt      *time.Time                    `json:"resolved_at,omitempty"`
	ResolvedBy      string                        `json:"resolved_by,omitempty"`
	Confidence      float64                       `json:"confidence"`
	Resolved        bool                          `json:"resolved"`
	Notes           string                        `json:"notes,omitempty"`
	AffectedFields  []string                      `json:"affected_fields,omitempty"`
	FieldStrategies map[string]ResolutionStrategy `json:"field_strategies,omitempty"`
	DetectedAt      time.Time                     `json:"detected_at"`
	OperationID     string                        `json:"operation_id,omitempty"`
}
