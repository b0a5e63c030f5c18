package domain

import (
	"encoding/json"
	"time"
)

type OperationKind string

const (
	OpCreateNote     OperationKind = "CREATE_NOTE"
	OpUpdateNote     OperationKind = "UPDATE_NOTE"
	OpDeleteNote     OperationKind = "DELETE_NOTE"
	OpCreateCategory OperationKind = "CREATE_CATEGORY"
	OpAIAnalysis     OperationKind = "AI_ANALYSIS"
	OpSyncCollabSess OperationKind = "SYNC_COLLABORATIVE_SESSION"
)

type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusProcessing OperationStatus = "processing"
	StatusSuccess    OperationStatus = "success"
	StatusFailed     OperationStatus = "failed"
	StatusCancelled  OperationStatus = "cancelled"
	StatusRetrying   OperationStatus = "retrying"
)

// Terminal reports whether the status admits no further transitions.
func (s OperationStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusCancelled
}

type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityMedium Priority = 1
	PriorityLow    Priority = 2
)

type NetworkRequirement string

const (
	RequireAny          NetworkRequirement = "ANY"
	RequireWifiOnly     NetworkRequirement = "WIFI_ONLY"
	RequireMobileDataOK NetworkRequirement = "MOBILE_DATA_OK"
)

type EntityType string

const (
	EntityNote     EntityType = "note"
	EntityCategory EntityType = "category"
	EntitySession  EntityType = "session"
)

// Operation is a durable unit of deferred mutation work. Rows are owned by
// the engine; callers only ever see copies.
type Operation struct {
	ID                 string             `json:"id"`
	Kind               OperationKind      `json:"kind"`
	EntityType         EntityType         `json:"entity_type"`
	EntityID           string             `json:"entity_id"`
	Status             OperationStatus    `json:"status"`
	Priority           Priority           `json:"priority"`
	CreatedAt          time.Time          `json:"created_at"`
	ScheduledAt        time.Time          `json:"scheduled_at"`
	LastAttemptAt      *time.Time         `json:"last_attempt_at,omitempty"`
	RetryCount         int                `json:"retry_count"`
	MaxRetries         int                `json:"max_retries"`
	NetworkRequirement NetworkRequirement `json:"network_requirement"`
	EstimatedSize      int64              `json:"estimated_size"`
	Payload            json.RawMessage    `json:"payload"`
	DependsOn          []string           `json:"depends_on,omitempty"`
	LastError          string             `json:"last_error,omitempty"`
	ResolutionHint     string             `json:"resolution_hint,omitempty"`
	Metadata           map[string]string  `json:"metadata,omitempty"`
}

// QueueStats is the observable queue summary refreshed by the engine and
// surfaced to status UIs.
type QueueStats struct {
	Pending             int       `json:"pending"`
	Processing          int       `json:"processing"`
	Failed              int       `json:"failed"`
	Retrying            int       `json:"retrying"`
	Succeeded           int       `json:"succeeded"`
	UnresolvedConflicts int       `json:"unresolved_conflicts"`
	RefreshedAt         time.Time `json:"refreshed_at"`
}
