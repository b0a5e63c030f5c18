package domain

import "time"

type SyncStatus string

const (
	SyncStatusSynced      SyncStatus = "synced"
	SyncStatusPending     SyncStatus = "pending"
	SyncStatusConflict    SyncStatus = "conflict"
	SyncStatusError       SyncStatus = "error"
	SyncStatusOfflineOnly SyncStatus = "offline_only"
)

// SyncState is the per-entity synchronization bookkeeping row. At most one
// row exists per (EntityType, EntityID); writes go through an upsert.
type SyncState struct {
	EntityType      EntityType `json:"entity_type"`
	EntityID        string     `json:"entity_id"`
	LocalVersion    int64      `json:"local_version"`
	RemoteVersion   int64      `json:"remote_version"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`
	Status          SyncStatus `json:"status"`
	ConflictPayload string     `json:"conflict_payload,omitempty"`
	Checksum        string     `json:"checksum,omitempty"`
	AttemptCount    int        `json:"attempt_count"`
	LastError       string     `json:"last_error,omitempty"`
}
