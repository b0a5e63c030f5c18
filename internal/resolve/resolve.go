// Package resolve implements the conflict resolution engine: pure decision
// logic over in-memory note snapshots. It holds no state and performs no
// I/O; callers persist whatever it decides.
package resolve

import (
	"github.com/sergi/go-diff/diffmatchpatch"

	"notesync-engine/internal/domain"
)

// ConflictType classifies a detected update divergence and selects the
// resolution path.
type ConflictType string

const (
	ConflictVersion       ConflictType = "VERSION"
	ConflictContent       ConflictType = "CONTENT"
	ConflictMetadata      ConflictType = "METADATA"
	ConflictStructural    ConflictType = "STRUCTURAL"
	ConflictCollaborative ConflictType = "COLLABORATIVE"
)

// ConflictData carries the three content versions involved in an update
// conflict.
type ConflictData struct {
	Type          ConflictType
	BaseContent   string
	LocalContent  string
	RemoteContent string
}

// Resolution is the engine's decision. Exactly one of Note (create path) or
// Changes (update path) is populated, depending on which resolver produced
// it.
type Resolution struct {
	Strategy        domain.ResolutionStrategy
	Note            *domain.Note
	Changes         map[string]string
	Confidence      float64
	Reason          string
	Merge           *MergeResult
	AffectedFields  []string
	FieldStrategies map[string]domain.ResolutionStrategy
}

// RenderDiff produces a human-readable diff of the two sides for storage on
// a conflict record.
func RenderDiff(local, remote string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(local, remote, false)
	dmp.DiffCleanupSemantic(diffs)
	return dmp.DiffPrettyText(diffs)
}
