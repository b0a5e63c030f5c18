package collab

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"notesync-engine/internal/domain"
)

// Local satisfies the engine's collaborator surface without an external
// service. Categories are minted locally; analysis and session sync are
// acknowledged and logged so queued operations still complete offline.
type Local struct{}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) CreateCategory(ctx context.Context, name string, color int64) (*domain.Category, error) {
	return &domain.Category{
		ID:        uuid.New().String(),
		Name:      name,
		Color:     color,
		CreatedAt: time.Now(),
	}, nil
}

func (l *Local) AnalyzeNote(ctx context.Context, noteID, analysisType string) error {
	log.Printf("collab: no analysis service configured, skipping %s for note %s", analysisType, noteID)
	return nil
}

func (l *Local) SyncCollaborativeSession(ctx context.Context, sessionID, noteID string) error {
	log.Printf("collab: no session service configured, skipping sync for session %s", sessionID)
	return nil
}
