// Package collab talks to the external collaborator services some operation
// kinds delegate to (category service, AI analysis, collaborative editing).
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"notesync-engine/internal/domain"
	"notesync-engine/pkg/token"
)

type Client struct {
	baseURL     string
	tokenSecret string
	tokenTTL    time.Duration
	client      *http.Client
}

func NewClient(baseURL, tokenSecret string, tokenTTL time.Duration) *Client {
	return &Client{
		baseURL:     baseURL,
		tokenSecret: tokenSecret,
		tokenTTL:    tokenTTL,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) CreateCategory(ctx context.Context, name string, color int64) (*domain.Category, error) {
	var created domain.Category
	err := c.post(ctx, "/api/v1/categories", map[string]interface{}{
		"name":  name,
		"color": color,
	}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) AnalyzeNote(ctx context.Context, noteID, analysisType string) error {
	return c.post(ctx, "/api/v1/analysis", map[string]interface{}{
		"note_id":       noteID,
		"analysis_type": analysisType,
	}, nil)
}

func (c *Client) SyncCollaborativeSession(ctx context.Context, sessionID, noteID string) error {
	return c.post(ctx, fmt.Sprintf("/api/v1/sessions/%s/sync", sessionID), map[string]interface{}{
		"note_id": noteID,
	}, nil)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	t, err := token.Generate("sync-engine", c.tokenTTL, c.tokenSecret)
	if err != nil {
		return fmt.Errorf("failed to mint service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("collaborator request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("collaborator returned status %d for %s", resp.StatusCode, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode collaborator response: %w", err)
		}
	}

	return nil
}
