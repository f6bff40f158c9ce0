package dataset

import (
	"context"
	"fmt"

	"github.com/dataset-attach/agent/internal/models"
)

// PreviewDefault fetches the backend's canonical default dataset and opens
// its preview. On fetch failure the prior state is left untouched.
func (m *Manager) PreviewDefault(ctx context.Context) (*models.FilePreview, error) {
	def, err := m.loadDefault(ctx)
	if err != nil {
		return nil, err
	}

	preview := &models.FilePreview{
		Headers:     def.Headers,
		Rows:        def.Rows,
		Name:        def.Name,
		Description: def.Description,
	}

	m.mu.Lock()
	m.preview = preview
	m.mu.Unlock()
	m.emitState()
	return preview, nil
}

// LoadDefaultSilently switches the session to the default dataset without
// surfacing a preview. Used when leaving a custom dataset mid-conversation.
func (m *Manager) LoadDefaultSilently(ctx context.Context) error {
	_, err := m.loadDefault(ctx)
	return err
}

// loadDefault resets the session, fetches the default dataset and updates
// the description state. Failure is logged and returned; no destructive
// fallback happens on a failed fetch.
func (m *Manager) loadDefault(ctx context.Context) (*defaultResult, error) {
	m.mu.Lock()
	sessionID := m.sessionID
	m.mu.Unlock()

	if err := m.client.ResetSession(ctx, sessionID); err != nil {
		fmt.Printf("[Default] Session reset failed (continuing): %v\n", err)
	}

	def, err := m.client.GetDefaultDataset(ctx)
	if err != nil {
		fmt.Printf("[Default] Default dataset fetch failed: %v\n", err)
		return nil, err
	}

	m.mu.Lock()
	if def.SessionID != "" {
		m.sessionID = def.SessionID
	}
	m.desc = models.DatasetDescription{Name: def.Name, Description: def.Description}
	m.mu.Unlock()
	m.emitState()

	return &defaultResult{
		Headers:     def.Headers,
		Rows:        def.Rows,
		Name:        def.Name,
		Description: def.Description,
	}, nil
}

type defaultResult struct {
	Headers     []string
	Rows        [][]string
	Name        string
	Description string
}
