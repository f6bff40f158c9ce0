package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/dataset-attach/agent/internal/models"
	"github.com/dataset-attach/agent/internal/notify"
)

// Generate asks the backend for an automatic dataset description. The
// description shows the generating sentinel while the call is in flight;
// a user edit during that window always wins over the generated text.
//
// The generation lock (IsGenerating) is held for the duration; destructive
// actions are refused while it is set.
func (m *Manager) Generate(ctx context.Context) error {
	m.mu.Lock()
	if m.generating {
		m.mu.Unlock()
		return ErrGenerationInProgress
	}
	m.generating = true
	m.userEditedDuringGen = false

	existing := ""
	if !m.desc.IsGenerating() &&
		m.desc.Description != models.PlaceholderDescription &&
		strings.TrimSpace(m.desc.Description) != "" {
		existing = m.desc.Description
	}
	m.desc.Description = models.GeneratingDescription
	sessionID := m.sessionID
	m.mu.Unlock()
	m.emitState()

	generated, err := m.client.CreateDescription(ctx, sessionID, existing)

	m.mu.Lock()
	m.generating = false
	userWon := m.userEditedDuringGen || !m.desc.IsGenerating()
	if err != nil {
		// Revert to empty only if the sentinel survived; a concurrent user
		// edit must not be overwritten.
		if !userWon {
			m.desc.Description = ""
		}
		m.mu.Unlock()
		m.emitState()
		m.notifier.Publish(notify.KindGenerationFailed,
			"Could not generate a dataset description", apiDetail(err))
		return err
	}

	if !userWon {
		m.desc.Description = generated
	}
	m.mu.Unlock()
	m.emitState()

	if userWon {
		fmt.Printf("[Describe] Discarding generated text, user edited during generation\n")
	}
	return nil
}

// SetDescription applies a user edit to the dataset name/description. An
// edit while generation is in flight marks the generated result as stale.
func (m *Manager) SetDescription(name, description string) {
	m.mu.Lock()
	if name != "" {
		m.desc.Name = name
	}
	if description != models.GeneratingDescription {
		m.desc.Description = description
		m.userDesc = description
		if m.generating {
			m.userEditedDuringGen = true
		}
	}
	m.mu.Unlock()
	m.emitState()
}

// Description returns the current name/description pair.
func (m *Manager) Description() models.DatasetDescription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.desc
}
