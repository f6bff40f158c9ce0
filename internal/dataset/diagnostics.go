package dataset

import (
	"context"

	"github.com/dataset-attach/agent/internal/models"
)

// UploadDiagnostics polls the backend for the latest upload-stat record,
// used to render processing time, row/column counts and any server-side
// error for the active upload.
func (m *Manager) UploadDiagnostics(ctx context.Context) ([]models.UploadStat, error) {
	m.mu.Lock()
	sessionID := m.sessionID
	m.mu.Unlock()

	return m.client.ListUploads(ctx, sessionID, 1)
}
