package dataset

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dataset-attach/agent/internal/backend"
	"github.com/dataset-attach/agent/internal/models"
	"github.com/dataset-attach/agent/internal/notify"
)

// Commit finalizes the previewed dataset into the active session. With a
// custom file present it re-uploads under the final metadata; otherwise it
// updates the default dataset's name/description in place. On success the
// local record is rewritten and a transient success banner is raised.
//
// Commit failures are blocking notices; they never auto-dismiss.
func (m *Manager) Commit(ctx context.Context, d models.DatasetDescription) error {
	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Description) == "" ||
		d.Description == models.GeneratingDescription {
		m.notifier.Publish(notify.KindMissingMetadata,
			"Both a dataset name and a description are required", nil)
		return ErrMissingMetadata
	}

	m.mu.Lock()
	hasCustom := m.upload != nil && m.upload.Status != models.UploadStatusError
	if !hasCustom {
		sessionID := m.sessionID
		m.mu.Unlock()
		return m.commitDefault(ctx, sessionID, d)
	}

	if m.upload.Placeholder || len(m.content) == 0 {
		m.mu.Unlock()
		m.notifier.Publish(notify.KindStaleHandle,
			"The file content is no longer available, select the file again", nil)
		return ErrStaleHandle
	}

	token := m.token
	sessionID := m.sessionID
	up := m.upload
	content := m.content
	fileName := up.Name
	spreadsheet := up.IsSpreadsheet
	sheet := up.SelectedSheet
	declaredType := up.DeclaredType
	modifiedAt := up.ModifiedAt
	m.mu.Unlock()

	if err := m.client.ResetSession(ctx, sessionID); err != nil {
		fmt.Printf("[Commit] Session reset failed (continuing): %v\n", err)
	}

	payload := backend.FilePayload{Name: fileName, Data: content}
	var result *backend.UploadResult
	var err error
	if spreadsheet {
		result, err = m.client.UploadExcel(ctx, sessionID, payload, d.Name, d.Description, sheet)
	} else {
		result, err = m.client.UploadDataframe(ctx, sessionID, payload, d.Name, d.Description)
	}
	if err != nil {
		m.notifier.Publish(notify.KindCommitFailed, commitFailedMessage(err), apiDetail(err))
		return err
	}

	rec := &models.LocalDatasetRecord{
		Name:          fileName,
		DeclaredType:  declaredType,
		ModifiedAt:    modifiedAt,
		IsSpreadsheet: spreadsheet,
		SelectedSheet: sheet,
		SavedAt:       time.Now(),
	}
	if spreadsheet {
		// The committed sheet lives on as plain tabular data server-side;
		// record the converted identity so a later restore matches it.
		rec.Name = tabularName(fileName)
		rec.DeclaredType = "text/csv"
	}
	if err := m.records.Save(rec); err != nil {
		fmt.Printf("[Commit] Failed to persist record: %v\n", err)
	}

	m.mu.Lock()
	if m.token == token {
		if result.SessionID != "" {
			m.sessionID = result.SessionID
		}
		if m.upload != nil {
			m.upload.Status = models.UploadStatusSuccess
			m.upload.ErrorMessage = ""
			if result.DatasetUploadID != "" {
				m.upload.DatasetUploadID = result.DatasetUploadID
			}
		}
		m.desc = d
		m.userDesc = d.Description
		m.preview = nil // the preview dialog closes on commit
		m.startBannerLocked()
	}
	m.mu.Unlock()
	m.emitState()
	m.emitBanner(true)

	fmt.Printf("[Commit] Committed custom dataset %q (session %s)\n", d.Name, shortSession(m.SessionID()))
	return nil
}

// commitDefault updates just the name/description of the default dataset.
func (m *Manager) commitDefault(ctx context.Context, sessionID string, d models.DatasetDescription) error {
	if err := m.client.UpdateSessionDataset(ctx, sessionID, d.Name, d.Description); err != nil {
		m.notifier.Publish(notify.KindCommitFailed, commitFailedMessage(err), apiDetail(err))
		return err
	}

	m.mu.Lock()
	m.desc = d
	m.userDesc = d.Description
	m.preview = nil
	m.startBannerLocked()
	m.mu.Unlock()
	m.emitState()
	m.emitBanner(true)

	fmt.Printf("[Commit] Updated default dataset description %q\n", d.Name)
	return nil
}

// startBannerLocked raises the transient success indicator. Callers hold mu.
func (m *Manager) startBannerLocked() {
	if m.bannerTimer != nil {
		m.bannerTimer.Stop()
	}
	m.successBanner = true
	m.bannerTimer = time.AfterFunc(m.BannerDelay, func() {
		m.mu.Lock()
		m.successBanner = false
		m.bannerTimer = nil
		m.mu.Unlock()
		m.emitBanner(false)
		m.emitState()
	})
}

func commitFailedMessage(err error) string {
	if apiErr, ok := backend.AsAPIError(err); ok {
		if msg := strings.TrimSpace(apiErr.Message); msg != "" {
			return msg
		}
	}
	return "Committing the dataset failed"
}

// tabularName rewrites a spreadsheet file name to its converted tabular
// identity.
func tabularName(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i] + ".csv"
	}
	return name + ".csv"
}
