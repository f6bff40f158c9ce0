package dataset

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dataset-attach/agent/internal/backend"
	"github.com/dataset-attach/agent/internal/classify"
	"github.com/dataset-attach/agent/internal/models"
	"github.com/dataset-attach/agent/internal/notify"
)

// BeginUpload runs the upload pipeline for a newly selected file: discard
// prior state, reset the server session, then either upload immediately
// (CSV) or enumerate sheets and suspend for confirmation (spreadsheet).
//
// isNewDataset distinguishes a fresh dataset from re-selecting the same one;
// it gates both description reuse and the auto-describe trigger.
func (m *Manager) BeginUpload(ctx context.Context, file FileHandle, isNewDataset bool) error {
	kind := m.rules.Classify(file.Name, file.DeclaredType)
	if kind == classify.KindUnsupported {
		m.notifier.Publish(notify.KindInvalidFormat,
			fmt.Sprintf("%s is not a supported dataset file (CSV, XLSX or XLS)", file.Name), nil)
		return ErrInvalidFormat
	}

	m.mu.Lock()
	m.token++
	token := m.token
	m.discardLocked()
	m.upload = &models.FileUpload{
		Name:          file.Name,
		DeclaredType:  file.DeclaredType,
		ModifiedAt:    file.ModifiedAt,
		Size:          int64(len(file.Data)),
		Status:        models.UploadStatusLoading,
		IsSpreadsheet: kind == classify.KindExcel,
	}
	m.content = file.Data
	m.isNewDataset = isNewDataset
	sessionID := m.sessionID
	m.mu.Unlock()
	m.emitState()

	fmt.Printf("[Pipeline %s] Starting upload of %s (%s)\n", shortToken(token), file.Name, kind)

	// A failed reset is survivable: the prior server state may already be
	// stale, and the upload itself establishes fresh state.
	if err := m.client.ResetSession(ctx, sessionID); err != nil {
		fmt.Printf("[Pipeline %s] Session reset failed (continuing): %v\n", shortToken(token), err)
	}
	if !m.current(token) {
		return nil
	}

	if kind == classify.KindExcel {
		return m.enumerateSheets(ctx, token, sessionID, file)
	}
	return m.uploadAndPreview(ctx, token, sessionID)
}

// enumerateSheets fetches the sheet list and suspends the pipeline in the
// awaiting-sheet state. The first sheet is preselected as the default.
func (m *Manager) enumerateSheets(ctx context.Context, token uint64, sessionID string, file FileHandle) error {
	sheets, err := m.client.ExcelSheets(ctx, sessionID, backend.FilePayload{Name: file.Name, Data: file.Data})
	if err != nil {
		detail := apiDetail(err)
		m.failUpload(token, notify.KindSheetEnumerationFailed,
			"Could not read the sheets of this spreadsheet", detail)
		return err
	}
	if len(sheets) == 0 {
		m.failUpload(token, notify.KindSheetEnumerationFailed,
			"The spreadsheet contains no sheets", nil)
		return fmt.Errorf("spreadsheet has no sheets")
	}

	m.mu.Lock()
	if m.token != token {
		m.mu.Unlock()
		return nil
	}
	m.upload.Sheets = sheets
	m.upload.SelectedSheet = sheets[0]
	m.upload.Status = models.UploadStatusAwaitingSheet
	m.mu.Unlock()
	m.emitState()

	fmt.Printf("[Pipeline %s] Awaiting sheet confirmation (%d sheets)\n", shortToken(token), len(sheets))
	return nil
}

// ConfirmSheet resumes a suspended spreadsheet upload with an explicit sheet
// choice. Confirming a different sheet supersedes any confirmation still in
// flight; re-confirming after success re-runs the upload and preview, so
// selecting the same sheet twice yields the same result.
func (m *Manager) ConfirmSheet(ctx context.Context, sheetName string) error {
	m.mu.Lock()
	if m.upload == nil || !m.upload.IsSpreadsheet {
		m.mu.Unlock()
		return ErrNoUpload
	}
	switch m.upload.Status {
	case models.UploadStatusAwaitingSheet, models.UploadStatusLoading, models.UploadStatusSuccess:
	default:
		m.mu.Unlock()
		return ErrNotAwaitingSheet
	}
	if !m.upload.HasSheet(sheetName) {
		m.mu.Unlock()
		return ErrUnknownSheet
	}

	// Supersede, never accumulate: a prior confirmation still in flight is
	// abandoned by the token bump.
	m.token++
	token := m.token
	m.upload.SelectedSheet = sheetName
	m.upload.Status = models.UploadStatusLoading
	sessionID := m.sessionID
	m.mu.Unlock()
	m.emitState()

	fmt.Printf("[Pipeline %s] Sheet confirmed: %s\n", shortToken(token), sheetName)
	return m.uploadAndPreview(ctx, token, sessionID)
}

// uploadAndPreview performs the upload call and the follow-up preview fetch
// shared by the CSV path and the confirmed-sheet path.
func (m *Manager) uploadAndPreview(ctx context.Context, token uint64, sessionID string) error {
	m.mu.Lock()
	if m.token != token {
		m.mu.Unlock()
		return nil
	}
	up := m.upload
	content := m.content
	isNew := m.isNewDataset
	description := models.PlaceholderDescription
	if !isNew && strings.TrimSpace(m.userDesc) != "" {
		description = m.userDesc
	}
	name := up.Name
	sheet := up.SelectedSheet
	spreadsheet := up.IsSpreadsheet
	m.mu.Unlock()

	payload := backend.FilePayload{Name: name, Data: content}
	var result *backend.UploadResult
	var err error
	if spreadsheet {
		result, err = m.client.UploadExcel(ctx, sessionID, payload, name, description, sheet)
	} else {
		result, err = m.client.UploadDataframe(ctx, sessionID, payload, name, description)
	}
	if err != nil {
		m.failUpload(token, notify.KindUploadRejected, uploadRejectedMessage(err), apiDetail(err))
		return err
	}

	// The backend may rotate the session during upload; the fresher id wins
	// for the preview fetch and everything after.
	if result.SessionID != "" {
		sessionID = result.SessionID
	}

	m.mu.Lock()
	if m.token != token {
		m.mu.Unlock()
		return nil
	}
	m.sessionID = sessionID
	m.upload.DatasetUploadID = result.DatasetUploadID
	m.mu.Unlock()

	preview, err := m.client.PreviewCSV(ctx, sessionID)
	if err != nil {
		m.failUpload(token, notify.KindPreviewFailed,
			"The uploaded dataset could not be previewed", apiDetail(err))
		return err
	}

	m.mu.Lock()
	if m.token != token {
		m.mu.Unlock()
		return nil
	}
	m.preview = preview
	m.upload.Status = models.UploadStatusSuccess
	m.upload.ErrorMessage = ""
	m.desc = models.DatasetDescription{Name: preview.Name, Description: preview.Description}
	scheduleDescribe := isNew && preview.Description == models.PlaceholderDescription && !m.autoDescribeDone
	if scheduleDescribe {
		// One shot per successful new-dataset upload; the settle delay lets
		// the backend finish initializing the session before generation.
		m.autoDescribeDone = true
		m.autoDescribeTimer = time.AfterFunc(m.AutoDescribeDelay, func() {
			m.autoDescribe(token)
		})
	}
	m.mu.Unlock()
	m.emitState()

	fmt.Printf("[Pipeline %s] Upload complete (%d preview rows)\n", shortToken(token), len(preview.Rows))
	return nil
}

// autoDescribe fires from the settle timer; it only proceeds if the upload
// invocation is still live and the description is still the placeholder.
func (m *Manager) autoDescribe(token uint64) {
	m.mu.Lock()
	stale := m.token != token || m.desc.Description != models.PlaceholderDescription
	m.mu.Unlock()
	if stale {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := m.Generate(ctx); err != nil {
		fmt.Printf("[Pipeline %s] Auto-describe failed: %v\n", shortToken(token), err)
	}
}

func uploadRejectedMessage(err error) string {
	if apiErr, ok := backend.AsAPIError(err); ok {
		if msg := strings.TrimSpace(apiErr.Message); msg != "" {
			return msg
		}
	}
	return "The backend rejected this dataset upload"
}

// apiDetail extracts the structured detail from an API error, or falls back
// to the raw error text.
func apiDetail(err error) interface{} {
	if apiErr, ok := backend.AsAPIError(err); ok {
		if apiErr.Detail != nil {
			return apiErr.Detail
		}
		return apiErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return nil
}

func shortToken(token uint64) string {
	return fmt.Sprintf("%08x", token)
}
