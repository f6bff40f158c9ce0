package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/dataset-attach/agent/internal/models"
)

// Reconcile compares the backend's authoritative dataset state for a
// session against the local record and in-memory upload, restoring state or
// raising a mismatch. Invoked on every session-identity change and on
// external credits/subscription signals; a pass already running for the
// same session suppresses re-entry.
func (m *Manager) Reconcile(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	if m.reconciling[sessionID] {
		m.mu.Unlock()
		fmt.Printf("[Reconcile] Pass already running for session %s, skipping\n", shortSession(sessionID))
		return nil
	}
	m.reconciling[sessionID] = true
	m.sessionID = sessionID
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.reconciling, sessionID)
		m.mu.Unlock()
	}()

	info, err := m.client.SessionInfo(ctx, sessionID)
	if err != nil {
		fmt.Printf("[Reconcile] Session info fetch failed for %s: %v\n", shortSession(sessionID), err)
		return err
	}

	// The record slot is read exactly once per pass.
	rec, err := m.records.Load()
	if err != nil {
		fmt.Printf("[Reconcile] Record load failed: %v\n", err)
		rec = nil
	}

	switch {
	case info.IsCustomDataset && recordMatches(rec, info):
		return m.restoreFromRecord(ctx, sessionID, rec, info)
	case info.IsCustomDataset:
		m.flagUnknownCustom(sessionID, info)
		return nil
	default:
		return m.reconcileNotCustom(sessionID, rec)
	}
}

// recordMatches decides whether the local record plausibly identifies the
// server's custom dataset. The server only exposes the dataset name, so a
// record matches when the server name is empty or equals the recorded file
// name (with or without its extension).
func recordMatches(rec *models.LocalDatasetRecord, info *models.SessionInfo) bool {
	if rec == nil {
		return false
	}
	serverName := strings.TrimSpace(info.DatasetName)
	if serverName == "" {
		return true
	}
	recName := strings.TrimSpace(rec.Name)
	if strings.EqualFold(serverName, recName) {
		return true
	}
	if i := strings.LastIndex(recName, "."); i > 0 {
		return strings.EqualFold(serverName, recName[:i])
	}
	return false
}

// restoreFromRecord rebuilds a Success upload from the persisted metadata
// (case A). The binary content is not persisted, so the restored handle is a
// placeholder; a background preview re-fetch fills the table in when it can.
func (m *Manager) restoreFromRecord(ctx context.Context, sessionID string, rec *models.LocalDatasetRecord, info *models.SessionInfo) error {
	m.mu.Lock()
	m.token++
	token := m.token
	m.stopTimersLocked()
	m.upload = &models.FileUpload{
		Name:          rec.Name,
		DeclaredType:  rec.DeclaredType,
		ModifiedAt:    rec.ModifiedAt,
		Status:        models.UploadStatusSuccess,
		IsSpreadsheet: rec.IsSpreadsheet,
		SelectedSheet: rec.SelectedSheet,
		Placeholder:   true,
	}
	m.content = nil
	m.preview = nil
	m.mismatch = nil
	m.desc = models.DatasetDescription{
		Name:        firstNonEmpty(info.DatasetName, rec.Name),
		Description: info.DatasetDescription,
	}
	m.mu.Unlock()
	m.emitState()

	fmt.Printf("[Reconcile] Restored %s from local record for session %s\n", rec.Name, shortSession(sessionID))

	// Re-fetch the live preview opportunistically. Failure must not revert
	// the restored Success status.
	preview, err := m.client.PreviewCSV(ctx, sessionID)
	if err != nil {
		fmt.Printf("[Reconcile] Background preview re-fetch failed: %v\n", err)
		return nil
	}

	m.mu.Lock()
	if m.token == token {
		m.preview = preview
	}
	m.mu.Unlock()
	m.emitState()
	return nil
}

// flagUnknownCustom synthesizes a display-only entry for a custom dataset
// the agent cannot identify, and raises a mismatch (case B).
func (m *Manager) flagUnknownCustom(sessionID string, info *models.SessionInfo) {
	name := firstNonEmpty(info.DatasetName, "Custom dataset")

	m.mu.Lock()
	m.token++
	m.stopTimersLocked()
	m.upload = &models.FileUpload{
		Name:        name,
		Status:      models.UploadStatusSuccess,
		Placeholder: true,
	}
	m.content = nil
	m.preview = nil
	m.desc = models.DatasetDescription{Name: name, Description: info.DatasetDescription}
	mm := &Mismatch{Reason: MismatchUnknownCustom, SessionID: sessionID}
	m.mismatch = mm
	m.mu.Unlock()

	fmt.Printf("[Reconcile] Server has a custom dataset unknown to this client (session %s)\n", shortSession(sessionID))
	m.emitState()
	m.emitMismatch(mm)
}

// reconcileNotCustom handles cases C and D: the server says no custom
// dataset is active.
func (m *Manager) reconcileNotCustom(sessionID string, rec *models.LocalDatasetRecord) error {
	m.mu.Lock()
	uploadShowsSuccess := m.upload != nil && m.upload.Status == models.UploadStatusSuccess
	if uploadShowsSuccess {
		// Case C: server-side reset while the client believes an upload is
		// active. Keep local state frozen until the user resolves.
		mm := &Mismatch{Reason: MismatchServerReset, SessionID: sessionID}
		m.mismatch = mm
		m.mu.Unlock()

		fmt.Printf("[Reconcile] Server reports no custom dataset but local state shows one (session %s)\n", shortSession(sessionID))
		m.emitState()
		m.emitMismatch(mm)
		return nil
	}
	m.mu.Unlock()

	// Case D: steady state; drop any residual record.
	if rec != nil {
		if err := m.records.Clear(); err != nil {
			fmt.Printf("[Reconcile] Failed to clear residual record: %v\n", err)
		} else {
			fmt.Printf("[Reconcile] Cleared residual local record for session %s\n", shortSession(sessionID))
		}
	}
	return nil
}

// Resolve settles a pending mismatch. keepCustom re-establishes the custom
// dataset when real file content is still held; with only a placeholder the
// user is sent back through file selection. Declining falls back to the
// default dataset and clears the record.
func (m *Manager) Resolve(ctx context.Context, keepCustom bool) error {
	m.mu.Lock()
	if m.mismatch == nil {
		m.mu.Unlock()
		return ErrNoMismatch
	}
	m.mismatch = nil

	if !keepCustom {
		m.token++
		m.discardLocked()
		m.mu.Unlock()
		m.emitState()

		if err := m.records.Clear(); err != nil {
			fmt.Printf("[Resolve] Failed to clear record: %v\n", err)
		}
		return m.LoadDefaultSilently(ctx)
	}

	if len(m.content) == 0 {
		// Only a ghost handle remains; force re-selection.
		m.token++
		m.discardLocked()
		m.mu.Unlock()
		m.emitState()
		return ErrNeedsFileSelection
	}

	// A real handle is available: re-run the preview step to confirm the
	// dataset is live again.
	token := m.token
	sessionID := m.sessionID
	m.mu.Unlock()

	preview, err := m.client.PreviewCSV(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("re-running preview: %w", err)
	}

	m.mu.Lock()
	if m.token == token && m.upload != nil {
		m.preview = preview
		m.upload.Status = models.UploadStatusSuccess
	}
	m.mu.Unlock()
	m.emitState()
	return nil
}

// Mismatch returns the pending mismatch, or nil.
func (m *Manager) Mismatch() *Mismatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mismatch
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func shortSession(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
