// Package dataset holds the client-side state machine that keeps the
// locally believed "active dataset" in sync with the backend session record.
package dataset

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dataset-attach/agent/internal/backend"
	"github.com/dataset-attach/agent/internal/classify"
	"github.com/dataset-attach/agent/internal/models"
	"github.com/dataset-attach/agent/internal/notify"
	"github.com/dataset-attach/agent/internal/record"
)

// Errors returned by manager operations. Pipeline failures additionally
// surface through the notifier with their taxonomy kind.
var (
	ErrInvalidFormat        = errors.New("unsupported file format")
	ErrNoUpload             = errors.New("no upload in progress")
	ErrUnknownSheet         = errors.New("sheet is not in the enumerated list")
	ErrNotAwaitingSheet     = errors.New("upload is not awaiting sheet confirmation")
	ErrMissingMetadata      = errors.New("name and description are required")
	ErrStaleHandle          = errors.New("file content is no longer available, select the file again")
	ErrNoMismatch           = errors.New("no mismatch pending resolution")
	ErrNeedsFileSelection   = errors.New("re-select the file to keep the custom dataset")
	ErrGenerationInProgress = errors.New("description generation in progress")
)

// Default timer durations. All overridable per-Manager for tests.
const (
	DefaultAutoDescribeDelay = 2 * time.Second
	DefaultBannerDelay       = 3 * time.Second
)

// FileHandle is the file as received from the UI: metadata plus content.
type FileHandle struct {
	Name         string
	DeclaredType string
	ModifiedAt   time.Time
	Data         []byte
}

// MismatchReason distinguishes the two reconciliation conflicts.
type MismatchReason string

const (
	// MismatchUnknownCustom: the server reports a custom dataset the agent
	// cannot identify locally (reconcile case B).
	MismatchUnknownCustom MismatchReason = "unknown_custom"
	// MismatchServerReset: the server lost the dataset the agent believes is
	// active, e.g. session expiry (reconcile case C).
	MismatchServerReset MismatchReason = "server_reset"
)

// Mismatch is a disagreement between local and server dataset state that
// needs explicit user resolution.
type Mismatch struct {
	Reason    MismatchReason `json:"reason"`
	SessionID string         `json:"sessionId"`
}

// Manager owns the single FileUpload slot and every transition on it. All
// network calls happen outside its lock; an invocation token decides whether
// a late response still applies.
type Manager struct {
	mu sync.Mutex

	client   *backend.Client
	records  *record.Store
	notifier *notify.Notifier
	rules    *classify.Rules

	sessionID string

	upload  *models.FileUpload
	content []byte
	preview *models.FilePreview
	desc    models.DatasetDescription

	// isNewDataset mirrors the flag of the upload invocation that created
	// the current FileUpload; sheet confirmation reuses it.
	isNewDataset bool
	userDesc     string // last user-authored description, reusable across uploads
	mismatch     *Mismatch

	token       uint64
	reconciling map[string]bool
	generating  bool
	// userEditedDuringGen is set when the user types while the generation
	// sentinel is up; the generation result is then discarded.
	userEditedDuringGen bool

	autoDescribeTimer *time.Timer
	autoDescribeDone  bool
	bannerTimer       *time.Timer
	successBanner     bool

	AutoDescribeDelay time.Duration
	BannerDelay       time.Duration

	events *Broadcaster
	closed bool
}

// NewManager wires the state machine to its collaborators. The notifier's
// timeout hook is claimed by the manager to clear errored uploads.
func NewManager(client *backend.Client, records *record.Store, notifier *notify.Notifier, rules *classify.Rules) *Manager {
	if rules == nil {
		rules = classify.DefaultRules()
	}
	m := &Manager{
		client:            client,
		records:           records,
		notifier:          notifier,
		rules:             rules,
		reconciling:       make(map[string]bool),
		AutoDescribeDelay: DefaultAutoDescribeDelay,
		BannerDelay:       DefaultBannerDelay,
		events:            NewBroadcaster(),
	}
	notifier.OnTimeout(m.clearErroredUpload)
	notifier.OnChange(func(n *notify.Notification) {
		m.events.Publish(Event{Type: EventNotification, Notification: n})
	})
	return m
}

// SessionID returns the session identity the manager currently tracks.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// SetSessionID records the session identity without reconciling. Used at
// startup before the first reconcile pass.
func (m *Manager) SetSessionID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionID = id
}

// IsGenerating reports whether the description generation lock is held.
func (m *Manager) IsGenerating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generating
}

// Clear discards the active upload, preview and persisted record. Refused
// while a description generation is in flight.
func (m *Manager) Clear() error {
	m.mu.Lock()
	if m.generating {
		m.mu.Unlock()
		return ErrGenerationInProgress
	}
	m.token++
	m.discardLocked()
	m.mu.Unlock()

	if err := m.records.Clear(); err != nil {
		fmt.Printf("[Dataset] Failed to clear record: %v\n", err)
	}
	m.emitState()
	return nil
}

// Close tears down timers and the event stream.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.token++
	m.stopTimersLocked()
	m.mu.Unlock()
	m.notifier.Close()
	m.events.Close()
}

// discardLocked wipes all transient upload state. Callers must hold mu and
// have already bumped the token so in-flight responses are dropped.
func (m *Manager) discardLocked() {
	m.upload = nil
	m.content = nil
	m.preview = nil
	m.desc = models.DatasetDescription{}
	m.mismatch = nil
	m.isNewDataset = false
	m.autoDescribeDone = false
	m.stopTimersLocked()
}

func (m *Manager) stopTimersLocked() {
	if m.autoDescribeTimer != nil {
		m.autoDescribeTimer.Stop()
		m.autoDescribeTimer = nil
	}
	if m.bannerTimer != nil {
		m.bannerTimer.Stop()
		m.bannerTimer = nil
	}
	m.successBanner = false
}

// clearErroredUpload runs when an error notification times out: the errored
// FileUpload and the persisted record are dropped, returning to clean idle.
func (m *Manager) clearErroredUpload() {
	m.mu.Lock()
	if m.upload == nil || m.upload.Status != models.UploadStatusError {
		m.mu.Unlock()
		return
	}
	m.token++
	m.discardLocked()
	m.mu.Unlock()

	if err := m.records.Clear(); err != nil {
		fmt.Printf("[Dataset] Failed to clear record: %v\n", err)
	}
	fmt.Printf("[Dataset] Cleared errored upload after dismiss window\n")
	m.emitState()
}

// failUpload transitions the current upload to Error and publishes the
// notification, but only if the invocation token still matches.
func (m *Manager) failUpload(token uint64, kind notify.Kind, message string, detail interface{}) {
	m.mu.Lock()
	if m.token != token {
		m.mu.Unlock()
		return
	}
	if m.upload != nil {
		m.upload.Status = models.UploadStatusError
		m.upload.ErrorMessage = message
	}
	m.mu.Unlock()

	m.notifier.Publish(kind, message, detail)
	m.emitState()
}

// current returns true and keeps going if token is still the live invocation.
func (m *Manager) current(token uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token == token
}
