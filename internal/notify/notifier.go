// Package notify surfaces pipeline failures to the UI as uniform
// notifications with auto-dismiss semantics.
package notify

import (
	"fmt"
	"sync"
	"time"
)

// Kind identifies a failure class. The class determines whether the
// notification auto-dismisses or blocks until the user corrects the input.
type Kind string

const (
	KindInvalidFormat          Kind = "invalid_format"
	KindSheetEnumerationFailed Kind = "sheet_enumeration_failed"
	KindUploadRejected         Kind = "upload_rejected"
	KindPreviewFailed          Kind = "preview_failed"
	KindGenerationFailed       Kind = "generation_failed"
	KindMissingMetadata        Kind = "missing_metadata"
	KindStaleHandle            Kind = "stale_handle"
	KindCommitFailed           Kind = "commit_failed"
)

// Blocking reports whether this kind requires explicit user correction
// instead of timing out.
func (k Kind) Blocking() bool {
	switch k {
	case KindMissingMetadata, KindStaleHandle, KindCommitFailed:
		return true
	}
	return false
}

// Notification is the uniform message/details pair shown to the user.
type Notification struct {
	Kind     Kind      `json:"kind"`
	Message  string    `json:"message"`
	Details  string    `json:"details,omitempty"`
	Blocking bool      `json:"blocking"`
	At       time.Time `json:"at"`
}

// DefaultDismissAfter is how long a recoverable notification stays up.
const DefaultDismissAfter = 5 * time.Second

// Notifier holds at most one active notification. Publishing supersedes the
// prior one and restarts the dismiss timer; blocking kinds never time out.
type Notifier struct {
	mu           sync.Mutex
	current      *Notification
	timer        *time.Timer
	dismissAfter time.Duration
	onChange     func(*Notification)
	onTimeout    func()
}

// NewNotifier creates a Notifier with the default dismiss delay.
func NewNotifier() *Notifier {
	return &Notifier{dismissAfter: DefaultDismissAfter}
}

// SetDismissAfter overrides the auto-dismiss delay. Intended for tests.
func (n *Notifier) SetDismissAfter(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dismissAfter = d
}

// OnChange registers a callback invoked with the new notification (or nil on
// dismiss). The callback runs outside the notifier lock.
func (n *Notifier) OnChange(fn func(*Notification)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onChange = fn
}

// OnTimeout registers a callback invoked when a notification auto-dismisses
// (not when it is superseded or dismissed explicitly). The pipeline uses it
// to clear residual upload state after the error window.
func (n *Notifier) OnTimeout(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onTimeout = fn
}

// Publish shows a notification, superseding any prior one. The details value
// may be a string, a structured backend error payload, or nil.
func (n *Notifier) Publish(kind Kind, message string, details interface{}) {
	note := &Notification{
		Kind:     kind,
		Message:  message,
		Details:  FlattenDetail(details),
		Blocking: kind.Blocking(),
		At:       time.Now(),
	}

	n.mu.Lock()
	n.stopTimerLocked()
	n.current = note
	if !note.Blocking {
		n.timer = time.AfterFunc(n.dismissAfter, n.expire)
	}
	cb := n.onChange
	n.mu.Unlock()

	fmt.Printf("[Notify] %s: %s\n", kind, message)
	if cb != nil {
		cb(note)
	}
}

// Dismiss clears the current notification without firing the timeout hook.
func (n *Notifier) Dismiss() {
	n.mu.Lock()
	n.stopTimerLocked()
	n.current = nil
	cb := n.onChange
	n.mu.Unlock()

	if cb != nil {
		cb(nil)
	}
}

// Current returns the active notification, or nil.
func (n *Notifier) Current() *Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return nil
	}
	cp := *n.current
	return &cp
}

// Close cancels any pending dismiss timer. Call on teardown.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopTimerLocked()
	n.current = nil
}

func (n *Notifier) expire() {
	n.mu.Lock()
	if n.current == nil {
		n.mu.Unlock()
		return
	}
	n.current = nil
	n.timer = nil
	cb := n.onChange
	timeout := n.onTimeout
	n.mu.Unlock()

	if cb != nil {
		cb(nil)
	}
	if timeout != nil {
		timeout()
	}
}

func (n *Notifier) stopTimerLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}
