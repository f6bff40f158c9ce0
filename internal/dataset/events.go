package dataset

import (
	"sync"

	"github.com/dataset-attach/agent/internal/models"
	"github.com/dataset-attach/agent/internal/notify"
)

// Event types pushed to the UI.
const (
	EventState        = "state"
	EventMismatch     = "mismatch"
	EventNotification = "notification"
	EventBanner       = "banner"
)

// Event is one discrete state-machine occurrence. Exactly one payload field
// is set, matching Type.
type Event struct {
	Type         string               `json:"type"`
	State        *Snapshot            `json:"state,omitempty"`
	Mismatch     *Mismatch            `json:"mismatch,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
	Banner       *bool                `json:"banner,omitempty"`
}

// Snapshot is the full UI-facing view of the state machine.
type Snapshot struct {
	SessionID     string                    `json:"sessionId"`
	Upload        *models.FileUpload        `json:"upload,omitempty"`
	Preview       *models.FilePreview       `json:"preview,omitempty"`
	Description   models.DatasetDescription `json:"description"`
	Generating    bool                      `json:"generating"`
	Mismatch      *Mismatch                 `json:"mismatch,omitempty"`
	Notification  *notify.Notification      `json:"notification,omitempty"`
	SuccessBanner bool                      `json:"successBanner"`
}

// State returns a consistent snapshot of the machine.
func (m *Manager) State() *Snapshot {
	m.mu.Lock()
	snap := &Snapshot{
		SessionID:     m.sessionID,
		Upload:        m.upload.Clone(),
		Preview:       m.preview,
		Description:   m.desc,
		Generating:    m.generating,
		Mismatch:      m.mismatch,
		SuccessBanner: m.successBanner,
	}
	m.mu.Unlock()

	snap.Notification = m.notifier.Current()
	return snap
}

// Events exposes the manager's event stream.
func (m *Manager) Events() *Broadcaster {
	return m.events
}

func (m *Manager) emitState() {
	m.events.Publish(Event{Type: EventState, State: m.State()})
}

func (m *Manager) emitMismatch(mm *Mismatch) {
	m.events.Publish(Event{Type: EventMismatch, Mismatch: mm})
}

func (m *Manager) emitBanner(on bool) {
	m.events.Publish(Event{Type: EventBanner, Banner: &on})
}

// Broadcaster fans events out to any number of subscribers. Slow consumers
// drop events rather than stall the state machine.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe returns a buffered event channel and a cancel function. The
// channel is closed on cancel or broadcaster close.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan Event, 32)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
