package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/dataset-attach/agent/internal/dataset"
)

// WebSocket message types for the event push protocol
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypePong         = "pong"
	MsgTypeState        = "state"
	MsgTypeMismatch     = "mismatch"
	MsgTypeNotification = "notification"
	MsgTypeBanner       = "banner"
)

// WSMessage is the envelope for all WebSocket traffic.
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocketHandler pushes state-machine events to connected UIs.
type WebSocketHandler struct {
	manager  *dataset.Manager
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket event handler
func NewWebSocketHandler(manager *dataset.Manager) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The agent binds to loopback; the UI dev server origin varies
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

// wsConn serializes writes; the pong path and the event loop write from
// different goroutines.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

// HandleWebSocket upgrades the connection and streams events until the
// client disconnects.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	conn, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	ws := &wsConn{conn: conn}

	fmt.Println("[WebSocket] UI connected for events")

	events, cancel := wsh.manager.Events().Subscribe()
	defer cancel()

	// The current snapshot goes out first so a reconnecting UI never waits
	// for the next transition.
	wsh.sendEvent(ws, dataset.Event{Type: dataset.EventState, State: wsh.manager.State()})

	// Reader goroutine: answers pings and signals disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					fmt.Printf("[WebSocket] Connection error: %v\n", err)
				}
				return
			}
			if msg.Type == MsgTypePing {
				wsh.sendMessage(ws, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
			}
		}
	}()

	for {
		select {
		case <-done:
			fmt.Println("[WebSocket] UI disconnected")
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			wsh.sendEvent(ws, ev)
		}
	}
}

func (wsh *WebSocketHandler) sendEvent(ws *wsConn, ev dataset.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	wsh.sendMessage(ws, WSMessage{
		Type:      ev.Type,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (wsh *WebSocketHandler) sendMessage(ws *wsConn, msg WSMessage) {
	if err := ws.writeJSON(msg); err != nil {
		fmt.Printf("[WebSocket] Failed to send message: %v\n", err)
	}
}
