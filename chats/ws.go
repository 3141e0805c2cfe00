package chats

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"nutrichat/selection"
)

var (
	conns = struct {
		sync.RWMutex
		m map[string][]*websocket.Conn
	}{m: make(map[string][]*websocket.Conn)}

	upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
)

// wsPayload is one frame pushed to the presentation layer.
type wsPayload struct {
	Type     string                  `json:"type"`
	Messages []selection.MessageView `json:"messages,omitempty"`
	Toast    *toast                  `json:"toast,omitempty"`
	Data     interface{}             `json:"data,omitempty"`
}

// toast is the undo-notice primitive: a message with an optional undoable
// item and a display duration.
type toast struct {
	Message    string `json:"message"`
	UndoItemID string `json:"undo_item_id,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// SelectionWebSocket attaches a UI connection to a session and pushes the
// current state immediately.
func SelectionWebSocket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sessionID := ps.ByName("sessionid")
	s := GetSession(sessionID)
	if s == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed for session %s: %v", sessionID, err)
		return
	}

	conns.Lock()
	conns.m[sessionID] = append(conns.m[sessionID], conn)
	conns.Unlock()

	s.pushState()

	// Reader loop only detects closure; all intents arrive over HTTP.
	go func() {
		defer dropConn(sessionID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func dropConn(sessionID string, conn *websocket.Conn) {
	conn.Close()
	conns.Lock()
	defer conns.Unlock()
	list := conns.m[sessionID]
	for i, c := range list {
		if c == conn {
			conns.m[sessionID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(conns.m[sessionID]) == 0 {
		delete(conns.m, sessionID)
	}
}

func broadcast(sessionID string, payload wsPayload) {
	conns.RLock()
	list := append([]*websocket.Conn{}, conns.m[sessionID]...)
	conns.RUnlock()
	for _, c := range list {
		if err := c.WriteJSON(payload); err != nil {
			dropConn(sessionID, c)
		}
	}
}

func (s *Session) pushState() {
	broadcast(s.ID, wsPayload{Type: "selection_state", Messages: s.Ctrl.Messages()})
}

func (s *Session) pushToast(message, undoItemID string, duration time.Duration) {
	broadcast(s.ID, wsPayload{Type: "toast", Toast: &toast{
		Message:    message,
		UndoItemID: undoItemID,
		DurationMS: duration.Milliseconds(),
	}})
}

func (s *Session) pushEvent(kind string, data interface{}) {
	broadcast(s.ID, wsPayload{Type: kind, Data: data})
}
