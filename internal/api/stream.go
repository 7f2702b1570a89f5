package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vigil/backend/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The backend only ever serves the local desktop shell.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// handleEventStream upgrades to WebSocket and relays bus events. An
// optional ?session_id= filters to one session. All writes go through
// the single pump loop, so ping and event frames never race.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	sessionFilter := r.URL.Query().Get("session_id")
	ch := s.bus.Subscribe(
		events.TypeTransition,
		events.TypeDegraded,
		events.TypeStarted,
		events.TypeStopped,
	)

	go s.streamPump(conn, ch, sessionFilter)

	// Reader loop: we ignore client frames but need it for close detection.
	go func() {
		defer s.bus.Unsubscribe(ch)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) streamPump(conn *websocket.Conn, ch chan *events.Event, sessionFilter string) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if sessionFilter != "" && ev.SessionID != sessionFilter {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
