package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleWS streams full dispatch snapshots for one ride as JSON frames.
// The current value is sent first, then every change until the ride
// reaches a terminal state or the client goes away. Browsers cannot set
// an Authorization header on a websocket, so a token query parameter is
// accepted as well.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ident, err := s.identity.FromToken(wsToken(r))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	id := mux.Vars(r)["id"]

	snap, err := s.channel.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "ride not found", http.StatusNotFound)
		return
	}
	if snap.RiderID != ident.ID {
		http.Error(w, "not your ride", http.StatusForbidden)
		return
	}

	sub, err := s.channel.Subscribe(r.Context(), id)
	if err != nil {
		http.Error(w, "subscribe failed", http.StatusBadGateway)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		return
	}
	defer conn.Close()
	defer sub.Close()

	// Reads are only used to notice the peer closing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Close()
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
			if snap.Status.Terminal() {
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(snap.Status)))
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func wsToken(r *http.Request) string {
	if raw := r.Header.Get("Authorization"); raw != "" {
		return strings.TrimPrefix(raw, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
