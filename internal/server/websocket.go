package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow same-origin requests only
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // No origin header (e.g., non-browser clients)
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	},
}

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type resizeMsg struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// handleSessionWS streams a capture session: first the buffered snapshot
// (so a late attacher sees the recent history), then live output chunks.
// Incoming messages carry input for the captured process or resizes.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sess := s.captures.Get(chi.URLParam(r, "key"))
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	subID, snapshot, outCh := sess.Subscribe()
	defer sess.Unsubscribe(subID)

	if len(snapshot) > 0 {
		if err := conn.WriteMessage(websocket.BinaryMessage, snapshot); err != nil {
			return
		}
	}

	// Read pump: client input and resize requests.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch msgType {
			case websocket.BinaryMessage:
				if _, err := sess.Write(data); err != nil {
					return
				}
			case websocket.TextMessage:
				var msg wsMessage
				if err := json.Unmarshal(data, &msg); err != nil {
					continue
				}
				if msg.Type == "resize" {
					var rs resizeMsg
					if err := json.Unmarshal(msg.Data, &rs); err != nil {
						continue
					}
					if rs.Rows > 0 && rs.Cols > 0 {
						sess.Resize(rs.Rows, rs.Cols)
					}
				}
			}
		}
	}()

	// Write pump: live output until the session or client goes away.
	for {
		select {
		case chunk, ok := <-outCh:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
