package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/agentstage/broadcast"
)

// CloseInvalidSession is the close code sent for unknown session ids.
const CloseInvalidSession = websocket.ClosePolicyViolation

const pongWait = 60 * time.Second

// handleWebSocket attaches an observer to ?sessionId=. The first frame is the
// full status map; every later frame is a hub push encoded as {type,data}.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id := r.URL.Query().Get("sessionId")
	log := s.logger
	sub, err := s.engine.Subscribe(id)
	if err != nil {
		log.Debug("websocket rejected", "session_id", id, "error", err)
		s.closeWith(conn, CloseInvalidSession, "Invalid session")
		return
	}
	defer sub.Close()

	snap, err := s.engine.Snapshot(id)
	if err != nil {
		s.closeWith(conn, CloseInvalidSession, "Invalid session")
		return
	}
	if err := s.send(conn, broadcast.Message{
		Type: broadcast.TypeStatusUpdate,
		Data: broadcast.StatusSnapshot{Statuses: snap.Statuses},
	}); err != nil {
		return
	}

	log.Debug("websocket attached", "session_id", id)
	defer log.Debug("websocket detached", "session_id", id)

	// Observers never send; reading only services control frames and
	// notices the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pongWait / 2)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				s.closeWith(conn, websocket.CloseGoingAway, "Session closed")
				return
			}
			if err := s.send(conn, msg); err != nil {
				log.Debug("websocket write failed", "session_id", id, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteTimeout)); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msg broadcast.Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	return conn.WriteJSON(msg)
}

func (s *Server) closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(s.opts.WriteTimeout))
}
