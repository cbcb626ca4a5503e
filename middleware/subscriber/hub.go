package subscriber

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/meshwire/netsim/chat"
)

// Hub is the pool of live websocket sessions. Every chat payload produced by
// a mutating call is broadcast to all of them.
type Hub struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

type session struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[uuid.UUID]*session)}
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Broadcast sends the payload to every live session. Sessions that cannot
// keep up are dropped rather than allowed to stall the rest.
func (h *Hub) Broadcast(info chat.ChatInfo) {
	data, err := json.Marshal(info)
	if err != nil {
		slog.Info("could not encode chat payload", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sess := range h.sessions {
		select {
		case sess.send <- data:
		default:
			slog.Info("dropping stalled websocket session", "session", id)
			close(sess.send)
			delete(h.sessions, id)
		}
	}
}

func (h *Hub) add(conn *websocket.Conn) *session {
	sess := &session{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 16),
	}
	h.mu.Lock()
	h.sessions[sess.id] = sess
	h.mu.Unlock()
	return sess
}

func (h *Hub) drop(sess *session) {
	h.mu.Lock()
	if _, ok := h.sessions[sess.id]; ok {
		close(sess.send)
		delete(h.sessions, sess.id)
	}
	h.mu.Unlock()
	sess.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inbound is a client websocket frame: a chat message, a leave request or an
// out-of-band action notification to relay.
type inbound struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ServeWS upgrades the request and runs the session until the client goes
// away. Payloads produced by this session's frames are fanned out to every
// connected session, not just the sender.
func (s *Service) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Info("could not upgrade websocket", "error", err)
		return
	}
	sess := s.hub.add(conn)
	go sess.writePump()
	defer s.hub.drop(sess)
	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			slog.Info("websocket session closed", "session", sess.id, "error", err)
			return
		}
		if info, ok := s.dispatch(msg); ok {
			s.hub.Broadcast(info)
		}
	}
}

func (sess *session) writePump() {
	for data := range sess.send {
		if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// dispatch maps an inbound frame to a chat payload using the current server
// and session user.
func (s *Service) dispatch(msg inbound) (chat.ChatInfo, bool) {
	server, user, ok := s.session()
	if !ok || user == nil {
		slog.Info("dropping websocket frame: no connected user", "type", msg.Type)
		return chat.ChatInfo{}, false
	}
	switch msg.Type {
	case "message":
		info, err := server.AddMessage(user, msg.Value)
		if err != nil {
			slog.Info("rejected websocket message", "user", user.Name, "error", err)
			return chat.ChatInfo{}, false
		}
		return info, true
	case "leave":
		info, left := server.LeaveChat(user)
		return info, left
	case "action":
		return chat.ChatInfo{Logs: msg.Value}, true
	default:
		slog.Info("unknown websocket frame type", "type", msg.Type)
		return chat.ChatInfo{}, false
	}
}
