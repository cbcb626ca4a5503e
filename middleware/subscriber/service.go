// subscriber exposes the chat service over HTTP and fans chat payloads out to
// every connected websocket session.
package subscriber

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/meshwire/netsim/chat"
)

// Service hosts the process's current chat server and the session state of
// the connected participant. One server and one session user exist at a time;
// the websocket hub still fans payloads out to every connected socket.
type Service struct {
	mu         sync.Mutex
	counter    *chat.Counter
	clock      clock.Clock
	probeDelay time.Duration
	server     *chat.Server
	user       *chat.User
	hub        *Hub
}

// NewService creates a subscriber service. The counter is shared process-wide
// so user ids stay unique across server swaps.
func NewService(counter *chat.Counter, clk clock.Clock, probeDelay time.Duration) *Service {
	return &Service{
		counter:    counter,
		clock:      clk,
		probeDelay: probeDelay,
		hub:        NewHub(),
	}
}

// Current returns the server created by the last POST /api/servers call.
func (s *Service) Current() (*chat.Server, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server, s.server != nil
}

// CreateServer replaces the current server. Existing websocket sessions stay
// connected and receive payloads from the new server.
func (s *Service) CreateServer(kind chat.Kind, node int, name string) (*chat.Server, error) {
	server, err := chat.NewServerWithClock(kind, node, name, s.counter, s.clock, s.probeDelay)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.server = server
	s.user = nil
	s.mu.Unlock()
	slog.Info("chat server created", "kind", kind, "name", name, "node", node)
	return server, nil
}

// Router builds the chat HTTP surface.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)
	r.Methods(http.MethodPost).Path("/api/servers").HandlerFunc(s.createServer)
	r.Methods(http.MethodGet).Path("/api/users").HandlerFunc(s.getUsers)
	r.Methods(http.MethodPost).Path("/api/users").HandlerFunc(s.connectUser)
	r.Methods(http.MethodPatch).Path("/api/users").HandlerFunc(s.patchUser)
	r.Methods(http.MethodDelete).Path("/api/users").HandlerFunc(s.disconnectUser)
	r.Methods(http.MethodGet).Path("/api/chat").HandlerFunc(s.getChat)
	r.Methods(http.MethodGet).Path("/api/check").HandlerFunc(s.checkUsage)
	r.Path("/ws").HandlerFunc(s.ServeWS)
	return r
}

func logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(handler, w, r)
		slog.Info("handled", "method", r.Method, "url", r.URL, "duration", m.Duration, "status", m.Code)
	})
}

func (s *Service) createServer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ServerType string `json:"serverType"`
		NodeNumber int    `json:"nodeNumber"`
		ServerName string `json:"serverName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind := chat.Public
	if body.ServerType == string(chat.Private) {
		kind = chat.Private
	}
	server, err := s.CreateServer(kind, body.NodeNumber, body.ServerName)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, map[string]string{"serverName": server.GetName()})
}

func (s *Service) getUsers(w http.ResponseWriter, r *http.Request) {
	server, _, ok := s.session()
	if !ok {
		http.Error(w, "no server created", http.StatusNotFound)
		return
	}
	writeJSON(w, server.Users())
}

func (s *Service) connectUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		http.Error(w, "no server created", http.StatusNotFound)
		return
	}
	user := server.ConnectUser(body.Login)
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	api := server.UserAPI(user)
	writeJSON(w, struct {
		*chat.User
		API map[string]bool `json:"api"`
	}{User: user, API: api.Flags()})
}

func (s *Service) patchUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"`
		UserID int    `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	server, _, ok := s.session()
	if !ok {
		http.Error(w, "no server created", http.StatusNotFound)
		return
	}
	switch body.Action {
	case "changeRole":
		role, err := server.ChangeRole(body.UserID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, role)
	case "blockUser":
		if server.Kind() != chat.Private {
			writeError(w, http.StatusForbidden, chat.ErrNotPermitted)
			return
		}
		id, err := server.BlockUser(body.UserID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, id)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func (s *Service) disconnectUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	server, _, ok := s.session()
	if !ok {
		http.Error(w, "no server created", http.StatusNotFound)
		return
	}
	if err := server.DisconnectUser(body.ID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Service) getChat(w http.ResponseWriter, r *http.Request) {
	server, user, ok := s.session()
	if !ok || user == nil {
		http.Error(w, "no connected user", http.StatusNotFound)
		return
	}
	writeJSON(w, server.Messages(user))
}

// checkUsage awaits the deferred usage probe for the connected user. A client
// that goes away cancels the probe.
func (s *Service) checkUsage(w http.ResponseWriter, r *http.Request) {
	server, user, ok := s.session()
	if !ok || user == nil {
		http.Error(w, "no connected user", http.StatusNotFound)
		return
	}
	probe := server.CheckAPIUsage(user)
	select {
	case used, fired := <-probe.Result():
		if !fired {
			return
		}
		writeJSON(w, used)
	case <-r.Context().Done():
		probe.Cancel()
	}
}

func (s *Service) session() (*chat.Server, *chat.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server, s.user, s.server != nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrGuestRole), errors.Is(err, chat.ErrGuestChat),
		errors.Is(err, chat.ErrNotPermitted):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		slog.Info("could not encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
