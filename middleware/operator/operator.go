// operator exposes the network registry over HTTP: node registration,
// one-hop linking, listing and the deferred connection check.
package operator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/meshwire/netsim/chat"
	"github.com/meshwire/netsim/network"
)

// ServerSource yields the chat server the operator registers with the network.
type ServerSource interface {
	Current() (*chat.Server, bool)
}

// Service routes registry operations to one Network. It remembers the last
// node it registered so the connection check has something to observe.
type Service struct {
	mu      sync.Mutex
	network *network.Network
	source  ServerSource
	node    *network.Node
}

func NewService(net *network.Network, source ServerSource) *Service {
	return &Service{network: net, source: source}
}

// Router builds the registry HTTP surface.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(cors)
	r.Use(logRequests)
	r.Methods(http.MethodGet).Path("/api/network").HandlerFunc(s.namedNodes)
	r.Methods(http.MethodPost).Path("/api/network").HandlerFunc(s.connectNode)
	r.Methods(http.MethodPatch).Path("/api/network").HandlerFunc(s.linkNodes)
	r.Methods(http.MethodDelete).Path("/api/network").HandlerFunc(s.disableNode)
	r.Methods(http.MethodGet).Path("/api/connection").HandlerFunc(s.checkConnection)
	return r
}

func cors(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, PUT, PATCH, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "X-Requested-With,content-type")
		handler.ServeHTTP(w, r)
	})
}

func logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(handler, w, r)
		slog.Info("handled", "method", r.Method, "url", r.URL, "duration", m.Duration, "status", m.Code)
	})
}

func (s *Service) namedNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.network.NamedNodes())
}

// connectNode registers the subscriber's current server with the network.
// Conflicts surface as 409, an invalid node number as 422.
func (s *Service) connectNode(w http.ResponseWriter, r *http.Request) {
	server, ok := s.source.Current()
	if !ok {
		http.Error(w, "no server created", http.StatusNotFound)
		return
	}
	node, err := s.network.ConnectNode(server.Node(), server)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, network.ErrInvalidNodeNumber) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}
	s.mu.Lock()
	s.node = node
	s.mu.Unlock()
	writeJSON(w, map[string]string{"nodeAddress": node.Address})
}

func (s *Service) linkNodes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Source string `json:"source"`
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.network.LinkNodes(body.Source, body.Target); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Service) disableNode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ServerName string `json:"serverName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.network.DisableNode(body.ServerName)
	w.WriteHeader(http.StatusOK)
}

// checkConnection awaits the deferred link probe of the last registered node.
func (s *Service) checkConnection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	node := s.node
	s.mu.Unlock()
	if node == nil {
		http.Error(w, "no node registered", http.StatusNotFound)
		return
	}
	probe := s.network.CheckConnection(node)
	select {
	case linked, fired := <-probe.Result():
		if !fired {
			return
		}
		writeJSON(w, linked)
	case <-r.Context().Done():
		probe.Cancel()
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
