// chat implements a node-hosted chat service with role-gated capabilities.
// A server wraps a node identity, owns its users and chat history and hands
// each connected user a capability set filtered by role and server kind.
package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/meshwire/netsim/util"
)

var (
	ErrInvalidNodeNumber = errors.New("node number must be between 0 and 255")
	ErrUserNotFound      = errors.New("user with the given id was not found")
	ErrGuestRole         = errors.New("the guest cannot be an admin")
	ErrGuestChat         = errors.New("guests cannot leave messages in the chat")
	ErrNotPermitted      = errors.New("operation is not permitted for this user")
)

// DefaultUsageProbeDelay is the wait before a usage probe reads the user's
// api-usage flag.
const DefaultUsageProbeDelay = 60 * time.Second

// historyLimit caps Messages to the first entries in insertion order.
const historyLimit = 50

// Entry is one recorded chat message, attributed to its author.
type Entry struct {
	User    *User
	Message string
}

// ChatInfo is the payload produced by a mutating chat call. Logs carries the
// join/leave/rejection line when there is one, Message the rendered entry.
// The transport broadcasts every produced payload to all participants.
type ChatInfo struct {
	Logs    string `json:"logs,omitempty"`
	Message string `json:"message,omitempty"`
}

// Server is one chat-hosting instance bound to a node identity. Kind selects
// the public or private policy; there is no deeper hierarchy.
type Server struct {
	mu         sync.Mutex
	kind       Kind
	node       int
	name       string
	peers      []string
	users      []*User
	chat       []Entry
	counter    *Counter
	policy     policy
	clock      clock.Clock
	probeDelay time.Duration
}

// NewServer creates a chat server on the given node number.
func NewServer(kind Kind, node int, name string, counter *Counter) (*Server, error) {
	return NewServerWithClock(kind, node, name, counter, clock.New(), DefaultUsageProbeDelay)
}

// NewServerWithClock creates a server with an explicit clock and usage probe
// delay.
func NewServerWithClock(kind Kind, node int, name string, counter *Counter, clk clock.Clock, probeDelay time.Duration) (*Server, error) {
	if node < 0 || node > 255 {
		return nil, ErrInvalidNodeNumber
	}
	return &Server{
		kind:       kind,
		node:       node,
		name:       name,
		peers:      make([]string, 0),
		users:      make([]*User, 0),
		chat:       make([]Entry, 0),
		counter:    counter,
		policy:     policyFor(kind),
		clock:      clk,
		probeDelay: probeDelay,
	}, nil
}

// Kind returns the server kind.
func (s *Server) Kind() Kind {
	return s.kind
}

// Node returns the node number the server was created with.
func (s *Server) Node() int {
	return s.node
}

// GetName is part of the node-facing contract the registry depends on.
func (s *Server) GetName() string {
	return s.name
}

// Connect is part of the node-facing contract: it records a peer that linked
// to this server.
func (s *Server) Connect(peer string) {
	s.mu.Lock()
	s.peers = append(s.peers, peer)
	s.mu.Unlock()
	slog.Info("peer connected to server", "peer", peer, "server", s.name)
}

// Peers returns the names of peers that linked to this server, in link order.
func (s *Server) Peers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers := make([]string, len(s.peers))
	copy(peers, s.peers)
	return peers
}

// ConnectUser connects a participant. A name matching an existing user
// (including the "admin" and "guest" defaults) reuses that record with its
// flags and id preserved. Otherwise "admin" creates the admin, any other name
// a member, and an empty name a guest.
func (s *Server) ConnectUser(name string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		for _, user := range s.users {
			if user.Name == name {
				user.Connected = true
				slog.Info("user reconnected to server", "user", user.Name, "server", s.name)
				return user
			}
		}
	}
	var user *User
	switch {
	case name == string(Admin):
		user = newUser(Admin, "", s.counter)
	case name != "":
		user = newUser(Member, name, s.counter)
	default:
		user = newUser(Guest, "", s.counter)
	}
	s.users = append(s.users, user)
	slog.Info("user connected to server", "role", user.Role, "id", user.ID, "server", s.name)
	return user
}

// DisconnectUser clears the connected flag. The record is retained so the
// user can reconnect by name later.
func (s *Server) DisconnectUser(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.findUser(id)
	if user == nil {
		slog.Info("could not disconnect: user not found", "id", id)
		return fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	user.Connected = false
	slog.Info("user disconnected from server", "user", user.Name)
	return nil
}

// ChangeRole toggles member and admin. Guests can never become staff.
func (s *Server) ChangeRole(id int) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.findUser(id)
	if user == nil {
		slog.Info("could not change role: user not found", "id", id)
		return "", fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	if user.Role == Guest {
		slog.Info("could not change role: user is a guest", "user", user.Name)
		return "", ErrGuestRole
	}
	if user.Role == Member {
		user.Role = Admin
	} else {
		user.Role = Member
	}
	slog.Info("role changed", "user", user.Name, "role", user.Role)
	return user.Role, nil
}

// AddMessage appends a chat entry for the user. Guests are rejected without
// mutation. The first message from a user produces a joined-the-chat log line
// alongside the rendered message.
func (s *Server) AddMessage(user *User, text string) (ChatInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// the kind-specific guard short-circuits before any base chat logic
	if info, ok := s.policy.guardMessage(user); !ok {
		slog.Info("rejected chat message", "user", user.Name, "reason", info.Logs)
		return info, nil
	}
	if user.Role == Guest {
		slog.Info("rejected chat message from guest", "user", user.Name)
		return ChatInfo{}, ErrGuestChat
	}
	var info ChatInfo
	if !user.Joined {
		info.Logs = fmt.Sprintf("%s joined the chat", user.Name)
		user.Joined = true
	}
	s.chat = append(s.chat, Entry{User: user, Message: text})
	info.Message = fmt.Sprintf("%s: %s", user.Name, text)
	user.UsedAPI = true
	return info, nil
}

// LeaveChat flips the joined flag and reports the leave line. It is a no-op
// for users that never joined.
func (s *Server) LeaveChat(user *User) (ChatInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !user.Joined {
		return ChatInfo{}, false
	}
	user.Joined = false
	return ChatInfo{Logs: fmt.Sprintf("%s left the chat", user.Name)}, true
}

// Messages renders the chat history truncated to the first entries in
// insertion order, not the most recent ones.
func (s *Server) Messages(user *User) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]string, 0, historyLimit)
	for i, entry := range s.chat {
		if i >= historyLimit {
			break
		}
		history = append(history, fmt.Sprintf("%s: %s", entry.User.Name, entry.Message))
	}
	user.UsedAPI = true
	return history
}

// Users returns the server's user records in connection order.
func (s *Server) Users() []*User {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]*User, len(s.users))
	copy(users, s.users)
	return users
}

// BlockUser sets the block flag. Blocking is one-directional: there is no
// unblock and an already blocked user is left unchanged.
func (s *Server) BlockUser(id int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.findUser(id)
	if user == nil {
		slog.Info("could not block: user not found", "id", id)
		return 0, fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	if !user.Blocked {
		user.Blocked = true
		slog.Info("user blocked", "id", id)
	}
	return id, nil
}

// CheckAPIUsage schedules a single-shot probe that resolves with the user's
// api-usage flag after the configured delay.
func (s *Server) CheckAPIUsage(user *User) *util.Probe {
	return util.NewProbe(s.clock, s.probeDelay, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return user.UsedAPI
	})
}

func (s *Server) findUser(id int) *User {
	for _, user := range s.users {
		if user.ID == id {
			return user
		}
	}
	return nil
}
