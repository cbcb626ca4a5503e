package chat

import "github.com/meshwire/netsim/util"

// Operation names one invocable server operation. The capability set built
// from these is the access-control mechanism: the guards inside the server
// methods are defense in depth, not the primary gate.
type Operation string

const (
	OpChangeRole   Operation = "changeRole"
	OpAddMessage   Operation = "addMessage"
	OpLeaveChat    Operation = "leaveChat"
	OpShowMessages Operation = "showMessages"
	OpDisconnect   Operation = "disconnectFromServer"
	OpGetUsers     Operation = "getUsers"
	OpCheckUsage   Operation = "checkApiUsage"
	OpBlockUser    Operation = "blockUser"
)

// operationOrder is the canonical listing order for capability sets.
var operationOrder = []Operation{
	OpChangeRole,
	OpAddMessage,
	OpLeaveChat,
	OpShowMessages,
	OpDisconnect,
	OpGetUsers,
	OpCheckUsage,
	OpBlockUser,
}

// UserAPI is the role-filtered view of a server handed to one user. Every
// delegated call is gated on the grant table for the user's role.
type UserAPI struct {
	server *Server
	user   *User
	ops    map[Operation]bool
}

// UserAPI builds the capability set available to the user on this server.
func (s *Server) UserAPI(user *User) *UserAPI {
	granted := s.policy.grants(user.Role)
	ops := make(map[Operation]bool, len(granted))
	for _, op := range granted {
		ops[op] = true
	}
	return &UserAPI{server: s, user: user, ops: ops}
}

// Can reports whether the operation is present in the capability set.
func (a *UserAPI) Can(op Operation) bool {
	return a.ops[op]
}

// Operations returns the granted operations in canonical order.
func (a *UserAPI) Operations() []Operation {
	granted := make([]Operation, 0, len(a.ops))
	for _, op := range operationOrder {
		if a.ops[op] {
			granted = append(granted, op)
		}
	}
	return granted
}

// Flags returns the capability set as boolean flags, the shape the transport
// serializes for clients.
func (a *UserAPI) Flags() map[string]bool {
	flags := make(map[string]bool, len(a.ops))
	for op := range a.ops {
		flags[string(op)] = true
	}
	return flags
}

func (a *UserAPI) ChangeRole(id int) (Role, error) {
	if !a.ops[OpChangeRole] {
		return "", ErrNotPermitted
	}
	return a.server.ChangeRole(id)
}

func (a *UserAPI) AddMessage(text string) (ChatInfo, error) {
	if !a.ops[OpAddMessage] {
		return ChatInfo{}, ErrNotPermitted
	}
	return a.server.AddMessage(a.user, text)
}

func (a *UserAPI) LeaveChat() (ChatInfo, bool) {
	if !a.ops[OpLeaveChat] {
		return ChatInfo{}, false
	}
	return a.server.LeaveChat(a.user)
}

func (a *UserAPI) ShowMessages() ([]string, error) {
	if !a.ops[OpShowMessages] {
		return nil, ErrNotPermitted
	}
	return a.server.Messages(a.user), nil
}

func (a *UserAPI) Disconnect() error {
	if !a.ops[OpDisconnect] {
		return ErrNotPermitted
	}
	return a.server.DisconnectUser(a.user.ID)
}

func (a *UserAPI) Users() ([]*User, error) {
	if !a.ops[OpGetUsers] {
		return nil, ErrNotPermitted
	}
	return a.server.Users(), nil
}

func (a *UserAPI) CheckUsage() (*util.Probe, error) {
	if !a.ops[OpCheckUsage] {
		return nil, ErrNotPermitted
	}
	return a.server.CheckAPIUsage(a.user), nil
}

func (a *UserAPI) BlockUser(id int) (int, error) {
	if !a.ops[OpBlockUser] {
		return 0, ErrNotPermitted
	}
	return a.server.BlockUser(id)
}
