package chat

import "sync"

// Role of a connected participant.
type Role string

const (
	Guest  Role = "guest"
	Member Role = "member"
	Admin  Role = "admin"
)

// AdminID is reserved for the admin role. Every other user draws an id from
// the shared counter.
const AdminID = 1

// User is the identity record of one participant of a server's chat. The
// flags are mutated only by the owning server.
type User struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	Connected bool   `json:"isConnectedToServer"`
	Joined    bool   `json:"isJoinedChat"`
	Blocked   bool   `json:"isBlocked"`
	UsedAPI   bool   `json:"isUsedAPI"`
}

// Counter is the shared id source for non-admin users. It lives for the
// process and is injected into every server so tests can scope it per run.
type Counter struct {
	mu   sync.Mutex
	next int
}

// NewCounter starts the sequence at 2, right after the reserved admin id.
func NewCounter() *Counter {
	return &Counter{next: AdminID + 1}
}

func (c *Counter) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	return id
}

func newUser(role Role, name string, counter *Counter) *User {
	user := &User{
		Name:      name,
		Role:      role,
		Connected: true,
	}
	if role == Admin {
		user.ID = AdminID
	} else {
		user.ID = counter.Next()
	}
	if user.Name == "" {
		user.Name = string(role)
	}
	return user
}
