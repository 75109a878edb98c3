package relay

import (
	"sync"

	"github.com/google/uuid"
)

// Role identifies which side of a pairing a connection plays.
type Role string

const (
	RoleUnassigned Role = "unassigned"
	RoleDesktop    Role = "desktop"
	RoleMobile     Role = "mobile"
)

// Sender delivers one encoded message to a peer. Implementations must be
// best-effort and non-blocking: if the transport is closed or congested the
// message is silently dropped, and the protocol continues.
type Sender interface {
	Send(data []byte)
}

// Connection is a live relay connection. It is owned exclusively by the
// Registry; pairing sessions reference connections by id only.
type Connection struct {
	id     string
	sender Sender

	mu        sync.RWMutex
	role      Role
	sessionID string
}

// ID returns the connection's opaque identity.
func (c *Connection) ID() string {
	return c.id
}

// Role returns the connection's current pairing role.
func (c *Connection) Role() Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// SessionID returns the id of the session this connection is bound to,
// or "" when unbound.
func (c *Connection) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// bind assigns the connection to a session slot.
func (c *Connection) bind(role Role, sessionID string) {
	c.mu.Lock()
	c.role = role
	c.sessionID = sessionID
	c.mu.Unlock()
}

// Send delivers a message to the connection's transport, best-effort.
func (c *Connection) Send(data []byte) {
	c.sender.Send(data)
}

// Registry tracks every open relay connection and assigns each an opaque
// identity. It owns connections; removal is idempotent.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
	}
}

// Register adds a transport to the registry and returns its Connection
// with a freshly generated id. No two live connections share an id.
func (r *Registry) Register(sender Sender) *Connection {
	conn := &Connection{
		id:     uuid.NewString(),
		sender: sender,
		role:   RoleUnassigned,
	}

	r.mu.Lock()
	r.connections[conn.id] = conn
	r.mu.Unlock()

	return conn
}

// Lookup returns the connection with the given id, if present.
func (r *Registry) Lookup(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[id]
	return conn, ok
}

// Remove deletes a connection from the registry. Removing an unknown id
// is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.connections, id)
	r.mu.Unlock()
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
