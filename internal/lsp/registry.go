package lsp

import "sync"

// Registry tracks live server connections. There is normally exactly
// one envlens connection, but externally managed hosts may register
// several clients and the gateway discovers ours by accepted name.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Add registers a connection under its own ID.
func (r *Registry) Add(conn Conn) {
	r.mu.Lock()
	r.conns[conn.ID()] = conn
	r.mu.Unlock()
}

// Remove drops a connection by ID.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// ByID returns the live connection with the given ID, or nil. Dead
// connections are treated as absent.
func (r *Registry) ByID(id string) Conn {
	if id == "" {
		return nil
	}
	r.mu.RLock()
	conn := r.conns[id]
	r.mu.RUnlock()
	if conn == nil || !conn.Alive() {
		return nil
	}
	return conn
}

// ByName scans live connections for one registered under any of the
// given names, in name preference order.
func (r *Registry) ByName(names []string) Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		for _, conn := range r.conns {
			if conn.Name() == name && conn.Alive() {
				return conn
			}
		}
	}
	return nil
}

// All returns every registered connection, live or not.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	return out
}
