// internal/ws/registry.go
package ws

import "sync"

// Registry maps each lobby id to the set of open connections subscribed to
// it. It is the fan-out primitive: broadcasts are best-effort, per-connection
// non-blocking sends that silently skip closed channels.
//
// The registry keeps its own mutex rather than sharing the GameServer's:
// register/unregister are driven by transport lifecycle, and Conn.Write can
// never block, so holding this lock during a broadcast is safe.
type Registry struct {
	mu    sync.Mutex
	conns map[string]map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[*Conn]struct{})}
}

// Register subscribes conn under lobbyID.
func (r *Registry) Register(lobbyID string, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[lobbyID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.conns[lobbyID] = set
	}
	set[conn] = struct{}{}
}

// Unregister removes conn. Safe to call for a connection that was never
// registered, and called unconditionally when a channel closes for any
// reason.
func (r *Registry) Unregister(lobbyID string, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.conns[lobbyID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.conns, lobbyID)
		}
	}
}

// hasLobby reports whether any connection is currently registered under
// lobbyID.
func (r *Registry) hasLobby(lobbyID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[lobbyID]) > 0
}

// BroadcastToLobby delivers event to every open connection registered under
// lobbyID. Delivery to a closed or backed-up peer is skipped, never raised.
func (r *Registry) BroadcastToLobby(lobbyID string, event map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conn := range r.conns[lobbyID] {
		conn.Write(event)
	}
}

// BroadcastToAll delivers event to every connection across every lobby. Used
// for catalog-wide updates.
func (r *Registry) BroadcastToAll(event map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, set := range r.conns {
		for conn := range set {
			conn.Write(event)
		}
	}
}
