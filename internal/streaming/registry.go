package streaming

import "sync"

type Key struct {
	ConnID    string
	SessionID string
}

// NewKey scopes a session id to its connection. An empty session id means
// one bridge per connection.
func NewKey(connID, sessionID string) Key {
	if sessionID == "" {
		sessionID = connID
	}
	return Key{ConnID: connID, SessionID: sessionID}
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[Key]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[Key]*Session),
	}
}

// Register stores s under its key and returns the session it replaced, if any.
func (r *Registry) Register(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.sessions[s.key]
	r.sessions[s.key] = s
	return prev
}

func (r *Registry) Lookup(key Key) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[key]
}

// Remove deletes the entry for key only while it still points at s.
func (r *Registry) Remove(key Key, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[key]; ok && cur == s {
		delete(r.sessions, key)
		return true
	}
	return false
}

func (r *Registry) RemoveConnection(connID string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*Session
	for key, s := range r.sessions {
		if key.ConnID == connID {
			removed = append(removed, s)
			delete(r.sessions, key)
		}
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
