package station

import (
	"sort"
	"sync"
)

// Registry maps station ids to their live session. At most one session per id is
// registered at any time.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register makes s the current session for its station and returns the session it
// replaced, if any. The caller is responsible for closing the replaced session.
func (r *Registry) Register(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[s.id]
	r.sessions[s.id] = s
	if prev == s {
		return nil
	}
	return prev
}

// Unregister removes s if it is still the current session for id and reports whether
// it was.
func (r *Registry) Unregister(id string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[id]; ok && cur == s {
		delete(r.sessions, id)
		return true
	}
	return false
}

// Lookup returns the current session for id.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns a summary of every registered session ordered by station id.
func (r *Registry) Snapshot() []Summary {
	out := make([]Summary, 0)
	for _, s := range r.sessionsSorted() {
		out = append(out, s.Summary())
	}
	return out
}

// CloseAll closes every registered session with reason and waits for their teardown.
func (r *Registry) CloseAll(reason CloseReason) {
	sessions := r.sessionsSorted()
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close(reason)
		}(s)
	}
	wg.Wait()
}

func (r *Registry) sessionsSorted() []*Session {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].id < sessions[j].id })
	return sessions
}
