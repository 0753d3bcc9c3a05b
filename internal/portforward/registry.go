package portforward

import "sync"

// Registry tracks forwarders by owning session, so session teardown can
// close them; per §5's cancellation semantics forwarders are otherwise
// left to terminate naturally on their next accept error.
type Registry struct {
	mu        sync.Mutex
	bySession map[string][]*Forwarder
}

// NewRegistry constructs an empty forwarder registry.
func NewRegistry() *Registry {
	return &Registry{bySession: make(map[string][]*Forwarder)}
}

// Track registers f as owned by sessionID.
func (r *Registry) Track(sessionID string, f *Forwarder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySession[sessionID] = append(r.bySession[sessionID], f)
}

// RemoveSession closes every forwarder owned by sessionID and forgets
// them.
func (r *Registry) RemoveSession(sessionID string) int {
	r.mu.Lock()
	forwarders := r.bySession[sessionID]
	delete(r.bySession, sessionID)
	r.mu.Unlock()

	for _, f := range forwarders {
		f.Close()
	}
	return len(forwarders)
}
