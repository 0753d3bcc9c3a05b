// Package session implements the session registry described in §4.5 and
// §3 of the design: a concurrent map of session-id to (metadata, shared
// Handle), with a secondary agent-id index maintained atomically with the
// primary map.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahmetk3436/sshmcp/internal/sshclient"
)

// ErrNotFound is returned when a lookup, removal, or handle-exclusive
// operation names a session-id that is not (or is no longer) present.
var ErrNotFound = errors.New("session not found")

// Info is the metadata half of a session record, per §3's Session
// attributes. It is immutable except for LastHealthCheck/Healthy, which
// are refreshed from the underlying Handle on read, LastActivity, which
// Touch updates as the session is used, and ConnectedAt/RetryAttempts,
// which ReplaceHandle refreshes on reconnect.
type Info struct {
	ID              string
	Name            string
	AgentID         string
	Host            string
	Username        string
	ConnectedAt     time.Time
	DefaultTimeout  time.Duration
	RetryAttempts   int
	Compression     bool
	Persistent      bool
	LastActivity    time.Time
	LastHealthCheck time.Time
	Healthy         bool
}

// entry is the internal registry record: metadata plus the shared handle.
type entry struct {
	info   Info
	handle *sshclient.Handle
}

// Registry is the concurrent session-id -> entry map plus the agent-id
// secondary index. All mutating operations update both maps under a
// single lock so that a reader observing the secondary index and then
// looking up the primary map always sees either both updates or neither,
// per §9's read-your-writes consistency class.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	agentIdx map[string]map[string]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		agentIdx: make(map[string]map[string]struct{}),
	}
}

// NewID generates a fresh session-id (UUIDv4, per §3).
func NewID() string {
	return uuid.NewString()
}

// Insert adds a new session record. id must not already exist.
func (r *Registry) Insert(id string, info Info, handle *sshclient.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return fmt.Errorf("session %s already registered", id)
	}
	info.ID = id
	if info.LastActivity.IsZero() {
		info.LastActivity = info.ConnectedAt
	}
	r.sessions[id] = &entry{info: info, handle: handle}

	if info.AgentID != "" {
		set, ok := r.agentIdx[info.AgentID]
		if !ok {
			set = make(map[string]struct{})
			r.agentIdx[info.AgentID] = set
		}
		set[id] = struct{}{}
	}
	return nil
}

// Get returns a read-only snapshot of the session's info and its shared
// handle. The handle's health fields are refreshed from the live Handle
// before the snapshot is taken.
func (r *Registry) Get(id string) (Info, *sshclient.Handle, error) {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return Info{}, nil, ErrNotFound
	}
	info := e.info
	if e.handle != nil {
		info.LastHealthCheck, info.Healthy = e.handle.Health()
	}
	return info, e.handle, nil
}

// Remove deletes the session from the primary map and the agent index
// atomically, returning the removed entry's info and handle so the
// caller can perform teardown (cancel commands, close shells, issue the
// graceful protocol disconnect).
func (r *Registry) Remove(id string) (Info, *sshclient.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return Info{}, nil, ErrNotFound
	}
	delete(r.sessions, id)
	if e.info.AgentID != "" {
		if set, ok := r.agentIdx[e.info.AgentID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.agentIdx, e.info.AgentID)
			}
		}
	}
	return e.info, e.handle, nil
}

// List returns a stable snapshot of sessions, optionally filtered by
// agent-id. Ordering is unspecified.
func (r *Registry) List(agentID string) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids map[string]struct{}
	if agentID != "" {
		ids = r.agentIdx[agentID]
	}

	out := make([]Info, 0, len(r.sessions))
	for id, e := range r.sessions {
		if ids != nil {
			if _, ok := ids[id]; !ok {
				continue
			}
		}
		info := e.info
		if e.handle != nil {
			info.LastHealthCheck, info.Healthy = e.handle.Health()
		}
		out = append(out, info)
	}
	return out
}

// AgentSessions returns all session-ids associated with agentID.
func (r *Registry) AgentSessions(agentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.agentIdx[agentID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// ReplaceHandle swaps id's live handle and connection-derived metadata
// in place, for the "reconnect an unhealthy session" resolution of the
// ssh_connect(session_id=...) Open Question (see DESIGN.md): the session
// keeps its id, agent-id and name, but gets a freshly dialed transport.
// The old handle is disconnected gracefully after the swap.
func (r *Registry) ReplaceHandle(id string, handle *sshclient.Handle, retryAttempts int) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	old := e.handle
	e.handle = handle
	e.info.ConnectedAt = time.Now()
	e.info.LastActivity = e.info.ConnectedAt
	e.info.RetryAttempts = retryAttempts
	r.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}
	return nil
}

// Exists reports whether id names a currently-registered session,
// without allocating a snapshot.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Touch records id as active as of now. Every operation that uses an
// established session (execute, forward, shell open/read/write) calls
// this so the inactivity reaper can tell a genuinely idle session from a
// busy one. Touching an unknown id is a silent no-op: callers that reach
// this point have already resolved id via Get, so the only race is a
// concurrent Remove, which the reaper itself should simply skip.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		e.info.LastActivity = time.Now()
	}
}

// IdleNonPersistent returns the ids of every non-persistent session whose
// last activity is older than timeout, for the inactivity reaper.
func (r *Registry) IdleNonPersistent(timeout time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := time.Now().Add(-timeout)
	var ids []string
	for id, e := range r.sessions {
		if e.info.Persistent {
			continue
		}
		if e.info.LastActivity.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}
