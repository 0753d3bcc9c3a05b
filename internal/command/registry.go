package command

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a command-id is not present in the registry.
var ErrNotFound = errors.New("command not found")

// DefaultMaxPerSession is the per-session concurrent-command cap chosen
// per §4.6 (the spec permits 10..100; 100 is picked here as the least
// restrictive choice within range).
const DefaultMaxPerSession = 100

// ErrCapacityExceeded is returned by Registry.Create when a session
// already has the registry's per-session cap of running commands.
type ErrCapacityExceeded struct {
	Max int
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("Maximum concurrent commands (%d) reached for session", e.Max)
}

// Registry is the concurrent command-id -> Command map with a session-id
// secondary index, per §4.6.
type Registry struct {
	mu            sync.RWMutex
	commands      map[string]*Command
	bySession     map[string]map[string]struct{}
	maxPerSession int
}

// NewRegistry constructs an empty registry with the given per-session
// concurrency cap (use DefaultMaxPerSession when unsure).
func NewRegistry(maxPerSession int) *Registry {
	if maxPerSession <= 0 {
		maxPerSession = DefaultMaxPerSession
	}
	return &Registry{
		commands:      make(map[string]*Command),
		bySession:     make(map[string]map[string]struct{}),
		maxPerSession: maxPerSession,
	}
}

// runningCount returns the number of non-terminal commands owned by
// sessionID. Caller must hold r.mu (read or write).
func (r *Registry) runningCount(sessionID string) int {
	n := 0
	for id := range r.bySession[sessionID] {
		if !r.commands[id].Status().Terminal() {
			n++
		}
	}
	return n
}

// Create allocates a new command record owned by sessionID, enforcing the
// per-session concurrency cap. It does not start the scheduler task;
// callers spawn that separately once the record is registered.
func (r *Registry) Create(sessionID, cmdText string) (*Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runningCount(sessionID) >= r.maxPerSession {
		return nil, &ErrCapacityExceeded{Max: r.maxPerSession}
	}

	id := uuid.NewString()
	cmd := newCommand(id, sessionID, cmdText)
	r.commands[id] = cmd

	set, ok := r.bySession[sessionID]
	if !ok {
		set = make(map[string]struct{})
		r.bySession[sessionID] = set
	}
	set[id] = struct{}{}

	return cmd, nil
}

// Get returns the command record for id.
func (r *Registry) Get(id string) (*Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cmd, nil
}

// List returns snapshots of commands, optionally filtered by session-id
// and/or status.
func (r *Registry) List(sessionID string, status Status) []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids map[string]struct{}
	if sessionID != "" {
		ids = r.bySession[sessionID]
	}

	out := make([]Snapshot, 0, len(r.commands))
	for id, cmd := range r.commands {
		if ids != nil {
			if _, ok := ids[id]; !ok {
				continue
			}
		}
		snap := cmd.Snapshot()
		if status != "" && snap.Status != status {
			continue
		}
		out = append(out, snap)
	}
	return out
}

// SessionCommandIDs returns all command-ids owned by sessionID.
func (r *Registry) SessionCommandIDs(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.bySession[sessionID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// remove deletes a single command from both maps. Used by session
// teardown.
func (r *Registry) remove(id, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.commands, id)
	if set, ok := r.bySession[sessionID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.bySession, sessionID)
		}
	}
}

// teardownGrace bounds how long RemoveSession waits for a cancelled
// command's scheduler task to observe the trigger before the record is
// deregistered, per §4.6's "wait briefly, then remove the entries".
const teardownGrace = 200 * time.Millisecond

// RemoveSession fires the cancellation trigger for every command owned by
// sessionID, waits briefly for each to leave Running, force-publishes
// Cancelled for any that are still Running after the grace period, and
// removes them from the registry, per §4.6's "Session teardown" contract. It returns
// the number of commands whose trigger was fired (the "commands
// cancelled" counter for reporting).
func (r *Registry) RemoveSession(sessionID string) int {
	ids := r.SessionCommandIDs(sessionID)
	toWait := make([]*Command, 0, len(ids))
	for _, id := range ids {
		cmd, err := r.Get(id)
		if err != nil {
			continue
		}
		if !cmd.Status().Terminal() {
			cmd.Cancel()
			toWait = append(toWait, cmd)
		}
	}
	if len(toWait) > 0 {
		deadline := time.Now().Add(teardownGrace)
		for _, cmd := range toWait {
			remaining := time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			timer := time.NewTimer(remaining)
			cmd.waitStatusChange(timer.C)
			timer.Stop()
			cmd.status.Set(StatusCancelled)
		}
	}
	for _, id := range ids {
		r.remove(id, sessionID)
	}
	return len(toWait)
}
