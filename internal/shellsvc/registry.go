package shellsvc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/ahmetk3436/sshmcp/internal/sshclient"
)

// ErrNotFound is returned when a shell-id is not present in the registry.
var ErrNotFound = errors.New("shell not found")

// MaxPerSession is the fixed per-session shell cap from §3/§4.7.
const MaxPerSession = 10

// ErrCapacityExceeded is returned by Open when a session already has
// MaxPerSession open shells.
type ErrCapacityExceeded struct{}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("Maximum concurrent shells (%d) reached for session", MaxPerSession)
}

// Registry is the concurrent shell-id -> Shell map with a session-id
// secondary index, per §4.7.
type Registry struct {
	mu        sync.Mutex
	shells    map[string]*Shell
	bySession map[string]map[string]struct{}
	closed    map[string]struct{}
}

// NewRegistry constructs an empty shell registry.
func NewRegistry() *Registry {
	return &Registry{
		shells:    make(map[string]*Shell),
		bySession: make(map[string]map[string]struct{}),
		closed:    make(map[string]struct{}),
	}
}

// OpenOptions carries the PTY parameters for a new shell, per §4.7's
// "Open" contract.
type OpenOptions struct {
	SessionID string
	TermType  string
	Cols      int
	Rows      int
}

// Open requests a channel and a PTY on handle, starts the shell, spawns
// the reader task, and registers the resulting Shell. It enforces the
// per-session shell cap before doing any SSH work.
func (r *Registry) Open(handle *sshclient.Handle, opts OpenOptions) (*Shell, error) {
	r.mu.Lock()
	if len(r.bySession[opts.SessionID]) >= MaxPerSession {
		r.mu.Unlock()
		return nil, &ErrCapacityExceeded{}
	}
	r.mu.Unlock()

	// Only the channel open is serialized by NewSession's own lock; the
	// PTY and shell requests below run after that lock is released.
	sess, err := handle.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open ssh session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty(opts.TermType, opts.Rows, opts.Cols, modes); err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to request pty: %w", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	id := uuid.NewString()
	shell := newShell(id, opts.SessionID, opts.TermType, opts.Cols, opts.Rows, stdin, sess)
	shell.startReader(stdout, stderr)

	r.mu.Lock()
	if len(r.bySession[opts.SessionID]) >= MaxPerSession {
		r.mu.Unlock()
		shell.Close()
		return nil, &ErrCapacityExceeded{}
	}
	defer r.mu.Unlock()
	r.shells[id] = shell
	delete(r.closed, id)
	set, ok := r.bySession[opts.SessionID]
	if !ok {
		set = make(map[string]struct{})
		r.bySession[opts.SessionID] = set
	}
	set[id] = struct{}{}

	return shell, nil
}

// Get returns the shell record for id.
func (r *Registry) Get(id string) (*Shell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	shell, ok := r.shells[id]
	if !ok {
		return nil, ErrNotFound
	}
	return shell, nil
}

// Close closes and deregisters the shell named id. Idempotent: closing
// an id this registry has already closed is a no-op success, per the
// ssh_shell_close round-trip law. ErrNotFound is returned only for an id
// this registry has never seen at all.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	shell, ok := r.shells[id]
	if !ok {
		_, alreadyClosed := r.closed[id]
		r.mu.Unlock()
		if alreadyClosed {
			return nil
		}
		return ErrNotFound
	}
	delete(r.shells, id)
	r.closed[id] = struct{}{}
	if set, ok := r.bySession[shell.SessionID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.bySession, shell.SessionID)
		}
	}
	r.mu.Unlock()

	shell.Close()
	return nil
}

// RemoveSession closes every shell owned by sessionID, per session
// teardown in §3/§5.
func (r *Registry) RemoveSession(sessionID string) int {
	r.mu.Lock()
	ids := make([]string, 0, len(r.bySession[sessionID]))
	for id := range r.bySession[sessionID] {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Close(id)
	}
	return len(ids)
}
