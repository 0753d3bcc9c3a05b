// Package shellsvc implements the shell registry and worker described in
// §4.7: long-lived PTY-backed channels with a decoupled reader task and
// an external write/read API with drain-on-read semantics.
package shellsvc

import (
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Status is the open-or-closed state of a shell, per §3.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Shell is the open-interactive-PTY record described in §3. Reads drain
// the output buffer; the writer side is the reader task pumping the
// session's stdout/stderr pipes, and (once) the Close call.
type Shell struct {
	ID        string
	SessionID string
	TermType  string
	Cols      int
	Rows      int
	OpenedAt  time.Time

	mu        sync.Mutex
	status    Status
	buf       []byte
	stdin     io.WriteCloser
	sess      *ssh.Session
	closeOnce sync.Once
}

func newShell(id, sessionID, termType string, cols, rows int, stdin io.WriteCloser, sess *ssh.Session) *Shell {
	return &Shell{
		ID:        id,
		SessionID: sessionID,
		TermType:  termType,
		Cols:      cols,
		Rows:      rows,
		OpenedAt:  time.Now(),
		status:    StatusOpen,
		stdin:     stdin,
		sess:      sess,
	}
}

// startReader pumps stdout and stderr — both merged into a single
// buffer, per §4.7's note that interactive shells commonly interleave
// them — until both reach EOF, at which point the shell transitions to
// Closed.
func (s *Shell) startReader(stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pump(stdout, s.append)
	}()
	go func() {
		defer wg.Done()
		pump(stderr, s.append)
	}()

	go func() {
		wg.Wait()
		s.mu.Lock()
		s.status = StatusClosed
		s.mu.Unlock()
	}()
}

func pump(r io.Reader, sink func([]byte)) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			sink(chunk)
		}
		if err != nil {
			return
		}
	}
}

func (s *Shell) append(p []byte) {
	s.mu.Lock()
	s.buf = append(s.buf, p...)
	s.mu.Unlock()
}

// Write pushes bytes directly onto the shell's stdin. No framing or
// buffering is imposed; the caller controls it (e.g. "ls\n").
func (s *Shell) Write(data []byte) error {
	s.mu.Lock()
	stdin := s.stdin
	status := s.status
	s.mu.Unlock()
	if status == StatusClosed {
		return io.ErrClosedPipe
	}
	_, err := stdin.Write(data)
	return err
}

// Resize issues a window-change request for the shell's PTY.
func (s *Shell) Resize(cols, rows int) error {
	s.mu.Lock()
	sess := s.sess
	status := s.status
	s.mu.Unlock()
	if status == StatusClosed {
		return io.ErrClosedPipe
	}
	return sess.WindowChange(rows, cols)
}

// Read drains the output buffer and returns the drained bytes alongside
// the current status, per §4.7's "Read" contract.
func (s *Shell) Read() ([]byte, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.buf
	s.buf = nil
	return data, s.status
}

// Status returns the shell's current status without draining output.
func (s *Shell) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close disposes the underlying SSH session exactly once, which
// terminates the reader task's pumps via EOF. Idempotent.
func (s *Shell) Close() {
	s.closeOnce.Do(func() {
		s.sess.Close()
		s.mu.Lock()
		s.status = StatusClosed
		s.mu.Unlock()
	})
}
