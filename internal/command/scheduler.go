package command

import (
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ahmetk3436/sshmcp/internal/sshclient"
)

// runResult is what the exec goroutine reports once the remote command
// has actually exited (or its channel died).
type runResult struct {
	exitCode int32
	err      error
}

// Start opens an exec channel on handle and spawns the background
// scheduler task described in §4.6. Ownership of cmd's status is handed
// to the returned goroutine; callers observe progress only via cmd's
// Snapshot/Status/Cancel/waitStatusChange methods.
func Start(cmd *Command, handle *sshclient.Handle, timeout time.Duration) {
	go run(cmd, handle, timeout)
}

func run(cmd *Command, handle *sshclient.Handle, timeout time.Duration) {
	// Step 1: open the session (briefly serializes on the handle's own
	// lock inside NewSession) then release it before reading — the
	// handle lock is never held across the awaits below.
	sess, err := handle.NewSession()
	if err != nil {
		cmd.mu.Lock()
		cmd.errMsg = fmt.Sprintf("failed to open ssh session: %v", err)
		cmd.mu.Unlock()
		cmd.status.Set(StatusFailed)
		return
	}

	stdoutPipe, err := sess.StdoutPipe()
	if err != nil {
		finishOpenFailure(cmd, sess, err)
		return
	}
	stderrPipe, err := sess.StderrPipe()
	if err != nil {
		finishOpenFailure(cmd, sess, err)
		return
	}

	if err := sess.Start(cmd.Command); err != nil {
		finishOpenFailure(cmd, sess, err)
		return
	}

	var pumpWG sync.WaitGroup
	pumpWG.Add(2)
	go func() {
		defer pumpWG.Done()
		io.Copy(stdoutWriter{&cmd.output}, stdoutPipe)
	}()
	go func() {
		defer pumpWG.Done()
		io.Copy(stderrWriter{&cmd.output}, stderrPipe)
	}()

	done := make(chan runResult, 1)
	go func() {
		pumpWG.Wait()
		waitErr := sess.Wait()
		done <- exitResultFromWaitError(waitErr)
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	// Step 2/3: priority select — cancellation before timeout before
	// new data (here: the exec-finished signal), per §4.6.
	for {
		select {
		case <-cmd.cancel.Done():
			sess.Close()
			cmd.status.Set(StatusCancelled)
			return
		default:
		}
		select {
		case <-timeoutCh:
			handleTimeout(cmd, sess)
			return
		default:
		}
		select {
		case <-cmd.cancel.Done():
			sess.Close()
			cmd.status.Set(StatusCancelled)
			return
		case <-timeoutCh:
			handleTimeout(cmd, sess)
			return
		case result := <-done:
			finishRun(cmd, result)
			return
		}
	}
}

// finishOpenFailure publishes Failed for a command that never managed to
// start its remote exec, per §4.6 step 6.
func finishOpenFailure(cmd *Command, sess *ssh.Session, err error) {
	sess.Close()
	cmd.mu.Lock()
	cmd.errMsg = fmt.Sprintf("failed to start command: %v", err)
	cmd.mu.Unlock()
	cmd.status.Set(StatusFailed)
}

// handleTimeout implements §4.6 step 5: close the channel gracefully,
// mark timed-out, set exit code -1, and publish Completed. The owning
// session is untouched.
func handleTimeout(cmd *Command, sess *ssh.Session) {
	sess.Close()
	minusOne := int32(-1)
	cmd.mu.Lock()
	cmd.timedOut = true
	cmd.exitCode = &minusOne
	cmd.mu.Unlock()
	cmd.status.Set(StatusCompleted)
}

// finishRun implements §4.6 step 7: publish Completed with the recorded
// exit code, or Failed if the exec channel itself misbehaved.
func finishRun(cmd *Command, result runResult) {
	cmd.mu.Lock()
	if result.err != nil {
		cmd.errMsg = result.err.Error()
	} else {
		code := result.exitCode
		cmd.exitCode = &code
	}
	cmd.mu.Unlock()

	if result.err != nil {
		cmd.status.Set(StatusFailed)
		return
	}
	cmd.status.Set(StatusCompleted)
}

// exitResultFromWaitError translates ssh.Session.Wait's error into an
// exit code, per §4.6's exit-status handling. A nil error is exit 0; an
// *ssh.ExitError carries the remote exit status; anything else (channel
// closed, EOF without exit-status) is reported as a Failed command.
func exitResultFromWaitError(err error) runResult {
	if err == nil {
		return runResult{exitCode: 0}
	}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return runResult{exitCode: int32(exitErr.ExitStatus())}
	}
	return runResult{err: err}
}
