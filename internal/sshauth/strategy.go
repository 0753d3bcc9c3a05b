// Package sshauth implements the auth chain strategy pattern: password,
// key-file, and agent authentication, each producing an ssh.AuthMethod (or
// failing with a non-retryable error).
package sshauth

import (
	"errors"
	"fmt"
)

// ErrNoStrategy reports that no authentication method was supplied.
// Resolve never returns it: with no password and no key path it falls
// back to the agent strategy.
var ErrNoStrategy = errors.New("no authentication method supplied")

// AuthError wraps a failure from a specific strategy so the caller can
// tell it apart from a transport-level error; it is always treated as
// non-retryable by the classifier (its message contains "authentication
// failed").
type AuthError struct {
	Strategy string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Strategy, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
