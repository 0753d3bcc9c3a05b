// Package sshclient is the SSH client facade: address parsing, client
// config construction, dial-with-retry, and the shared Handle exposed to
// the command/shell/forward engines.
package sshclient

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ahmetk3436/sshmcp/internal/backoff"
	"github.com/ahmetk3436/sshmcp/internal/classify"
	"github.com/ahmetk3436/sshmcp/internal/sshauth"
)

// keepAliveInterval and keepAliveMisses implement the "always enabled"
// TCP keepalive requirement of §4.4: 30s / 3 misses.
const (
	keepAliveInterval = 30 * time.Second
	keepAliveMisses   = 3
)

// ConnectRequest carries everything a single ssh_connect call needs.
type ConnectRequest struct {
	Address        string
	Username       string
	Credentials    sshauth.Credentials
	ConnectTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	Compress       bool
}

// ConnectResult is returned on a successful connect.
type ConnectResult struct {
	Handle        *Handle
	AuthMethod    string
	RetryAttempts int
}

// buildClientConfig assembles the ssh.ClientConfig for req. Host keys are
// always accepted (§1 Non-goals: this is a client acting on behalf of an
// operator, not enforcing server trust).
func buildClientConfig(req ConnectRequest) (*ssh.ClientConfig, string, error) {
	method, authName, err := sshauth.Resolve(req.Credentials)
	if err != nil {
		return nil, authName, err
	}

	cfg := &ssh.ClientConfig{
		User:            req.Username,
		Auth:            []ssh.AuthMethod{method},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         req.ConnectTimeout,
	}
	if req.Compress {
		// golang.org/x/crypto/ssh has no compression algorithm to
		// negotiate; the flag is accepted for API compatibility with
		// §4.1 and is a documented no-op at the transport layer.
		slog.Debug("sshclient: compression requested but unsupported by golang.org/x/crypto/ssh")
	}
	return cfg, authName, nil
}

// dialOnce performs a single, non-retried connect attempt: TCP dial with
// timeout, SSH handshake, and the auth chain built into the client config.
func dialOnce(ctx context.Context, req ConnectRequest) (*Handle, string, error) {
	host, port, err := ParseAddress(req.Address)
	if err != nil {
		return nil, "", err
	}
	addr := JoinHostPort(host, port)

	cfg, authName, err := buildClientConfig(req)
	if err != nil {
		return nil, authName, err
	}

	dialer := net.Dialer{Timeout: req.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, authName, fmt.Errorf("dial %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		if isAuthRejection(err) {
			return nil, authName, &sshauth.AuthError{
				Strategy: authName,
				Err:      fmt.Errorf("credentials rejected by server: %w", err),
			}
		}
		return nil, authName, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	client := ssh.NewClient(clientConn, chans, reqs)
	return NewHandle(client), authName, nil
}

// isAuthRejection reports whether err is golang.org/x/crypto/ssh's own
// auth-failure error ("ssh: unable to authenticate, attempted methods
// [...], no supported methods remain"), as opposed to some other
// handshake-phase failure (e.g. a mid-negotiation network drop) that
// classify.Retryable's "handshake failed" needle would otherwise catch.
func isAuthRejection(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

// Connect performs the connect-with-retry loop described in §4.4: an
// exponential-backoff loop keyed by req's resolved config, gated by the
// error classifier, capped at MaxRetryDelay, giving up after
// req.MaxRetries+1 total attempts.
func Connect(ctx context.Context, req ConnectRequest) (ConnectResult, error) {
	// An invalid address is a configuration error: surface it without
	// entering the retry loop.
	if _, _, err := ParseAddress(req.Address); err != nil {
		return ConnectResult{}, err
	}

	policy := backoff.Policy{
		InitialDelay: req.RetryDelay,
		MaxDelay:     10 * time.Second,
		MaxAttempts:  req.MaxRetries + 1,
	}

	var handle *Handle
	var authName string
	result, err := backoff.Retry(ctx, policy, classify.Retryable, func(attempt int) error {
		var attemptErr error
		handle, authName, attemptErr = dialOnce(ctx, req)
		if attemptErr != nil {
			slog.Debug("sshclient: connect attempt failed",
				"address", req.Address, "attempt", attempt, "err", attemptErr)
		}
		return attemptErr
	})
	if err != nil {
		return ConnectResult{}, fmt.Errorf(
			"SSH connection failed after %d attempt(s). Last error: %s", result.Attempts, err)
	}

	handle.StartKeepalive()

	retries := result.Attempts - 1
	if retries < 0 {
		retries = 0
	}

	slog.Info("sshclient: connected", "address", req.Address, "user", req.Username,
		"auth", authName, "attempts", result.Attempts)
	return ConnectResult{Handle: handle, AuthMethod: authName, RetryAttempts: retries}, nil
}
