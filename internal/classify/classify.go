// Package classify decides whether an error surfaced by the SSH transport
// is worth retrying. It is a pure function of the error's text, consulted
// by the connect-retry wrapper and exposed so the tool surface can report
// the same verdict to operators.
package classify

import "strings"

var nonRetryable = []string{
	"authentication failed",
	"password authentication failed",
	"key authentication failed",
	"agent authentication failed",
	"permission denied",
	"publickey",
	"auth fail",
	"no authentication",
	"all authentication methods failed",
}

var retryable = []string{
	"connection refused",
	"connection reset",
	"connection timed out",
	"timeout",
	"network is unreachable",
	"no route to host",
	"host is down",
	"temporary failure",
	"resource temporarily unavailable",
	"handshake failed",
	"failed to connect",
	"broken pipe",
	"would block",
}

// Retryable reports whether err is worth retrying under the connect-retry
// policy. A nil error is not retryable (there is nothing to retry).
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())

	for _, needle := range nonRetryable {
		if strings.Contains(text, needle) {
			return false
		}
	}
	for _, needle := range retryable {
		if strings.Contains(text, needle) {
			return true
		}
	}
	// Conservative heuristic: an otherwise-unrecognized error that
	// mentions "ssh" without looking like a timeout or connect failure
	// is treated as a permanent SSH-protocol-level rejection.
	if strings.Contains(text, "ssh") && !strings.Contains(text, "timeout") && !strings.Contains(text, "connect") {
		return false
	}
	return true
}
