package classify

import (
	"errors"
	"testing"
)

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  string
		want bool
	}{
		{"ssh: handshake failed: authentication failed", false},
		{"Permission denied (publickey)", false},
		{"ssh: no authentication methods available", false},
		{"all authentication methods failed", false},
		{"dial tcp: connection refused", true},
		{"dial tcp: i/o timeout", true},
		{"network is unreachable", true},
		{"read: connection reset by peer", true},
		{"write: broken pipe", true},
		{"ssh: some obscure protocol violation", false},
		{"unexpected EOF", true},
	}
	for _, c := range cases {
		got := Retryable(errors.New(c.err))
		if got != c.want {
			t.Errorf("Retryable(%q) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestRetryableNil(t *testing.T) {
	if Retryable(nil) {
		t.Fatal("nil error must not be retryable")
	}
}
