package sshclient

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAddress splits "host[:port]" per §4.4: split on the rightmost
// colon; the left side is the host, the right side a decimal port.
// Absent a colon, the port defaults to 22. A bracketed IPv6 literal
// ("[::1]:22" or bare "[::1]") is recognized and the brackets stripped
// from the returned host; this is the documented behavior for the open
// question in §9 on IPv6 addressing. Never panics; an invalid port is a
// permanent (non-retryable) configuration error.
func ParseAddress(address string) (host string, port int, err error) {
	if address == "" {
		return "", 0, fmt.Errorf("invalid address: empty")
	}

	if strings.HasPrefix(address, "[") {
		end := strings.Index(address, "]")
		if end < 0 {
			return "", 0, fmt.Errorf("invalid address %q: unterminated IPv6 literal", address)
		}
		host = address[1:end]
		rest := address[end+1:]
		if rest == "" {
			return host, 22, nil
		}
		if !strings.HasPrefix(rest, ":") {
			return "", 0, fmt.Errorf("invalid address %q: expected ':port' after IPv6 literal", address)
		}
		port, err = parsePort(rest[1:])
		if err != nil {
			return "", 0, fmt.Errorf("invalid address %q: %w", address, err)
		}
		return host, port, nil
	}

	idx := strings.LastIndex(address, ":")
	if idx < 0 {
		return address, 22, nil
	}

	host = address[:idx]
	port, err = parsePort(address[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", address, err)
	}
	return host, port, nil
}

func parsePort(raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", raw)
	}
	if v < 1 || v > 65535 {
		return 0, fmt.Errorf("port %d out of range", v)
	}
	return v, nil
}

// JoinHostPort formats host and port back into a dial address, bracketing
// IPv6 literals.
func JoinHostPort(host string, port int) string {
	if strings.Contains(host, ":") {
		return fmt.Sprintf("[%s]:%d", host, port)
	}
	return fmt.Sprintf("%s:%d", host, port)
}
