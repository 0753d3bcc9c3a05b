package mcp

import "fmt"

// The error strings below reproduce the exact taxonomy in §6 so callers
// (and tests) can match on message text the way the tool protocol
// requires. They are formatted with %s, not %w: the registry sentinels
// (session.ErrNotFound etc.) are not wrapped, so errors.Is/errors.As
// against those sentinels will not match a value returned from here.

func errSessionNotFound(id string) error {
	return fmt.Errorf("No active SSH session with ID: %s", id)
}

func errCommandNotFound(id string) error {
	return fmt.Errorf("No async command found with ID: %s", id)
}

func errShellNotFound(id string) error {
	return fmt.Errorf("No open shell with ID: %s", id)
}

func errWaitTimeoutRange() error {
	return fmt.Errorf("Wait timeout must be between 1 and 300 seconds")
}
