// Package mcp is the tool surface described in §4.9 and §6: a thin
// validation/orchestration layer over the session, command, shell and
// forwarder engines. It carries no business logic beyond that
// orchestration and produces the response DTOs specified in §6.
package mcp

import "time"

// APITime marshals a timestamp as ISO 8601 UTC with millisecond
// precision, per §6 (e.g. "2024-01-02T15:04:05.123Z"), regardless of the
// wrapped time.Time's location or sub-millisecond precision.
type APITime time.Time

func (t APITime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).UTC().Format("2006-01-02T15:04:05.000Z") + `"`), nil
}

// ConnectRequest is the input to ssh_connect.
type ConnectRequest struct {
	Address      string `json:"address"`
	Username     string `json:"username"`
	Password     string `json:"password,omitempty"`
	KeyPath      string `json:"key_path,omitempty"`
	Name         string `json:"name,omitempty"`
	Persistent   bool   `json:"persistent,omitempty"`
	TimeoutSecs  int    `json:"timeout_secs,omitempty"`
	MaxRetries   int    `json:"max_retries,omitempty"`
	RetryDelayMs int    `json:"retry_delay_ms,omitempty"`
	Compress     *bool  `json:"compress,omitempty"`
	AgentID      string `json:"agent_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

// ConnectResponse is the output of ssh_connect.
type ConnectResponse struct {
	SessionID     string `json:"session_id"`
	AgentID       string `json:"agent_id,omitempty"`
	Message       string `json:"message"`
	Authenticated bool   `json:"authenticated"`
	RetryAttempts int    `json:"retry_attempts"`
}

// ExecuteRequest is the input to ssh_execute.
type ExecuteRequest struct {
	SessionID   string `json:"session_id"`
	Command     string `json:"command"`
	TimeoutSecs int    `json:"timeout_secs,omitempty"`
}

// ExecuteResponse is the output of ssh_execute.
type ExecuteResponse struct {
	CommandID string  `json:"command_id"`
	SessionID string  `json:"session_id"`
	AgentID   string  `json:"agent_id,omitempty"`
	Command   string  `json:"command"`
	StartedAt APITime `json:"started_at"`
	Message   string  `json:"message"`
}

// GetCommandOutputRequest is the input to ssh_get_command_output.
type GetCommandOutputRequest struct {
	CommandID      string `json:"command_id"`
	Wait           bool   `json:"wait,omitempty"`
	WaitTimeoutSec *int   `json:"wait_timeout_secs,omitempty"`
}

// GetCommandOutputResponse is the output of ssh_get_command_output.
type GetCommandOutputResponse struct {
	CommandID string  `json:"command_id"`
	Status    string  `json:"status"`
	Stdout    string  `json:"stdout"`
	Stderr    string  `json:"stderr"`
	ExitCode  *int32  `json:"exit_code,omitempty"`
	Error     *string `json:"error,omitempty"`
	TimedOut  bool    `json:"timed_out"`
}

// CommandSummary is one entry of ssh_list_commands' response.
type CommandSummary struct {
	CommandID string  `json:"command_id"`
	SessionID string  `json:"session_id"`
	Command   string  `json:"command"`
	Status    string  `json:"status"`
	StartedAt APITime `json:"started_at"`
}

// ListCommandsResponse is the output of ssh_list_commands.
type ListCommandsResponse struct {
	Commands []CommandSummary `json:"commands"`
	Count    int              `json:"count"`
}

// CancelCommandResponse is the output of ssh_cancel_command.
type CancelCommandResponse struct {
	CommandID string `json:"command_id"`
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
}

// ForwardRequest is the input to ssh_forward.
type ForwardRequest struct {
	SessionID     string `json:"session_id"`
	LocalPort     int    `json:"local_port"`
	RemoteAddress string `json:"remote_address"`
	RemotePort    int    `json:"remote_port"`
}

// ForwardResponse is the output of ssh_forward.
type ForwardResponse struct {
	LocalAddress  string `json:"local_address"`
	RemoteAddress string `json:"remote_address"`
	Active        bool   `json:"active"`
}

// SessionInfo is one entry of ssh_list_sessions' response, per §3.
type SessionInfo struct {
	SessionID       string    `json:"session_id"`
	Name            string    `json:"name,omitempty"`
	AgentID         string    `json:"agent_id,omitempty"`
	Host            string    `json:"host"`
	Username        string    `json:"username"`
	ConnectedAt     time.Time `json:"connected_at"`
	RetryAttempts   int       `json:"retry_attempts"`
	Compression     bool      `json:"compression"`
	Persistent      bool      `json:"persistent"`
	LastHealthCheck time.Time `json:"last_health_check,omitempty"`
	Healthy         bool      `json:"healthy"`
}

// ListSessionsResponse is the output of ssh_list_sessions.
type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
	Count    int           `json:"count"`
}

// DisconnectAgentResponse is the output of ssh_disconnect_agent.
type DisconnectAgentResponse struct {
	AgentID              string `json:"agent_id"`
	SessionsDisconnected int    `json:"sessions_disconnected"`
	CommandsCancelled    int    `json:"commands_cancelled"`
	Message              string `json:"message"`
}

// ShellOpenRequest is the input to ssh_shell_open.
type ShellOpenRequest struct {
	SessionID string `json:"session_id"`
	TermType  string `json:"term_type,omitempty"`
	Cols      int    `json:"cols,omitempty"`
	Rows      int    `json:"rows,omitempty"`
}

// ShellOpenResponse is the output of ssh_shell_open.
type ShellOpenResponse struct {
	ShellID   string `json:"shell_id"`
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id,omitempty"`
	TermType  string `json:"term_type"`
	Message   string `json:"message"`
}

// ShellReadResponse is the output of ssh_shell_read.
type ShellReadResponse struct {
	ShellID string `json:"shell_id"`
	Data    string `json:"data"`
	Status  string `json:"status"`
}

// ShellCloseResponse is the output of ssh_shell_close.
type ShellCloseResponse struct {
	ShellID string `json:"shell_id"`
	Closed  bool   `json:"closed"`
	Message string `json:"message"`
}
