package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolFunc handles one decoded tool call and returns the JSON-serializable
// result, or an error whose message is the exact §6 taxonomy string when
// applicable.
type ToolFunc func(ctx context.Context, params json.RawMessage) (any, error)

// ToolNames lists the thirteen tools in the order they appear in §6, for
// transports that want to advertise a catalog (e.g. an HTTP index route).
var ToolNames = []string{
	"ssh_connect",
	"ssh_execute",
	"ssh_get_command_output",
	"ssh_list_commands",
	"ssh_cancel_command",
	"ssh_forward",
	"ssh_disconnect",
	"ssh_list_sessions",
	"ssh_disconnect_agent",
	"ssh_shell_open",
	"ssh_shell_write",
	"ssh_shell_read",
	"ssh_shell_close",
}

// Dispatch builds the tool-name -> handler table used by every transport,
// so the stdio and HTTP surfaces share exactly one orchestration path.
func (s *Service) Dispatch() map[string]ToolFunc {
	return map[string]ToolFunc{
		"ssh_connect": func(ctx context.Context, raw json.RawMessage) (any, error) {
			var req ConnectRequest
			if err := unmarshalParams(raw, &req); err != nil {
				return nil, err
			}
			return s.Connect(ctx, req)
		},
		"ssh_execute": func(_ context.Context, raw json.RawMessage) (any, error) {
			var req ExecuteRequest
			if err := unmarshalParams(raw, &req); err != nil {
				return nil, err
			}
			return s.Execute(req)
		},
		"ssh_get_command_output": func(_ context.Context, raw json.RawMessage) (any, error) {
			var req GetCommandOutputRequest
			if err := unmarshalParams(raw, &req); err != nil {
				return nil, err
			}
			return s.GetCommandOutput(req)
		},
		"ssh_list_commands": func(_ context.Context, raw json.RawMessage) (any, error) {
			var req struct {
				SessionID string `json:"session_id"`
				Status    string `json:"status,omitempty"`
			}
			if err := unmarshalParams(raw, &req); err != nil {
				return nil, err
			}
			return s.ListCommands(req.SessionID, req.Status), nil
		},
		"ssh_cancel_command": func(_ context.Context, raw json.RawMessage) (any, error) {
			var req struct {
				CommandID string `json:"command_id"`
			}
			if err := unmarshalParams(raw, &req); err != nil {
				return nil, err
			}
			return s.CancelCommand(req.CommandID)
		},
		"ssh_forward": func(_ context.Context, raw json.RawMessage) (any, error) {
			var req ForwardRequest
			if err := unmarshalParams(raw, &req); err != nil {
				return nil, err
			}
			return s.Forward(req)
		},
		"ssh_disconnect": func(_ context.Context, raw json.RawMessage) (any, error) {
			var req struct {
				SessionID string `json:"session_id"`
			}
			if err := unmarshalParams(raw, &req); err != nil {
				return nil, err
			}
			message, err := s.Disconnect(req.SessionID)
			if err != nil {
				return nil, err
			}
			return struct {
				Message string `json:"message"`
			}{Message: message}, nil
		},
		"ssh_list_sessions": func(_ context.Context, raw json.RawMessage) (any, error) {
			var req struct {
				AgentID string `json:"agent_id,omitempty"`
			}
			if err := unmarshalParams(raw, &req); err != nil {
				return nil, err
			}
			return s.ListSessions(req.AgentID), nil
		},
		"ssh_disconnect_agent": func(_ context.Context, raw json.RawMessage) (any, error) {
			var req struct {
				AgentID string `json:"agent_id"`
			}
			if err := unmarshalParams(raw, &req); err != nil {
				return nil, err
			}
			return s.DisconnectAgent(req.AgentID), nil
		},
		"ssh_shell_open": func(_ context.Context, raw json.RawMessage) (any, error) {
			var req ShellOpenRequest
			if err := unmarshalParams(raw, &req); err != nil {
				return nil, err
			}
			return s.ShellOpen(req)
		},
		"ssh_shell_write": func(_ context.Context, raw json.RawMessage) (any, error) {
			var req struct {
				ShellID string `json:"shell_id"`
				Data    string `json:"data"`
			}
			if err := unmarshalParams(raw, &req); err != nil {
				return nil, err
			}
			message, err := s.ShellWrite(req.ShellID, req.Data)
			if err != nil {
				return nil, err
			}
			return struct {
				Message string `json:"message"`
			}{Message: message}, nil
		},
		"ssh_shell_read": func(_ context.Context, raw json.RawMessage) (any, error) {
			var req struct {
				ShellID string `json:"shell_id"`
			}
			if err := unmarshalParams(raw, &req); err != nil {
				return nil, err
			}
			return s.ShellRead(req.ShellID)
		},
		"ssh_shell_close": func(_ context.Context, raw json.RawMessage) (any, error) {
			var req struct {
				ShellID string `json:"shell_id"`
			}
			if err := unmarshalParams(raw, &req); err != nil {
				return nil, err
			}
			return s.ShellClose(req.ShellID)
		},
	}
}

func unmarshalParams(raw json.RawMessage, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
