package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetk3436/sshmcp/internal/command"
	"github.com/ahmetk3436/sshmcp/internal/config"
	"github.com/ahmetk3436/sshmcp/internal/portforward"
	"github.com/ahmetk3436/sshmcp/internal/session"
	"github.com/ahmetk3436/sshmcp/internal/shellsvc"
	"github.com/ahmetk3436/sshmcp/internal/sshauth"
	"github.com/ahmetk3436/sshmcp/internal/sshclient"
)

// Service wires the session, command, shell and forwarder engines behind
// the thirteen tools of §6. It holds no state of its own beyond the
// registries; every operation is validate -> orchestrate -> DTO, per
// §4.9.
type Service struct {
	sessions   *session.Registry
	commands   *command.Registry
	shells     *shellsvc.Registry
	forwarders *portforward.Registry
	audit      AuditLogger
}

// NewService constructs a Service with fresh registries. audit may be
// nil, in which case a no-op logger is used.
func NewService(audit AuditLogger) *Service {
	if audit == nil {
		audit = noopAudit{}
	}
	return &Service{
		sessions:   session.NewRegistry(),
		commands:   command.NewRegistry(command.DefaultMaxPerSession),
		shells:     shellsvc.NewRegistry(),
		forwarders: portforward.NewRegistry(),
		audit:      audit,
	}
}

// Connect implements ssh_connect, including the session_id reuse hint
// and the reconnect-when-unhealthy resolution documented in DESIGN.md.
func (s *Service) Connect(ctx context.Context, req ConnectRequest) (ConnectResponse, error) {
	if req.SessionID != "" {
		if info, handle, err := s.sessions.Get(req.SessionID); err == nil {
			if _, healthy := handle.Health(); healthy {
				return ConnectResponse{
					SessionID:     info.ID,
					AgentID:       info.AgentID,
					Message:       fmt.Sprintf("Reusing existing session %s", info.ID),
					Authenticated: true,
					RetryAttempts: info.RetryAttempts,
				}, nil
			}

			result, connErr := s.dial(ctx, req)
			if connErr != nil {
				return ConnectResponse{}, connErr
			}
			s.sessions.ReplaceHandle(req.SessionID, result.Handle, result.RetryAttempts)
			s.audit.Record("session.reconnect", map[string]any{"session_id": req.SessionID})
			return ConnectResponse{
				SessionID:     req.SessionID,
				AgentID:       info.AgentID,
				Message:       fmt.Sprintf("Session %s reconnected", req.SessionID),
				Authenticated: true,
				RetryAttempts: result.RetryAttempts,
			}, nil
		}
	}

	result, err := s.dial(ctx, req)
	if err != nil {
		return ConnectResponse{}, err
	}

	id := session.NewID()
	resolved := config.Resolve(config.ConnectOptions{
		TimeoutSecs:  req.TimeoutSecs,
		MaxRetries:   req.MaxRetries,
		RetryDelayMs: req.RetryDelayMs,
		Compress:     req.Compress,
	})
	info := session.Info{
		Name:           req.Name,
		AgentID:        req.AgentID,
		Host:           req.Address,
		Username:       req.Username,
		ConnectedAt:    time.Now(),
		DefaultTimeout: resolved.ConnectTimeout,
		RetryAttempts:  result.RetryAttempts,
		Compression:    resolved.Compression,
		Persistent:     req.Persistent,
	}
	if err := s.sessions.Insert(id, info, result.Handle); err != nil {
		result.Handle.Disconnect()
		return ConnectResponse{}, err
	}

	slog.Info("mcp: session connected", "session_id", id, "host", req.Address, "agent_id", req.AgentID)
	s.audit.Record("session.connect", map[string]any{"session_id": id, "host": req.Address, "agent_id": req.AgentID})

	return ConnectResponse{
		SessionID:     id,
		AgentID:       req.AgentID,
		Message:       fmt.Sprintf("Connected to %s", req.Address),
		Authenticated: true,
		RetryAttempts: result.RetryAttempts,
	}, nil
}

func (s *Service) dial(ctx context.Context, req ConnectRequest) (sshclient.ConnectResult, error) {
	resolved := config.Resolve(config.ConnectOptions{
		TimeoutSecs:  req.TimeoutSecs,
		MaxRetries:   req.MaxRetries,
		RetryDelayMs: req.RetryDelayMs,
		Compress:     req.Compress,
	})
	return sshclient.Connect(ctx, sshclient.ConnectRequest{
		Address:  req.Address,
		Username: req.Username,
		Credentials: sshauth.Credentials{
			Password: req.Password,
			KeyPath:  req.KeyPath,
		},
		ConnectTimeout: resolved.ConnectTimeout,
		MaxRetries:     resolved.MaxRetries,
		RetryDelay:     resolved.RetryDelay,
		Compress:       resolved.Compression,
	})
}

// Execute implements ssh_execute.
func (s *Service) Execute(req ExecuteRequest) (ExecuteResponse, error) {
	info, handle, err := s.sessions.Get(req.SessionID)
	if err != nil {
		return ExecuteResponse{}, errSessionNotFound(req.SessionID)
	}

	cmd, err := s.commands.Create(req.SessionID, req.Command)
	if err != nil {
		return ExecuteResponse{}, err
	}
	s.sessions.Touch(req.SessionID)

	timeout := config.CommandTimeout(req.TimeoutSecs)
	command.Start(cmd, handle, timeout)

	s.audit.Record("command.execute", map[string]any{"session_id": req.SessionID, "command_id": cmd.ID})

	return ExecuteResponse{
		CommandID: cmd.ID,
		SessionID: req.SessionID,
		AgentID:   info.AgentID,
		Command:   req.Command,
		StartedAt: APITime(cmd.StartedAt),
		Message:   "Command started",
	}, nil
}

// GetCommandOutput implements ssh_get_command_output, including the
// bounded-wait polling contract of §4.6.
func (s *Service) GetCommandOutput(req GetCommandOutputRequest) (GetCommandOutputResponse, error) {
	cmd, err := s.commands.Get(req.CommandID)
	if err != nil {
		return GetCommandOutputResponse{}, errCommandNotFound(req.CommandID)
	}
	s.sessions.Touch(cmd.SessionID)

	if req.Wait {
		waitSecs := 30
		if req.WaitTimeoutSec != nil {
			waitSecs = *req.WaitTimeoutSec
		}
		if waitSecs < 1 || waitSecs > 300 {
			return GetCommandOutputResponse{}, errWaitTimeoutRange()
		}
		deadline := time.Now().Add(time.Duration(waitSecs) * time.Second)
		for cmd.Status() == command.StatusRunning {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			timer := time.NewTimer(remaining)
			cmd.WaitStatusChange(timer.C)
			timer.Stop()
		}
	}

	return snapshotToResponse(cmd.Snapshot()), nil
}

func snapshotToResponse(snap command.Snapshot) GetCommandOutputResponse {
	resp := GetCommandOutputResponse{
		CommandID: snap.CommandID,
		Status:    string(snap.Status),
		Stdout:    string(snap.Stdout),
		Stderr:    string(snap.Stderr),
		ExitCode:  snap.ExitCode,
		TimedOut:  snap.TimedOut,
	}
	if snap.Error != "" {
		resp.Error = &snap.Error
	}
	return resp
}

// ListCommands implements ssh_list_commands.
func (s *Service) ListCommands(sessionID string, status string) ListCommandsResponse {
	snaps := s.commands.List(sessionID, command.Status(status))
	summaries := make([]CommandSummary, 0, len(snaps))
	for _, snap := range snaps {
		summaries = append(summaries, CommandSummary{
			CommandID: snap.CommandID,
			SessionID: snap.SessionID,
			Command:   snap.Command,
			Status:    string(snap.Status),
			StartedAt: APITime(snap.StartedAt),
		})
	}
	return ListCommandsResponse{Commands: summaries, Count: len(summaries)}
}

// CancelCommand implements ssh_cancel_command.
func (s *Service) CancelCommand(commandID string) (CancelCommandResponse, error) {
	cmd, err := s.commands.Get(commandID)
	if err != nil {
		return CancelCommandResponse{}, errCommandNotFound(commandID)
	}
	s.sessions.Touch(cmd.SessionID)

	if cmd.Status().Terminal() {
		snap := cmd.Snapshot()
		return CancelCommandResponse{
			CommandID: commandID,
			Cancelled: false,
			Message:   fmt.Sprintf("Command is not running (status: %s)", snap.Status),
			Stdout:    string(snap.Stdout),
			Stderr:    string(snap.Stderr),
		}, nil
	}

	cmd.Cancel()
	deadline := time.NewTimer(2 * time.Second)
	defer deadline.Stop()
	cmd.WaitStatusChange(deadline.C)

	snap := cmd.Snapshot()
	s.audit.Record("command.cancel", map[string]any{"command_id": commandID})
	return CancelCommandResponse{
		CommandID: commandID,
		Cancelled: true,
		Message:   "Command cancelled",
		Stdout:    string(snap.Stdout),
		Stderr:    string(snap.Stderr),
	}, nil
}

// Forward implements ssh_forward.
func (s *Service) Forward(req ForwardRequest) (ForwardResponse, error) {
	_, handle, err := s.sessions.Get(req.SessionID)
	if err != nil {
		return ForwardResponse{}, errSessionNotFound(req.SessionID)
	}

	f, err := portforward.Open(handle, req.SessionID, req.LocalPort, req.RemoteAddress, req.RemotePort)
	if err != nil {
		return ForwardResponse{}, err
	}
	s.forwarders.Track(req.SessionID, f)
	s.sessions.Touch(req.SessionID)

	s.audit.Record("forward.open", map[string]any{"session_id": req.SessionID, "local": f.LocalAddress, "remote": f.RemoteAddress})

	return ForwardResponse{
		LocalAddress:  f.LocalAddress,
		RemoteAddress: f.RemoteAddress,
		Active:        true,
	}, nil
}

// Disconnect implements ssh_disconnect: force-cancel owned commands,
// force-close owned shells, close owned forwarders, then gracefully
// disconnect the transport, per §3's Session lifecycle.
func (s *Service) Disconnect(sessionID string) (string, error) {
	info, handle, err := s.sessions.Remove(sessionID)
	if err != nil {
		return "", errSessionNotFound(sessionID)
	}
	_ = info

	s.commands.RemoveSession(sessionID)
	s.shells.RemoveSession(sessionID)
	s.forwarders.RemoveSession(sessionID)
	if handle != nil {
		handle.Disconnect()
	}

	s.audit.Record("session.disconnect", map[string]any{"session_id": sessionID})
	return fmt.Sprintf("Session %s disconnected successfully", sessionID), nil
}

// ListSessions implements ssh_list_sessions.
func (s *Service) ListSessions(agentID string) ListSessionsResponse {
	infos := s.sessions.List(agentID)
	out := make([]SessionInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, SessionInfo{
			SessionID:       info.ID,
			Name:            info.Name,
			AgentID:         info.AgentID,
			Host:            info.Host,
			Username:        info.Username,
			ConnectedAt:     info.ConnectedAt,
			RetryAttempts:   info.RetryAttempts,
			Compression:     info.Compression,
			Persistent:      info.Persistent,
			LastHealthCheck: info.LastHealthCheck,
			Healthy:         info.Healthy,
		})
	}
	return ListSessionsResponse{Sessions: out, Count: len(out)}
}

// DisconnectAgent implements ssh_disconnect_agent: bulk-tear-down every
// session owned by agentID.
func (s *Service) DisconnectAgent(agentID string) DisconnectAgentResponse {
	ids := s.sessions.AgentSessions(agentID)
	commandsCancelled := 0
	for _, id := range ids {
		commandsCancelled += s.commands.RemoveSession(id)
		s.shells.RemoveSession(id)
		s.forwarders.RemoveSession(id)
		if _, handle, err := s.sessions.Remove(id); err == nil && handle != nil {
			handle.Disconnect()
		}
	}

	s.audit.Record("agent.disconnect", map[string]any{"agent_id": agentID, "sessions": len(ids)})

	return DisconnectAgentResponse{
		AgentID:              agentID,
		SessionsDisconnected: len(ids),
		CommandsCancelled:    commandsCancelled,
		Message:              fmt.Sprintf("Disconnected %d session(s) for agent %s", len(ids), agentID),
	}
}

// ShellOpen implements ssh_shell_open.
func (s *Service) ShellOpen(req ShellOpenRequest) (ShellOpenResponse, error) {
	info, handle, err := s.sessions.Get(req.SessionID)
	if err != nil {
		return ShellOpenResponse{}, errSessionNotFound(req.SessionID)
	}

	termType := req.TermType
	if termType == "" {
		termType = "xterm"
	}
	cols := req.Cols
	if cols == 0 {
		cols = 80
	}
	rows := req.Rows
	if rows == 0 {
		rows = 24
	}

	shell, err := s.shells.Open(handle, shellsvc.OpenOptions{
		SessionID: req.SessionID,
		TermType:  termType,
		Cols:      cols,
		Rows:      rows,
	})
	if err != nil {
		return ShellOpenResponse{}, err
	}
	s.sessions.Touch(req.SessionID)

	s.audit.Record("shell.open", map[string]any{"session_id": req.SessionID, "shell_id": shell.ID})

	return ShellOpenResponse{
		ShellID:   shell.ID,
		SessionID: req.SessionID,
		AgentID:   info.AgentID,
		TermType:  termType,
		Message:   "Shell opened",
	}, nil
}

// ShellWrite implements ssh_shell_write.
func (s *Service) ShellWrite(shellID string, data string) (string, error) {
	shell, err := s.shells.Get(shellID)
	if err != nil {
		return "", errShellNotFound(shellID)
	}
	s.sessions.Touch(shell.SessionID)
	if err := shell.Write([]byte(data)); err != nil {
		return "", fmt.Errorf("failed to write to shell %s: %w", shellID, err)
	}
	return fmt.Sprintf("Wrote %d byte(s) to shell %s", len(data), shellID), nil
}

// ShellRead implements ssh_shell_read.
func (s *Service) ShellRead(shellID string) (ShellReadResponse, error) {
	shell, err := s.shells.Get(shellID)
	if err != nil {
		return ShellReadResponse{}, errShellNotFound(shellID)
	}
	s.sessions.Touch(shell.SessionID)
	data, status := shell.Read()
	return ShellReadResponse{
		ShellID: shellID,
		Data:    string(data),
		Status:  string(status),
	}, nil
}

// StartInactivityReaper spawns a background goroutine that, every
// sweepInterval, disconnects non-persistent sessions idle past
// config.InactivityTimeout(), per §3's Session lifecycle ("removed on
// inactivity (non-persistent only)"). It runs until ctx is cancelled.
// Reaped sessions go through the same Disconnect path as ssh_disconnect:
// commands force-cancelled, shells force-closed, then a graceful
// protocol disconnect.
func (s *Service) StartInactivityReaper(ctx context.Context, sweepInterval time.Duration) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reapIdleSessions()
			}
		}
	}()
}

func (s *Service) reapIdleSessions() {
	timeout := config.InactivityTimeout()
	for _, id := range s.sessions.IdleNonPersistent(timeout) {
		// A concurrent explicit disconnect may have already removed id
		// between the scan above and this call; that races harmlessly
		// with the reaper, so a not-found here is not logged as a
		// failure.
		if _, err := s.Disconnect(id); err != nil {
			continue
		}
		slog.Info("mcp: session reaped for inactivity", "session_id", id, "timeout", timeout)
		s.audit.Record("session.reap_inactive", map[string]any{"session_id": id})
	}
}

// Shutdown gracefully tears down every open session, cancelling their
// commands, closing their shells and forwarders, and disconnecting their
// transports. Used by the process entry point on SIGINT/SIGTERM.
func (s *Service) Shutdown() {
	for _, info := range s.sessions.List("") {
		if _, err := s.Disconnect(info.ID); err != nil {
			slog.Warn("mcp: shutdown disconnect failed", "session_id", info.ID, "err", err)
		}
	}
}

// ShellClose implements ssh_shell_close.
func (s *Service) ShellClose(shellID string) (ShellCloseResponse, error) {
	if err := s.shells.Close(shellID); err != nil {
		return ShellCloseResponse{}, errShellNotFound(shellID)
	}
	s.audit.Record("shell.close", map[string]any{"shell_id": shellID})
	return ShellCloseResponse{ShellID: shellID, Closed: true, Message: "Shell closed"}, nil
}
