package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahmetk3436/sshmcp/internal/audit"
	"github.com/ahmetk3436/sshmcp/internal/httpapi"
	"github.com/ahmetk3436/sshmcp/internal/mcp"
	"github.com/ahmetk3436/sshmcp/internal/transport/stdio"
)

// inactivitySweepInterval bounds how stale a reaped session's idle time
// can be; it is independent of the configured inactivity timeout and
// shorter than its 300 s default.
const inactivitySweepInterval = 30 * time.Second

func main() {
	logOut := os.Stdout
	if os.Getenv("MCP_STDIO") == "1" {
		// The stdio transport owns stdout; logs go to stderr so they never
		// interleave with its response lines.
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("starting sshmcp")

	auditLogger := newAuditLogger()
	svc := mcp.NewService(auditLogger)

	httpCfg := httpapi.LoadConfig()
	app := httpapi.New(svc, httpCfg)

	ctx, cancelBackground := context.WithCancel(context.Background())

	svc.StartInactivityReaper(ctx, inactivitySweepInterval)

	if os.Getenv("MCP_STDIO") == "1" {
		go func() {
			slog.Info("stdio transport listening")
			if err := stdio.NewServer(svc, os.Stdin, os.Stdout).Serve(ctx); err != nil && ctx.Err() == nil {
				slog.Error("stdio transport error", "err", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("shutting down sshmcp")

		cancelBackground()
		svc.Shutdown()

		if err := app.Shutdown(); err != nil {
			slog.Error("http transport shutdown error", "err", err)
		}
	}()

	listenAddr := ":" + httpCfg.Port
	slog.Info("http transport listening", "addr", listenAddr)
	if err := app.Listen(listenAddr); err != nil {
		slog.Error("http transport error", "err", err)
		os.Exit(1)
	}
}

// newAuditLogger connects the optional audit trail when AUDIT_DB_DSN is
// set, degrading to nil (a no-op inside mcp.NewService) on any failure so
// a broken audit sink never blocks the service from starting.
func newAuditLogger() mcp.AuditLogger {
	dsn := os.Getenv("AUDIT_DB_DSN")
	if dsn == "" {
		slog.Info("AUDIT_DB_DSN not set, audit logging disabled")
		return nil
	}
	logger, err := audit.Open(dsn)
	if err != nil {
		slog.Warn("audit: failed to connect, continuing without audit logging", "err", err)
		return nil
	}
	return logger
}
