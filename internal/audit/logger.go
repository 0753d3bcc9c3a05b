package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Logger writes audit rows to Postgres. It satisfies mcp.AuditLogger by
// structural typing alone; audit intentionally never imports mcp, so
// there is no dependency back into the tool surface.
type Logger struct {
	db *gorm.DB
}

// Open connects to Postgres at dsn and migrates the audit_logs table.
// Callers should fall back to a no-op logger if Open fails or dsn is
// empty, per the "additive, never blocking" design.
func Open(dsn string) (*Logger, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}
	if err := db.AutoMigrate(&Log{}); err != nil {
		return nil, fmt.Errorf("failed to migrate audit schema: %w", err)
	}
	slog.Info("audit: connected")
	return &Logger{db: db}, nil
}

// Record writes one audit entry, deriving actor/target from the well-known
// field names emitted by the tool surface (agent_id, session_id,
// command_id, shell_id) and storing the rest of fields as JSON details.
// A write failure is logged and swallowed: audit logging must never fail
// the operation that triggered it.
func (l *Logger) Record(event string, fields map[string]any) {
	actor, _ := fields["agent_id"].(string)
	target := firstNonEmpty(fields, "session_id", "shell_id", "command_id")

	body, err := json.Marshal(fields)
	if err != nil {
		slog.Warn("audit: failed to marshal details", "event", event, "err", err)
		body = []byte("{}")
	}

	entry := Log{
		Actor:     actor,
		Action:    event,
		Target:    target,
		Details:   datatypes.JSON(body),
		CreatedAt: time.Now(),
	}
	if err := l.db.Create(&entry).Error; err != nil {
		slog.Warn("audit: failed to write entry", "event", event, "err", err)
	}
}

func firstNonEmpty(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := fields[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
