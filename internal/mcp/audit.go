package mcp

// AuditLogger is the narrow interface the tool surface calls into after
// each significant lifecycle event. internal/audit implements it against
// Postgres; a nil AuditLogger (or the no-op default) makes auditing a
// pure no-op so it is always safe to call.
type AuditLogger interface {
	Record(event string, fields map[string]any)
}

type noopAudit struct{}

func (noopAudit) Record(string, map[string]any) {}
