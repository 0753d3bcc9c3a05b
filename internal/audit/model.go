// Package audit persists a best-effort event trail: every significant
// session/command/shell/forward lifecycle event, recorded through
// gorm.io/gorm against Postgres. It is additive by design: a failure to
// write an audit row never fails, blocks, or rolls back the operation
// that triggered it.
package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Log is one audit entry: actor/action/target plus a free-form JSON
// details column.
type Log struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Actor     string         `gorm:"not null" json:"actor"`
	Action    string         `gorm:"not null;index" json:"action"`
	Target    string         `json:"target"`
	Details   datatypes.JSON `gorm:"type:jsonb" json:"details"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

// TableName pins the table name so migrations stay stable regardless of
// gorm's pluralization rules.
func (Log) TableName() string {
	return "audit_logs"
}
