// Package domain defines the audit trail written for authenticated calls.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog records one authenticated API call.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	ClientID   string            `gorm:"column:client_id;type:text;not null;index"`
	Tenant     string            `gorm:"type:text;index"`
	Method     string            `gorm:"type:text;not null"`
	Endpoint   string            `gorm:"type:text;not null"`
	StatusCode int               `gorm:"not null"`
	Outcome    string            `gorm:"type:text"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// Service appends audit entries. Failures are logged, never surfaced to the
// caller; an audit miss must not fail the request it describes.
type Service interface {
	Record(ctx context.Context, entry *AuditLog)
}
