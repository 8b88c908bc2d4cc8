// Package domain defines API key credentials and their scopes.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// Scopes granted to API keys.
const (
	ScopeIngest    = "usage:ingest"
	ScopeManage    = "usage:manage"
	ScopeAnalytics = "analytics:read"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// APIKey is a hashed credential. Only the sha256 digest of the key material
// is stored; the raw key is shown once at creation time and never persisted.
type APIKey struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	ClientID   string         `gorm:"column:client_id;type:text;not null"`
	Tenant     string         `gorm:"type:text;index"`
	KeyHash    string         `gorm:"type:text;not null;uniqueIndex"`
	Scopes     pq.StringArray `gorm:"type:text[]"`
	IsActive   bool           `gorm:"not null;default:true"`
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

// Expired reports whether the key has passed its expiry.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// HasScope reports whether the key grants the given scope.
func (k *APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
