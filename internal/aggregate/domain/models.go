// Package domain defines daily usage aggregates and the dirty-set bookkeeping
// that drives their recomputation.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DailyUsageAggregate is the per-subscriber, per-UTC-day rollup. Rows are
// always overwritten by a full re-sum of raw records, never patched in place,
// so a recomputation converges to the same result regardless of how many
// times it runs.
type DailyUsageAggregate struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	SubscriberID  string       `gorm:"column:subscriber_id;type:text;not null;uniqueIndex:ux_daily_usage_subscriber_day,priority:1"`
	Day           time.Time    `gorm:"not null;uniqueIndex:ux_daily_usage_subscriber_day,priority:2"`
	TotalBytes    uint64       `gorm:"not null"`
	UploadBytes   uint64       `gorm:"not null"`
	DownloadBytes uint64       `gorm:"not null"`
	SMSCount      uint32       `gorm:"column:sms_count;not null"`
	Tenant        string       `gorm:"type:text;index"`
	Customer      string       `gorm:"type:text;index"`
	RecomputedAt  time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (DailyUsageAggregate) TableName() string { return "daily_usage_aggregates" }

// DirtyKey marks one (subscriber, day) pair as needing recomputation.
// Keys are persisted so marks survive gateway restarts; the scheduler clears
// a key only when no re-mark happened after it claimed the key.
type DirtyKey struct {
	SubscriberID string    `gorm:"column:subscriber_id;type:text;primaryKey"`
	Day          time.Time `gorm:"primaryKey"`
	MarkedAt     time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (DirtyKey) TableName() string { return "aggregation_dirty_keys" }

// Watermark records progress of the aggregation loop. A single row (ID=1)
// is updated after every run.
type Watermark struct {
	ID              int       `gorm:"primaryKey"`
	AdvancedTo      time.Time `gorm:"not null"`
	LastRunAt       time.Time `gorm:"not null"`
	LastRunStatus   string    `gorm:"type:text;not null"`
	LastRunDuration int64     `gorm:"not null"` // milliseconds
}

// TableName sets the database table name.
func (Watermark) TableName() string { return "aggregation_watermark" }

// Bucket is one point of an aggregate series, used by analytics range scans.
type Bucket struct {
	SubscriberID  string
	Day           time.Time
	TotalBytes    uint64
	UploadBytes   uint64
	DownloadBytes uint64
	SMSCount      uint32
}

// RangeFilter selects aggregates for [Start, End) with optional narrowing.
type RangeFilter struct {
	Start              time.Time
	End                time.Time
	Tenant             string
	Customer           string
	Subscribers        []string
	ExcludeSubscribers []string
}
