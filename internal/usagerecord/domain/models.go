// Package domain contains persistence models for raw usage ingestion.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/telemetra/pkg/metadata"
)

// UsageRecord stores a single CDR-like metering event exactly as reported.
// Rows are append-only: once stored a record is never mutated or deleted.
type UsageRecord struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	SubscriberID  string       `gorm:"column:subscriber_id;type:text;not null;uniqueIndex:ux_usage_records_subscriber_record,priority:1"`
	RecordID      string       `gorm:"column:record_id;type:text;not null;uniqueIndex:ux_usage_records_subscriber_record,priority:2"`
	PeriodStart   time.Time    `gorm:"not null;index"`
	PeriodEnd     time.Time    `gorm:"not null;index"`
	TotalBytes    uint64       `gorm:"not null"`
	UploadBytes   uint64       `gorm:"not null"`
	DownloadBytes uint64       `gorm:"not null"`
	SMSCount      uint32       `gorm:"column:sms_count;not null"`
	Source        string       `gorm:"type:text"`
	Tenant        string       `gorm:"type:text;index"`
	Customer      string       `gorm:"type:text;index"`
	Metadata      metadata.Map `gorm:"type:jsonb"`
	ReceivedAt    time.Time    `gorm:"not null"`
	Processed     bool         `gorm:"not null;default:false"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

// DayTotals is the exact re-sum of all raw records intersecting one UTC day.
type DayTotals struct {
	TotalBytes    uint64
	UploadBytes   uint64
	DownloadBytes uint64
	SMSCount      uint32
	Tenant        string
	Customer      string
	RecordCount   int64
}
