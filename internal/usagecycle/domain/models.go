// Package domain defines billing cycles and their lifecycle.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CycleStatus is the lifecycle state of a billing cycle.
//
// OPEN       -> OVER_LIMIT  when a data or SMS limit is first reached
// OPEN       -> CLOSED      on reset or natural expiry
// OVER_LIMIT -> CLOSED      on reset or natural expiry
//
// CLOSED is terminal. There is no transition back from OVER_LIMIT to OPEN.
type CycleStatus string

const (
	CycleOpen      CycleStatus = "OPEN"
	CycleOverLimit CycleStatus = "OVER_LIMIT"
	CycleClosed    CycleStatus = "CLOSED"
)

var (
	ErrCycleNotFound     = errors.New("cycle_not_found")
	ErrCycleOverlap      = errors.New("cycle_overlap")
	ErrInvalidSubscriber = errors.New("invalid_subscriber")
	ErrInvalidCycleRange = errors.New("invalid_cycle_range")
)

// UsageCycle tracks consumption against plan limits for one billing period.
// UsedBytes and UsedSMS are running counters maintained transactionally with
// record ingestion; they are not derived from daily aggregates.
type UsageCycle struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	SubscriberID   string       `gorm:"column:subscriber_id;type:text;not null;index"`
	CycleStart     time.Time    `gorm:"not null"`
	CycleEnd       time.Time    `gorm:"not null"`
	DataLimitBytes uint64       `gorm:"not null"`
	SMSLimit       uint32       `gorm:"column:sms_limit;not null"`
	UsedBytes      uint64       `gorm:"not null;default:0"`
	UsedSMS        uint32       `gorm:"column:used_sms;not null;default:0"`
	Status         CycleStatus  `gorm:"type:text;not null;default:'OPEN'"`
	OverLimitAt    *time.Time
	ClosedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName sets the database table name.
func (UsageCycle) TableName() string { return "usage_cycles" }

// Active reports whether the cycle still accepts usage.
func (c *UsageCycle) Active() bool {
	return c.Status == CycleOpen || c.Status == CycleOverLimit
}

// Covers reports whether ts falls inside [CycleStart, CycleEnd).
func (c *UsageCycle) Covers(ts time.Time) bool {
	return !ts.Before(c.CycleStart) && ts.Before(c.CycleEnd)
}
