package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Service manages billing cycle state.
type Service interface {
	// GetCurrentCycle returns the active cycle covering now, if any.
	GetCurrentCycle(ctx context.Context, subscriberID string) (*UsageCycle, error)

	// CreateCycle provisions an explicit cycle. Overlap with an existing
	// non-closed cycle is rejected with ErrCycleOverlap.
	CreateCycle(ctx context.Context, cycle *UsageCycle) (*UsageCycle, error)

	// ResetCycle closes the active cycle and opens a fresh one starting now
	// with the closed cycle's limits.
	ResetCycle(ctx context.Context, subscriberID string) (*UsageCycle, error)

	// ApplyUsage adds counters to the cycle covering at, provisioning a
	// default cycle when none exists. Must run inside the caller's ingestion
	// transaction so cycle counters never drift from stored records.
	ApplyUsage(ctx context.Context, tx *gorm.DB, subscriberID string, bytes uint64, sms uint32, at time.Time) error
}
