package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository persists raw usage records.
type Repository interface {
	// Insert attempts to store the record. It reports false without error
	// when (subscriber_id, record_id) already exists; this is the
	// idempotency contract mediation systems rely on.
	Insert(ctx context.Context, tx *gorm.DB, record *UsageRecord) (bool, error)

	// SumDay re-sums every stored record whose [period_start, period_end)
	// intersects the UTC day starting at dayStart.
	SumDay(ctx context.Context, tx *gorm.DB, subscriberID string, dayStart time.Time) (DayTotals, error)
}
