package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository owns aggregate rows, the dirty set, and the watermark.
type Repository interface {
	// MarkDirty upserts dirty keys for the given UTC days, refreshing
	// marked_at so an in-flight scheduler run will not clear them.
	MarkDirty(ctx context.Context, tx *gorm.DB, subscriberID string, days []time.Time, at time.Time) error

	// ClaimDirty returns up to limit dirty keys ordered oldest first.
	ClaimDirty(ctx context.Context, limit int) ([]DirtyKey, error)

	// ClearDirty removes a key unless it was re-marked after claimedAt.
	ClearDirty(ctx context.Context, key DirtyKey) error

	// RecomputeDay re-sums raw records for the key's day and overwrites the
	// aggregate row, deleting it when no records remain.
	RecomputeDay(ctx context.Context, subscriberID string, day time.Time, now time.Time) error

	// QueryRange scans aggregates intersecting the filter, ordered by day.
	QueryRange(ctx context.Context, filter RangeFilter) ([]Bucket, error)

	GetWatermark(ctx context.Context) (*Watermark, error)
	UpdateWatermark(ctx context.Context, wm *Watermark) error
}
