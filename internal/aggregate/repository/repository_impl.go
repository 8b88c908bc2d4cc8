package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	domain "github.com/smallbiznis/telemetra/internal/aggregate/domain"
	usagerecorddomain "github.com/smallbiznis/telemetra/internal/usagerecord/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Node    *snowflake.Node
	Records usagerecorddomain.Repository
}

type Repository struct {
	db      *gorm.DB
	node    *snowflake.Node
	records usagerecorddomain.Repository
}

func NewRepository(p Params) domain.Repository {
	return &Repository{
		db:      p.DB,
		node:    p.Node,
		records: p.Records,
	}
}

func (r *Repository) MarkDirty(ctx context.Context, tx *gorm.DB, subscriberID string, days []time.Time, at time.Time) error {
	if tx == nil {
		tx = r.db
	}
	if len(days) == 0 {
		return nil
	}

	keys := make([]domain.DirtyKey, 0, len(days))
	for _, day := range days {
		keys = append(keys, domain.DirtyKey{
			SubscriberID: subscriberID,
			Day:          day.UTC().Truncate(24 * time.Hour),
			MarkedAt:     at.UTC(),
		})
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subscriber_id"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{"marked_at"}),
	}).Create(&keys).Error
}

func (r *Repository) ClaimDirty(ctx context.Context, limit int) ([]domain.DirtyKey, error) {
	if limit <= 0 {
		limit = 100
	}
	var keys []domain.DirtyKey
	err := r.db.WithContext(ctx).
		Order("marked_at ASC").
		Limit(limit).
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *Repository) ClearDirty(ctx context.Context, key domain.DirtyKey) error {
	// A re-mark bumps marked_at past the claimed value, keeping the key
	// alive for the next run.
	return r.db.WithContext(ctx).
		Where("subscriber_id = ? AND day = ? AND marked_at <= ?",
			key.SubscriberID, key.Day, key.MarkedAt).
		Delete(&domain.DirtyKey{}).Error
}

func (r *Repository) RecomputeDay(ctx context.Context, subscriberID string, day time.Time, now time.Time) error {
	day = day.UTC().Truncate(24 * time.Hour)
	now = now.UTC()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		totals, err := r.records.SumDay(ctx, tx, subscriberID, day)
		if err != nil {
			return err
		}

		if totals.RecordCount == 0 {
			return tx.
				Where("subscriber_id = ? AND day = ?", subscriberID, day).
				Delete(&domain.DailyUsageAggregate{}).Error
		}

		aggregate := domain.DailyUsageAggregate{
			ID:            r.node.Generate(),
			SubscriberID:  subscriberID,
			Day:           day,
			TotalBytes:    totals.TotalBytes,
			UploadBytes:   totals.UploadBytes,
			DownloadBytes: totals.DownloadBytes,
			SMSCount:      totals.SMSCount,
			Tenant:        totals.Tenant,
			Customer:      totals.Customer,
			RecomputedAt:  now,
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "subscriber_id"}, {Name: "day"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_bytes", "upload_bytes", "download_bytes",
				"sms_count", "tenant", "customer", "recomputed_at",
			}),
		}).Create(&aggregate).Error
	})
}

func (r *Repository) QueryRange(ctx context.Context, filter domain.RangeFilter) ([]domain.Bucket, error) {
	q := r.db.WithContext(ctx).Model(&domain.DailyUsageAggregate{}).
		Where("day >= ? AND day < ?", filter.Start.UTC(), filter.End.UTC())
	if filter.Tenant != "" {
		q = q.Where("tenant = ?", filter.Tenant)
	}
	if filter.Customer != "" {
		q = q.Where("customer = ?", filter.Customer)
	}
	if len(filter.Subscribers) > 0 {
		q = q.Where("subscriber_id IN ?", filter.Subscribers)
	}
	if len(filter.ExcludeSubscribers) > 0 {
		q = q.Where("subscriber_id NOT IN ?", filter.ExcludeSubscribers)
	}

	var rows []domain.DailyUsageAggregate
	if err := q.Order("day ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	buckets := make([]domain.Bucket, 0, len(rows))
	for _, row := range rows {
		buckets = append(buckets, domain.Bucket{
			SubscriberID:  row.SubscriberID,
			Day:           row.Day.UTC(),
			TotalBytes:    row.TotalBytes,
			UploadBytes:   row.UploadBytes,
			DownloadBytes: row.DownloadBytes,
			SMSCount:      row.SMSCount,
		})
	}
	return buckets, nil
}

func (r *Repository) GetWatermark(ctx context.Context) (*domain.Watermark, error) {
	var wm domain.Watermark
	err := r.db.WithContext(ctx).First(&wm, "id = ?", 1).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wm, nil
}

func (r *Repository) UpdateWatermark(ctx context.Context, wm *domain.Watermark) error {
	if wm == nil {
		return errors.New("missing_watermark")
	}
	wm.ID = 1
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"advanced_to", "last_run_at", "last_run_status", "last_run_duration",
		}),
	}).Create(wm).Error
}
