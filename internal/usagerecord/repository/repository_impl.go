package repository

import (
	"context"
	"errors"
	"time"

	usagerecorddomain "github.com/smallbiznis/telemetra/internal/usagerecord/domain"
	"github.com/smallbiznis/telemetra/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct{}

func NewRepository() usagerecorddomain.Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, tx *gorm.DB, record *usagerecorddomain.UsageRecord) (bool, error) {
	if record == nil {
		return false, errors.New("missing_usage_record")
	}
	if tx == nil {
		return false, errors.New("missing_db")
	}

	result := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subscriber_id"}, {Name: "record_id"}},
		DoNothing: true,
	}).Create(record)
	if result.Error != nil {
		// some drivers still surface the unique violation instead of
		// honouring DO NOTHING; a replay is not an error
		if db.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) SumDay(ctx context.Context, tx *gorm.DB, subscriberID string, dayStart time.Time) (usagerecorddomain.DayTotals, error) {
	if tx == nil {
		return usagerecorddomain.DayTotals{}, errors.New("missing_db")
	}

	dayStart = dayStart.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var row struct {
		TotalBytes    uint64
		UploadBytes   uint64
		DownloadBytes uint64
		SMSCount      uint32
		RecordCount   int64
	}
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(total_bytes), 0) AS total_bytes,
		        COALESCE(SUM(upload_bytes), 0) AS upload_bytes,
		        COALESCE(SUM(download_bytes), 0) AS download_bytes,
		        COALESCE(SUM(sms_count), 0) AS sms_count,
		        COUNT(1) AS record_count
		 FROM usage_records
		 WHERE subscriber_id = ?
		   AND period_start < ?
		   AND period_end > ?`,
		subscriberID,
		dayEnd,
		dayStart,
	).Scan(&row).Error
	if err != nil {
		return usagerecorddomain.DayTotals{}, err
	}

	totals := usagerecorddomain.DayTotals{
		TotalBytes:    row.TotalBytes,
		UploadBytes:   row.UploadBytes,
		DownloadBytes: row.DownloadBytes,
		SMSCount:      row.SMSCount,
		RecordCount:   row.RecordCount,
	}
	if totals.RecordCount == 0 {
		return totals, nil
	}

	// tenant/customer snapshot from the most recent intersecting record
	var labels struct {
		Tenant   string
		Customer string
	}
	err = tx.WithContext(ctx).Raw(
		`SELECT tenant, customer
		 FROM usage_records
		 WHERE subscriber_id = ?
		   AND period_start < ?
		   AND period_end > ?
		 ORDER BY received_at DESC
		 LIMIT 1`,
		subscriberID,
		dayEnd,
		dayStart,
	).Scan(&labels).Error
	if err != nil {
		return usagerecorddomain.DayTotals{}, err
	}
	totals.Tenant = labels.Tenant
	totals.Customer = labels.Customer

	return totals, nil
}
