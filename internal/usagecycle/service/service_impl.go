package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/telemetra/internal/clock"
	"github.com/smallbiznis/telemetra/internal/config"
	domain "github.com/smallbiznis/telemetra/internal/usagecycle/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Clock  clock.Clock
	Config config.Config
	Log    *zap.Logger
}

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock clock.Clock
	cfg   config.CycleConfig
	log   *zap.Logger
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		clock: p.Clock,
		cfg:   p.Config.Cycle,
		log:   p.Log.Named("usagecycle"),
	}
}

func (s *Service) GetCurrentCycle(ctx context.Context, subscriberID string) (*domain.UsageCycle, error) {
	subscriberID = strings.TrimSpace(subscriberID)
	if subscriberID == "" {
		return nil, domain.ErrInvalidSubscriber
	}

	now := s.clock.Now().UTC()
	var cycle domain.UsageCycle
	err := s.db.WithContext(ctx).
		Where("subscriber_id = ? AND status IN ? AND cycle_start <= ? AND cycle_end > ?",
			subscriberID,
			[]domain.CycleStatus{domain.CycleOpen, domain.CycleOverLimit},
			now, now).
		Order("cycle_start DESC").
		First(&cycle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCycleNotFound
		}
		return nil, err
	}
	return &cycle, nil
}

func (s *Service) CreateCycle(ctx context.Context, cycle *domain.UsageCycle) (*domain.UsageCycle, error) {
	if cycle == nil {
		return nil, domain.ErrInvalidCycleRange
	}
	cycle.SubscriberID = strings.TrimSpace(cycle.SubscriberID)
	if cycle.SubscriberID == "" {
		return nil, domain.ErrInvalidSubscriber
	}
	if !cycle.CycleEnd.After(cycle.CycleStart) {
		return nil, domain.ErrInvalidCycleRange
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureNoOverlap(ctx, tx, cycle.SubscriberID, cycle.CycleStart, cycle.CycleEnd); err != nil {
			return err
		}

		cycle.ID = s.node.Generate()
		if cycle.Status == "" {
			cycle.Status = domain.CycleOpen
		}
		now := s.clock.Now().UTC()
		cycle.CreatedAt = now
		cycle.UpdatedAt = now
		return tx.Create(cycle).Error
	})
	if err != nil {
		return nil, err
	}
	return cycle, nil
}

func (s *Service) ResetCycle(ctx context.Context, subscriberID string) (*domain.UsageCycle, error) {
	subscriberID = strings.TrimSpace(subscriberID)
	if subscriberID == "" {
		return nil, domain.ErrInvalidSubscriber
	}

	now := s.clock.Now().UTC()
	var fresh *domain.UsageCycle
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current domain.UsageCycle
		err := tx.
			Where("subscriber_id = ? AND status IN ?",
				subscriberID,
				[]domain.CycleStatus{domain.CycleOpen, domain.CycleOverLimit}).
			Order("cycle_start DESC").
			First(&current).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrCycleNotFound
			}
			return err
		}

		// Guarded close so a concurrent reset cannot close the same cycle twice.
		res := tx.Model(&domain.UsageCycle{}).
			Where("id = ? AND status IN ?", current.ID,
				[]domain.CycleStatus{domain.CycleOpen, domain.CycleOverLimit}).
			Updates(map[string]interface{}{
				"status":     domain.CycleClosed,
				"closed_at":  now,
				"cycle_end":  now,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrCycleNotFound
		}

		length := current.CycleEnd.Sub(current.CycleStart)
		if length <= 0 {
			length = time.Duration(s.cfg.DefaultLengthDays) * 24 * time.Hour
		}

		fresh = &domain.UsageCycle{
			ID:             s.node.Generate(),
			SubscriberID:   subscriberID,
			CycleStart:     now,
			CycleEnd:       now.Add(length),
			DataLimitBytes: current.DataLimitBytes,
			SMSLimit:       current.SMSLimit,
			Status:         domain.CycleOpen,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.Create(fresh).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("cycle reset",
		zap.String("subscriber_id", subscriberID),
		zap.Time("cycle_start", fresh.CycleStart),
		zap.Time("cycle_end", fresh.CycleEnd),
	)
	return fresh, nil
}

func (s *Service) ApplyUsage(ctx context.Context, tx *gorm.DB, subscriberID string, bytes uint64, sms uint32, at time.Time) error {
	subscriberID = strings.TrimSpace(subscriberID)
	if subscriberID == "" {
		return domain.ErrInvalidSubscriber
	}
	if tx == nil {
		return errors.New("missing_db")
	}
	at = at.UTC()

	cycle, err := s.activeCycleFor(ctx, tx, subscriberID, at)
	if err != nil {
		return err
	}
	if cycle == nil {
		// Late usage from before the current cycle: there is no window to
		// charge, but the raw record still counts toward aggregates.
		return nil
	}

	res := tx.WithContext(ctx).Exec(
		`UPDATE usage_cycles
		 SET used_bytes = used_bytes + ?, used_sms = used_sms + ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		bytes, sms, s.clock.Now().UTC(),
		cycle.ID, domain.CycleOpen, domain.CycleOverLimit,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// cycle closed between lookup and update; record stays stored,
		// counters simply stop at the closed boundary
		return nil
	}

	// The OPEN guard makes the limit transition fire exactly once per
	// cycle. A zero limit means unlimited and never trips.
	now := s.clock.Now().UTC()
	res = tx.WithContext(ctx).Exec(
		`UPDATE usage_cycles
		 SET status = ?, over_limit_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?
		   AND ((data_limit_bytes > 0 AND used_bytes >= data_limit_bytes)
		     OR (sms_limit > 0 AND used_sms >= sms_limit))`,
		domain.CycleOverLimit, now, now,
		cycle.ID, domain.CycleOpen,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.log.Warn("cycle limit reached",
			zap.String("subscriber_id", subscriberID),
			zap.String("cycle_id", cycle.ID.String()),
		)
	}
	return nil
}

// activeCycleFor finds the non-closed cycle covering at, closing expired
// cycles and provisioning a default one when the subscriber has none. It
// returns a nil cycle when at predates an existing cycle: charging such
// usage would need a backdated window overlapping the current one, and
// cycle bookkeeping must never veto an ingest.
func (s *Service) activeCycleFor(ctx context.Context, tx *gorm.DB, subscriberID string, at time.Time) (*domain.UsageCycle, error) {
	var cycle domain.UsageCycle
	err := tx.WithContext(ctx).
		Where("subscriber_id = ? AND status IN ? AND cycle_start <= ? AND cycle_end > ?",
			subscriberID,
			[]domain.CycleStatus{domain.CycleOpen, domain.CycleOverLimit},
			at, at).
		Order("cycle_start DESC").
		First(&cycle).Error
	if err == nil {
		return &cycle, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := s.clock.Now().UTC()
	res := tx.WithContext(ctx).Model(&domain.UsageCycle{}).
		Where("subscriber_id = ? AND status IN ? AND cycle_end <= ?",
			subscriberID,
			[]domain.CycleStatus{domain.CycleOpen, domain.CycleOverLimit},
			at).
		Updates(map[string]interface{}{
			"status":     domain.CycleClosed,
			"closed_at":  now,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}

	start := at.Truncate(24 * time.Hour)
	fresh := &domain.UsageCycle{
		ID:             s.node.Generate(),
		SubscriberID:   subscriberID,
		CycleStart:     start,
		CycleEnd:       start.AddDate(0, 0, s.cfg.DefaultLengthDays),
		DataLimitBytes: s.cfg.DefaultDataLimitBytes,
		SMSLimit:       s.cfg.DefaultSMSLimit,
		Status:         domain.CycleOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.ensureNoOverlap(ctx, tx, subscriberID, fresh.CycleStart, fresh.CycleEnd); err != nil {
		if errors.Is(err, domain.ErrCycleOverlap) {
			s.log.Debug("usage predates current cycle, skipping cycle charge",
				zap.String("subscriber_id", subscriberID),
				zap.Time("at", at),
			)
			return nil, nil
		}
		return nil, err
	}
	if err := tx.WithContext(ctx).Create(fresh).Error; err != nil {
		return nil, err
	}

	s.log.Info("default cycle provisioned",
		zap.String("subscriber_id", subscriberID),
		zap.Time("cycle_start", fresh.CycleStart),
		zap.Time("cycle_end", fresh.CycleEnd),
	)
	return fresh, nil
}

func (s *Service) ensureNoOverlap(ctx context.Context, tx *gorm.DB, subscriberID string, start, end time.Time) error {
	var count int64
	err := tx.WithContext(ctx).Model(&domain.UsageCycle{}).
		Where("subscriber_id = ? AND status IN ? AND cycle_start < ? AND cycle_end > ?",
			subscriberID,
			[]domain.CycleStatus{domain.CycleOpen, domain.CycleOverLimit},
			end, start).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrCycleOverlap
	}
	return nil
}
