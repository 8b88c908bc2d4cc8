package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	aggregatedomain "github.com/smallbiznis/telemetra/internal/aggregate/domain"
	"github.com/smallbiznis/telemetra/internal/clock"
	domain "github.com/smallbiznis/telemetra/internal/ingest/domain"
	"github.com/smallbiznis/telemetra/internal/observability/metrics"
	usagecycledomain "github.com/smallbiznis/telemetra/internal/usagecycle/domain"
	usagerecorddomain "github.com/smallbiznis/telemetra/internal/usagerecord/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Node       *snowflake.Node
	Clock      clock.Clock
	Records    usagerecorddomain.Repository
	Aggregates aggregatedomain.Repository
	Cycles     usagecycledomain.Service
	Log        *zap.Logger
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	node       *snowflake.Node
	clock      clock.Clock
	records    usagerecorddomain.Repository
	aggregates aggregatedomain.Repository
	cycles     usagecycledomain.Service
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		node:       p.Node,
		clock:      p.Clock,
		records:    p.Records,
		aggregates: p.Aggregates,
		cycles:     p.Cycles,
		log:        p.Log.Named("ingest"),
		metrics:    p.Metrics,
	}
}

func (s *Service) Submit(ctx context.Context, req domain.SubmitRequest) (domain.Result, error) {
	if err := validate(&req); err != nil {
		s.metrics.IncIngestOutcome("invalid")
		return domain.Result{RecordID: req.RecordID, Status: domain.StatusError, Reason: err.Error()}, err
	}

	now := s.clock.Now().UTC()
	record := &usagerecorddomain.UsageRecord{
		ID:            s.node.Generate(),
		SubscriberID:  req.SubscriberID,
		RecordID:      req.RecordID,
		PeriodStart:   req.PeriodStart.UTC(),
		PeriodEnd:     req.PeriodEnd.UTC(),
		TotalBytes:    uint64(req.Usage.TotalBytes),
		UploadBytes:   uint64(req.Usage.UploadBytes),
		DownloadBytes: uint64(req.Usage.DownloadBytes),
		SMSCount:      uint32(req.Usage.SMSCount),
		Source:        strings.TrimSpace(req.Source),
		Tenant:        strings.TrimSpace(req.Tenant),
		Customer:      strings.TrimSpace(req.Customer),
		Metadata:      req.Metadata,
		ReceivedAt:    now,
	}

	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inserted, err = s.records.Insert(ctx, tx, record)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		days := daysTouched(record.PeriodStart, record.PeriodEnd)
		if err := s.aggregates.MarkDirty(ctx, tx, record.SubscriberID, days, now); err != nil {
			return err
		}
		return s.cycles.ApplyUsage(ctx, tx, record.SubscriberID, record.TotalBytes, record.SMSCount, record.PeriodStart)
	})
	if err != nil {
		s.metrics.IncIngestOutcome("error")
		s.log.Error("ingest failed",
			zap.String("subscriber_id", req.SubscriberID),
			zap.String("record_id", req.RecordID),
			zap.Error(err),
		)
		return domain.Result{RecordID: req.RecordID, Status: domain.StatusError, Reason: "storage_error"}, err
	}

	if !inserted {
		s.metrics.IncIngestOutcome("duplicate")
		return domain.Result{RecordID: req.RecordID, Status: domain.StatusDuplicate}, nil
	}

	s.metrics.IncIngestOutcome("accepted")
	return domain.Result{RecordID: req.RecordID, Status: domain.StatusAccepted}, nil
}

func (s *Service) SubmitBatch(ctx context.Context, reqs []domain.SubmitRequest) []domain.Result {
	results := make([]domain.Result, 0, len(reqs))
	for _, req := range reqs {
		result, err := s.Submit(ctx, req)
		if err != nil && result.Reason == "" {
			result.Reason = err.Error()
		}
		results = append(results, result)
	}
	return results
}

func validate(req *domain.SubmitRequest) error {
	req.SubscriberID = strings.TrimSpace(req.SubscriberID)
	req.RecordID = strings.TrimSpace(req.RecordID)

	if req.SubscriberID == "" {
		return domain.ErrMissingSubscriber
	}
	if req.RecordID == "" {
		return domain.ErrMissingRecordID
	}
	if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() || !req.PeriodEnd.After(req.PeriodStart) {
		return domain.ErrInvalidPeriod
	}
	if req.Usage.TotalBytes < 0 || req.Usage.UploadBytes < 0 || req.Usage.DownloadBytes < 0 || req.Usage.SMSCount < 0 {
		return domain.ErrNegativeCounter
	}
	return nil
}

// daysTouched lists the UTC day starts intersected by [start, end).
func daysTouched(start, end time.Time) []time.Time {
	start = start.UTC()
	end = end.UTC()

	day := start.Truncate(24 * time.Hour)
	var days []time.Time
	for day.Before(end) {
		days = append(days, day)
		day = day.Add(24 * time.Hour)
	}
	if len(days) == 0 {
		days = append(days, start.Truncate(24*time.Hour))
	}
	return days
}
