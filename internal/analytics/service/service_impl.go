package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	aggregatedomain "github.com/smallbiznis/telemetra/internal/aggregate/domain"
	domain "github.com/smallbiznis/telemetra/internal/analytics/domain"
	"github.com/smallbiznis/telemetra/internal/clock"
	"github.com/smallbiznis/telemetra/internal/config"
	"github.com/smallbiznis/telemetra/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Aggregates aggregatedomain.Repository
	Backend    domain.HistoricalBackend
	Clock      clock.Clock
	Config     config.Config
	Log        *zap.Logger
	Metrics    *metrics.Metrics `optional:"true"`
}

// Service splits each query at the retention cutoff: days from the cutoff
// onward are served from local aggregates, older days from the historical
// backend. The cutoff day itself belongs to the local half.
type Service struct {
	aggregates   aggregatedomain.Repository
	backend      domain.HistoricalBackend
	clock        clock.Clock
	retention    time.Duration
	localTimeout time.Duration
	log          *zap.Logger
	metrics      *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		aggregates:   p.Aggregates,
		backend:      p.Backend,
		clock:        p.Clock,
		retention:    time.Duration(p.Config.Analytics.RetentionDays) * 24 * time.Hour,
		localTimeout: p.Config.Analytics.LocalTimeout,
		log:          p.Log.Named("analytics"),
		metrics:      p.Metrics,
	}
}

func (s *Service) Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	cutoff := s.clock.Now().UTC().Add(-s.retention).Truncate(24 * time.Hour)

	var (
		plan            string
		localRange      *domain.Range
		historicalRange *domain.Range
	)
	switch {
	case !req.PeriodStart.Before(cutoff):
		plan = "local"
		localRange = &domain.Range{Start: req.PeriodStart, End: req.PeriodEnd}
	case !req.PeriodEnd.After(cutoff):
		plan = "historical"
		historicalRange = &domain.Range{Start: req.PeriodStart, End: req.PeriodEnd}
	default:
		plan = "split"
		historicalRange = &domain.Range{Start: req.PeriodStart, End: cutoff}
		localRange = &domain.Range{Start: cutoff, End: req.PeriodEnd}
	}

	var (
		wg        sync.WaitGroup
		localPts  []domain.SeriesPoint
		localErr  error
		remotePts []domain.SeriesPoint
		remoteErr error
	)

	if localRange != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			localCtx, cancel := context.WithTimeout(ctx, s.localTimeout)
			defer cancel()
			localPts, localErr = s.queryLocal(localCtx, req, *localRange)
		}()
	}
	if historicalRange != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			remoteReq := req
			remoteReq.PeriodStart = historicalRange.Start
			remoteReq.PeriodEnd = historicalRange.End
			remotePts, remoteErr = s.backend.Query(ctx, remoteReq)
		}()
	}
	wg.Wait()

	// Local aggregates are authoritative; a local failure fails the query
	// outright regardless of what the backend returned.
	if localErr != nil {
		s.metrics.IncAnalyticsQuery(plan, false)
		return nil, localErr
	}
	if remoteErr != nil && localRange == nil {
		s.metrics.IncAnalyticsQuery(plan, false)
		return nil, remoteErr
	}

	resp := &domain.QueryResponse{}
	if remoteErr != nil {
		resp.Partial = true
		resp.MissingRange = historicalRange
		remotePts = nil
		s.log.Warn("history backend unavailable, returning partial series",
			zap.Time("missing_start", historicalRange.Start),
			zap.Time("missing_end", historicalRange.End),
			zap.Error(remoteErr),
		)
	}
	resp.Series = mergeSeries(req.Granularity, localPts, remotePts)
	s.metrics.IncAnalyticsQuery(plan, resp.Partial)
	return resp, nil
}

func (s *Service) queryLocal(ctx context.Context, req domain.QueryRequest, r domain.Range) ([]domain.SeriesPoint, error) {
	buckets, err := s.aggregates.QueryRange(ctx, aggregatedomain.RangeFilter{
		Start:              r.Start,
		End:                r.End,
		Tenant:             req.Tenant,
		Customer:           req.Customer,
		Subscribers:        req.Subscribers,
		ExcludeSubscribers: req.ExcludeSubscribers,
	})
	if err != nil {
		return nil, err
	}

	points := make([]domain.SeriesPoint, 0, len(buckets))
	for _, b := range buckets {
		if !matchesNetwork(b.SubscriberID, req.Networks) {
			continue
		}
		points = append(points, domain.SeriesPoint{
			SubscriberID:  b.SubscriberID,
			Date:          b.Day,
			TotalBytes:    b.TotalBytes,
			UploadBytes:   b.UploadBytes,
			DownloadBytes: b.DownloadBytes,
			SMSCount:      b.SMSCount,
		})
	}
	return points, nil
}

func validate(req *domain.QueryRequest) error {
	req.PeriodStart = req.PeriodStart.UTC()
	req.PeriodEnd = req.PeriodEnd.UTC()
	if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() || !req.PeriodEnd.After(req.PeriodStart) {
		return domain.ErrInvalidRange
	}

	switch req.Granularity {
	case "":
		req.Granularity = domain.GranularityDay
	case domain.GranularityDay, domain.GranularityMonth:
	default:
		return domain.ErrInvalidGranularity
	}
	return nil
}

// mergeSeries sums points from both halves into granularity buckets. The
// halves cover disjoint day ranges, so addition never double-counts; a month
// straddling the cutoff simply receives contributions from both sources.
func mergeSeries(granularity string, halves ...[]domain.SeriesPoint) []domain.SeriesPoint {
	type key struct {
		subscriber string
		date       time.Time
	}

	acc := make(map[key]*domain.SeriesPoint)
	for _, half := range halves {
		for _, p := range half {
			k := key{subscriber: p.SubscriberID, date: bucketFor(p.Date, granularity)}
			existing, ok := acc[k]
			if !ok {
				acc[k] = &domain.SeriesPoint{
					SubscriberID:  p.SubscriberID,
					Date:          k.date,
					TotalBytes:    p.TotalBytes,
					UploadBytes:   p.UploadBytes,
					DownloadBytes: p.DownloadBytes,
					SMSCount:      p.SMSCount,
				}
				continue
			}
			existing.TotalBytes += p.TotalBytes
			existing.UploadBytes += p.UploadBytes
			existing.DownloadBytes += p.DownloadBytes
			existing.SMSCount += p.SMSCount
		}
	}

	series := make([]domain.SeriesPoint, 0, len(acc))
	for _, p := range acc {
		series = append(series, *p)
	}
	sort.Slice(series, func(i, j int) bool {
		if !series[i].Date.Equal(series[j].Date) {
			return series[i].Date.Before(series[j].Date)
		}
		return series[i].SubscriberID < series[j].SubscriberID
	})
	return series
}

func bucketFor(ts time.Time, granularity string) time.Time {
	ts = ts.UTC()
	if granularity == domain.GranularityMonth {
		return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return ts.Truncate(24 * time.Hour)
}

// matchesNetwork treats a network filter as an issuer prefix of the ICCID
// after the industry prefix "89".
func matchesNetwork(iccid string, networks []string) bool {
	if len(networks) == 0 {
		return true
	}
	body := strings.TrimPrefix(iccid, "89")
	for _, network := range networks {
		if network == "" {
			continue
		}
		if strings.HasPrefix(body, network) {
			return true
		}
	}
	return false
}
