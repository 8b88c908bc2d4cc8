// Package scheduler drains the dirty set of (subscriber, day) keys and
// recomputes daily usage aggregates under an exclusive lease.
package scheduler

import (
	"context"
	"errors"
	"time"

	aggregatedomain "github.com/smallbiznis/telemetra/internal/aggregate/domain"
	"github.com/smallbiznis/telemetra/internal/clock"
	"github.com/smallbiznis/telemetra/internal/observability/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Scheduler struct {
	cfg        Config
	lease      Lease
	aggregates aggregatedomain.Repository
	clock      clock.Clock
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func New(cfg Config, lease Lease, aggregates aggregatedomain.Repository, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		cfg:        cfg.withDefaults(),
		lease:      lease,
		aggregates: aggregates,
		clock:      clk,
		log:        log.Named("scheduler"),
		metrics:    m,
	}
}

// RunForever runs aggregation passes until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Error("aggregation run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one aggregation pass: acquire the lease, drain the dirty
// set in batches, advance the watermark. A pass that cannot take the lease
// is a no-op. Hitting the soft deadline stops the drain without failing the
// run; remaining keys stay dirty for the next pass.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	held, err := s.lease.TryAcquire(ctx, s.cfg.LeaseTTL)
	if err != nil {
		return err
	}
	if !held {
		s.log.Debug("aggregation lease held elsewhere, skipping run")
		return nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.lease.Release(releaseCtx); err != nil {
			s.log.Warn("lease release failed", zap.Error(err))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.MaxRunDuration)
	defer cancel()

	start := s.clock.Now()
	processed, failed, hitDeadline, err := s.drain(runCtx)
	elapsed := s.clock.Now().Sub(start)

	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case hitDeadline:
		status = "timeout"
	case failed > 0:
		status = "partial"
	}
	s.metrics.ObserveAggregationRun(status, elapsed)

	wmErr := s.aggregates.UpdateWatermark(ctx, &aggregatedomain.Watermark{
		AdvancedTo:      start.UTC(),
		LastRunAt:       start.UTC(),
		LastRunStatus:   status,
		LastRunDuration: elapsed.Milliseconds(),
	})
	if wmErr != nil {
		s.log.Warn("watermark update failed", zap.Error(wmErr))
	}

	s.log.Info("aggregation run finished",
		zap.String("status", status),
		zap.Int("keys_processed", processed),
		zap.Int("keys_failed", failed),
		zap.Duration("elapsed", elapsed),
	)
	return err
}

// drain claims and recomputes dirty keys until the set is empty or the run
// deadline expires. Failed keys stay dirty for the next run.
func (s *Scheduler) drain(ctx context.Context) (processed, failed int, hitDeadline bool, err error) {
	for {
		select {
		case <-ctx.Done():
			return processed, failed, true, nil
		default:
		}

		keys, err := s.aggregates.ClaimDirty(ctx, s.cfg.BatchSize)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return processed, failed, true, nil
			}
			return processed, failed, false, err
		}
		if len(keys) == 0 {
			return processed, failed, false, nil
		}

		batchFailed := s.recomputeBatch(ctx, keys)
		processed += len(keys) - batchFailed
		failed += batchFailed

		if ctx.Err() != nil {
			return processed, failed, true, nil
		}

		// Every key in the batch failed; stop instead of spinning on the
		// same keys.
		if batchFailed == len(keys) {
			return processed, failed, false, nil
		}
	}
}

func (s *Scheduler) recomputeBatch(ctx context.Context, keys []aggregatedomain.DirtyKey) int {
	// In-flight recomputations are allowed to finish past the soft
	// deadline; only starting new keys is gated on ctx.
	gctx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)

	failures := make(chan struct{}, len(keys))
	for _, key := range keys {
		key := key
		g.Go(func() error {
			select {
			case <-ctx.Done():
				failures <- struct{}{}
				return nil
			default:
			}

			if err := s.recomputeWithRetry(gctx, key); err != nil {
				s.metrics.IncAggregationKey("error")
				s.log.Error("day recomputation failed",
					zap.String("subscriber_id", key.SubscriberID),
					zap.Time("day", key.Day),
					zap.Error(err),
				)
				failures <- struct{}{}
				return nil
			}

			if err := s.aggregates.ClearDirty(gctx, key); err != nil {
				s.metrics.IncAggregationKey("error")
				failures <- struct{}{}
				return nil
			}
			s.metrics.IncAggregationKey("ok")
			return nil
		})
	}
	_ = g.Wait()
	close(failures)

	failed := 0
	for range failures {
		failed++
	}
	return failed
}

// recomputeWithRetry retries transient failures with bounded exponential
// backoff; the key stays dirty when attempts are exhausted.
func (s *Scheduler) recomputeWithRetry(ctx context.Context, key aggregatedomain.DirtyKey) error {
	var err error
	delay := s.cfg.RetryBaseDelay
	for attempt := 0; attempt <= s.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		err = s.aggregates.RecomputeDay(ctx, key.SubscriberID, key.Day, s.clock.Now())
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
	}
	return err
}
