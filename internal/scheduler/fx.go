package scheduler

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/telemetra/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(provideConfig),
	fx.Provide(provideLease),
	fx.Provide(New),
	fx.Invoke(run),
)

func provideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:    cfg.Scheduler.RunInterval,
		BatchSize:      cfg.Scheduler.BatchSize,
		Workers:        cfg.Scheduler.Workers,
		MaxRunDuration: cfg.Scheduler.MaxRunDuration,
		LeaseTTL:       cfg.Scheduler.LeaseTTL,
		RetryAttempts:  cfg.Scheduler.RetryAttempts,
		RetryBaseDelay: cfg.Scheduler.RetryBaseDelay,
	}
}

func provideLease(cfg config.Config, log *zap.Logger) Lease {
	if cfg.RedisAddr == "" {
		log.Named("scheduler").Info("no redis configured, using in-process lease")
		return NewLocalLease()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRedisLease(client)
}

func run(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
