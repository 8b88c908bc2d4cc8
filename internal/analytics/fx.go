package analytics

import (
	"github.com/smallbiznis/telemetra/internal/analytics/backend"
	domain "github.com/smallbiznis/telemetra/internal/analytics/domain"
	"github.com/smallbiznis/telemetra/internal/analytics/service"
	"github.com/smallbiznis/telemetra/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("analytics",
	fx.Provide(provideBackend),
	fx.Provide(service.NewService),
)

func provideBackend(cfg config.Config, log *zap.Logger) domain.HistoricalBackend {
	return backend.NewHTTPBackend(
		cfg.Analytics.BackendURL,
		cfg.Analytics.BackendToken,
		cfg.Analytics.BackendTimeout,
		log,
	)
}
