package migration

import (
	aggregatedomain "github.com/smallbiznis/telemetra/internal/aggregate/domain"
	apikeydomain "github.com/smallbiznis/telemetra/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/telemetra/internal/audit/domain"
	"github.com/smallbiznis/telemetra/internal/config"
	usagecycledomain "github.com/smallbiznis/telemetra/internal/usagecycle/domain"
	usagerecorddomain "github.com/smallbiznis/telemetra/internal/usagerecord/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if cfg.DBType != "postgres" {
			// sqlite and mysql are dev/test targets; gorm owns the schema there
			return conn.AutoMigrate(
				&usagerecorddomain.UsageRecord{},
				&aggregatedomain.DailyUsageAggregate{},
				&aggregatedomain.DirtyKey{},
				&aggregatedomain.Watermark{},
				&usagecycledomain.UsageCycle{},
				&apikeydomain.APIKey{},
				&auditdomain.AuditLog{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB, log.Named("migration"))
	}),
)
