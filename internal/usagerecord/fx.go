package usagerecord

import (
	"github.com/smallbiznis/telemetra/internal/usagerecord/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("usagerecord",
	fx.Provide(repository.NewRepository),
)
