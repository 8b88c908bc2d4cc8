package aggregate

import (
	"github.com/smallbiznis/telemetra/internal/aggregate/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("aggregate",
	fx.Provide(repository.NewRepository),
)
