package usagecycle

import (
	"github.com/smallbiznis/telemetra/internal/usagecycle/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usagecycle",
	fx.Provide(service.NewService),
)
