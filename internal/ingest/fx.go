package ingest

import (
	"github.com/smallbiznis/telemetra/internal/ingest/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ingest",
	fx.Provide(service.NewService),
)
