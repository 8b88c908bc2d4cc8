package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/telemetra/internal/clock"
	"github.com/smallbiznis/telemetra/internal/config"
	"github.com/smallbiznis/telemetra/internal/migration"
	"github.com/smallbiznis/telemetra/internal/observability"
	"github.com/smallbiznis/telemetra/internal/scheduler"
	"github.com/smallbiznis/telemetra/internal/server"
	"github.com/smallbiznis/telemetra/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
