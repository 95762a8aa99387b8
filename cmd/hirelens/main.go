package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/hirelens/hirelens/internal/clock"
	"github.com/hirelens/hirelens/internal/config"
	"github.com/hirelens/hirelens/internal/entitlement"
	"github.com/hirelens/hirelens/internal/lifecycle"
	"github.com/hirelens/hirelens/internal/migration"
	"github.com/hirelens/hirelens/internal/observability"
	"github.com/hirelens/hirelens/internal/organization"
	"github.com/hirelens/hirelens/internal/quotagate"
	"github.com/hirelens/hirelens/internal/ratelimit"
	"github.com/hirelens/hirelens/internal/server"
	"github.com/hirelens/hirelens/internal/usage"
	"github.com/hirelens/hirelens/pkg/db"
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
		ratelimit.Module,

		// Functional domains
		entitlement.Module,
		usage.Module,
		lifecycle.Module,
		quotagate.Module,
		organization.Module,

		migration.Module,
		server.Module,
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
