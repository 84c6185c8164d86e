package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/authorization"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/heatmap"
	"github.com/smallbiznis/storepulse/internal/lock"
	"github.com/smallbiznis/storepulse/internal/migration"
	"github.com/smallbiznis/storepulse/internal/observability"
	"github.com/smallbiznis/storepulse/internal/query"
	querydomain "github.com/smallbiznis/storepulse/internal/query/domain"
	"github.com/smallbiznis/storepulse/internal/scoring"
	"github.com/smallbiznis/storepulse/internal/seed"
	"github.com/smallbiznis/storepulse/internal/server"
	"github.com/smallbiznis/storepulse/internal/signal"
	"github.com/smallbiznis/storepulse/internal/store"
	"github.com/smallbiznis/storepulse/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,

		// Functional Domains
		store.Module,
		signal.Module,
		scoring.Module,
		heatmap.Module,
		authorization.Module,
		query.Module,
		seed.Module,

		server.Module,

		// Build the composer at startup so wiring errors fail fast.
		fx.Invoke(func(querydomain.Service) {}),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		panic(err)
	}
	return node
}
