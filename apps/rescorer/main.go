package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/lock"
	"github.com/smallbiznis/storepulse/internal/migration"
	"github.com/smallbiznis/storepulse/internal/observability"
	"github.com/smallbiznis/storepulse/internal/rescore"
	"github.com/smallbiznis/storepulse/internal/scoring"
	"github.com/smallbiznis/storepulse/internal/signal"
	"github.com/smallbiznis/storepulse/internal/store"
	"github.com/smallbiznis/storepulse/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,

		// Domain services required by the rescorer
		store.Module,
		signal.Module,
		scoring.Module,

		// No server module!
		rescore.Module,
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
