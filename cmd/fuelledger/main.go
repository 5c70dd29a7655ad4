package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/authorization"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/config"
	"github.com/smallbiznis/fuelledger/internal/deliveryreceipt"
	"github.com/smallbiznis/fuelledger/internal/events"
	"github.com/smallbiznis/fuelledger/internal/ledger"
	"github.com/smallbiznis/fuelledger/internal/migration"
	"github.com/smallbiznis/fuelledger/internal/observability"
	"github.com/smallbiznis/fuelledger/internal/orderslip"
	"github.com/smallbiznis/fuelledger/internal/placement"
	"github.com/smallbiznis/fuelledger/internal/recalculation"
	"github.com/smallbiznis/fuelledger/internal/scheduler"
	"github.com/smallbiznis/fuelledger/internal/sequence"
	"github.com/smallbiznis/fuelledger/internal/server"
	"github.com/smallbiznis/fuelledger/internal/volume"
	"github.com/smallbiznis/fuelledger/pkg/db"
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
		events.Module,
		events.RelayModule,
		authorization.Module,

		// Engine
		sequence.Module,
		ledger.Module,
		volume.Module,
		orderslip.Module,
		deliveryreceipt.Module,
		recalculation.Module,
		placement.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
