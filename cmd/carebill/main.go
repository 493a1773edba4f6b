package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/carebridge/billing/internal/calendar"
	"github.com/carebridge/billing/internal/clock"
	"github.com/carebridge/billing/internal/config"
	"github.com/carebridge/billing/internal/funder"
	"github.com/carebridge/billing/internal/invoice"
	"github.com/carebridge/billing/internal/logger"
	"github.com/carebridge/billing/internal/migration"
	"github.com/carebridge/billing/internal/observability/metrics"
	"github.com/carebridge/billing/internal/providers/pdf"
	"github.com/carebridge/billing/internal/rates"
	"github.com/carebridge/billing/internal/reconciliation"
	"github.com/carebridge/billing/internal/scheduler"
	"github.com/carebridge/billing/internal/server"
	"github.com/carebridge/billing/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		metrics.Module,

		calendar.Module,
		funder.Module,
		rates.Module,
		reconciliation.Module,
		invoice.Module,
		pdf.Module,
		scheduler.Module,

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
