package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoiceflow/internal/branding"
	"github.com/smallbiznis/invoiceflow/internal/clock"
	"github.com/smallbiznis/invoiceflow/internal/config"
	"github.com/smallbiznis/invoiceflow/internal/invoice"
	"github.com/smallbiznis/invoiceflow/internal/locks"
	"github.com/smallbiznis/invoiceflow/internal/logger"
	"github.com/smallbiznis/invoiceflow/internal/migration"
	"github.com/smallbiznis/invoiceflow/internal/notify"
	"github.com/smallbiznis/invoiceflow/internal/observability/metrics"
	"github.com/smallbiznis/invoiceflow/internal/pipeline"
	"github.com/smallbiznis/invoiceflow/internal/providers/email"
	"github.com/smallbiznis/invoiceflow/internal/providers/slack"
	"github.com/smallbiznis/invoiceflow/internal/server"
	"github.com/smallbiznis/invoiceflow/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		locks.Module,
		metrics.Module,

		// Providers
		email.Module,
		slack.Module,

		// Functional domains
		branding.Module,
		invoice.Module,
		notify.Module,
		pipeline.Module,

		// Surfaces
		server.Module,
		migration.Module,
	)
	app.Run()
}

// RegisterSnowflake builds the process-wide id generator. The node id comes
// from SNOWFLAKE_NODE_ID so replicas never mint colliding ids.
func RegisterSnowflake() *snowflake.Node {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE_ID"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed >= 0 && parsed < 1024 {
			nodeID = parsed
		}
	}

	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		panic(err)
	}
	return node
}
