package migration

import (
	brandingdomain "github.com/smallbiznis/invoiceflow/internal/branding/domain"
	"github.com/smallbiznis/invoiceflow/internal/config"
	invoicedomain "github.com/smallbiznis/invoiceflow/internal/invoice/domain"
	"github.com/smallbiznis/invoiceflow/internal/notify"
	pipelinedomain "github.com/smallbiznis/invoiceflow/internal/pipeline/domain"
	"github.com/smallbiznis/invoiceflow/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql deployments are dev conveniences; AutoMigrate
			// keeps them working without maintaining per-dialect SQL.
			if err := conn.AutoMigrate(
				&brandingdomain.MerchantBranding{},
				&invoicedomain.Invoice{},
				&pipelinedomain.Job{},
				&notify.Record{},
			); err != nil {
				return err
			}
		}

		if cfg.SeedDemoMerchant {
			return seed.EnsureDemoMerchant(conn)
		}
		return nil
	}),
)
