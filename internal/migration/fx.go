package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/carebridge/billing/internal/config"
	"github.com/carebridge/billing/internal/seed"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Postgres gets versioned SQL migrations; sqlite (local
		// development) falls back to AutoMigrate.
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			if err := seed.AutoMigrate(conn); err != nil {
				return err
			}
		}

		return seed.EnsureBaseline(conn, cfg)
	}),
)
