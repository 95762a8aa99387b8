package migration

import (
	"github.com/hirelens/hirelens/internal/config"
	entitlementdomain "github.com/hirelens/hirelens/internal/entitlement/domain"
	lifecycledomain "github.com/hirelens/hirelens/internal/lifecycle/domain"
	organizationdomain "github.com/hirelens/hirelens/internal/organization/domain"
	"github.com/hirelens/hirelens/internal/seed"
	usagedomain "github.com/hirelens/hirelens/internal/usage/domain"
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
			// Embedded migrations are written for postgres; sqlite and
			// mysql installs get their schema from the models directly.
			if err := conn.AutoMigrate(
				&organizationdomain.Organization{},
				&lifecycledomain.Lifecycle{},
				&lifecycledomain.Transition{},
				&entitlementdomain.Entitlement{},
				&usagedomain.UsageCounter{},
			); err != nil {
				return err
			}
		}

		if cfg.DefaultOrgID != 0 {
			return seed.EnsureDefaultOrgWithID(conn, cfg.DefaultOrgID)
		}
		return seed.EnsureDefaultOrg(conn)
	}),
)
