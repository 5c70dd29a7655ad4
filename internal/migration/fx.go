package migration

import (
	"github.com/smallbiznis/fuelledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.RunMigrations {
			log.Info("schema migrations disabled")
			return nil
		}
		if err := Apply(conn, cfg.DBType); err != nil {
			return err
		}
		log.Info("schema migrations applied", zap.String("type", cfg.DBType))
		return nil
	}),
)
