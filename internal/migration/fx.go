package migration

import (
	"context"

	"github.com/smallbiznis/orderdesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if cfg.DBType == "sqlite" {
			log.Info("applying sqlite schema", zap.String("database", cfg.DBName))
			return ApplySQLiteSchema(context.Background(), sqlDB)
		}
		return RunMigrations(sqlDB)
	}),
)
