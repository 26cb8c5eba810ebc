package migration

import (
	"github.com/smallbiznis/coursepay/internal/config"
	errorlogdomain "github.com/smallbiznis/coursepay/internal/errorlog"
	productkeydomain "github.com/smallbiznis/coursepay/internal/productkey/domain"
	purchasedomain "github.com/smallbiznis/coursepay/internal/purchase/domain"
	subscriptiondomain "github.com/smallbiznis/coursepay/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if cfg.DBType != "postgres" {
			// The embedded SQL targets postgres; other dialects get the
			// equivalent schema from the models.
			log.Info("auto-migrating schema", zap.String("db_type", cfg.DBType))
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

// AutoMigrate creates the schema from the gorm models. Used for sqlite and
// mysql deployments and in tests.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&purchasedomain.Record{},
		&productkeydomain.ProductKey{},
		&subscriptiondomain.Subscription{},
		&errorlogdomain.Entry{},
	)
}
