package main

import (
	"github.com/smallbiznis/coursepay/internal/cache"
	"github.com/smallbiznis/coursepay/internal/checkout"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/entitlement"
	"github.com/smallbiznis/coursepay/internal/errorlog"
	"github.com/smallbiznis/coursepay/internal/gateway/stripe"
	"github.com/smallbiznis/coursepay/internal/grace"
	"github.com/smallbiznis/coursepay/internal/migration"
	"github.com/smallbiznis/coursepay/internal/notification"
	"github.com/smallbiznis/coursepay/internal/objectstore"
	"github.com/smallbiznis/coursepay/internal/observability"
	"github.com/smallbiznis/coursepay/internal/productkey"
	"github.com/smallbiznis/coursepay/internal/providers"
	"github.com/smallbiznis/coursepay/internal/purchase"
	"github.com/smallbiznis/coursepay/internal/server"
	"github.com/smallbiznis/coursepay/internal/subscription"
	"github.com/smallbiznis/coursepay/internal/tax"
	"github.com/smallbiznis/coursepay/internal/webhook"
	"github.com/smallbiznis/coursepay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		clock.Module,
		db.Module,
		migration.Module,
		cache.Module,
		objectstore.Module,
		providers.Module,
		stripe.Module,

		// Stores
		errorlog.Module,
		purchase.Module,
		productkey.Module,
		subscription.Module,

		// Domains
		tax.Module,
		notification.Module,
		checkout.Module,
		entitlement.Module,
		grace.Module,
		webhook.Module,

		server.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}
