package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"creatorfund-core/pkg/config"
	"creatorfund-core/pkg/db"
	"creatorfund-core/pkg/gen"
	"creatorfund-core/pkg/health"
	"creatorfund-core/pkg/logger"
	"creatorfund-core/pkg/paymentgw"
	"creatorfund-core/pkg/redis"
	"creatorfund-core/pkg/server"
	"creatorfund-core/services/ledger"
	"creatorfund-core/services/subscription"
	"creatorfund-core/services/webhook"
	"creatorfund-core/services/withdrawal"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		paymentgw.Module,
		fx.Provide(server.ProvideRouter),
		health.Module,
		ledger.Module,
		withdrawal.Module,
		subscription.Module,
		webhook.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
