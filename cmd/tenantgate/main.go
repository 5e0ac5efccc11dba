// Command tenantgate serves the tenant-scoped site API and the admin API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hyvewellness/tenantgate/app"
	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/modules/admin"
	"github.com/hyvewellness/tenantgate/modules/site"
)

func main() {
	// A missing .env is fine; the environment and config files still apply.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("Failed to build application")
	}

	for _, m := range []app.Module{site.NewModule(), admin.NewModule()} {
		if err := a.RegisterModule(m); err != nil {
			_ = a.Shutdown(context.Background())
			appLogger.Fatal().Err(err).Msg("Failed to register module")
		}
	}

	if err := a.Run(ctx); err != nil {
		appLogger.Error().Err(err).Msg("Application stopped with error")
		stop()
		os.Exit(1)
	}
}
