package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/systemshift/cypherview/internal/app"
	"github.com/systemshift/cypherview/internal/config"
	"github.com/systemshift/cypherview/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("CYPHERVIEW_CONFIG"), "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Must("error", false).Fatal("Failed to load configuration", zap.Error(err))
	}
	logger := logging.Must(cfg.Log.Level, cfg.Log.Development)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	if err := a.Serve(ctx); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
