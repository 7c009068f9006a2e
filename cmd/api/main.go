// Command api serves the public onboarding wizards and the staff review API.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/PartnerGate/internal/config"
	"github.com/dharsanguruparan/PartnerGate/internal/logging"
	"github.com/dharsanguruparan/PartnerGate/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := logging.NewJSON(os.Stdout, level)

	stack, err := server.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer stack.Close()

	logger.Info(ctx, "starting api", "store", cfg.Store, "address", cfg.Address)
	if err := stack.Serve(ctx); err != nil {
		logger.Error(ctx, "api stopped", "error", err)
		stack.Close()
		os.Exit(1)
	}
}
