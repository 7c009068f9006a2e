// Command worker consumes contract generation tasks from the asynq queue.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

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
	if cfg.Store != config.StorePostgres {
		log.Fatalf("worker requires PARTNER_STORE=postgres, got %q", cfg.Store)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := logging.NewJSON(os.Stdout, level).With("component", "worker")

	stack, err := server.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer stack.Close()

	// the worker also sends the notifications its services queue
	stack.Side.Start(ctx)
	defer stack.Side.Wait()

	srv := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.SideJobs,
	})

	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	logger.Info(ctx, "worker started", "concurrency", cfg.SideJobs)
	if err := srv.Run(stack.Contracts.Handler()); err != nil {
		logger.Error(ctx, "worker stopped", "error", err)
		os.Exit(1)
	}
}
