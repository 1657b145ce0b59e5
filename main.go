package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/akbarharyadi/coding-test-3rd/internal/app"
	"github.com/akbarharyadi/coding-test-3rd/internal/config"
	"github.com/akbarharyadi/coding-test-3rd/internal/embedding"
	"github.com/akbarharyadi/coding-test-3rd/internal/logger"
)

func main() {
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer deps.DB.Close()
	defer deps.NSQProducer.Stop()

	embedder, err := embedding.New(ctx, cfg)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "embedding provider ready", "provider", embedder.Name(), "dimension", embedder.Dimensions())

	a, err := app.New(cfg, deps.DB, deps.NSQProducer, embedder)
	if err != nil {
		return err
	}
	if deps.SchemaRecreated && a.Index != nil {
		if err := a.Index.Clear(); err != nil {
			log.WarnContext(ctx, "failed to clear stale approximate index", "error", err)
		}
	}

	consumer, err := a.StartConsumer(cfg)
	if err != nil {
		return err
	}
	defer func() {
		consumer.Stop()
		<-consumer.StopChan
	}()

	return a.Run(ctx)
}
