package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gex-live/internal/config"
	"github.com/dgnsrekt/gex-live/internal/faker"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Setup logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	// Load config
	cfg, err := config.LoadFakerConfig()
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return 1
	}

	logger.Info("configuration loaded",
		zap.String("port", cfg.Port),
		zap.String("underlying", cfg.Underlying),
		zap.Float64("spot", cfg.Spot),
		zap.Duration("interval", cfg.Interval),
		zap.Bool("noTrades", cfg.NoTrades),
		zap.Bool("tokenRequired", cfg.Token != ""),
	)

	market := &faker.Market{
		Underlying: cfg.Underlying,
		Spot:       cfg.Spot,
		NoTrades:   cfg.NoTrades,
	}
	feed := faker.NewServer(market, faker.Options{
		Token:        cfg.Token,
		SessionToken: cfg.SessionToken,
		Interval:     cfg.Interval,
	}, logger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go feed.Run(ctx)

	// Setup HTTP server
	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     faker.NewRouter(feed, logger),
		ReadTimeout: 30 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting fake feed",
			zap.String("addr", httpServer.Addr),
			zap.String("feed", fmt.Sprintf("ws://localhost:%s/realtime", cfg.Port)),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Cancel context to stop feed sessions
	cancel()

	// Graceful HTTP server shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return 1
	}

	logger.Info("server stopped")
	return 0
}
