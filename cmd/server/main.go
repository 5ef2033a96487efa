package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/chess-vn/slduel/internal/app/server"
	"github.com/chess-vn/slduel/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	cfg, err := server.NewConfig()
	if err != nil {
		logging.Fatal("failed to load config", zap.Error(err))
	}
	if err := logging.Init(cfg.LogLevel, cfg.Development); err != nil {
		logging.Fatal("failed to init logger", zap.Error(err))
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg)
	if err != nil {
		logging.Fatal("failed to build server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logging.Fatal("duel server exited", zap.Error(err))
		}
		return
	case <-ctx.Done():
	}

	logging.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), srv.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("shutdown failed", zap.Error(err))
	}
}
