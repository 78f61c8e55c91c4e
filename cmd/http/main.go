package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spatelier/internal/config"
	"spatelier/internal/ledger"
	"spatelier/internal/queue"
	"spatelier/internal/server"
)

func main() {
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(jsonHandler))

	cfg := config.Load()

	l, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		slog.Error("failed to open ledger", "error", err)
		os.Exit(1)
	}
	defer l.Close()

	q := queue.New(l, nil)

	srv := server.NewServer(cfg.HTTPPort, l, q, cfg.Auth0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("status API failed to start", "error", err)
			cancel()
		}
	}()

	slog.Info("status API started", "port", cfg.HTTPPort)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("status API forced to shutdown", "error", err)
	} else {
		slog.Info("status API exited gracefully")
	}
}
