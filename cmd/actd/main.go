// Command actd is the ACT coordination hub daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paradiselabs-ai/ACT/config"
	"github.com/paradiselabs-ai/ACT/internal/version"
	"github.com/paradiselabs-ai/ACT/server"
)

var configPath = flag.String("config", "act.yaml", "path to config file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configPath, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	logger.Info("starting actd",
		"version", version.Version,
		"commit", version.Commit,
	)

	srv := server.New(*cfg, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	fmt.Printf("ACT coordination hub running on http://localhost%s\n", cfg.Server.Addr)
	fmt.Printf("Version: %s (%s)\n", version.Version, version.Commit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case <-sigCh:
	}

	fmt.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("server stop error", "error", err)
	}
	fmt.Println("Shutdown complete")
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
