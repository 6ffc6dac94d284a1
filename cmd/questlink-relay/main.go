package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hearthkin/questlink/internal/config"
	"github.com/hearthkin/questlink/internal/logging"
	"github.com/hearthkin/questlink/internal/relay"
)

func main() {
	configDir := flag.String("config-dir", config.DefaultDir(), "directory holding config.yaml and the relay document")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFile)

	if err := os.MkdirAll(*configDir, 0o755); err != nil {
		logger.Error("create config dir", "error", err)
		os.Exit(1)
	}

	store, err := relay.OpenStore(cfg.Relay.DocPath)
	if err != nil {
		logger.Error("open relay document", "path", cfg.Relay.DocPath, "error", err)
		os.Exit(1)
	}

	srv := relay.New(store, logger)

	// Drop idle rate-limit buckets so long-running relays don't grow.
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Relay.Port),
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("relay listening", "port", cfg.Relay.Port, "doc", cfg.Relay.DocPath, "version", relay.Version)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancelCleanup()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
