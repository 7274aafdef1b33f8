package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loftwork/loft-realtime/internal/realtime"
	"github.com/loftwork/loft-realtime/internal/server"
	"github.com/loftwork/loft-realtime/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	config := server.NewConfigFromEnv()
	server.SetConfig(config)

	messages, err := store.Open(config.DatabasePath)
	if err != nil {
		logger.Error("failed to open message store", "path", config.DatabasePath, "error", err)
		os.Exit(1)
	}

	hub := realtime.NewHub(messages, logger, realtime.Options{
		MaxMessageSize:  config.MaxMessageSize,
		RateLimitBurst:  config.RateLimit.Burst,
		RateLimitRefill: config.RateLimit.RefillInterval,
		SendQueueSize:   config.SendQueueSize,
	})

	mux := server.SetupRoutes(hub)
	httpServer := server.CreateServer(config.Port, mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		logger.Warn("HTTP shutdown did not complete cleanly", "error", err)
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		logger.Warn("hub shutdown did not complete cleanly", "error", err)
	}
}
