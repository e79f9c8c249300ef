package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stridebot/config"
	"stridebot/internal/api"
	"stridebot/internal/logging"
	"stridebot/internal/storage/sqlite"
	"stridebot/internal/stride"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file (optional; falls back to environment variables)")
	flag.Parse()

	// Load configuration: file when given, environment otherwise
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			fmt.Fprintln(os.Stderr, "Usage:")
			fmt.Fprintln(os.Stderr, "  CLIENT_ID=<app client ID> CLIENT_SECRET=<app client secret> PORT=<http port> stridebot")
			fmt.Fprintln(os.Stderr, "Error:", err)
		} else {
			fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		}
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewLogger(logging.LoggerConfig{
		Format:  cfg.Log.Format,
		Level:   logging.ParseLevel(cfg.Log.Level),
		Service: "stridebot",
	})

	logger.Info("Starting stridebot",
		"environment", cfg.Stride.Environment,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	// Open storage
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Create the Stride API client
	client, err := stride.New(stride.Config{
		ClientID:     cfg.Stride.ClientID,
		ClientSecret: cfg.Stride.ClientSecret,
		Environment:  stride.Environment(cfg.Stride.Environment),
		APIBaseURL:   cfg.Stride.APIBaseURL,
		AuthBaseURL:  cfg.Stride.AuthBaseURL,
	}, logger)
	if err != nil {
		logger.Error("Failed to create Stride client", "error", err)
		os.Exit(1)
	}

	// Create HTTP router
	router := api.NewRouter(api.RouterConfig{
		Storage:      store,
		Client:       client,
		ClientSecret: cfg.Stride.ClientSecret,
		ConfigKey:    cfg.Stride.ConfigKey,
		GlanceKey:    cfg.Stride.GlanceKey,
		Logger:       logger,
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("HTTP server failed", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("Shutting down", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", "error", err)
			server.Close()
		}
	}

	logger.Info("Stopped")
}
