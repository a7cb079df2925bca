package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/creach-t/phi3-chat-interface-sub000/internal/auth"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP generation API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg, os.Stdout)

	logger.Info("starting phi3chat",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
		"binary", cfg.LlamaBinary,
		"model", cfg.ModelPath,
		"stop_scan_mode", cfg.StopScanMode,
		"auth", cfg.AuthEnabled(),
	)

	svc, err := newGenerationService(cfg, logger)
	if err != nil {
		return err
	}

	var authenticator *auth.Authenticator
	if cfg.AuthEnabled() {
		authenticator = auth.NewAuthenticator(cfg.APIKey, newJWTManager(cfg), logger)
	}

	httpServer, err := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		Generator:      svc,
		Registry:       svc.Registry(),
		Auth:           authenticator,
		BinaryPath:     cfg.LlamaBinary,
		ModelPath:      cfg.ModelPath,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	// Generations still running after the timeout are canceled and their
	// processes killed before Shutdown returns.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
