package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/creach-t/phi3-chat-interface-sub000/internal/auth"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/config"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/llm"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/params"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/runs"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/service"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "phi3chat",
	Short: "Chat replies from a local llama.cpp model",
	Long: `phi3chat drives a local llama.cpp executable to answer chat messages.

Available subcommands:
  serve    - Run the HTTP generation API
  generate - Generate one reply and print it
  token    - Issue a JWT for the HTTP API`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, generateCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging installs the default logger described by cfg. Logs go to w so
// that generate can keep stdout for the reply.
func setupLogging(cfg *config.Config, w *os.File) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newGenerationService wires the supervisor, registry and defaults from cfg.
func newGenerationService(cfg *config.Config, logger *slog.Logger) (*service.GenerationService, error) {
	mode, err := llm.ParseScanMode(cfg.StopScanMode)
	if err != nil {
		return nil, err
	}

	defaults, err := params.LoadFile(cfg.DefaultParamsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load default params: %w", err)
	}

	supervisor := llm.NewSupervisor(cfg.LlamaBinary,
		llm.WithScanMode(mode),
		llm.WithTerminateGrace(cfg.TerminateGrace),
		llm.WithLogger(logger),
	)

	return service.NewGenerationService(supervisor, cfg.ModelPath,
		service.WithLogger(logger),
		service.WithDefaultParams(defaults),
		service.WithDefaultPreprompt(cfg.DefaultPreprompt),
		service.WithRegistry(runs.NewRegistry(cfg.RunHistorySize, cfg.RunHistoryTTL)),
	), nil
}

func newJWTManager(cfg *config.Config) *auth.JWTManager {
	if cfg.JWTSecret == "" {
		return nil
	}
	jwtCfg := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtCfg.Issuer = cfg.JWTIssuer
	jwtCfg.Expiry = cfg.JWTExpiry
	return auth.NewJWTManager(jwtCfg)
}
