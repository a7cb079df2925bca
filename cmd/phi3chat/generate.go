package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/creach-t/phi3-chat-interface-sub000/internal/llm"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/params"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/service"
)

var (
	genMessage   string
	genPreprompt string
	genJSON      bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one reply and print it",
	Long: `Run the model once for a single message and print the cleaned reply.

Parameters left unset fall back to DEFAULT_PARAMS_FILE, then built-in defaults.
Out-of-range values are clamped. On failure the error kind is printed to
stderr and the exit status is non-zero.`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genMessage, "message", "m", "", "Message to answer (required)")
	f.StringVar(&genPreprompt, "preprompt", "", "System prompt placed before the conversation")
	f.BoolVar(&genJSON, "json", false, "Print the full result as JSON")
	f.Float64(params.Temperature, 0, "Sampling temperature [0.1, 2.0]")
	f.Int("max-tokens", 0, "Maximum tokens to generate [1, 4096]")
	f.Float64("top-p", 0, "Nucleus sampling threshold [0.1, 1.0]")
	f.Int("context-size", 0, "Context window in tokens [512, 8192]")
	f.Float64("repeat-penalty", 0, "Repetition penalty [1.0, 2.0]")
	f.Int(params.Seed, params.RandomSeed, "RNG seed, -1 for random")
	_ = generateCmd.MarkFlagRequired("message")
}

// paramFlags maps CLI flag names to parameter names.
var paramFlags = map[string]string{
	params.Temperature: params.Temperature,
	"max-tokens":       params.MaxTokens,
	"top-p":            params.TopP,
	"context-size":     params.ContextSize,
	"repeat-penalty":   params.RepeatPenalty,
	params.Seed:        params.Seed,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg, os.Stderr)

	svc, err := newGenerationService(cfg, logger)
	if err != nil {
		return err
	}

	raw := map[string]any{}
	for flag, name := range paramFlags {
		if cmd.Flags().Changed(flag) {
			raw[name] = cmd.Flags().Lookup(flag).Value.String()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := svc.Generate(ctx, service.GenerationRequest{
		Message:   genMessage,
		Preprompt: genPreprompt,
		Params:    params.Clamp(raw),
	})
	if err != nil {
		var genErr *llm.GenerationError
		if errors.As(err, &genErr) {
			fmt.Fprintf(os.Stderr, "generation failed (%s): %v\n", genErr.Kind, genErr.Err)
			if genErr.Detail.Stderr != "" {
				fmt.Fprintf(os.Stderr, "stderr: %s\n", genErr.Detail.Stderr)
			}
		}
		return err
	}

	if genJSON {
		return printJSON(cmd, result)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Text)
	return nil
}
