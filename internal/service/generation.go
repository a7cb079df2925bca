// Package service contains the generation façade used by the HTTP server and
// the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/creach-t/phi3-chat-interface-sub000/internal/llm"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/metrics"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/params"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/prompt"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/response"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/runs"
)

// ErrEmptyMessage is returned when the request carries no message text.
var ErrEmptyMessage = errors.New("message is required")

// GenerationRequest is one call to Generate.
type GenerationRequest struct {
	Message string

	// Preprompt replaces the service default when non-empty.
	Preprompt string

	// Params are applied over the service defaults.
	Params params.Partial
}

// Metadata describes how a result was produced.
type Metadata struct {
	ChunkCount       int    `json:"chunkCount"`
	OriginalLength   int    `json:"originalLength"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
	RunID            string `json:"runId"`
	StopReason       string `json:"stopReason"`
	StopMarker       string `json:"stopMarker,omitempty"`
}

// GenerationResult is a cleaned, validated reply.
type GenerationResult struct {
	Text     string             `json:"text"`
	Params   params.ModelParams `json:"params"`
	Metadata Metadata           `json:"metadata"`
}

// GenerationService turns a message into a reply by running the model
// executable once per call. Calls may overlap; each owns its run.
type GenerationService struct {
	runner    llm.Runner
	modelPath string
	defaults  params.ModelParams
	preprompt string
	registry  *runs.Registry
	timeout   func(params.ModelParams) time.Duration
	logger    *slog.Logger
}

// GenerationServiceOption is a functional option for configuring GenerationService.
type GenerationServiceOption func(*GenerationService)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GenerationServiceOption {
	return func(s *GenerationService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDefaultParams sets the parameters requests are applied over.
func WithDefaultParams(p params.ModelParams) GenerationServiceOption {
	return func(s *GenerationService) {
		s.defaults = p.Clamp()
	}
}

// WithDefaultPreprompt sets the preprompt used when a request has none.
func WithDefaultPreprompt(preprompt string) GenerationServiceOption {
	return func(s *GenerationService) {
		s.preprompt = preprompt
	}
}

// WithRegistry sets the run registry.
func WithRegistry(r *runs.Registry) GenerationServiceOption {
	return func(s *GenerationService) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithTimeoutFunc overrides how the run deadline is derived from parameters.
func WithTimeoutFunc(fn func(params.ModelParams) time.Duration) GenerationServiceOption {
	return func(s *GenerationService) {
		if fn != nil {
			s.timeout = fn
		}
	}
}

// NewGenerationService creates a GenerationService running the model at
// modelPath through runner.
func NewGenerationService(runner llm.Runner, modelPath string, opts ...GenerationServiceOption) *GenerationService {
	s := &GenerationService{
		runner:    runner,
		modelPath: modelPath,
		defaults:  params.Defaults(),
		timeout:   params.ModelParams.Timeout,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = runs.DefaultRegistry()
	}
	s.logger = s.logger.With("component", "generation")

	return s
}

// Registry returns the registry tracking this service's runs.
func (s *GenerationService) Registry() *runs.Registry {
	return s.registry
}

// Defaults returns the parameters requests are applied over.
func (s *GenerationService) Defaults() params.ModelParams {
	return s.defaults
}

// Generate runs the executable once and returns the cleaned reply. Failures
// are *llm.GenerationError, except ErrEmptyMessage.
func (s *GenerationService) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	p := req.Params.Apply(s.defaults).Clamp()
	preprompt := req.Preprompt
	if strings.TrimSpace(preprompt) == "" {
		preprompt = s.preprompt
	}

	args := llm.BuildArgs(s.modelPath, prompt.Build(req.Message, preprompt), p)
	deadline := s.timeout(p)

	id := uuid.NewString()
	logger := s.logger.With("run_id", id)

	logger.Debug("starting generation",
		"message_length", len(req.Message),
		"max_tokens", p.MaxTokens,
		"temperature", p.Temperature,
		"deadline", deadline,
	)

	run, err := s.runner.Start(ctx, args, deadline)
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues(string(llm.KindOf(err))).Inc()
		logger.Error("generation failed to start", "error", err)
		return nil, err
	}

	metrics.RunStarted()
	s.registry.Register(id, run)

	state, err := run.Wait()
	s.registry.Complete(id, state)

	if err != nil {
		metrics.RunFinished(string(llm.KindOf(err)), "", state.ChunkCount, state.Elapsed)
		logger.Warn("generation failed",
			"kind", llm.KindOf(err),
			"chunks", state.ChunkCount,
			"output_length", len(state.Output),
			"elapsed", state.Elapsed,
		)
		return nil, err
	}

	text := response.Clean(state.Output)
	if !response.IsValid(text) {
		genErr := s.unusable(state, deadline)
		metrics.RunFinished(string(genErr.Kind), state.StopMarker, state.ChunkCount, state.Elapsed)
		logger.Warn("generation produced no usable text",
			"kind", genErr.Kind,
			"outcome", state.Outcome,
			"output_length", len(state.Output),
			"exit_code", state.ExitCode,
		)
		return nil, genErr
	}

	if state.Outcome == llm.OutcomeClosed && state.ExitCode != 0 {
		logger.Warn("process exited with error but produced text",
			"exit_code", state.ExitCode,
			"stderr", state.Detail(deadline).Stderr,
		)
	}

	metrics.RunFinished(string(state.Outcome), state.StopMarker, state.ChunkCount, state.Elapsed)
	logger.Info("generation complete",
		"outcome", state.Outcome,
		"chunks", state.ChunkCount,
		"original_length", len(state.Output),
		"text_length", len(text),
		"elapsed", state.Elapsed,
	)

	return &GenerationResult{
		Text:   text,
		Params: p,
		Metadata: Metadata{
			ChunkCount:       state.ChunkCount,
			OriginalLength:   len(state.Output),
			ProcessingTimeMs: state.Elapsed.Milliseconds(),
			RunID:            id,
			StopReason:       string(state.Outcome),
			StopMarker:       state.StopMarker,
		},
	}, nil
}

// unusable classifies a run whose output cleaned down to nothing. A process
// that exited with an error is blamed for it; otherwise the reply was empty.
func (s *GenerationService) unusable(state *llm.RunState, deadline time.Duration) *llm.GenerationError {
	detail := state.Detail(deadline)

	if state.Outcome == llm.OutcomeClosed && state.ExitCode != 0 {
		err := fmt.Errorf("process exited with code %d", state.ExitCode)
		if state.ExitErr != nil {
			err = fmt.Errorf("process exited with code %d: %w", state.ExitCode, state.ExitErr)
		}
		return llm.NewError(llm.KindProcessError, err, detail)
	}

	return llm.NewError(llm.KindEmptyResponse,
		fmt.Errorf("no usable text in %d bytes of output", len(state.Output)),
		detail)
}
