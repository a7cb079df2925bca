package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/creach-t/phi3-chat-interface-sub000/internal/auth"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/llm"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/params"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/runs"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/service"
)

const maxRequestBody = 1 << 20

type handlers struct {
	generator Generator
	registry  *runs.Registry
	logger    *slog.Logger

	inflight sync.WaitGroup
}

type generateRequest struct {
	Message   string         `json:"message"`
	Preprompt string         `json:"preprompt"`
	Params    map[string]any `json:"params"`
}

type errorBody struct {
	Kind    string      `json:"kind"`
	Message string      `json:"message"`
	Detail  *llm.Detail `json:"detail,omitempty"`
}

// kindStatus maps each generation failure to a distinct status code.
var kindStatus = map[llm.Kind]int{
	llm.KindProcessNotFound: http.StatusServiceUnavailable,
	llm.KindTimeout:         http.StatusGatewayTimeout,
	llm.KindEmptyResponse:   http.StatusUnprocessableEntity,
	llm.KindProcessError:    http.StatusBadGateway,
	llm.KindCanceled:        http.StatusServiceUnavailable,
}

func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Kind: "invalid_request", Message: "invalid JSON body: " + err.Error()})
		return
	}

	var partial params.Partial
	if len(req.Params) > 0 {
		partial = params.Clamp(req.Params)
		if len(partial) == 0 {
			writeError(w, http.StatusBadRequest, errorBody{Kind: "invalid_params", Message: "no valid parameters provided"})
			return
		}
	}

	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		h.logger.Debug("generate requested",
			"subject", p.Subject,
			"auth_method", p.Method,
			"request_id", middleware.GetReqID(r.Context()),
		)
	}

	h.inflight.Add(1)
	defer h.inflight.Done()

	result, err := h.generator.Generate(r.Context(), service.GenerationRequest{
		Message:   req.Message,
		Preprompt: req.Preprompt,
		Params:    partial,
	})
	if err != nil {
		h.writeGenerationError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) writeGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrEmptyMessage) {
		writeError(w, http.StatusBadRequest, errorBody{Kind: "invalid_request", Message: err.Error()})
		return
	}

	var genErr *llm.GenerationError
	if errors.As(err, &genErr) {
		status, ok := kindStatus[genErr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		detail := genErr.Detail
		writeError(w, status, errorBody{
			Kind:    string(genErr.Kind),
			Message: genErr.Error(),
			Detail:  &detail,
		})
		return
	}

	h.logger.Error("unexpected generation error",
		"error", err,
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeError(w, http.StatusInternalServerError, errorBody{Kind: "internal", Message: "internal error"})
}

func (h *handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active": h.registry.Active(),
		"runs":   h.registry.List(),
	})
}

func (h *handlers) finalizeRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	finalized, err := h.registry.Finalize(id)
	if errors.Is(err, runs.ErrNotFound) {
		writeError(w, http.StatusNotFound, errorBody{Kind: "not_found", Message: "no active run " + id})
		return
	}

	h.logger.Info("finalize requested", "run_id", id, "finalized", finalized)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":        id,
		"finalized": finalized,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, map[string]errorBody{"error": body})
}
