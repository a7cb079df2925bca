package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/creach-t/phi3-chat-interface-sub000/internal/auth"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/runs"
	"github.com/creach-t/phi3-chat-interface-sub000/internal/service"
)

// Generator produces one reply per request.
type Generator interface {
	Generate(ctx context.Context, req service.GenerationRequest) (*service.GenerationResult, error)
}

// HTTPServer serves the generation API
type HTTPServer struct {
	server *http.Server
	router *chi.Mux
	logger *slog.Logger

	// cancel ends every request context, and with it every generation
	// still running when graceful shutdown gives up.
	cancel   context.CancelFunc
	inflight *sync.WaitGroup
}

// cancelDrainTimeout bounds how long Shutdown waits for canceled
// generations to kill and reap their processes.
const cancelDrainTimeout = 10 * time.Second

// HTTPServerConfig holds configuration for the HTTP server
type HTTPServerConfig struct {
	Port           int
	Logger         *slog.Logger
	AllowedOrigins []string // CORS allowed origins

	Generator Generator
	Registry  *runs.Registry
	Auth      *auth.Authenticator // nil disables authentication

	// BinaryPath and ModelPath are checked by /readyz.
	BinaryPath string
	ModelPath  string
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg HTTPServerConfig) (*HTTPServer, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = runs.DefaultRegistry()
	}

	// Create chi router
	router := chi.NewRouter()

	// Add middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLoggingMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	h := &handlers{
		generator: cfg.Generator,
		registry:  cfg.Registry,
		logger:    logger,
	}
	baseCtx, cancel := context.WithCancel(context.Background())

	// Mount health check endpoints
	router.Get("/healthz", healthCheckHandler())
	router.Get("/readyz", readinessCheckHandler(cfg.BinaryPath, cfg.ModelPath))
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/v1", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(cfg.Auth.Middleware)
		}
		r.Post("/generate", h.generate)
		r.Get("/runs", h.listRuns)
		r.Post("/runs/{id}/finalize", h.finalizeRun)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 8 * time.Minute, // longest generation deadline is 409.6s
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	return &HTTPServer{
		server:   server,
		router:   router,
		logger:   logger,
		cancel:   cancel,
		inflight: &h.inflight,
	}, nil
}

// Start listens on the configured port and serves until shutdown
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until shutdown
func (s *HTTPServer) Serve(ln net.Listener) error {
	s.logger.Info("starting HTTP server", "address", ln.Addr().String())

	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server. Requests still running
// when ctx ends are canceled, which kills their model processes, and
// Shutdown waits for those generations to return.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	err := s.server.Shutdown(ctx)
	s.cancel()

	if err != nil {
		s.logger.Warn("graceful shutdown timed out, canceling in-flight generations", "error", err)
		s.drain()
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *HTTPServer) drain() {
	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(cancelDrainTimeout):
		s.logger.Error("canceled generations did not finish", "timeout", cancelDrainTimeout)
	}
}

// GetRouter returns the underlying chi router for additional route registration
func (s *HTTPServer) GetRouter() *chi.Mux {
	return s.router
}

// requestLoggingMiddleware logs HTTP requests
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", duration,
				"remote_addr", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// corsMiddleware handles CORS headers
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 {
				// No origins configured: allow all (development)
				allowed = true
				origin = "*"
			} else {
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-API-Key")
				if origin != "*" {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// healthCheckHandler returns a handler for the /healthz endpoint
func healthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
		})
	}
}

// readinessCheckHandler reports ready once the executable and model file
// can be found.
func readinessCheckHandler(binaryPath, modelPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		ready := true

		if _, err := exec.LookPath(binaryPath); err != nil {
			checks["binary"] = err.Error()
			ready = false
		} else {
			checks["binary"] = "ok"
		}

		if info, err := os.Stat(modelPath); err != nil {
			checks["model"] = err.Error()
			ready = false
		} else if info.IsDir() {
			checks["model"] = modelPath + " is a directory"
			ready = false
		} else {
			checks["model"] = "ok"
		}

		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not ready", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"status": status,
			"checks": checks,
		})
	}
}
