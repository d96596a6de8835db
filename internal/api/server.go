// Package api exposes the HTTP interface for the tender service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tkearney/tenderfeed/internal/config"
	"github.com/tkearney/tenderfeed/internal/metrics"
	"github.com/tkearney/tenderfeed/internal/orchestrator"
	"github.com/tkearney/tenderfeed/internal/tender"
)

// Refresher runs refresh cycles on demand. *orchestrator.Orchestrator
// satisfies it; tests substitute fakes.
type Refresher interface {
	RunCycle(ctx context.Context) (tender.CycleStats, error)
	TriggerAsync()
}

// Server wires HTTP handlers to the snapshot store and orchestrator.
type Server struct {
	router    chi.Router
	store     tender.SnapshotStore
	refresher Refresher
	idGen     tender.IDGenerator
	logger    *zap.Logger
	cfg       config.Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store tender.SnapshotStore,
	refresher Refresher,
	idGen tender.IDGenerator,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:     store,
		refresher: refresher,
		idGen:     idGen,
		logger:    logger,
		cfg:       cfg,
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/tenders/latest", s.getLatest)
		r.Post("/refresh", s.refresh)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store is the only hard dependency of the read path; probe it.
	if _, err := s.store.Get(r.Context(), tender.SnapshotKey); err != nil && !errors.Is(err, tender.ErrNotFound) {
		writeError(w, s.logger, http.StatusServiceUnavailable, "snapshot store unreachable")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready"})
}

// getLatest serves the current snapshot. It always answers 200: a missing,
// unreadable, or corrupt snapshot degrades to the empty snapshot and kicks
// off a background refresh rather than surfacing an error to callers.
func (s *Server) getLatest(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.Get(r.Context(), tender.SnapshotKey)
	if err != nil {
		if !errors.Is(err, tender.ErrNotFound) {
			s.logger.Warn("snapshot read failed, serving empty", zap.Error(err))
		}
		s.refresher.TriggerAsync()
		writeJSON(w, s.logger, http.StatusOK, tender.EmptySnapshot())
		return
	}
	snapshot, err := tender.DecodeSnapshot(data)
	if err != nil {
		s.logger.Warn("snapshot corrupt, serving empty", zap.Error(err))
		s.refresher.TriggerAsync()
		writeJSON(w, s.logger, http.StatusOK, tender.EmptySnapshot())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, snapshot)
}

// refresh runs one cycle synchronously and reports its stats. A cycle
// already in flight yields 409 rather than queueing a second one.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	stats, err := s.refresher.RunCycle(r.Context())
	if err != nil {
		if errors.Is(err, orchestrator.ErrCycleRunning) {
			writeError(w, s.logger, http.StatusConflict, "refresh already running")
			return
		}
		writeError(w, s.logger, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, stats)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, err := s.idGen.NewID()
		if err != nil {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, logger, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, zap.NewNop(), http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, msg string) {
	writeJSON(w, logger, status, map[string]string{"error": msg})
}
