// Package server provides the HTTP REST API for the content pipeline.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/content-pipeline/internal/store"
	"github.com/jonathan/content-pipeline/internal/types"
)

// Coordinator runs the pipeline.
type Coordinator interface {
	Execute(ctx context.Context, triggeredBy string) (*types.Run, error)
}

// Prober checks model connectivity.
type Prober interface {
	Probe(ctx context.Context) error
}

// Store is the persistence surface the API needs.
type Store interface {
	Ping(ctx context.Context) error
	GetRun(ctx context.Context, id uuid.UUID) (*types.Run, error)
	LatestRun(ctx context.Context) (*types.Run, error)
	TaskSummariesForRun(ctx context.Context, runID uuid.UUID) ([]types.TaskSummary, error)
	CreateSource(ctx context.Context, src *types.Source) error
	GetSource(ctx context.Context, id uuid.UUID) (*types.Source, error)
	ListSources(ctx context.Context, filters store.SourceFilters) ([]types.Source, error)
	UpdateSource(ctx context.Context, src *types.Source) error
	DeleteSource(ctx context.Context, id uuid.UUID) error
	HasActiveSource(ctx context.Context) (bool, error)
	AllSettings(ctx context.Context) (map[string]string, error)
	PutSetting(ctx context.Context, key, value string) error
}

// Server is the HTTP API server.
type Server struct {
	httpServer  *http.Server
	store       Store
	coordinator Coordinator
	prober      Prober
	secret      string
	jwtSecret   string
	log         *zap.Logger
}

// Config holds server configuration.
type Config struct {
	Port         int
	SharedSecret string
	// JWTSecret signs issued admin tokens. Empty falls back to SharedSecret.
	JWTSecret string
}

// New creates a server around an already-connected store and coordinator.
func New(cfg Config, st Store, coordinator Coordinator, prober Prober, log *zap.Logger) (*Server, error) {
	if cfg.SharedSecret == "" {
		return nil, fmt.Errorf("shared secret is required")
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = cfg.SharedSecret
	}

	s := &Server{
		store:       st,
		coordinator: coordinator,
		prober:      prober,
		secret:      cfg.SharedSecret,
		jwtSecret:   cfg.JWTSecret,
		log:         log,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withLogging(s.routes()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // a triggered run responds when it finishes
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// routes builds the router. Everything except the health check and token
// issuance requires a bearer credential.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /auth/token", s.handleIssueToken)

	mux.Handle("POST /run", s.requireAuth(s.handleTriggerRun))
	mux.Handle("GET /run", s.requireAuth(s.handleLatestRun))
	mux.Handle("GET /run/{id}", s.requireAuth(s.handleGetRun))

	mux.Handle("GET /settings", s.requireAuth(s.handleGetSettings))
	mux.Handle("PUT /settings", s.requireAuth(s.handlePutSettings))
	mux.Handle("GET /settings/{key}", s.requireAuth(s.handleGetSetting))
	mux.Handle("PUT /settings/{key}", s.requireAuth(s.handlePutSetting))

	mux.Handle("GET /sources", s.requireAuth(s.handleListSources))
	mux.Handle("POST /sources", s.requireAuth(s.handleCreateSource))
	mux.Handle("GET /sources/{id}", s.requireAuth(s.handleGetSource))
	mux.Handle("PUT /sources/{id}", s.requireAuth(s.handleUpdateSource))
	mux.Handle("DELETE /sources/{id}", s.requireAuth(s.handleDeleteSource))

	return mux
}

// Start begins listening and blocks until an interrupt, then shuts down
// gracefully.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		s.log.Info("server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Fatal("server error", zap.Error(err))
		}
	}()

	<-stop
	s.log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// withLogging adds request logging.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// errorFrom maps a domain error onto its HTTP status.
func (s *Server) errorFrom(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("internal error", zap.Error(err))
		s.errorResponse(w, status, "internal error")
		return
	}
	var conflict *store.ErrRunInFlight
	if errors.As(err, &conflict) {
		s.jsonResponse(w, status, map[string]string{
			"error": conflict.Error(),
			"runId": conflict.RunID.String(),
		})
		return
	}
	s.errorResponse(w, status, err.Error())
}
