package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/headline-goat/adlift/internal/engine"
	"github.com/headline-goat/adlift/internal/store"
)

type Options struct {
	Port int
	// Token guards /api. When empty a random one is generated and, if
	// TokenFile is set, written there for `adlift token`.
	Token     string
	TokenFile string
	Logger    *slog.Logger
}

type Server struct {
	store     *store.SQLiteStore
	engine    *engine.Engine
	port      int
	token     string
	tokenFile string
	logger    *slog.Logger
	router    chi.Router
	startTime time.Time
}

func New(s *store.SQLiteStore, eng *engine.Engine, opts Options) *Server {
	srv := &Server{
		store:     s,
		engine:    eng,
		port:      opts.Port,
		token:     opts.Token,
		tokenFile: opts.TokenFile,
		logger:    opts.Logger,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	if srv.token == "" {
		srv.token = generateToken()
	}
	if srv.logger == nil {
		srv.logger = slog.Default()
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.router.Use(requestIDMiddleware)
	s.router.Use(s.recoverMiddleware)
	s.router.Use(s.loggingMiddleware)

	// Public endpoints
	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router.Route("/api/tests", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/", s.handleListTests)
		r.Get("/{id}/results", s.handleResults)
		r.Get("/{id}/status", s.handleStatus)
		r.Post("/{id}/conclude", s.handleConclude)
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.logger.Warn("failed to write token file", "path", s.tokenFile, "error", err)
		}
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("adlift listening", "addr", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	return httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(bytes)
}
