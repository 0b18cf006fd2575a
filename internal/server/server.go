// Package server implements the docrag HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docrag/internal/adapter/chunker"
	"docrag/internal/port"
	"docrag/internal/usecase"
)

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	MaxUploadBytes int64
	TopK           int
	Chunking       chunker.Options // defaults for /api/v1/chunk
}

// Deps are the use cases the API exposes.
type Deps struct {
	Docs     port.DocumentStore
	Ingest   *usecase.IngestUseCase
	Retrieve *usecase.RetrieveUseCase
	Prompt   *usecase.PromptUseCase
}

// HTTPServer serves the REST API.
type HTTPServer struct {
	deps     Deps
	config   Config
	router   chi.Router
	validate *validator.Validate
}

func NewHTTPServer(deps Deps, config Config) *HTTPServer {
	if config.TopK <= 0 {
		config.TopK = 5
	}
	if config.Chunking.MaxSize <= 0 {
		config.Chunking = chunker.Options{MaxSize: chunker.DefaultMaxSize, Overlap: chunker.DefaultOverlap}
	}
	s := &HTTPServer{
		deps:     deps,
		config:   config,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.router = s.setupRouter()
	return s
}

func (s *HTTPServer) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", s.handleListDocuments)
			r.Post("/", s.handleUploadDocument)
			r.Get("/{id}", s.handleGetDocument)
			r.Delete("/{id}", s.handleDeleteDocument)
			r.Get("/{id}/chunks", s.handleGetChunks)
		})

		r.Post("/search", s.handleSearch)
		r.Post("/ask", s.handleAsk)
		r.Post("/chunk", s.handleChunk)
	})

	return r
}

// Router returns the chi router.
func (s *HTTPServer) Router() chi.Router {
	return s.router
}

func (s *HTTPServer) Addr() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *HTTPServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	if s.config.Port == 0 {
		s.config.Port = ln.Addr().(*net.TCPAddr).Port
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown", "error", err)
		}
	}()

	slog.Info("HTTP server listening", "addr", "http://"+s.Addr())
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
