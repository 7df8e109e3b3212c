// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/search"
)

// Recommender is the engine surface the HTTP layer serves.
type Recommender interface {
	Explore(ctx context.Context, req search.ExploreRequest) (*search.Response, error)
	Search(ctx context.Context, req search.TextRequest) (*search.Response, error)
	Swipe(ctx context.Context, req search.SwipeRequest) (*search.Response, error)
	Personalize(ctx context.Context, limit int) (*search.Response, error)
	Similar(ctx context.Context, itemID string, limit int) (*search.Response, error)
	MoodBlend(ctx context.Context, req search.MoodBlendRequest) (*search.Response, error)
	RecommendEach(ctx context.Context, actions []core.UserAction, limit int) ([]*search.ItemRecommendations, error)
	Random(ctx context.Context, exclude []string, limit int) (*search.Response, error)
}

// Bootstrapper regenerates the concept collection.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) ([]*core.ConceptVector, error)
}

// Config holds HTTP settings.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RateLimit is requests per RateWindow per client IP. Zero disables limiting.
	RateLimit   int
	RateWindow  time.Duration
	CORSOrigins []string
}

// DefaultConfig returns the settings used when none are supplied.
func DefaultConfig() Config {
	return Config{
		Address:         ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimit:       100,
		RateWindow:      time.Minute,
		CORSOrigins:     []string{"*"},
	}
}

// Server is the HTTP surface over the engine.
type Server struct {
	engine   Recommender
	concepts Bootstrapper
	config   Config
	validate *validator.Validate
	logger   *slog.Logger
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(s *Server) {
		s.config = cfg
	}
}

// New builds the router. concepts may be nil, which disables the bootstrap endpoint.
func New(engine Recommender, concepts Bootstrapper, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, ErrEngineRequired
	}
	s := &Server{
		engine:   engine,
		concepts: concepts,
		config:   DefaultConfig(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         86400,
		}))
		if s.config.RateLimit > 0 {
			r.Use(httprate.Limit(s.config.RateLimit, s.config.RateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					respondMessage(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
				}),
			))
		}

		r.Get("/explore", s.handleExplore)
		r.Get("/search", s.handleSearch)
		r.Get("/random", s.handleRandom)
		r.Get("/movies/{id}/similar", s.handleSimilar)
		r.Post("/personalize", s.handlePersonalize)
		r.Post("/moodswipe", s.handleSwipe)
		r.Post("/moodswipe/each", s.handleRecommendEach)
		r.Post("/moods/blend", s.handleMoodBlend)
		r.Post("/admin/concepts/bootstrap", s.handleBootstrap)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondMessage(w, http.StatusNotFound, "not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondMessage(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "address", s.config.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
