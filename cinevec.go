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


// Package cinevec wires the vector index, the catalog, the embedding provider
// and the recommendation engine into one application.
package cinevec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/poiesic/cinevec/ai"
	"github.com/poiesic/cinevec/ai/openai"
	"github.com/poiesic/cinevec/compose"
	"github.com/poiesic/cinevec/concepts"
	"github.com/poiesic/cinevec/config"
	"github.com/poiesic/cinevec/metrics"
	"github.com/poiesic/cinevec/reembed"
	"github.com/poiesic/cinevec/search"
	"github.com/poiesic/cinevec/server"
	"github.com/poiesic/cinevec/storage"
	"github.com/poiesic/cinevec/storage/badger"
	"github.com/poiesic/cinevec/storage/qdrant"
	"github.com/poiesic/cinevec/storage/sqlite"
)

type App struct {
	config   *config.Config
	index    storage.VectorIndex
	catalog  *sqlite.Catalog
	provider ai.AIProvider
	embedder ai.Embedder
	concepts *concepts.Store
	engine   *search.Engine
	logger   *slog.Logger
}

// AppOption configures an App.
type AppOption func(*appOptions)

type appOptions struct {
	embedder ai.Embedder
	logger   *slog.Logger
}

// WithEmbedder replaces the OpenAI-compatible provider with embedder.
func WithEmbedder(embedder ai.Embedder) AppOption {
	return func(o *appOptions) {
		o.embedder = embedder
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) AppOption {
	return func(o *appOptions) {
		o.logger = logger
	}
}

// New opens every store named by cfg and builds the engine on top of them.
func New(ctx context.Context, cfg *config.Config, opts ...AppOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: configuration required", ErrConfigRequired)
	}
	options := &appOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	app := &App{config: cfg, logger: options.logger}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	index, err := openIndex(cfg, options.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	app.index = index

	catalog, err := sqlite.Open(ctx, cfg.Catalog.Path, sqlite.WithLogger(options.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	app.catalog = catalog

	embedder := options.embedder
	if embedder == nil {
		provider, err := openai.NewProvider(cfg.AI())
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding provider: %w", err)
		}
		app.provider = provider
		embedder = provider.Embedder()
	}
	app.embedder = metrics.InstrumentEmbedder(embedder)

	app.concepts, err = concepts.NewStore(index, app.embedder,
		concepts.WithCollection(cfg.Concepts.Collection),
		concepts.WithDimension(cfg.Embedding.Dimension),
		concepts.WithLogger(options.logger),
	)
	if err != nil {
		return nil, err
	}

	composer, err := compose.New(app.embedder, catalog,
		compose.WithScaleFactor(cfg.Concepts.ScaleFactor),
		compose.WithLogger(options.logger),
	)
	if err != nil {
		return nil, err
	}

	app.engine, err = search.NewEngine(index, catalog, app.concepts, composer,
		search.WithCollection(cfg.Index.Collection),
		search.WithMonitor(metrics.EngineMonitor{}),
		search.WithLogger(options.logger),
	)
	if err != nil {
		return nil, err
	}

	ok = true
	return app, nil
}

func openIndex(cfg *config.Config, logger *slog.Logger) (storage.VectorIndex, error) {
	switch cfg.Index.Backend {
	case config.BackendQdrant:
		return qdrant.Open(cfg.QdrantIndex(), qdrant.WithLogger(logger))
	case config.BackendBadger, "":
		b := cfg.Index.Badger
		backend, err := badger.OpenBackend(b.Path, b.InMemory)
		if err != nil {
			return nil, err
		}
		return badger.NewIndex(backend, badger.WithSnapshotDir(b.SnapshotDir), badger.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("%w: unknown index backend %q", ErrConfigRequired, cfg.Index.Backend)
	}
}

// Close releases every store. It is safe to call on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			a.logger.Error("error closing embedding provider", "err", err)
			errs = append(errs, err)
		}
	}
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			a.logger.Error("error closing catalog", "err", err)
			errs = append(errs, err)
		}
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			a.logger.Error("error closing vector index", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) Index() storage.VectorIndex {
	return a.index
}

func (a *App) Catalog() *sqlite.Catalog {
	return a.catalog
}

func (a *App) Concepts() *concepts.Store {
	return a.concepts
}

func (a *App) Engine() *search.Engine {
	return a.engine
}

// NewServer builds the HTTP server from the server section of the configuration.
func (a *App) NewServer(opts ...server.Option) (*server.Server, error) {
	s := a.config.Server
	base := []server.Option{
		server.WithLogger(a.logger),
		server.WithConfig(server.Config{
			Address:         s.Address,
			ReadTimeout:     s.ReadTimeout,
			WriteTimeout:    s.WriteTimeout,
			ShutdownTimeout: s.ShutdownTimeout,
			RateLimit:       s.RateLimit,
			RateWindow:      s.RateWindow,
			CORSOrigins:     s.CORSOrigins,
		}),
	}
	return server.New(a.engine, a.concepts, append(base, opts...)...)
}

// NewReembedder builds the re-embedding job. Progress goes to progress when non-nil.
func (a *App) NewReembedder(progress io.Writer) (*reembed.Reembedder, error) {
	opts := []reembed.Option{reembed.WithLogger(a.logger)}
	if progress != nil {
		opts = append(opts, reembed.WithProgress(progress))
	}
	return reembed.NewReembedder(a.index, a.catalog, a.embedder, a.config.ReembedJob(), opts...)
}

// Collections returns the item and concept collection names.
func (a *App) Collections() []string {
	return []string{a.config.Index.Collection, a.config.Concepts.Collection}
}

// SnapshotAll snapshots every collection concurrently.
// The result is keyed by collection name.
func (a *App) SnapshotAll(ctx context.Context) (map[string]*storage.Snapshot, error) {
	collections := a.Collections()
	snaps := make([]*storage.Snapshot, len(collections))

	g, gctx := errgroup.WithContext(ctx)
	for i, collection := range collections {
		g.Go(func() error {
			snap, err := a.index.CreateSnapshot(gctx, collection)
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", collection, err)
			}
			snaps[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*storage.Snapshot, len(collections))
	for i, collection := range collections {
		out[collection] = snaps[i]
	}
	return out, nil
}
