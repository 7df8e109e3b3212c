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

package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/poiesic/cinevec/ai"
	"github.com/poiesic/cinevec/concepts"
	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
)

// Config holds configuration for the re-embedding operation.
type Config struct {
	// Collection is the item collection to rebuild
	Collection string

	// BatchSize is the number of movies embedded per provider call
	BatchSize int

	// PoolSize is the number of batches in flight at once
	PoolSize int

	// ReportInterval is how often to report progress (number of movies)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for failed provider calls
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// RequestsPerSecond paces provider calls. Zero means unlimited.
	RequestsPerSecond float64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Collection:     "movies",
		BatchSize:      DefaultBatchSize,
		PoolSize:       max(runtime.NumCPU()/2, 1),
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Stats summarises a finished run.
type Stats struct {
	Movies    int
	Skipped   int
	Moods     int
	Dimension int
	Elapsed   time.Duration
}

// Reembedder rebuilds the item collection from the catalog.
type Reembedder struct {
	index    storage.VectorIndex
	catalog  storage.Catalog
	embedder ai.Embedder
	config   *Config
	moods    []concepts.Definition
	progress io.Writer
	logger   *slog.Logger
}

// Option configures a Reembedder.
type Option func(*Reembedder)

// WithMoods sets the mood references embedded next to the movies.
// Default is concepts.Moods. An empty list skips moods.
func WithMoods(moods []concepts.Definition) Option {
	return func(r *Reembedder) {
		r.moods = moods
	}
}

// WithProgress sets where progress lines are written (typically os.Stderr).
func WithProgress(w io.Writer) Option {
	return func(r *Reembedder) {
		r.progress = w
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reembedder) {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
	}
}

// NewReembedder creates a new reembedder. A nil config uses DefaultConfig.
func NewReembedder(index storage.VectorIndex, catalog storage.Catalog, embedder ai.Embedder, config *Config, opts ...Option) (*Reembedder, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if catalog == nil {
		return nil, ErrCatalogRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Collection == "" {
		config.Collection = defaults.Collection
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PoolSize <= 0 {
		config.PoolSize = defaults.PoolSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("%w: requests per second must not be negative", core.ErrConfiguration)
	}

	r := &Reembedder{
		index:    index,
		catalog:  catalog,
		embedder: embedder,
		config:   config,
		moods:    concepts.Moods,
		progress: io.Discard,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "reembed", "collection", config.Collection)
	return r, nil
}

func (r *Reembedder) limiter() *rate.Limiter {
	if r.config.RequestsPerSecond == 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(r.config.RequestsPerSecond), max(1, r.config.PoolSize))
}

// Run replaces the item collection with freshly embedded movies and moods.
// The collection is dropped only after the provider has answered once,
// so a provider outage leaves the old collection in place.
func (r *Reembedder) Run(ctx context.Context) (*Stats, error) {
	total, err := r.catalog.CountMovies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count movies: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No movies found in catalog (0 movies)\n")
		return &Stats{}, nil
	}

	processor := NewBatchProcessor(r.index, r.embedder, r.config.Collection, r.limiter(), r.config.MaxRetries, r.config.RetryDelay)
	moodPoints, dim, err := r.embedMoods(ctx, processor)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		dim, err = r.probeDimension(ctx, processor)
		if err != nil {
			return nil, err
		}
	}

	if err := r.recreate(ctx, dim); err != nil {
		return nil, err
	}
	if len(moodPoints) > 0 {
		if err := r.index.Upsert(ctx, r.config.Collection, moodPoints); err != nil {
			return nil, fmt.Errorf("failed to upsert mood points: %w", err)
		}
	}

	fmt.Fprintf(r.progress, "Starting re-embedding of %d movies (batch size: %d, workers: %d)\n",
		total, r.config.BatchSize, r.config.PoolSize)
	r.logger.Info("re-embedding started", "movies", total, "dimension", dim)

	tracker := NewProgressTracker(r.progress, "movies", total, r.config.ReportInterval)
	tracker.Start()

	skipped, err := r.embedMovies(ctx, processor, tracker)
	if err != nil {
		r.logger.Error("re-embedding failed", "processed", tracker.Processed(), "err", err)
		return nil, err
	}
	tracker.Finish()

	stats := &Stats{
		Movies:    tracker.Processed() - skipped,
		Skipped:   skipped,
		Moods:     len(moodPoints),
		Dimension: dim,
		Elapsed:   tracker.Elapsed(),
	}
	fmt.Fprintf(r.progress, "Re-embedding complete. Indexed %d movies in %v (%.1f movies/sec)\n",
		stats.Movies, stats.Elapsed.Round(time.Second), float64(stats.Movies)/stats.Elapsed.Seconds())
	r.logger.Info("re-embedding complete", "movies", stats.Movies, "skipped", skipped, "moods", stats.Moods, "elapsed", stats.Elapsed)
	return stats, nil
}

// embedMovies fans catalog pages out to a bounded pool and stops at the first failure.
func (r *Reembedder) embedMovies(ctx context.Context, processor *BatchProcessor, tracker *ProgressTracker) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := ants.NewPool(r.config.PoolSize)
	if err != nil {
		return 0, err
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		skipped  int
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	iterator := NewCatalogIterator(r.catalog, r.config.BatchSize)
	iterErr := iterator.ForEach(ctx, func(movies []*core.Movie) error {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			n, err := processor.Process(ctx, movies)
			if err != nil {
				fail(fmt.Errorf("failed to process batch starting at %q: %w", movies[0].ID, err))
				return
			}
			mu.Lock()
			skipped += n
			mu.Unlock()
			tracker.Add(len(movies))
		})
		if submitErr != nil {
			wg.Done()
			return submitErr
		}
		return nil
	})
	wg.Wait()

	if firstErr != nil {
		return skipped, firstErr
	}
	if iterErr != nil {
		return skipped, iterErr
	}
	return skipped, nil
}

// embedMoods embeds the mood references and reports their dimension.
func (r *Reembedder) embedMoods(ctx context.Context, processor *BatchProcessor) ([]*core.Point, int, error) {
	if len(r.moods) == 0 {
		return nil, 0, nil
	}
	texts := make([]string, len(r.moods))
	for i, m := range r.moods {
		texts[i] = m.Text
	}
	vectors, err := processor.embed(ctx, texts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to embed moods: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, 0, fmt.Errorf("%w: embedded %d of %d moods", core.ErrRemoteService, len(vectors), len(texts))
	}

	dim := len(vectors[0])
	points := make([]*core.Point, len(r.moods))
	for i, m := range r.moods {
		if err := core.CheckDimension(dim, vectors[i]); err != nil {
			return nil, 0, fmt.Errorf("mood %q: %w", m.Name, err)
		}
		points[i] = &core.Point{
			ID:     core.PointIDFor(core.PointTypeMood, m.Name),
			Vector: core.NormalizeVector(vectors[i]),
			Payload: map[string]any{
				core.PayloadItemID:     m.Name,
				core.PayloadType:       string(core.PointTypeMood),
				core.PayloadName:       m.Name,
				core.PayloadSourceText: m.Text,
			},
		}
	}
	return points, dim, nil
}

// probeDimension embeds the first catalog document to learn the vector size.
func (r *Reembedder) probeDimension(ctx context.Context, processor *BatchProcessor) (int, error) {
	first, err := r.catalog.ListMovies(ctx, "", 1)
	if err != nil {
		return 0, err
	}
	if len(first) == 0 {
		return 0, fmt.Errorf("%w: catalog is empty", core.ErrInsufficientInput)
	}
	vectors, err := processor.embed(ctx, []string{probeText(first[0])})
	if err != nil {
		return 0, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return 0, fmt.Errorf("%w: provider returned no vector", core.ErrRemoteService)
	}
	return len(vectors[0]), nil
}

func probeText(m *core.Movie) string {
	if m.Title != "" {
		return m.Title
	}
	return m.ID
}

func (r *Reembedder) recreate(ctx context.Context, dim int) error {
	if err := r.index.DeleteCollection(ctx, r.config.Collection); err != nil && !errors.Is(err, storage.ErrCollectionNotFound) {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	if err := r.index.CreateCollection(ctx, r.config.Collection, storage.CollectionConfig{
		Dimension: dim,
		Distance:  storage.DistanceCosine,
	}); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}
