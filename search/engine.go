package search

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/poiesic/cinevec/compose"
	"github.com/poiesic/cinevec/concepts"
	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
)

const (
	// DefaultLimit is used when a request does not set one.
	DefaultLimit = 20
	// MaxLimit caps every request.
	MaxLimit = 100

	// DefaultCollection is the item collection queried by the engine.
	DefaultCollection = "movies"

	minRandomSample = 100
)

// ConceptSource supplies concept vectors and the vocabulary they belong to.
type ConceptSource interface {
	LoadAll(ctx context.Context) (map[string][]float32, error)
	Names() []string
}

// Engine answers explore, search and recommendation requests over the item
// collection. Every request is independent; the engine holds no per-request
// state.
type Engine struct {
	index      storage.VectorIndex
	catalog    storage.Catalog
	concepts   ConceptSource
	composer   *compose.Composer
	collection string
	moods      []string
	monitor    Monitor
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithCollection overrides the item collection name.
func WithCollection(name string) Option {
	return func(e *Engine) error {
		if name == "" {
			return fmt.Errorf("%w: collection name is empty", core.ErrConfiguration)
		}
		e.collection = name
		return nil
	}
}

// WithMoods sets the mood IDs accepted by MoodBlend.
func WithMoods(moods []string) Option {
	return func(e *Engine) error {
		e.moods = moods
		return nil
	}
}

// WithMonitor installs hooks observing every request.
func WithMonitor(monitor Monitor) Option {
	return func(e *Engine) error {
		if monitor == nil {
			monitor = noopMonitor{}
		}
		e.monitor = monitor
		return nil
	}
}

// NewEngine creates a new engine.
func NewEngine(
	index storage.VectorIndex,
	catalog storage.Catalog,
	conceptSource ConceptSource,
	composer *compose.Composer,
	opts ...Option,
) (*Engine, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if catalog == nil {
		return nil, ErrCatalogRequired
	}
	if conceptSource == nil {
		return nil, ErrConceptsRequired
	}
	if composer == nil {
		return nil, ErrComposerRequired
	}

	e := &Engine{
		index:      index,
		catalog:    catalog,
		concepts:   conceptSource,
		composer:   composer,
		collection: DefaultCollection,
		moods:      concepts.Names(concepts.Moods),
		monitor:    noopMonitor{},
		logger:     slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "engine", "collection", e.collection)

	return e, nil
}

// Response is a ranked, hydrated result list and the strategy that produced it.
type Response struct {
	Mode    core.Mode            `json:"mode"`
	Total   int                  `json:"total"`
	Results []*core.SearchResult `json:"results"`
}

func newResponse(mode core.Mode, results []*core.SearchResult) *Response {
	if results == nil {
		results = []*core.SearchResult{}
	}
	return &Response{Mode: mode, Total: len(results), Results: results}
}

// normalizeLimit applies the default and the cap.
func normalizeLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, fmt.Errorf("%w: limit must not be negative", core.ErrInvalidInput)
	case limit == 0:
		return DefaultLimit, nil
	case limit > MaxLimit:
		return MaxLimit, nil
	}
	return limit, nil
}

// excludedPoints maps caller exclusions to canonical movie point IDs.
func excludedPoints(itemIDs []string, extra ...core.PointID) []core.PointID {
	out := make([]core.PointID, 0, len(itemIDs)+len(extra))
	for _, id := range itemIDs {
		if id != "" {
			out = append(out, core.PointIDFor(core.PointTypeMovie, id))
		}
	}
	return append(out, extra...)
}

// run wraps a request with monitor hooks.
func (e *Engine) run(mode core.Mode, fn func() (*Response, error)) (*Response, error) {
	start := time.Now()
	e.monitor.Start(mode)
	resp, err := fn()
	e.monitor.Finish(mode, resp, time.Since(start), err)
	return resp, err
}

// searchVector runs a nearest-neighbour query over items and hydrates it.
func (e *Engine) searchVector(ctx context.Context, mode core.Mode, vector []float32, exclude []core.PointID, limit int, minScore *float32) (*Response, error) {
	e.monitor.AfterCompose(mode, len(vector))
	hits, err := e.index.Search(ctx, e.collection, storage.SearchRequest{
		Vector:   vector,
		Filter:   storage.ItemFilter(exclude...),
		Limit:    limit,
		MinScore: minScore,
	})
	if err != nil {
		e.logger.Error("search failed", "mode", mode, "err", err)
		return nil, err
	}
	e.monitor.AfterQuery(mode, len(hits))
	return e.hydrate(ctx, mode, hits)
}

// hydrate loads metadata for hits and reassembles it in hit order. Hits whose
// metadata is missing are dropped.
func (e *Engine) hydrate(ctx context.Context, mode core.Mode, hits []*core.ScoredPoint) (*Response, error) {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if id := h.ItemID(); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		e.monitor.AfterHydrate(mode, 0, 0)
		return newResponse(mode, nil), nil
	}

	movies, err := e.catalog.FindByIDs(ctx, ids...)
	if err != nil {
		e.logger.Error("metadata lookup failed", "count", len(ids), "err", err)
		return nil, err
	}
	byID := make(map[string]*core.Movie, len(movies))
	for _, m := range movies {
		byID[m.ID] = m
	}

	results := make([]*core.SearchResult, 0, len(hits))
	for _, h := range hits {
		movie, ok := byID[h.ItemID()]
		if !ok {
			continue
		}
		results = append(results, &core.SearchResult{
			ItemID: movie.ID,
			Score:  h.Score,
			Rank:   len(results) + 1,
			Movie:  movie,
		})
	}
	if dropped := len(hits) - len(results); dropped > 0 {
		e.logger.Debug("dropped hits without metadata", "mode", mode, "dropped", dropped)
	}
	e.monitor.AfterHydrate(mode, len(hits), len(results))
	return newResponse(mode, results), nil
}

// random samples items from a window of the collection that starts at a
// random point ID and wraps around, honouring exclusions. It is the fallback
// when no query signal exists.
func (e *Engine) random(ctx context.Context, from core.Mode, reason string, exclude []core.PointID, limit int) (*Response, error) {
	e.monitor.Fallback(from, reason)
	e.logger.Info("falling back to random", "from", from, "reason", reason)

	points, err := e.sampleWindow(ctx, storage.ItemFilter(exclude...), max(limit*5, minRandomSample))
	if err != nil {
		e.logger.Error("random scroll failed", "err", err)
		return nil, err
	}
	rand.Shuffle(len(points), func(i, j int) {
		points[i], points[j] = points[j], points[i]
	})
	if len(points) > limit {
		points = points[:limit]
	}

	hits := make([]*core.ScoredPoint, len(points))
	for i, p := range points {
		hits[i] = &core.ScoredPoint{ID: p.ID, Payload: p.Payload}
	}
	e.monitor.AfterQuery(core.ModeRandom, len(hits))
	return e.hydrate(ctx, core.ModeRandom, hits)
}

// sampleWindow scrolls up to size points starting at a random point ID.
// Point IDs are uniform hashes, so window starts spread over the whole
// collection. A short tail wraps to the start.
func (e *Engine) sampleWindow(ctx context.Context, filter *storage.Filter, size int) ([]*core.Point, error) {
	start := core.PointID(rand.Uint64())
	points, _, err := e.index.Scroll(ctx, e.collection, storage.ScrollRequest{
		Filter: filter,
		Limit:  size,
		Offset: &start,
	})
	if err != nil {
		return nil, err
	}
	if len(points) == size || start == 0 {
		return points, nil
	}

	head, _, err := e.index.Scroll(ctx, e.collection, storage.ScrollRequest{
		Filter: filter,
		Limit:  size - len(points),
	})
	if err != nil {
		return nil, err
	}
	for _, p := range head {
		if p.ID >= start {
			break
		}
		points = append(points, p)
	}
	return points, nil
}

// Random returns a random sample of items.
func (e *Engine) Random(ctx context.Context, exclude []string, limit int) (*Response, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	return e.run(core.ModeRandom, func() (*Response, error) {
		return e.random(ctx, core.ModeRandom, "requested", excludedPoints(exclude), limit)
	})
}

// indexed returns the subset of ids present in the item collection.
func (e *Engine) indexed(ctx context.Context, ids []core.PointID) (map[core.PointID]bool, error) {
	out := make(map[core.PointID]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	points, err := e.index.Retrieve(ctx, e.collection, ids, false)
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		out[p.ID] = true
	}
	return out, nil
}
