package concepts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/poiesic/cinevec/ai"
	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
)

// DefaultCollection is the collection concept vectors live in.
const DefaultCollection = "movie_concepts"

const scrollPageSize = 256

// Store owns the concept collection and an in-process cache of its vectors.
// The cache is the only shared mutable state of the engine.
type Store struct {
	index       storage.VectorIndex
	embedder    ai.Embedder
	collection  string
	dimension   int
	definitions []Definition
	logger      *slog.Logger

	mu     sync.RWMutex
	cache  map[string][]float32
	loaded bool
}

// Option configures a Store.
type Option func(*Store)

// WithCollection overrides the concept collection name.
func WithCollection(name string) Option {
	return func(s *Store) {
		s.collection = name
	}
}

// WithDimension pins the expected vector dimension.
// Zero accepts whatever the embedder produces.
func WithDimension(dim int) Option {
	return func(s *Store) {
		s.dimension = dim
	}
}

// WithDefinitions replaces the vocabulary.
func WithDefinitions(defs []Definition) Option {
	return func(s *Store) {
		s.definitions = defs
	}
}

// WithLogger sets the logger for the store.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a concept store.
func NewStore(index storage.VectorIndex, embedder ai.Embedder, opts ...Option) (*Store, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	s := &Store{
		index:       index,
		embedder:    embedder,
		collection:  DefaultCollection,
		definitions: Vocabulary,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "concepts", "collection", s.collection)
	if len(s.definitions) == 0 {
		return nil, ErrEmptyVocabulary
	}
	return s, nil
}

// Collection returns the concept collection name.
func (s *Store) Collection() string {
	return s.collection
}

// Names returns the vocabulary in definition order.
func (s *Store) Names() []string {
	return Names(s.definitions)
}

// Bootstrap regenerates the concept collection from scratch: every concept
// text is embedded, the collection is dropped and recreated, and one point per
// concept is written. The cache is replaced with the new vectors.
//
// Texts are embedded before the old collection is dropped so a provider
// outage leaves the previous vectors in place.
func (s *Store) Bootstrap(ctx context.Context) ([]*core.ConceptVector, error) {
	texts := make([]string, len(s.definitions))
	for i, d := range s.definitions {
		texts[i] = d.Text
	}
	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: embedded %d of %d concept texts", core.ErrRemoteService, len(vectors), len(texts))
	}
	dim := s.dimension
	if dim == 0 {
		dim = len(vectors[0])
	}
	for i, v := range vectors {
		if err := core.CheckDimension(dim, v); err != nil {
			return nil, fmt.Errorf("concept %q: %w", s.definitions[i].Name, err)
		}
	}

	if err := s.index.DeleteCollection(ctx, s.collection); err != nil {
		return nil, err
	}
	if err := s.index.CreateCollection(ctx, s.collection, storage.CollectionConfig{
		Dimension: dim,
		Distance:  storage.DistanceCosine,
	}); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	concepts := make([]*core.ConceptVector, len(s.definitions))
	points := make([]*core.Point, len(s.definitions))
	for i, d := range s.definitions {
		concepts[i] = &core.ConceptVector{
			Name:       d.Name,
			Vector:     vectors[i],
			SourceText: d.Text,
			CreatedAt:  now,
		}
		points[i] = &core.Point{
			ID:     core.PointIDFor(core.PointTypeConcept, d.Name),
			Vector: vectors[i],
			Payload: map[string]any{
				core.PayloadName:       d.Name,
				core.PayloadType:       string(core.PointTypeConcept),
				core.PayloadSourceText: d.Text,
				core.PayloadCreatedAt:  now.Format(time.RFC3339),
			},
		}
	}
	if err := s.index.Upsert(ctx, s.collection, points); err != nil {
		return nil, err
	}

	cache := make(map[string][]float32, len(concepts))
	for _, c := range concepts {
		cache[c.Name] = c.Vector
	}
	s.mu.Lock()
	s.cache = cache
	s.loaded = true
	s.mu.Unlock()

	s.logger.Info("concepts bootstrapped", "count", len(concepts), "dimension", dim)
	return concepts, nil
}

// LoadAll returns every stored concept vector by name. The first successful
// load is cached until Invalidate. A missing or empty collection yields an
// empty mapping rather than an error.
func (s *Store) LoadAll(ctx context.Context) (map[string][]float32, error) {
	s.mu.RLock()
	if s.loaded {
		out := maps.Clone(s.cache)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return maps.Clone(s.cache), nil
	}

	loaded, err := s.scroll(ctx)
	if errors.Is(err, storage.ErrCollectionNotFound) {
		s.logger.Warn("concept collection missing, run bootstrap")
		return map[string][]float32{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(loaded) == 0 {
		s.logger.Warn("concept collection empty, run bootstrap")
		return loaded, nil
	}

	s.cache = loaded
	s.loaded = true
	s.logger.Debug("concepts loaded", "count", len(loaded))
	return maps.Clone(loaded), nil
}

func (s *Store) scroll(ctx context.Context) (map[string][]float32, error) {
	out := make(map[string][]float32)
	var offset *core.PointID
	for {
		points, next, err := s.index.Scroll(ctx, s.collection, storage.ScrollRequest{
			Limit:       scrollPageSize,
			Offset:      offset,
			WithVectors: true,
		})
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			name := core.PayloadString(p.Payload, core.PayloadName)
			if name == "" {
				continue
			}
			if err := core.CheckDimension(s.dimension, p.Vector); err != nil {
				return nil, fmt.Errorf("concept %q: %w", name, err)
			}
			out[name] = p.Vector
		}
		if next == nil {
			return out, nil
		}
		offset = next
	}
}

// Invalidate drops the cache so the next LoadAll reads the index again.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.loaded = false
	s.mu.Unlock()
}

// Reload invalidates the cache and loads it again.
func (s *Store) Reload(ctx context.Context) (map[string][]float32, error) {
	s.Invalidate()
	return s.LoadAll(ctx)
}
