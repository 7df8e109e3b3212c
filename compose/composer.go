package compose

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/poiesic/cinevec/ai"
	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
)

// DefaultScaleFactor damps each concept's contribution to a query vector.
const DefaultScaleFactor = 0.3

// Composer turns user signals into query vectors or example point sets.
type Composer struct {
	embedder ai.Embedder
	catalog  storage.Catalog
	scale    float64
	logger   *slog.Logger
}

// Option configures a Composer.
type Option func(*Composer) error

// WithScaleFactor sets the concept damping constant. It must be in (0, 1].
func WithScaleFactor(scale float64) Option {
	return func(c *Composer) error {
		if math.IsNaN(scale) || scale <= 0 || scale > 1 {
			return fmt.Errorf("%w: scale factor must be in (0, 1], got %v", core.ErrConfiguration, scale)
		}
		c.scale = scale
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// New creates a composer.
func New(embedder ai.Embedder, catalog storage.Catalog, opts ...Option) (*Composer, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if catalog == nil {
		return nil, ErrCatalogRequired
	}
	c := &Composer{
		embedder: embedder,
		catalog:  catalog,
		scale:    DefaultScaleFactor,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "composer")
	return c, nil
}

// ScaleFactor returns the configured damping constant.
func (c *Composer) ScaleFactor() float64 {
	return c.scale
}

// FromWeights accumulates weight * scale * vector over every non-zero weight.
// Concepts missing from vectors are skipped. ok is false when no weight is
// active, meaning there is no target vector. The result is not normalized.
// Concepts are summed in name order so identical requests give identical bits.
func (c *Composer) FromWeights(weights core.ConceptWeights, vectors map[string][]float32) (target []float32, ok bool, err error) {
	active := weights.Active()
	if len(active) == 0 {
		return nil, false, nil
	}
	for _, name := range slices.Sorted(maps.Keys(active)) {
		weight := active[name]
		vector, found := vectors[name]
		if !found {
			c.logger.Debug("concept not in store, skipping", "concept", name)
			continue
		}
		if target == nil {
			target = make([]float32, len(vector))
		} else if len(vector) != len(target) {
			return nil, false, fmt.Errorf("%w: concept %q has %d dimensions, expected %d",
				core.ErrDimensionMismatch, name, len(vector), len(target))
		}
		factor := float32(weight * c.scale)
		for i, v := range vector {
			target[i] += factor * v
		}
	}
	if target == nil {
		return nil, false, nil
	}
	return target, true, nil
}

// FromText embeds free text.
func (c *Composer) FromText(ctx context.Context, text string) ([]float32, error) {
	trimmed, err := core.ValidateText(text)
	if err != nil {
		return nil, err
	}
	return c.embedder.EmbedText(ctx, trimmed)
}

// ExampleSet is a positive/negative partition of resolved index points.
type ExampleSet struct {
	Positive []core.PointID
	Negative []core.PointID
	// PositiveItems and NegativeItems hold the item IDs behind each point, in
	// the same order.
	PositiveItems []string
	NegativeItems []string
	// Unresolved lists item IDs that had no indexed point and were dropped.
	Unresolved []string
}

// Empty reports whether nothing resolved.
func (s *ExampleSet) Empty() bool {
	return len(s.Positive) == 0 && len(s.Negative) == 0
}

// All returns positive then negative point IDs.
func (s *ExampleSet) All() []core.PointID {
	out := make([]core.PointID, 0, len(s.Positive)+len(s.Negative))
	out = append(out, s.Positive...)
	return append(out, s.Negative...)
}

// FromActions resolves a swipe history to index points. When an item appears
// more than once the last action wins. Items without metadata or without an
// indexed point are dropped.
func (c *Composer) FromActions(ctx context.Context, actions []core.UserAction) (*ExampleSet, error) {
	if err := core.ValidateActions(actions); err != nil {
		return nil, err
	}
	last := make(map[string]core.Action, len(actions))
	order := make([]string, 0, len(actions))
	for _, a := range actions {
		if _, seen := last[a.ItemID]; !seen {
			order = append(order, a.ItemID)
		}
		last[a.ItemID] = a.Action
	}

	resolved, err := c.resolve(ctx, order)
	if err != nil {
		return nil, err
	}

	set := &ExampleSet{}
	for _, id := range order {
		pointID, ok := resolved[id]
		if !ok {
			set.Unresolved = append(set.Unresolved, id)
			continue
		}
		if last[id] == core.ActionLike {
			set.Positive = append(set.Positive, pointID)
			set.PositiveItems = append(set.PositiveItems, id)
		} else {
			set.Negative = append(set.Negative, pointID)
			set.NegativeItems = append(set.NegativeItems, id)
		}
	}
	if len(set.Unresolved) > 0 {
		c.logger.Debug("dropped unresolvable items", "count", len(set.Unresolved))
	}
	return set, nil
}

// FromFavoriteIDs resolves every favorite to a positive example.
// Zero favorites is insufficient input.
func (c *Composer) FromFavoriteIDs(ctx context.Context) (*ExampleSet, error) {
	favorites, err := c.catalog.FindFavorites(ctx)
	if err != nil {
		return nil, err
	}
	if len(favorites) == 0 {
		return nil, fmt.Errorf("%w: no favorites", core.ErrInsufficientInput)
	}
	ids := make([]string, len(favorites))
	for i, f := range favorites {
		ids[i] = f.ItemID
	}
	resolved, err := c.resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	set := &ExampleSet{}
	for _, id := range ids {
		if pointID, ok := resolved[id]; ok {
			set.Positive = append(set.Positive, pointID)
			set.PositiveItems = append(set.PositiveItems, id)
		} else {
			set.Unresolved = append(set.Unresolved, id)
		}
	}
	return set, nil
}

// FavoritesProfile is the text-aggregation view of the favorites list.
type FavoritesProfile struct {
	Vector []float32
	Movies []*core.Movie
}

// FromFavorites concatenates the title, genres and overview of every favorite
// and embeds the result once. Zero favorites, or favorites none of which have
// metadata, is insufficient input.
func (c *Composer) FromFavorites(ctx context.Context) (*FavoritesProfile, error) {
	favorites, err := c.catalog.FindFavorites(ctx)
	if err != nil {
		return nil, err
	}
	if len(favorites) == 0 {
		return nil, fmt.Errorf("%w: no favorites", core.ErrInsufficientInput)
	}

	ids := make([]string, len(favorites))
	for i, f := range favorites {
		ids[i] = f.ItemID
	}
	found, err := c.catalog.FindByIDs(ctx, ids...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*core.Movie, len(found))
	for _, m := range found {
		byID[m.ID] = m
	}

	movies := make([]*core.Movie, 0, len(found))
	docs := make([]string, 0, len(found))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			continue
		}
		movies = append(movies, m)
		docs = append(docs, Document(m))
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: favorites have no metadata", core.ErrInsufficientInput)
	}

	vector, err := c.embedder.EmbedText(ctx, strings.Join(docs, "\n"))
	if err != nil {
		return nil, err
	}
	return &FavoritesProfile{Vector: vector, Movies: movies}, nil
}

// resolve maps item IDs to indexed point IDs via the catalog.
func (c *Composer) resolve(ctx context.Context, ids []string) (map[string]core.PointID, error) {
	if len(ids) == 0 {
		return map[string]core.PointID{}, nil
	}
	movies, err := c.catalog.FindByIDs(ctx, ids...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]core.PointID, len(movies))
	for _, m := range movies {
		if m.PointID != 0 {
			out[m.ID] = m.PointID
		}
	}
	return out, nil
}

// Document renders the text a movie is embedded from.
func Document(m *core.Movie) string {
	parts := make([]string, 0, 3)
	if t := strings.TrimSpace(m.Title); t != "" {
		parts = append(parts, t)
	}
	if len(m.Genres) > 0 {
		parts = append(parts, strings.Join(m.Genres, ", "))
	}
	if o := strings.TrimSpace(m.Overview); o != "" {
		parts = append(parts, o)
	}
	return strings.Join(parts, " | ")
}

// WeightedCombine returns sum(w_i * v_i) / sum(|w_i|). A zero weight total
// yields the zero vector, meaning no preference signal.
func WeightedCombine(vectors [][]float32, weights []float64) ([]float32, error) {
	if len(vectors) != len(weights) {
		return nil, fmt.Errorf("%w: %d vectors but %d weights", core.ErrInvalidInput, len(vectors), len(weights))
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: nothing to combine", core.ErrInsufficientInput)
	}
	dim := len(vectors[0])
	out := make([]float32, dim)
	var total float64
	for i, v := range vectors {
		if err := core.CheckDimension(dim, v); err != nil {
			return nil, err
		}
		w := weights[i]
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: weight %d is not finite", core.ErrInvalidInput, i)
		}
		total += math.Abs(w)
		for j, x := range v {
			out[j] += float32(w) * x
		}
	}
	if total == 0 {
		return out, nil
	}
	for j := range out {
		out[j] = float32(float64(out[j]) / total)
	}
	return out, nil
}
