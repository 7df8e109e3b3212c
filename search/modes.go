package search

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/poiesic/cinevec/compose"
	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
)

// ExploreRequest asks for items matching concept slider positions.
type ExploreRequest struct {
	Weights  core.ConceptWeights
	Exclude  []string
	Limit    int
	MinScore *float32
}

// Explore composes a target vector from concept weights and searches items.
// With no active weight or an empty concept store it falls back to random.
func (e *Engine) Explore(ctx context.Context, req ExploreRequest) (*Response, error) {
	if err := core.ValidateWeights(req.Weights, e.concepts.Names()); err != nil {
		return nil, err
	}
	limit, err := normalizeLimit(req.Limit)
	if err != nil {
		return nil, err
	}
	exclude := excludedPoints(req.Exclude)

	return e.run(core.ModeConcept, func() (*Response, error) {
		if len(req.Weights.Active()) == 0 {
			return e.random(ctx, core.ModeConcept, "no active concept weights", exclude, limit)
		}
		vectors, err := e.concepts.LoadAll(ctx)
		if err != nil {
			return nil, err
		}
		if len(vectors) == 0 {
			return e.random(ctx, core.ModeConcept, "concept store empty", exclude, limit)
		}
		target, ok, err := e.composer.FromWeights(req.Weights, vectors)
		if err != nil {
			return nil, err
		}
		if !ok {
			return e.random(ctx, core.ModeConcept, "no requested concept in store", exclude, limit)
		}
		return e.searchVector(ctx, core.ModeConcept, target, exclude, limit, req.MinScore)
	})
}

// TextRequest is a free-text query.
type TextRequest struct {
	Query    string
	Exclude  []string
	Limit    int
	MinScore *float32
}

// Search embeds free text and searches items.
func (e *Engine) Search(ctx context.Context, req TextRequest) (*Response, error) {
	limit, err := normalizeLimit(req.Limit)
	if err != nil {
		return nil, err
	}
	return e.run(core.ModeText, func() (*Response, error) {
		vector, err := e.composer.FromText(ctx, req.Query)
		if err != nil {
			e.logger.Error("error generating embedding for query", "err", err)
			return nil, err
		}
		return e.searchVector(ctx, core.ModeText, vector, excludedPoints(req.Exclude), limit, req.MinScore)
	})
}

// SwipeRequest is a like/dislike history.
type SwipeRequest struct {
	Actions []core.UserAction
	Exclude []string
	Limit   int
}

// Swipe recommends from a swipe history using the index's recommend query.
// Every acted-on item and every caller exclusion is removed from the results.
// Without any resolvable like it falls back to random.
func (e *Engine) Swipe(ctx context.Context, req SwipeRequest) (*Response, error) {
	limit, err := normalizeLimit(req.Limit)
	if err != nil {
		return nil, err
	}
	return e.run(core.ModeSwipe, func() (*Response, error) {
		set, err := e.composer.FromActions(ctx, req.Actions)
		if err != nil {
			return nil, err
		}
		exclude := excludedPoints(req.Exclude, set.All()...)
		for _, id := range set.Unresolved {
			exclude = append(exclude, core.PointIDFor(core.PointTypeMovie, id))
		}

		positive, negative, err := e.presentExamples(ctx, set)
		if err != nil {
			return nil, err
		}
		if len(positive) == 0 {
			return e.random(ctx, core.ModeSwipe, "no liked items", exclude, limit)
		}
		e.monitor.AfterCompose(core.ModeSwipe, len(positive)+len(negative))

		hits, err := e.index.Recommend(ctx, e.collection, storage.RecommendRequest{
			Positive: positive,
			Negative: negative,
			Filter:   storage.ItemFilter(exclude...),
			Limit:    limit,
		})
		if err != nil {
			e.logger.Error("recommend failed", "err", err)
			return nil, err
		}
		e.monitor.AfterQuery(core.ModeSwipe, len(hits))
		return e.hydrate(ctx, core.ModeSwipe, hits)
	})
}

// presentExamples drops example points missing from the item collection.
func (e *Engine) presentExamples(ctx context.Context, set *compose.ExampleSet) (positive, negative []core.PointID, err error) {
	present, err := e.indexed(ctx, set.All())
	if err != nil {
		return nil, nil, err
	}
	for _, id := range set.Positive {
		if present[id] {
			positive = append(positive, id)
		}
	}
	for _, id := range set.Negative {
		if present[id] {
			negative = append(negative, id)
		}
	}
	return positive, negative, nil
}

// Personalize embeds the aggregated favorites list and searches items,
// excluding the favorites themselves. Zero favorites is insufficient input.
func (e *Engine) Personalize(ctx context.Context, limit int) (*Response, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	return e.run(core.ModePersonalize, func() (*Response, error) {
		profile, err := e.composer.FromFavorites(ctx)
		if err != nil {
			return nil, err
		}
		exclude := make([]core.PointID, len(profile.Movies))
		for i, m := range profile.Movies {
			exclude[i] = core.PointIDFor(core.PointTypeMovie, m.ID)
		}
		return e.searchVector(ctx, core.ModePersonalize, profile.Vector, exclude, limit, nil)
	})
}

// Similar returns items close to an indexed item, excluding the item itself.
func (e *Engine) Similar(ctx context.Context, itemID string, limit int) (*Response, error) {
	if itemID == "" {
		return nil, fmt.Errorf("%w: item id is required", core.ErrInvalidInput)
	}
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	return e.run(core.ModeSimilar, func() (*Response, error) {
		source := core.PointIDFor(core.PointTypeMovie, itemID)
		points, err := e.index.Retrieve(ctx, e.collection, []core.PointID{source}, true)
		if err != nil {
			return nil, err
		}
		if len(points) == 0 || len(points[0].Vector) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrItemNotIndexed, itemID)
		}
		return e.searchVector(ctx, core.ModeSimilar, points[0].Vector, []core.PointID{source}, limit, nil)
	})
}

// MoodBlendRequest weights mood reference points.
type MoodBlendRequest struct {
	Weights map[string]float64
	Exclude []string
	Limit   int
}

// MoodBlend combines stored mood vectors by weight and searches items.
// Moods missing from the index are skipped; with nothing left, or a zero
// combination, it falls back to random.
func (e *Engine) MoodBlend(ctx context.Context, req MoodBlendRequest) (*Response, error) {
	if err := core.ValidateWeights(req.Weights, e.moods); err != nil {
		return nil, err
	}
	limit, err := normalizeLimit(req.Limit)
	if err != nil {
		return nil, err
	}
	exclude := excludedPoints(req.Exclude)

	return e.run(core.ModeMoodBlend, func() (*Response, error) {
		names := make([]string, 0, len(req.Weights))
		ids := make([]core.PointID, 0, len(req.Weights))
		for name, w := range req.Weights {
			if w != 0 {
				names = append(names, name)
			}
		}
		slices.Sort(names)
		for _, name := range names {
			ids = append(ids, core.PointIDFor(core.PointTypeMood, name))
		}
		if len(ids) == 0 {
			return e.random(ctx, core.ModeMoodBlend, "no active mood weights", exclude, limit)
		}

		points, err := e.index.Retrieve(ctx, e.collection, ids, true)
		if err != nil {
			return nil, err
		}
		vectors := make([][]float32, 0, len(points))
		weights := make([]float64, 0, len(points))
		for _, p := range points {
			name := p.ItemID()
			if p.Type() != core.PointTypeMood || len(p.Vector) == 0 {
				continue
			}
			vectors = append(vectors, p.Vector)
			weights = append(weights, req.Weights[name])
		}
		if len(vectors) == 0 {
			return e.random(ctx, core.ModeMoodBlend, "moods not indexed", exclude, limit)
		}

		target, err := compose.WeightedCombine(vectors, weights)
		if err != nil {
			return nil, err
		}
		if core.IsZeroVector(target) {
			return e.random(ctx, core.ModeMoodBlend, "no preference signal", exclude, limit)
		}
		return e.searchVector(ctx, core.ModeMoodBlend, target, exclude, limit, nil)
	})
}

// ItemRecommendations holds recommendations seeded by one liked item.
type ItemRecommendations struct {
	ItemID  string               `json:"itemId"`
	Results []*core.SearchResult `json:"results"`
}

// RecommendEach runs one recommend query per liked item, all sharing the
// disliked items as negatives, in a single batch call. Indexes without batch
// support are queried item by item. Liked items that cannot be resolved are
// omitted from the output.
func (e *Engine) RecommendEach(ctx context.Context, actions []core.UserAction, limit int) ([]*ItemRecommendations, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	set, err := e.composer.FromActions(ctx, actions)
	if err != nil {
		return nil, err
	}
	positive, negative, err := e.presentExamples(ctx, set)
	if err != nil {
		return nil, err
	}
	if len(positive) == 0 {
		return []*ItemRecommendations{}, nil
	}

	itemFor := make(map[core.PointID]string, len(set.Positive))
	for i, id := range set.Positive {
		itemFor[id] = set.PositiveItems[i]
	}
	filter := storage.ItemFilter(set.All()...)
	reqs := make([]storage.RecommendRequest, len(positive))
	for i, id := range positive {
		reqs[i] = storage.RecommendRequest{
			Positive: []core.PointID{id},
			Negative: negative,
			Filter:   filter,
			Limit:    limit,
		}
	}

	batches, err := e.index.RecommendBatch(ctx, e.collection, reqs)
	if errors.Is(err, storage.ErrBatchUnsupported) {
		e.logger.Debug("batch recommend unsupported, querying per item", "queries", len(reqs))
		batches, err = e.recommendSequential(ctx, reqs)
	}
	if err != nil {
		return nil, err
	}

	out := make([]*ItemRecommendations, len(batches))
	for i, hits := range batches {
		resp, err := e.hydrate(ctx, core.ModeSwipe, hits)
		if err != nil {
			return nil, err
		}
		out[i] = &ItemRecommendations{ItemID: itemFor[positive[i]], Results: resp.Results}
	}
	return out, nil
}

func (e *Engine) recommendSequential(ctx context.Context, reqs []storage.RecommendRequest) ([][]*core.ScoredPoint, error) {
	out := make([][]*core.ScoredPoint, len(reqs))
	for i, req := range reqs {
		hits, err := e.index.Recommend(ctx, e.collection, req)
		if err != nil {
			return nil, err
		}
		out[i] = hits
	}
	return out, nil
}
