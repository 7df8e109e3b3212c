package badger

import (
	"context"
	"testing"

	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCollection = "items"

func newTestIndex(t *testing.T) storage.VectorIndex {
	t.Helper()
	idx, err := NewMemoryIndex(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func moviePoint(id string, vector ...float32) *core.Point {
	return &core.Point{
		ID:     core.PointIDFor(core.PointTypeMovie, id),
		Vector: vector,
		Payload: map[string]any{
			core.PayloadItemID: id,
			core.PayloadType:   string(core.PointTypeMovie),
		},
	}
}

func moodPoint(id string, vector ...float32) *core.Point {
	return &core.Point{
		ID:     core.PointIDFor(core.PointTypeMood, id),
		Vector: vector,
		Payload: map[string]any{
			core.PayloadItemID: id,
			core.PayloadType:   string(core.PointTypeMood),
		},
	}
}

// seed creates a 3-dimensional collection holding a few movies and one mood.
func seed(t *testing.T, idx storage.VectorIndex) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, idx.CreateCollection(ctx, testCollection, storage.CollectionConfig{Dimension: 3}))
	require.NoError(t, idx.Upsert(ctx, testCollection, []*core.Point{
		moviePoint("a", 1, 0, 0),
		moviePoint("b", 0.9, 0.1, 0),
		moviePoint("c", 0, 1, 0),
		moviePoint("d", 0, 0, 1),
		moodPoint("cozy", 1, 0, 0),
	}))
}

func itemIDs(points []*core.ScoredPoint) []string {
	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ItemID()
	}
	return ids
}

func TestCollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	exists, err := idx.CollectionExists(ctx, testCollection)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = idx.CollectionConfig(ctx, testCollection)
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)

	require.NoError(t, idx.CreateCollection(ctx, testCollection, storage.CollectionConfig{Dimension: 4}))

	cfg, err := idx.CollectionConfig(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Dimension)
	assert.Equal(t, storage.DistanceCosine, cfg.Distance)

	err = idx.CreateCollection(ctx, testCollection, storage.CollectionConfig{Dimension: 4})
	assert.ErrorIs(t, err, storage.ErrCollectionExists)

	require.NoError(t, idx.DeleteCollection(ctx, testCollection))
	exists, err = idx.CollectionExists(ctx, testCollection)
	require.NoError(t, err)
	assert.False(t, exists)

	t.Run("deleting a missing collection is not an error", func(t *testing.T) {
		assert.NoError(t, idx.DeleteCollection(ctx, "nothing-here"))
	})

	t.Run("zero dimension is a configuration error", func(t *testing.T) {
		err := idx.CreateCollection(ctx, "bad", storage.CollectionConfig{})
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})
}

func TestDeleteCollectionDropsPoints(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	seed(t, idx)

	require.NoError(t, idx.DeleteCollection(ctx, testCollection))
	require.NoError(t, idx.CreateCollection(ctx, testCollection, storage.CollectionConfig{Dimension: 3}))

	points, next, err := idx.Scroll(ctx, testCollection, storage.ScrollRequest{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, points)
	assert.Nil(t, next)
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	seed(t, idx)

	t.Run("rejects mismatched dimension", func(t *testing.T) {
		err := idx.Upsert(ctx, testCollection, []*core.Point{moviePoint("x", 1, 2)})
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	})

	t.Run("rejects missing collection", func(t *testing.T) {
		err := idx.Upsert(ctx, "missing", []*core.Point{moviePoint("x", 1, 2, 3)})
		assert.ErrorIs(t, err, storage.ErrCollectionNotFound)
	})

	t.Run("replaces by id and stores normalized vectors", func(t *testing.T) {
		require.NoError(t, idx.Upsert(ctx, testCollection, []*core.Point{moviePoint("c", 0, 3, 4)}))
		points, err := idx.Retrieve(ctx, testCollection, []core.PointID{core.PointIDFor(core.PointTypeMovie, "c")}, true)
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.InDeltaSlice(t, []float32{0, 0.6, 0.8}, points[0].Vector, 1e-6)
		assert.Equal(t, "c", points[0].ItemID())
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	seed(t, idx)

	t.Run("orders by descending cosine similarity", func(t *testing.T) {
		results, err := idx.Search(ctx, testCollection, storage.SearchRequest{
			Vector: []float32{2, 0, 0},
			Filter: storage.ItemFilter(),
			Limit:  2,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, itemIDs(results))
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		assert.Greater(t, results[0].Score, results[1].Score)
	})

	t.Run("item filter removes auxiliary points", func(t *testing.T) {
		results, err := idx.Search(ctx, testCollection, storage.SearchRequest{
			Vector: []float32{1, 0, 0},
			Filter: storage.ItemFilter(),
			Limit:  10,
		})
		require.NoError(t, err)
		assert.Len(t, results, 4)
		assert.NotContains(t, itemIDs(results), "cozy")
	})

	t.Run("excluded ids never appear", func(t *testing.T) {
		results, err := idx.Search(ctx, testCollection, storage.SearchRequest{
			Vector: []float32{1, 0, 0},
			Filter: storage.ItemFilter(core.PointIDFor(core.PointTypeMovie, "a")),
			Limit:  10,
		})
		require.NoError(t, err)
		assert.Equal(t, "b", results[0].ItemID())
		assert.NotContains(t, itemIDs(results), "a")
	})

	t.Run("min score drops weak matches", func(t *testing.T) {
		minScore := float32(0.5)
		results, err := idx.Search(ctx, testCollection, storage.SearchRequest{
			Vector:   []float32{1, 0, 0},
			Filter:   storage.ItemFilter(),
			Limit:    10,
			MinScore: &minScore,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, itemIDs(results))
	})

	t.Run("type filter keeps only moods", func(t *testing.T) {
		results, err := idx.Search(ctx, testCollection, storage.SearchRequest{
			Vector: []float32{0, 1, 0},
			Filter: storage.TypeFilter(core.PointTypeMood),
			Limit:  10,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"cozy"}, itemIDs(results))
	})

	t.Run("dimension mismatch is rejected", func(t *testing.T) {
		_, err := idx.Search(ctx, testCollection, storage.SearchRequest{Vector: []float32{1, 0}, Limit: 1})
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	})

	t.Run("limit must be positive", func(t *testing.T) {
		_, err := idx.Search(ctx, testCollection, storage.SearchRequest{Vector: []float32{1, 0, 0}})
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})
}

func TestRecommend(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	seed(t, idx)

	a := core.PointIDFor(core.PointTypeMovie, "a")
	c := core.PointIDFor(core.PointTypeMovie, "c")

	t.Run("positive only", func(t *testing.T) {
		results, err := idx.Recommend(ctx, testCollection, storage.RecommendRequest{
			Positive: []core.PointID{a},
			Filter:   storage.ItemFilter(),
			Limit:    10,
		})
		require.NoError(t, err)
		ids := itemIDs(results)
		assert.Equal(t, "b", ids[0])
		assert.NotContains(t, ids, "a")
		assert.NotContains(t, ids, "cozy")
	})

	t.Run("negative examples push results away", func(t *testing.T) {
		results, err := idx.Recommend(ctx, testCollection, storage.RecommendRequest{
			Positive: []core.PointID{a},
			Negative: []core.PointID{c},
			Filter:   storage.ItemFilter(),
			Limit:    10,
		})
		require.NoError(t, err)
		ids := itemIDs(results)
		assert.Equal(t, []string{"b", "d"}, ids)
		// target is 2a - c = (2, -1, 0); d is orthogonal, b leans towards a
		assert.Greater(t, results[0].Score, float32(0))
	})

	t.Run("no positives is an invalid query", func(t *testing.T) {
		_, err := idx.Recommend(ctx, testCollection, storage.RecommendRequest{Negative: []core.PointID{c}, Limit: 5})
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})

	t.Run("unknown example point", func(t *testing.T) {
		_, err := idx.Recommend(ctx, testCollection, storage.RecommendRequest{Positive: []core.PointID{42}, Limit: 5})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("batch returns results in request order", func(t *testing.T) {
		batches, err := idx.RecommendBatch(ctx, testCollection, []storage.RecommendRequest{
			{Positive: []core.PointID{a}, Filter: storage.ItemFilter(), Limit: 1},
			{Positive: []core.PointID{c}, Filter: storage.ItemFilter(), Limit: 1},
		})
		require.NoError(t, err)
		require.Len(t, batches, 2)
		assert.Equal(t, []string{"b"}, itemIDs(batches[0]))
		assert.Equal(t, []string{"b"}, itemIDs(batches[1]))
	})
}

func TestScroll(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	seed(t, idx)

	var (
		seen   []string
		offset *core.PointID
	)
	for {
		points, next, err := idx.Scroll(ctx, testCollection, storage.ScrollRequest{
			Filter: storage.ItemFilter(),
			Limit:  3,
			Offset: offset,
		})
		require.NoError(t, err)
		for _, p := range points {
			assert.Nil(t, p.Vector)
			seen = append(seen, p.ItemID())
		}
		if next == nil {
			break
		}
		offset = next
	}
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, seen)

	t.Run("with vectors", func(t *testing.T) {
		points, _, err := idx.Scroll(ctx, testCollection, storage.ScrollRequest{
			Filter:      storage.TypeFilter(core.PointTypeMood),
			Limit:       10,
			WithVectors: true,
		})
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Len(t, points[0].Vector, 3)
	})
}

func TestRetrieveAndDelete(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	seed(t, idx)

	a := core.PointIDFor(core.PointTypeMovie, "a")
	b := core.PointIDFor(core.PointTypeMovie, "b")

	points, err := idx.Retrieve(ctx, testCollection, []core.PointID{a, 99, b}, false)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "a", points[0].ItemID())
	assert.Nil(t, points[0].Vector)

	require.NoError(t, idx.Delete(ctx, testCollection, []core.PointID{a, 99}))

	points, err = idx.Retrieve(ctx, testCollection, []core.PointID{a, b}, false)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "b", points[0].ItemID())
}
