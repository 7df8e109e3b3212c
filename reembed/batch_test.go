package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/poiesic/cinevec/ai/mock"
	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
	"github.com/poiesic/cinevec/storage/badger"
)

func setupIndex(t *testing.T, collection string, dim int) storage.VectorIndex {
	t.Helper()
	index, err := badger.NewMemoryIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })
	if dim > 0 {
		require.NoError(t, index.CreateCollection(context.Background(), collection, storage.CollectionConfig{Dimension: dim}))
	}
	return index
}

func newEmbedder(dim int) *mock.MockEmbedder {
	embedder := mock.NewMockEmbedder()
	embedder.Dimension = dim
	return embedder
}

func TestBatchProcessor_Process(t *testing.T) {
	ctx := context.Background()
	index := setupIndex(t, "movies", 3)
	embedder := newEmbedder(3)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 2, 2} // magnitude 3
		}
		return out, nil
	}

	movies := []*core.Movie{
		{ID: "1", Title: "Alien", Genres: []string{"Horror", "Sci-Fi"}, Overview: "In space.", ReleaseYear: 1979},
		{ID: "2", Title: "Heat"},
	}
	processor := NewBatchProcessor(index, embedder, "movies", nil, 3, 10*time.Millisecond)
	skipped, err := processor.Process(ctx, movies)
	require.NoError(t, err)
	assert.Zero(t, skipped)

	assert.Equal(t, []string{"Alien | Horror, Sci-Fi | In space.", "Heat"}, embedder.Texts())

	points, err := index.Retrieve(ctx, "movies", []core.PointID{
		core.PointIDFor(core.PointTypeMovie, "1"),
		core.PointIDFor(core.PointTypeMovie, "2"),
	}, true)
	require.NoError(t, err)
	require.Len(t, points, 2)

	byItem := map[string]*core.Point{}
	for _, p := range points {
		byItem[p.ItemID()] = p
		assert.InDelta(t, 1.0, core.Magnitude(p.Vector), 1e-5, "vector should be normalized")
		assert.Equal(t, core.PointTypeMovie, p.Type())
	}
	alien := byItem["1"]
	require.NotNil(t, alien)
	assert.Equal(t, "Alien", alien.Payload[core.PayloadTitle])
	assert.EqualValues(t, 1979, alien.Payload[core.PayloadYear])
	assert.NotNil(t, alien.Payload[core.PayloadGenres])
	assert.NotContains(t, byItem["2"].Payload, core.PayloadYear)
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	embedder := newEmbedder(3)
	processor := NewBatchProcessor(setupIndex(t, "movies", 3), embedder, "movies", nil, 3, time.Millisecond)

	skipped, err := processor.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Zero(t, embedder.CallCount())
}

func TestBatchProcessor_SkipsEmptyDocuments(t *testing.T) {
	embedder := newEmbedder(3)
	processor := NewBatchProcessor(setupIndex(t, "movies", 3), embedder, "movies", nil, 3, time.Millisecond)

	skipped, err := processor.Process(context.Background(), []*core.Movie{{ID: "blank"}, {ID: "x", Title: "X"}})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, []string{"X"}, embedder.Texts())
}

func TestBatchProcessor_RetriesTransientFailures(t *testing.T) {
	embedder := newEmbedder(3)
	calls := 0
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls < 3 {
			return nil, core.NewRemoteError("embed", "", errors.New("unavailable"))
		}
		return [][]float32{{0, 0, 1}}, nil
	}
	processor := NewBatchProcessor(setupIndex(t, "movies", 3), embedder, "movies", nil, 3, time.Millisecond)

	_, err := processor.Process(context.Background(), []*core.Movie{{ID: "1", Title: "One"}})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBatchProcessor_GivesUp(t *testing.T) {
	embedder := newEmbedder(3)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, core.NewRemoteError("embed", "", errors.New("unavailable"))
	}
	processor := NewBatchProcessor(setupIndex(t, "movies", 3), embedder, "movies", nil, 2, time.Millisecond)

	_, err := processor.Process(context.Background(), []*core.Movie{{ID: "1", Title: "One"}})
	assert.ErrorIs(t, err, core.ErrRemoteService)
	assert.Equal(t, 2, embedder.CallCount())
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	embedder := newEmbedder(3)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0, 0}}, nil
	}
	processor := NewBatchProcessor(setupIndex(t, "movies", 3), embedder, "movies", nil, 1, time.Millisecond)

	_, err := processor.Process(context.Background(), []*core.Movie{{ID: "1", Title: "One"}, {ID: "2", Title: "Two"}})
	assert.ErrorIs(t, err, core.ErrRemoteService)
}

func TestBatchProcessor_DimensionMismatch(t *testing.T) {
	embedder := newEmbedder(4)
	processor := NewBatchProcessor(setupIndex(t, "movies", 3), embedder, "movies", nil, 1, time.Millisecond)

	_, err := processor.Process(context.Background(), []*core.Movie{{ID: "1", Title: "One"}})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestBatchProcessor_RateLimited(t *testing.T) {
	embedder := newEmbedder(3)
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	processor := NewBatchProcessor(setupIndex(t, "movies", 3), embedder, "movies", limiter, 1, time.Millisecond)

	_, err := processor.Process(context.Background(), []*core.Movie{{ID: "1", Title: "One"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = processor.Process(ctx, []*core.Movie{{ID: "2", Title: "Two"}})
	require.Error(t, err)
	assert.Equal(t, 1, embedder.CallCount(), "second call must wait for the limiter")
}
