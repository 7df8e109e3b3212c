package concepts

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/cinevec/ai/mock"
	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
	"github.com/poiesic/cinevec/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, storage.VectorIndex, *mock.MockEmbedder) {
	t.Helper()
	idx, err := badger.NewMemoryIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 16
	store, err := NewStore(idx, embedder, opts...)
	require.NoError(t, err)
	return store, idx, embedder
}

func TestNewStore(t *testing.T) {
	idx, err := badger.NewMemoryIndex("")
	require.NoError(t, err)
	defer idx.Close()

	_, err = NewStore(nil, mock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrIndexRequired)

	_, err = NewStore(idx, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewStore(idx, mock.NewMockEmbedder(), WithDefinitions(nil))
	assert.ErrorIs(t, err, ErrEmptyVocabulary)

	store, err := NewStore(idx, mock.NewMockEmbedder())
	require.NoError(t, err)
	assert.Equal(t, DefaultCollection, store.Collection())
	assert.Equal(t, []string{"adventure", "romance", "complexity", "emotion", "realism"}, store.Names())
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	store, idx, embedder := newTestStore(t)

	concepts, err := store.Bootstrap(ctx)
	require.NoError(t, err)
	require.Len(t, concepts, len(Vocabulary))
	assert.Equal(t, 1, embedder.CallCount(), "all texts embedded in one batch")

	cfg, err := idx.CollectionConfig(ctx, DefaultCollection)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Dimension)
	assert.Equal(t, storage.DistanceCosine, cfg.Distance)

	points, err := idx.Retrieve(ctx, DefaultCollection, []core.PointID{core.PointIDFor(core.PointTypeConcept, "romance")}, false)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "romance", core.PayloadString(points[0].Payload, core.PayloadName))
	assert.Equal(t, Vocabulary[1].Text, core.PayloadString(points[0].Payload, core.PayloadSourceText))
	assert.NotEmpty(t, core.PayloadString(points[0].Payload, core.PayloadCreatedAt))
	assert.Equal(t, core.PointTypeConcept, points[0].Type())

	t.Run("cache is primed", func(t *testing.T) {
		loaded, err := store.LoadAll(ctx)
		require.NoError(t, err)
		assert.Len(t, loaded, len(Vocabulary))
		assert.Equal(t, concepts[0].Vector, loaded["adventure"])
	})
}

func TestBootstrap_Twice(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	_, err := store.Bootstrap(ctx)
	require.NoError(t, err)
	first, err := store.Reload(ctx)
	require.NoError(t, err)

	_, err = store.Bootstrap(ctx)
	require.NoError(t, err)
	second, err := store.Reload(ctx)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for name, v := range first {
		require.Contains(t, second, name)
		assert.Len(t, second[name], len(v))
		assert.InDeltaSlice(t, v, second[name], 1e-6)
	}
}

func TestBootstrap_ProviderFailureKeepsCollection(t *testing.T) {
	ctx := context.Background()
	store, idx, embedder := newTestStore(t)

	_, err := store.Bootstrap(ctx)
	require.NoError(t, err)

	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, core.NewRemoteError("embed", "", errors.New("connection refused"))
	}
	_, err = store.Bootstrap(ctx)
	assert.ErrorIs(t, err, core.ErrRemoteService)

	exists, err := idx.CollectionExists(ctx, DefaultCollection)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBootstrap_DimensionMismatch(t *testing.T) {
	store, _, _ := newTestStore(t, WithDimension(8))

	_, err := store.Bootstrap(context.Background())
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestLoadAll(t *testing.T) {
	ctx := context.Background()

	t.Run("missing collection yields empty mapping", func(t *testing.T) {
		store, _, _ := newTestStore(t)
		loaded, err := store.LoadAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, loaded)
	})

	t.Run("empty collection yields empty mapping", func(t *testing.T) {
		store, idx, _ := newTestStore(t)
		require.NoError(t, idx.CreateCollection(ctx, DefaultCollection, storage.CollectionConfig{Dimension: 16}))
		loaded, err := store.LoadAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, loaded)
	})

	t.Run("reads stored concepts and caches them", func(t *testing.T) {
		store, idx, _ := newTestStore(t, WithDefinitions(Vocabulary[:1]))
		_, err := store.Bootstrap(ctx)
		require.NoError(t, err)

		store.Invalidate()
		loaded, err := store.LoadAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"adventure"}, keys(loaded))

		// served from cache even after the collection disappears
		require.NoError(t, idx.DeleteCollection(ctx, DefaultCollection))
		loaded, err = store.LoadAll(ctx)
		require.NoError(t, err)
		assert.Len(t, loaded, 1)

		loaded, err = store.Reload(ctx)
		require.NoError(t, err)
		assert.Empty(t, loaded)
	})

	t.Run("callers cannot mutate the cache", func(t *testing.T) {
		store, _, _ := newTestStore(t)
		_, err := store.Bootstrap(ctx)
		require.NoError(t, err)

		loaded, err := store.LoadAll(ctx)
		require.NoError(t, err)
		delete(loaded, "adventure")

		again, err := store.LoadAll(ctx)
		require.NoError(t, err)
		assert.Contains(t, again, "adventure")
	})
}

func keys(m map[string][]float32) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
