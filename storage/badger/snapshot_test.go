package badger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshots(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	seed(t, idx)

	first, err := idx.CreateSnapshot(ctx, testCollection)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Name, testCollection+"-"))
	assert.Positive(t, first.Size)

	second, err := idx.CreateSnapshot(ctx, testCollection)
	require.NoError(t, err)

	snapshots, err := idx.ListSnapshots(ctx, testCollection)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, second.Name, snapshots[0].Name)
	assert.Equal(t, first.Name, snapshots[1].Name)

	var buf bytes.Buffer
	require.NoError(t, idx.DownloadSnapshot(ctx, testCollection, first.Name, &buf))
	assert.EqualValues(t, first.Size, buf.Len())

	t.Run("restore into another collection", func(t *testing.T) {
		require.NoError(t, idx.RestoreSnapshot(ctx, "restored", bytes.NewReader(buf.Bytes())))

		cfg, err := idx.CollectionConfig(ctx, "restored")
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Dimension)

		results, err := idx.Search(ctx, "restored", storage.SearchRequest{
			Vector: []float32{1, 0, 0},
			Filter: storage.ItemFilter(),
			Limit:  2,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, itemIDs(results))
	})

	t.Run("restore replaces existing contents", func(t *testing.T) {
		require.NoError(t, idx.Upsert(ctx, testCollection, []*core.Point{moviePoint("e", 1, 1, 1)}))
		require.NoError(t, idx.RestoreSnapshot(ctx, testCollection, bytes.NewReader(buf.Bytes())))

		points, err := idx.Retrieve(ctx, testCollection, []core.PointID{core.PointIDFor(core.PointTypeMovie, "e")}, false)
		require.NoError(t, err)
		assert.Empty(t, points)
	})

	t.Run("unknown snapshot", func(t *testing.T) {
		err := idx.DownloadSnapshot(ctx, testCollection, "nope.snapshot", &bytes.Buffer{})
		assert.ErrorIs(t, err, storage.ErrSnapshotNotFound)

		err = idx.DownloadSnapshot(ctx, testCollection, "../escape", &bytes.Buffer{})
		assert.ErrorIs(t, err, storage.ErrSnapshotNotFound)
	})

	t.Run("garbage stream", func(t *testing.T) {
		err := idx.RestoreSnapshot(ctx, "garbage", strings.NewReader("not json"))
		assert.ErrorIs(t, err, storage.ErrSerializationFailed)
	})

	t.Run("missing collection has no snapshots", func(t *testing.T) {
		snapshots, err := idx.ListSnapshots(ctx, "other")
		require.NoError(t, err)
		assert.Empty(t, snapshots)
	})
}

func TestSnapshotsRequireDirectory(t *testing.T) {
	idx, err := NewMemoryIndex("")
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.CreateSnapshot(context.Background(), testCollection)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
