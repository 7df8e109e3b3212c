package sqlite

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewMemoryCatalog(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestOpen_File(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/catalog.db"

	c, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, c.UpsertMovies(ctx, &core.Movie{ID: "1", Title: "Alien"}))
	require.NoError(t, c.Close())

	c, err = Open(ctx, path)
	require.NoError(t, err)
	defer c.Close()
	count, err := c.CountMovies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMovies(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.UpsertMovies(ctx,
		&core.Movie{ID: "603", Title: "The Matrix", Genres: []string{"Action", "Science Fiction"}, ReleaseYear: 1999, PointID: 12345, UpdatedAt: updated},
		&core.Movie{ID: "13", Title: "Forrest Gump", Overview: "Life is like a box of chocolates."},
		&core.Movie{ID: "550", Title: "Fight Club"},
	))

	t.Run("find by ids returns the subset that exists", func(t *testing.T) {
		movies, err := c.FindByIDs(ctx, "550", "missing", "603")
		require.NoError(t, err)
		require.Len(t, movies, 2)

		byID := map[string]*core.Movie{}
		for _, m := range movies {
			byID[m.ID] = m
		}
		matrix := byID["603"]
		require.NotNil(t, matrix)
		assert.Equal(t, "The Matrix", matrix.Title)
		assert.Equal(t, []string{"Action", "Science Fiction"}, matrix.Genres)
		assert.Equal(t, 1999, matrix.ReleaseYear)
		assert.Equal(t, core.PointID(12345), matrix.PointID)
		assert.True(t, updated.Equal(matrix.UpdatedAt))

		assert.Equal(t, core.PointID(0), byID["550"].PointID)
		assert.Empty(t, byID["550"].Genres)
	})

	t.Run("find by no ids", func(t *testing.T) {
		movies, err := c.FindByIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, movies)
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		require.NoError(t, c.UpsertMovies(ctx, &core.Movie{ID: "550", Title: "Fight Club (1999)"}))
		movies, err := c.FindByIDs(ctx, "550")
		require.NoError(t, err)
		require.Len(t, movies, 1)
		assert.Equal(t, "Fight Club (1999)", movies[0].Title)

		count, err := c.CountMovies(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("list pages by id", func(t *testing.T) {
		page, err := c.ListMovies(ctx, "", 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "13", page[0].ID)
		assert.Equal(t, "550", page[1].ID)

		page, err = c.ListMovies(ctx, page[1].ID, 2)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "603", page[0].ID)

		_, err = c.ListMovies(ctx, "", 0)
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})

	t.Run("empty id is rejected", func(t *testing.T) {
		err := c.UpsertMovies(ctx, &core.Movie{ID: " ", Title: "x"})
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})

	t.Run("large id lists are chunked", func(t *testing.T) {
		ids := make([]string, 0, 1200)
		for i := 0; i < 1200; i++ {
			ids = append(ids, "nope")
		}
		ids = append(ids, "13")
		movies, err := c.FindByIDs(ctx, ids...)
		require.NoError(t, err)
		require.Len(t, movies, 1)
		assert.Equal(t, "13", movies[0].ID)
	})
}

func TestFavorites(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	require.NoError(t, c.AddFavorites(ctx,
		&core.Favorite{ItemID: "b", AddedAt: second},
		&core.Favorite{ItemID: "a", AddedAt: first},
	))

	// re-adding keeps the original timestamp
	require.NoError(t, c.AddFavorites(ctx, &core.Favorite{ItemID: "a", AddedAt: second.Add(time.Hour)}))

	favorites, err := c.FindFavorites(ctx)
	require.NoError(t, err)
	require.Len(t, favorites, 2)
	assert.Equal(t, "a", favorites[0].ItemID)
	assert.True(t, first.Equal(favorites[0].AddedAt))
	assert.Equal(t, "b", favorites[1].ItemID)

	t.Run("empty catalog has no favorites", func(t *testing.T) {
		favorites, err := newTestCatalog(t).FindFavorites(ctx)
		require.NoError(t, err)
		assert.Empty(t, favorites)
	})
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	doc := `{
		"movies": [
			{"id": "603", "title": "The Matrix", "genres": ["Action"], "releaseYear": 1999},
			{"id": "13", "title": "Forrest Gump"}
		],
		"favorites": [{"itemId": "603", "addedAt": "2024-01-01T00:00:00Z"}]
	}`
	stats, err := c.Import(ctx, strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Movies)
	assert.Equal(t, 1, stats.Favorites)

	movies, err := c.FindByIDs(ctx, "603")
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, core.PointIDFor(core.PointTypeMovie, "603"), movies[0].PointID)

	favorites, err := c.FindFavorites(ctx)
	require.NoError(t, err)
	require.Len(t, favorites, 1)

	t.Run("malformed document", func(t *testing.T) {
		_, err := c.Import(ctx, strings.NewReader("{"))
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})
}
