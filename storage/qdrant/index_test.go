package qdrant

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchChecksDimension(t *testing.T) {
	idx := newIndex(nil, "http://localhost:6333", "", http.DefaultClient)
	idx.rememberDimension("movies", 3)

	_, err := idx.Search(context.Background(), "movies", storage.SearchRequest{
		Vector: []float32{1, 0},
		Limit:  5,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.NotErrorIs(t, err, core.ErrRemoteService)
}

func TestRestoreForgetsDimension(t *testing.T) {
	idx := newRESTIndex(t, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	})
	idx.rememberDimension("movies", 3)

	require.NoError(t, idx.RestoreSnapshot(context.Background(), "movies", strings.NewReader("snapshot")))

	idx.mu.RLock()
	_, cached := idx.dims["movies"]
	idx.mu.RUnlock()
	assert.False(t, cached)
}
