package storage

import (
	"testing"

	"github.com/poiesic/cinevec/core"
	"github.com/stretchr/testify/assert"
)

func TestFilterMatches(t *testing.T) {
	movie := map[string]any{core.PayloadType: "movie", core.PayloadItemID: "1"}
	mood := map[string]any{core.PayloadType: "mood", core.PayloadItemID: "cozy"}

	t.Run("nil filter matches everything", func(t *testing.T) {
		var f *Filter
		assert.True(t, f.Matches(1, movie))
		assert.True(t, f.IsEmpty())
	})

	t.Run("item filter drops auxiliary types and excluded ids", func(t *testing.T) {
		f := ItemFilter(5)
		assert.True(t, f.Matches(1, movie))
		assert.False(t, f.Matches(2, mood))
		assert.False(t, f.Matches(5, movie))
		assert.False(t, f.IsEmpty())
	})

	t.Run("points without type pass exclusion", func(t *testing.T) {
		f := ItemFilter()
		assert.True(t, f.Matches(1, map[string]any{}))
	})

	t.Run("match ids", func(t *testing.T) {
		f := &Filter{MatchIDs: []core.PointID{1, 2}}
		assert.True(t, f.Matches(2, movie))
		assert.False(t, f.Matches(3, movie))
	})

	t.Run("type filter", func(t *testing.T) {
		f := TypeFilter(core.PointTypeMood)
		assert.True(t, f.Matches(2, mood))
		assert.False(t, f.Matches(1, movie))
	})
}
