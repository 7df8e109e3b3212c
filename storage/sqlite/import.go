package sqlite

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/poiesic/cinevec/core"
)

const importBatchSize = 500

// ImportFile is the JSON document accepted by Import.
type ImportFile struct {
	Movies    []*core.Movie    `json:"movies"`
	Favorites []*core.Favorite `json:"favorites"`
}

// ImportStats reports what an import wrote.
type ImportStats struct {
	Movies    int
	Favorites int
}

// Import loads movies and favorites from a JSON document. Every movie gets
// its canonical point ID so the index and the catalog agree on addressing.
func (c *Catalog) Import(ctx context.Context, r io.Reader) (*ImportStats, error) {
	var file ImportFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: import document: %v", core.ErrInvalidInput, err)
	}

	for _, m := range file.Movies {
		if m == nil {
			return nil, fmt.Errorf("%w: null movie entry", core.ErrInvalidInput)
		}
		m.PointID = core.PointIDFor(core.PointTypeMovie, m.ID)
	}
	for start := 0; start < len(file.Movies); start += importBatchSize {
		batch := file.Movies[start:min(start+importBatchSize, len(file.Movies))]
		if err := c.UpsertMovies(ctx, batch...); err != nil {
			return nil, err
		}
	}
	if err := c.AddFavorites(ctx, file.Favorites...); err != nil {
		return nil, err
	}

	stats := &ImportStats{Movies: len(file.Movies), Favorites: len(file.Favorites)}
	c.logger.Info("catalog import complete", "movies", stats.Movies, "favorites", stats.Favorites)
	return stats, nil
}
