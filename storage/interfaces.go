package storage

import (
	"context"
	"io"
	"time"

	"github.com/poiesic/cinevec/core"
)

// Distance is the similarity metric a collection is configured with.
type Distance string

// DistanceCosine is the only metric the engine relies on.
const DistanceCosine Distance = "cosine"

// CollectionConfig fixes the schema of a collection.
type CollectionConfig struct {
	Dimension int
	Distance  Distance
}

// SearchRequest is a k-nearest-neighbour query around a vector.
type SearchRequest struct {
	Vector []float32
	Filter *Filter
	Limit  int
	// MinScore drops results scoring below it when set.
	MinScore *float32
}

// RecommendRequest asks the index to aggregate positive and negative example
// points itself. Example points are never returned as results.
type RecommendRequest struct {
	Positive []core.PointID
	Negative []core.PointID
	Filter   *Filter
	Limit    int
}

// ScrollRequest pages through a collection in unspecified order.
type ScrollRequest struct {
	Filter      *Filter
	Limit       int
	Offset      *core.PointID // nil starts from the beginning
	WithVectors bool
}

// Snapshot describes a stored collection backup.
type Snapshot struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Size      int64     `json:"size"`
}

// VectorIndex is the vector database contract the engine is written against.
// Implementations must be thread-safe and support concurrent access.
//
// Search, Recommend and RecommendBatch return results sorted by descending
// score. Ordering among equal scores is unspecified.
type VectorIndex interface {
	// CollectionExists reports whether a collection is present.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// CollectionConfig returns the schema of a collection.
	// Returns ErrCollectionNotFound if it does not exist.
	CollectionConfig(ctx context.Context, collection string) (*CollectionConfig, error)

	// CreateCollection creates an empty collection.
	// Returns ErrCollectionExists if it already exists.
	CreateCollection(ctx context.Context, collection string, config CollectionConfig) error

	// DeleteCollection drops a collection and all of its points.
	// Deleting a missing collection is not an error.
	DeleteCollection(ctx context.Context, collection string) error

	// Upsert inserts or replaces points by ID.
	// Vectors whose length differs from the collection dimension are rejected
	// with core.ErrDimensionMismatch.
	Upsert(ctx context.Context, collection string, points []*core.Point) error

	// Scroll returns up to Limit points matching the filter and the offset to
	// pass for the next page, or nil when the collection is exhausted.
	Scroll(ctx context.Context, collection string, req ScrollRequest) ([]*core.Point, *core.PointID, error)

	// Search returns the nearest neighbours of req.Vector.
	Search(ctx context.Context, collection string, req SearchRequest) ([]*core.ScoredPoint, error)

	// Recommend returns points similar to the positive examples and
	// dissimilar to the negative ones.
	Recommend(ctx context.Context, collection string, req RecommendRequest) ([]*core.ScoredPoint, error)

	// RecommendBatch runs several recommend queries in one round trip.
	// Results are returned in request order. Implementations without native
	// batching return ErrBatchUnsupported.
	RecommendBatch(ctx context.Context, collection string, reqs []RecommendRequest) ([][]*core.ScoredPoint, error)

	// Retrieve looks points up by ID. Missing IDs are skipped.
	Retrieve(ctx context.Context, collection string, ids []core.PointID, withVectors bool) ([]*core.Point, error)

	// Delete removes points by ID. Missing IDs are ignored.
	Delete(ctx context.Context, collection string, ids []core.PointID) error

	// CreateSnapshot stores a backup of the collection.
	CreateSnapshot(ctx context.Context, collection string) (*Snapshot, error)

	// ListSnapshots lists stored backups of the collection, newest first.
	ListSnapshots(ctx context.Context, collection string) ([]*Snapshot, error)

	// DownloadSnapshot streams a stored backup into w.
	// Returns ErrSnapshotNotFound if the name is unknown.
	DownloadSnapshot(ctx context.Context, collection, name string, w io.Writer) error

	// RestoreSnapshot replaces the collection contents with a backup read from r.
	RestoreSnapshot(ctx context.Context, collection string, r io.Reader) error

	// Close releases resources held by the index.
	Close() error
}

// Catalog is the read side of the metadata store.
// The engine never writes to it.
type Catalog interface {
	// FindByIDs returns the movies that exist among ids, in unspecified order.
	// Missing IDs are not an error.
	FindByIDs(ctx context.Context, ids ...string) ([]*core.Movie, error)

	// FindFavorites returns every favorite, oldest first.
	FindFavorites(ctx context.Context) ([]*core.Favorite, error)

	// ListMovies pages through the catalog ordered by ID, starting after afterID.
	ListMovies(ctx context.Context, afterID string, limit int) ([]*core.Movie, error)

	// CountMovies returns the number of movies in the catalog.
	CountMovies(ctx context.Context) (int, error)

	// Close closes the catalog and releases resources.
	Close() error
}

// CatalogWriter loads records into the metadata store.
// It is used by administrative import jobs only.
type CatalogWriter interface {
	// UpsertMovies inserts or replaces movies by ID.
	UpsertMovies(ctx context.Context, movies ...*core.Movie) error

	// AddFavorites records favorites. Re-adding an item keeps the original AddedAt.
	AddFavorites(ctx context.Context, favorites ...*core.Favorite) error
}
