package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
)

// Index implements storage.VectorIndex on top of BadgerDB.
//
// Search is exhaustive: every point of the collection is scored against the
// query. That is fine for catalogs in the tens of thousands of items.
type Index struct {
	backend     *Backend
	snapshotDir string
	logger      *slog.Logger
}

var _ storage.VectorIndex = (*Index)(nil)

// Option configures an Index.
type Option func(*Index)

// WithSnapshotDir sets the directory snapshots are written to.
func WithSnapshotDir(dir string) Option {
	return func(i *Index) {
		i.snapshotDir = dir
	}
}

// WithLogger sets the logger for the index.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) {
		i.logger = logger
	}
}

// NewIndex creates a vector index over an open backend.
// The index owns the backend and closes it on Close.
func NewIndex(backend *Backend, opts ...Option) storage.VectorIndex {
	idx := &Index{backend: backend}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.logger == nil {
		idx.logger = slog.Default()
	}
	idx.logger = idx.logger.With("component", "badger-index")
	return idx
}

// Open opens a BadgerDB database at path and returns an index over it.
func Open(path string, opts ...Option) (storage.VectorIndex, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return NewIndex(backend, opts...), nil
}

// Close closes the underlying backend.
func (i *Index) Close() error {
	return i.backend.Close()
}

// CollectionExists reports whether a collection is present.
func (i *Index) CollectionExists(ctx context.Context, collection string) (bool, error) {
	_, err := i.CollectionConfig(ctx, collection)
	if errors.Is(err, storage.ErrCollectionNotFound) {
		return false, nil
	}
	return err == nil, err
}

// CollectionConfig returns the schema of a collection.
func (i *Index) CollectionConfig(ctx context.Context, collection string) (*storage.CollectionConfig, error) {
	var meta *collectionMeta
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		meta, err = readMeta(tx, collection)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return &storage.CollectionConfig{Dimension: meta.Dimension, Distance: meta.Distance}, nil
}

// CreateCollection creates an empty collection.
func (i *Index) CreateCollection(ctx context.Context, collection string, config storage.CollectionConfig) error {
	if err := validateCollectionName(collection); err != nil {
		return err
	}
	if config.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", core.ErrConfiguration, config.Dimension)
	}
	if config.Distance == "" {
		config.Distance = storage.DistanceCosine
	}
	if config.Distance != storage.DistanceCosine {
		return fmt.Errorf("%w: unsupported distance %q", core.ErrConfiguration, config.Distance)
	}

	err := i.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeCollectionKey(collection))
		if err == nil {
			return fmt.Errorf("%w: %s", storage.ErrCollectionExists, collection)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		value, err := marshalMeta(&collectionMeta{
			Dimension: config.Dimension,
			Distance:  config.Distance,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if err := tx.Set(makeCollectionKey(collection), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}
	i.logger.Debug("collection created", "collection", collection, "dimension", config.Dimension)
	return nil
}

// DeleteCollection drops a collection and all of its points.
func (i *Index) DeleteCollection(ctx context.Context, collection string) error {
	if err := validateCollectionName(collection); err != nil {
		return err
	}
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeCollectionKey(collection)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}
	if err := i.backend.DropPrefix(makePointPrefix(collection)); err != nil {
		return err
	}
	i.logger.Debug("collection deleted", "collection", collection)
	return nil
}

// Upsert inserts or replaces points by ID.
func (i *Index) Upsert(ctx context.Context, collection string, points []*core.Point) error {
	if len(points) == 0 {
		return nil
	}
	return i.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readMeta(tx, collection)
		if err != nil {
			return err
		}
		for _, p := range points {
			if err := core.CheckDimension(meta.Dimension, p.Vector); err != nil {
				return fmt.Errorf("point %d: %w", p.ID, err)
			}
			value, err := marshalPoint(&pointRecord{
				ID:      p.ID,
				Vector:  core.NormalizeVector(p.Vector),
				Payload: p.Payload,
			})
			if err != nil {
				return err
			}
			if err := tx.Set(makePointKey(collection, p.ID), value); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Scroll pages through a collection in ascending point ID order.
func (i *Index) Scroll(ctx context.Context, collection string, req storage.ScrollRequest) ([]*core.Point, *core.PointID, error) {
	if req.Limit <= 0 {
		return nil, nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	var (
		points []*core.Point
		next   *core.PointID
	)
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := readMeta(tx, collection); err != nil {
			return err
		}
		start := makePointPrefix(collection)
		if req.Offset != nil {
			start = makePointKey(collection, *req.Offset)
		}
		return scanPoints(ctx, tx, collection, start, func(p *pointRecord) (bool, error) {
			if !req.Filter.Matches(p.ID, p.Payload) {
				return true, nil
			}
			if len(points) == req.Limit {
				id := p.ID
				next = &id
				return false, nil
			}
			points = append(points, p.toPoint(req.WithVectors))
			return true, nil
		})
	}, false)
	if err != nil {
		return nil, nil, err
	}
	return points, next, nil
}

// Search returns the nearest neighbours of req.Vector by cosine similarity.
func (i *Index) Search(ctx context.Context, collection string, req storage.SearchRequest) ([]*core.ScoredPoint, error) {
	if req.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	var results []*core.ScoredPoint
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readMeta(tx, collection)
		if err != nil {
			return err
		}
		if err := core.CheckDimension(meta.Dimension, req.Vector); err != nil {
			return err
		}
		results, err = rank(ctx, tx, collection, core.NormalizeVector(req.Vector), req.Filter, req.MinScore, req.Limit)
		return err
	}, false)
	return results, err
}

// Recommend scores points against the average of the positive examples,
// pushed away from the average of the negative ones. Example points are
// excluded from the results.
func (i *Index) Recommend(ctx context.Context, collection string, req storage.RecommendRequest) ([]*core.ScoredPoint, error) {
	var results []*core.ScoredPoint
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		results, err = i.recommend(ctx, tx, collection, req)
		return err
	}, false)
	return results, err
}

// RecommendBatch runs every request against a single read snapshot.
func (i *Index) RecommendBatch(ctx context.Context, collection string, reqs []storage.RecommendRequest) ([][]*core.ScoredPoint, error) {
	out := make([][]*core.ScoredPoint, len(reqs))
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		for n, req := range reqs {
			results, err := i.recommend(ctx, tx, collection, req)
			if err != nil {
				return fmt.Errorf("batch query %d: %w", n, err)
			}
			out[n] = results
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (i *Index) recommend(ctx context.Context, tx *badger.Txn, collection string, req storage.RecommendRequest) ([]*core.ScoredPoint, error) {
	if len(req.Positive) == 0 {
		return nil, fmt.Errorf("%w: recommend needs at least one positive example", storage.ErrInvalidQuery)
	}
	if req.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	if _, err := readMeta(tx, collection); err != nil {
		return nil, err
	}

	positive, err := averageOf(tx, collection, req.Positive)
	if err != nil {
		return nil, err
	}
	target := positive
	if len(req.Negative) > 0 {
		negative, err := averageOf(tx, collection, req.Negative)
		if err != nil {
			return nil, err
		}
		target = make([]float32, len(positive))
		for n := range positive {
			target[n] = positive[n] + (positive[n] - negative[n])
		}
	}

	filter := storage.Filter{}
	if req.Filter != nil {
		filter = *req.Filter
	}
	filter.ExcludeIDs = slices.Concat(filter.ExcludeIDs, req.Positive, req.Negative)

	return rank(ctx, tx, collection, core.NormalizeVector(target), &filter, nil, req.Limit)
}

// Retrieve looks points up by ID. Missing IDs are skipped.
func (i *Index) Retrieve(ctx context.Context, collection string, ids []core.PointID, withVectors bool) ([]*core.Point, error) {
	var points []*core.Point
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := readMeta(tx, collection); err != nil {
			return err
		}
		for _, id := range ids {
			p, err := readPoint(tx, collection, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			points = append(points, p.toPoint(withVectors))
		}
		return nil
	}, false)
	return points, err
}

// Delete removes points by ID. Missing IDs are ignored.
func (i *Index) Delete(ctx context.Context, collection string, ids []core.PointID) error {
	return i.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := readMeta(tx, collection); err != nil {
			return err
		}
		for _, id := range ids {
			if err := tx.Delete(makePointKey(collection, id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// readMeta loads a collection schema or returns ErrCollectionNotFound.
func readMeta(tx *badger.Txn, collection string) (*collectionMeta, error) {
	if err := validateCollectionName(collection); err != nil {
		return nil, err
	}
	item, err := tx.Get(makeCollectionKey(collection))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", storage.ErrCollectionNotFound, collection)
	}
	if err != nil {
		return nil, err
	}
	var meta *collectionMeta
	err = item.Value(func(val []byte) error {
		meta, err = unmarshalMeta(val)
		return err
	})
	return meta, err
}

// readPoint loads a single point or returns ErrNotFound.
func readPoint(tx *badger.Txn, collection string, id core.PointID) (*pointRecord, error) {
	item, err := tx.Get(makePointKey(collection, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: point %d", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var p *pointRecord
	err = item.Value(func(val []byte) error {
		p, err = unmarshalPoint(val)
		return err
	})
	return p, err
}

// scanPoints walks the points of a collection from start in key order until
// fn returns false.
func scanPoints(ctx context.Context, tx *badger.Txn, collection string, start []byte, fn func(p *pointRecord) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makePointPrefix(collection)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Seek(start); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var p *pointRecord
		err := iter.Item().Value(func(val []byte) error {
			var err error
			p, err = unmarshalPoint(val)
			return err
		})
		if err != nil {
			return err
		}
		cont, err := fn(p)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// rank scores every matching point against a normalized query and returns the
// best limit results, highest score first.
func rank(ctx context.Context, tx *badger.Txn, collection string, query []float32, filter *storage.Filter, minScore *float32, limit int) ([]*core.ScoredPoint, error) {
	var results []*core.ScoredPoint
	err := scanPoints(ctx, tx, collection, makePointPrefix(collection), func(p *pointRecord) (bool, error) {
		if !filter.Matches(p.ID, p.Payload) {
			return true, nil
		}
		score := core.DotProduct(query, p.Vector)
		if minScore != nil && score < *minScore {
			return true, nil
		}
		results = append(results, &core.ScoredPoint{ID: p.ID, Score: score, Payload: p.Payload})
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b *core.ScoredPoint) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// averageOf returns the mean of the stored vectors for ids.
// Every id must exist.
func averageOf(tx *badger.Txn, collection string, ids []core.PointID) ([]float32, error) {
	var sum []float32
	for _, id := range ids {
		p, err := readPoint(tx, collection, id)
		if err != nil {
			return nil, err
		}
		if sum == nil {
			sum = make([]float32, len(p.Vector))
		}
		for n, v := range p.Vector {
			sum[n] += v
		}
	}
	for n := range sum {
		sum[n] /= float32(len(ids))
	}
	return sum, nil
}
