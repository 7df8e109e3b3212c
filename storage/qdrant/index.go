package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config holds connection settings for a Qdrant deployment.
type Config struct {
	// Host and Port address the gRPC API.
	Host string
	Port int
	// RESTURL is the base URL of the HTTP API, used for snapshot transfer.
	// Derived from Host when empty.
	RESTURL string
	APIKey  string
	UseTLS  bool
	// Timeout bounds snapshot transfers.
	Timeout time.Duration
}

// Validate checks that the endpoint is configured.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: qdrant host is required", core.ErrConfiguration)
	}
	if c.Port <= 0 {
		return fmt.Errorf("%w: qdrant port must be positive", core.ErrConfiguration)
	}
	return nil
}

func (c *Config) restURL() string {
	if c.RESTURL != "" {
		return strings.TrimSuffix(c.RESTURL, "/")
	}
	scheme := "http"
	if c.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:6333", scheme, c.Host)
}

// Index implements storage.VectorIndex against a Qdrant server.
type Index struct {
	client     *qdrant.Client
	restURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	// dims caches collection vector sizes for query validation.
	mu   sync.RWMutex
	dims map[string]int
}

var _ storage.VectorIndex = (*Index)(nil)

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger for the index.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) {
		i.logger = logger
	}
}

// WithHTTPClient overrides the client used for snapshot transfer.
func WithHTTPClient(client *http.Client) Option {
	return func(i *Index) {
		i.httpClient = client
	}
}

// Open connects to Qdrant.
func Open(cfg Config, opts ...Option) (storage.VectorIndex, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect qdrant: %v", core.ErrConfiguration, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return newIndex(client, cfg.restURL(), cfg.APIKey, &http.Client{Timeout: timeout}, opts...), nil
}

func newIndex(client *qdrant.Client, restURL, apiKey string, httpClient *http.Client, opts ...Option) *Index {
	idx := &Index{
		client:     client,
		restURL:    restURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		dims:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.logger == nil {
		idx.logger = slog.Default()
	}
	idx.logger = idx.logger.With("component", "qdrant-index")
	return idx
}

// Close closes the gRPC connection.
func (i *Index) Close() error {
	if i.client == nil {
		return nil
	}
	return i.client.Close()
}

// remote logs a failed call and wraps it as a remote service error.
func (i *Index) remote(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s: %v", storage.ErrCollectionNotFound, collection, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	i.logger.Error("qdrant call failed", "op", op, "collection", collection, "error", err)
	return core.NewRemoteError(op, collection, err)
}

// CollectionExists reports whether a collection is present.
func (i *Index) CollectionExists(ctx context.Context, collection string) (bool, error) {
	exists, err := i.client.CollectionExists(ctx, collection)
	if err != nil {
		return false, i.remote("collection_exists", collection, err)
	}
	return exists, nil
}

// CollectionConfig returns the vector size and distance of a collection.
func (i *Index) CollectionConfig(ctx context.Context, collection string) (*storage.CollectionConfig, error) {
	exists, err := i.CollectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", storage.ErrCollectionNotFound, collection)
	}
	info, err := i.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return nil, i.remote("collection_info", collection, err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return nil, fmt.Errorf("%w: collection %s has no default vector", core.ErrConfiguration, collection)
	}
	cfg := &storage.CollectionConfig{Dimension: int(params.GetSize())}
	i.rememberDimension(collection, cfg.Dimension)
	if params.GetDistance() == qdrant.Distance_Cosine {
		cfg.Distance = storage.DistanceCosine
	} else {
		cfg.Distance = storage.Distance(strings.ToLower(params.GetDistance().String()))
	}
	return cfg, nil
}

func (i *Index) rememberDimension(collection string, dim int) {
	i.mu.Lock()
	i.dims[collection] = dim
	i.mu.Unlock()
}

func (i *Index) forgetDimension(collection string) {
	i.mu.Lock()
	delete(i.dims, collection)
	i.mu.Unlock()
}

// dimension returns the vector size of a collection, asking the server once.
func (i *Index) dimension(ctx context.Context, collection string) (int, error) {
	i.mu.RLock()
	dim, ok := i.dims[collection]
	i.mu.RUnlock()
	if ok {
		return dim, nil
	}
	cfg, err := i.CollectionConfig(ctx, collection)
	if err != nil {
		return 0, err
	}
	return cfg.Dimension, nil
}

// CreateCollection creates a collection with a single unnamed dense vector.
func (i *Index) CreateCollection(ctx context.Context, collection string, config storage.CollectionConfig) error {
	if config.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", core.ErrConfiguration, config.Dimension)
	}
	if config.Distance != "" && config.Distance != storage.DistanceCosine {
		return fmt.Errorf("%w: unsupported distance %q", core.ErrConfiguration, config.Distance)
	}
	exists, err := i.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", storage.ErrCollectionExists, collection)
	}
	err = i.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(config.Dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return i.remote("create_collection", collection, err)
	}
	i.rememberDimension(collection, config.Dimension)
	i.logger.Info("collection created", "collection", collection, "dimension", config.Dimension)
	return nil
}

// DeleteCollection drops a collection. A missing collection is not an error.
func (i *Index) DeleteCollection(ctx context.Context, collection string) error {
	exists, err := i.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	i.forgetDimension(collection)
	if err := i.client.DeleteCollection(ctx, collection); err != nil {
		return i.remote("delete_collection", collection, err)
	}
	i.logger.Info("collection deleted", "collection", collection)
	return nil
}

// Upsert writes points and waits for the operation to be applied.
func (i *Index) Upsert(ctx context.Context, collection string, points []*core.Point) error {
	if len(points) == 0 {
		return nil
	}
	cfg, err := i.CollectionConfig(ctx, collection)
	if err != nil {
		return err
	}
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if err := core.CheckDimension(cfg.Dimension, p.Vector); err != nil {
			return fmt.Errorf("point %d: %w", p.ID, err)
		}
		payload, err := toPayload(p.Payload)
		if err != nil {
			return err
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(p.ID)),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}
	_, err = i.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	return i.remote("upsert", collection, err)
}

// Scroll pages through a collection.
func (i *Index) Scroll(ctx context.Context, collection string, req storage.ScrollRequest) ([]*core.Point, *core.PointID, error) {
	limit, err := scrollLimit(req.Limit)
	if err != nil {
		return nil, nil, err
	}
	scroll := &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         toFilter(req.Filter),
		Limit:          limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(req.WithVectors),
	}
	if req.Offset != nil {
		scroll.Offset = qdrant.NewIDNum(uint64(*req.Offset))
	}
	res, err := i.client.Scroll(ctx, scroll)
	if err != nil {
		return nil, nil, i.remote("scroll", collection, err)
	}

	var next *core.PointID
	if len(res) > req.Limit {
		id := fromPointID(res[req.Limit].GetId())
		next = &id
		res = res[:req.Limit]
	}
	return fromRetrieved(res, req.WithVectors), next, nil
}

// Search runs a nearest-neighbour query.
func (i *Index) Search(ctx context.Context, collection string, req storage.SearchRequest) ([]*core.ScoredPoint, error) {
	query, err := searchQuery(collection, req)
	if err != nil {
		return nil, err
	}
	dim, err := i.dimension(ctx, collection)
	if err != nil {
		return nil, err
	}
	if err := core.CheckDimension(dim, req.Vector); err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	res, err := i.client.Query(ctx, query)
	if err != nil {
		return nil, i.remote("search", collection, err)
	}
	return fromScored(res), nil
}

func searchQuery(collection string, req storage.SearchRequest) (*qdrant.QueryPoints, error) {
	limit, err := queryLimit(req.Limit)
	if err != nil {
		return nil, err
	}
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", core.ErrDimensionMismatch)
	}
	return &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(req.Vector...),
		Filter:         toFilter(req.Filter),
		Limit:          limit,
		ScoreThreshold: req.MinScore,
		WithPayload:    qdrant.NewWithPayload(true),
	}, nil
}

// Recommend runs an average-vector recommend query.
func (i *Index) Recommend(ctx context.Context, collection string, req storage.RecommendRequest) ([]*core.ScoredPoint, error) {
	query, err := recommendQuery(collection, req)
	if err != nil {
		return nil, err
	}
	res, err := i.client.Query(ctx, query)
	if err != nil {
		return nil, i.remote("recommend", collection, err)
	}
	return fromScored(res), nil
}

// RecommendBatch sends every recommend query in a single batch call.
func (i *Index) RecommendBatch(ctx context.Context, collection string, reqs []storage.RecommendRequest) ([][]*core.ScoredPoint, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	queries := make([]*qdrant.QueryPoints, len(reqs))
	for n, req := range reqs {
		query, err := recommendQuery(collection, req)
		if err != nil {
			return nil, fmt.Errorf("batch query %d: %w", n, err)
		}
		queries[n] = query
	}
	res, err := i.client.QueryBatch(ctx, &qdrant.QueryBatchPoints{
		CollectionName: collection,
		QueryPoints:    queries,
	})
	if status.Code(err) == codes.Unimplemented {
		return nil, storage.ErrBatchUnsupported
	}
	if err != nil {
		return nil, i.remote("recommend_batch", collection, err)
	}
	out := make([][]*core.ScoredPoint, len(res))
	for n, batch := range res {
		out[n] = fromScored(batch.GetResult())
	}
	return out, nil
}

func recommendQuery(collection string, req storage.RecommendRequest) (*qdrant.QueryPoints, error) {
	if len(req.Positive) == 0 {
		return nil, fmt.Errorf("%w: recommend needs at least one positive example", storage.ErrInvalidQuery)
	}
	limit, err := queryLimit(req.Limit)
	if err != nil {
		return nil, err
	}
	input := &qdrant.RecommendInput{
		Strategy: qdrant.RecommendStrategy_AverageVector.Enum(),
	}
	for _, id := range req.Positive {
		input.Positive = append(input.Positive, qdrant.NewVectorInputID(qdrant.NewIDNum(uint64(id))))
	}
	for _, id := range req.Negative {
		input.Negative = append(input.Negative, qdrant.NewVectorInputID(qdrant.NewIDNum(uint64(id))))
	}
	return &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryRecommend(input),
		Filter:         toFilter(req.Filter),
		Limit:          limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}, nil
}

// Retrieve looks points up by ID.
func (i *Index) Retrieve(ctx context.Context, collection string, ids []core.PointID, withVectors bool) ([]*core.Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := i.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            toPointIDs(ids),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(withVectors),
	})
	if err != nil {
		return nil, i.remote("retrieve", collection, err)
	}
	return fromRetrieved(res, withVectors), nil
}

// Delete removes points by ID.
func (i *Index) Delete(ctx context.Context, collection string, ids []core.PointID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := i.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(toPointIDs(ids)...),
	})
	return i.remote("delete", collection, err)
}
