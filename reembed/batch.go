package reembed

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/poiesic/cinevec/ai"
	"github.com/poiesic/cinevec/compose"
	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
)

// BatchProcessor embeds a batch of movies and upserts their points.
type BatchProcessor struct {
	index          storage.VectorIndex
	embedder       ai.Embedder
	collection     string
	limiter        *rate.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// limiter: paces embedding calls; nil means unlimited
// maxRetries: maximum number of attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(index storage.VectorIndex, embedder ai.Embedder, collection string, limiter *rate.Limiter, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &BatchProcessor{
		index:          index,
		embedder:       embedder,
		collection:     collection,
		limiter:        limiter,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds the movies' documents and upserts one point per movie.
// Movies without any document text are skipped and counted in the result.
func (bp *BatchProcessor) Process(ctx context.Context, movies []*core.Movie) (skipped int, err error) {
	if len(movies) == 0 {
		return 0, nil
	}

	kept := make([]*core.Movie, 0, len(movies))
	texts := make([]string, 0, len(movies))
	for _, m := range movies {
		doc := compose.Document(m)
		if doc == "" {
			skipped++
			continue
		}
		kept = append(kept, m)
		texts = append(texts, doc)
	}
	if len(kept) == 0 {
		return skipped, nil
	}

	embeddings, err := bp.embed(ctx, texts)
	if err != nil {
		return skipped, err
	}
	if len(embeddings) != len(kept) {
		return skipped, fmt.Errorf("%w: embedding count mismatch: expected %d, got %d",
			core.ErrRemoteService, len(kept), len(embeddings))
	}

	points := make([]*core.Point, len(kept))
	for i, m := range kept {
		points[i] = &core.Point{
			ID:      core.PointIDFor(core.PointTypeMovie, m.ID),
			Vector:  core.NormalizeVector(embeddings[i]),
			Payload: moviePayload(m),
		}
	}

	if err := bp.index.Upsert(ctx, bp.collection, points); err != nil {
		return skipped, fmt.Errorf("failed to upsert movie points: %w", err)
	}
	return skipped, nil
}

// embed waits for the limiter, then calls the provider with retries.
func (bp *BatchProcessor) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func() error {
		if err := bp.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}
	return embeddings, nil
}

func moviePayload(m *core.Movie) map[string]any {
	payload := map[string]any{
		core.PayloadItemID: m.ID,
		core.PayloadType:   string(core.PointTypeMovie),
		core.PayloadTitle:  m.Title,
	}
	if m.ReleaseYear != 0 {
		payload[core.PayloadYear] = m.ReleaseYear
	}
	if len(m.Genres) > 0 {
		payload[core.PayloadGenres] = m.Genres
	}
	return payload
}
