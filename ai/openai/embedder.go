package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/cinevec/ai"
	"github.com/poiesic/cinevec/core"
	"github.com/sony/gobreaker/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder  embeddings.Embedder
	breaker   *gobreaker.CircuitBreaker[[][]float32]
	dimension int
	batchSize int
	logger    *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.APIKey),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: openai client: %w", core.ErrConfiguration, err)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(config.BatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: embedder: %w", core.ErrConfiguration, err)
	}

	return wrapEmbedder(embedder, config), nil
}

// wrapEmbedder adds validation, batching and the circuit breaker around a
// langchaingo embedder.
func wrapEmbedder(embedder embeddings.Embedder, config *ai.Config) *Embedder {
	logger := slog.Default().With("component", "openai-embedder")
	failures := config.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	settings := gobreaker.Settings{
		Name:    "embedding-provider",
		Timeout: config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isContextError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("embedding circuit breaker changed state", "from", from.String(), "to", to.String())
		},
	}
	batchSize := config.BatchSize
	if batchSize < 1 {
		batchSize = 64
	}
	return &Embedder{
		embedder:  embedder,
		breaker:   gobreaker.NewCircuitBreaker[[][]float32](settings),
		dimension: config.Dimension,
		batchSize: batchSize,
		logger:    logger,
	}
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	trimmed, err := core.ValidateText(text)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("generating embedding for single text", "length", len(trimmed))

	vectors, err := e.EmbedTexts(ctx, []string{trimmed})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
// Texts are sent in chunks of at most batchSize; output order matches input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	cleaned := make([]string, len(texts))
	for i, text := range texts {
		trimmed, err := core.ValidateText(text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		cleaned[i] = trimmed
	}
	e.logger.Debug("generating embeddings for texts", "count", len(cleaned))

	result := make([][]float32, 0, len(cleaned))
	dim := e.dimension
	for start := 0; start < len(cleaned); start += e.batchSize {
		end := min(start+e.batchSize, len(cleaned))
		chunk := cleaned[start:end]

		vectors, err := e.breaker.Execute(func() ([][]float32, error) {
			return e.embedder.EmbedDocuments(ctx, chunk)
		})
		if err != nil {
			if isContextError(err) {
				return nil, err
			}
			e.logger.Error("failed to generate embeddings", "count", len(chunk), "err", err)
			return nil, core.NewRemoteError("embed", "", err)
		}
		if len(vectors) != len(chunk) {
			return nil, core.NewRemoteError("embed", "",
				fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunk), len(vectors)))
		}
		for _, v := range vectors {
			if err := core.CheckDimension(dim, v); err != nil {
				return nil, err
			}
			dim = len(v)
		}
		result = append(result, vectors...)
	}
	return result, nil
}

// isContextError reports a caller cancellation or deadline.
func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
