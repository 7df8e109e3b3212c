package concepts

import "errors"

var (
	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEmptyVocabulary is returned when the store has no definitions.
	ErrEmptyVocabulary = errors.New("concept vocabulary is empty")
)
