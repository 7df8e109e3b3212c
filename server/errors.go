package server

import "errors"

var (
	// ErrEngineRequired is returned when no engine is provided.
	ErrEngineRequired = errors.New("engine required")
)
