// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"errors"
	"fmt"
)

// Error taxonomy
var (
	// ErrInvalidInput indicates caller input that can never succeed as given.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientInput indicates the input carries no usable signal.
	ErrInsufficientInput = fmt.Errorf("%w: insufficient input", ErrInvalidInput)

	// ErrUnknownConcept indicates a concept name outside the vocabulary.
	ErrUnknownConcept = fmt.Errorf("%w: unknown concept", ErrInvalidInput)

	// ErrRemoteService indicates the embedding provider or vector index failed.
	ErrRemoteService = errors.New("remote service error")

	// ErrConfiguration indicates a deployment problem that no retry can fix.
	ErrConfiguration = errors.New("configuration error")

	// ErrDimensionMismatch indicates vectors of different dimensionality were mixed.
	ErrDimensionMismatch = fmt.Errorf("%w: vector dimension mismatch", ErrConfiguration)

	// ErrEmptyText indicates text input was empty after trimming.
	ErrEmptyText = fmt.Errorf("%w: text cannot be empty", ErrInvalidInput)
)

// RemoteError records which remote operation failed.
type RemoteError struct {
	Op         string
	Collection string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Collection, ErrRemoteService, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrRemoteService, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Is reports RemoteError as ErrRemoteService.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteService
}

// NewRemoteError wraps err as a RemoteError unless it already is one.
func NewRemoteError(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteError{Op: op, Collection: collection, Err: err}
}
