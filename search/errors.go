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


package search

import "errors"

var (
	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrCatalogRequired is returned when a catalog is not provided.
	ErrCatalogRequired = errors.New("catalog required")

	// ErrConceptsRequired is returned when a concept source is not provided.
	ErrConceptsRequired = errors.New("concept source required")

	// ErrComposerRequired is returned when a composer is not provided.
	ErrComposerRequired = errors.New("composer required")

	// ErrItemNotIndexed is returned when a source item has no point in the index.
	ErrItemNotIndexed = errors.New("item not indexed")
)
