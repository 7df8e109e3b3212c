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

package reembed

import (
	"context"

	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
)

const (
	// DefaultBatchSize is the default number of movies fetched and embedded per batch
	DefaultBatchSize = 100
)

// CatalogIterator pages through every movie in the catalog by ID.
type CatalogIterator struct {
	catalog   storage.Catalog
	batchSize int
}

// NewCatalogIterator creates a new catalog iterator.
// batchSize: number of movies to fetch per page (defaults when <= 0)
func NewCatalogIterator(catalog storage.Catalog, batchSize int) *CatalogIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &CatalogIterator{
		catalog:   catalog,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each page of movies, in ID order.
// Iteration stops on the first error from fn or when the catalog is exhausted.
// Context cancellation is checked between pages.
func (it *CatalogIterator) ForEach(ctx context.Context, fn func([]*core.Movie) error) error {
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := it.catalog.ListMovies(ctx, afterID, it.batchSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}

		if err := fn(page); err != nil {
			return err
		}

		if len(page) < it.batchSize {
			return nil
		}
		afterID = page[len(page)-1].ID
	}
}
