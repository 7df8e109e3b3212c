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

// Package storage provides the storage abstraction layer for cinevec.
//
// Two contracts live here:
//
//   - VectorIndex: collections of points (ID, vector, payload) with
//     nearest-neighbour search, index-side recommend, scrolling, and snapshots
//   - Catalog: the read side of the movie metadata store (lookup by ID,
//     favorites, paging for re-embedding jobs)
//
// # Implementations
//
//   - storage/badger: embedded vector index on BadgerDB, used for single-node
//     deployments and tests
//   - storage/qdrant: Qdrant over its gRPC API
//   - storage/sqlite: the movie catalog on SQLite
//
// # Constructor Return Type Pattern
//
// Public constructors return the interface types so consumers cannot couple
// to backend specifics:
//
//	index, err := badger.NewIndex(backend)   // returns storage.VectorIndex
//	catalog, err := sqlite.Open(ctx, path) // returns *sqlite.Catalog, which also implements CatalogWriter
//
// # Identifiers
//
// Item IDs are strings. Points are addressed by core.PointID, derived with
// core.PointIDFor so every writer computes the same ID for the same item.
//
// # Filters
//
// Filter supports match-any and match-none on point IDs and on payload string
// fields. ItemFilter builds the filter every item query uses, which removes
// auxiliary mood and concept points.
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package storage
