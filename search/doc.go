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


// Package search provides the explore and recommendation engine.
//
// Each request resolves to one mode:
//   - concept: slider weights composed into a target vector
//   - text: a free-text query embedded once
//   - swipe: likes and dislikes handed to the index's recommend query
//   - personalize: the favorites list aggregated and embedded
//   - similar and mood_blend: stored item or mood vectors reused as queries
//   - random: the fallback when no query signal exists
//
// Whatever the mode, the engine queries the item collection with auxiliary
// points and caller exclusions filtered out, hydrates hits from the catalog
// and returns them in index order.
package search
