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
	"fmt"
	"math"
	"slices"
	"strings"
)

// ValidateWeights validates a ConceptWeights map against a vocabulary.
//
// Validation rules:
//   - every name must be part of the vocabulary
//   - every weight must be a finite number in [-1, 1]
//
// A zero weight is valid and means the concept is neutral.
func ValidateWeights(weights ConceptWeights, vocabulary []string) error {
	for name, weight := range weights {
		if !slices.Contains(vocabulary, name) {
			return fmt.Errorf("%w: %q", ErrUnknownConcept, name)
		}
		if math.IsNaN(weight) || weight < -1 || weight > 1 {
			return fmt.Errorf("%w: weight for %q must be in [-1, 1], got %v", ErrInvalidInput, name, weight)
		}
	}
	return nil
}

// ValidateActions validates a swipe history.
//
// Validation rules:
//   - ItemID must not be empty
//   - Action must be like or dislike
func ValidateActions(actions []UserAction) error {
	for i, a := range actions {
		if strings.TrimSpace(a.ItemID) == "" {
			return fmt.Errorf("%w: action %d has empty item id", ErrInvalidInput, i)
		}
		if a.Action != ActionLike && a.Action != ActionDislike {
			return fmt.Errorf("%w: action %d has unsupported value %q", ErrInvalidInput, i, a.Action)
		}
	}
	return nil
}

// ValidateText trims text and rejects empty input.
func ValidateText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyText
	}
	return trimmed, nil
}

// CheckDimension rejects a vector whose length differs from dim.
// A dim of 0 means the dimension is not known yet and anything non-empty passes.
func CheckDimension(dim int, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	if dim > 0 && len(vector) != dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dim, len(vector))
	}
	return nil
}
