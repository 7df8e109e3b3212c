package core

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVocabulary = []string{"adventure", "romance", "complexity", "emotion", "realism"}

func TestValidateWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights ConceptWeights
		wantErr error
	}{
		{name: "valid weights", weights: ConceptWeights{"adventure": 1, "romance": -1}},
		{name: "zero weight is neutral", weights: ConceptWeights{"realism": 0}},
		{name: "empty map", weights: ConceptWeights{}},
		{name: "unknown concept", weights: ConceptWeights{"horror": 0.5}, wantErr: ErrUnknownConcept},
		{name: "unknown concept with zero weight", weights: ConceptWeights{"horror": 0}, wantErr: ErrUnknownConcept},
		{name: "out of range", weights: ConceptWeights{"emotion": 1.5}, wantErr: ErrInvalidInput},
		{name: "NaN", weights: ConceptWeights{"emotion": math.NaN()}, wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWeights(tt.weights, testVocabulary)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
		})
	}
}

func TestUnknownConceptIsInvalidInput(t *testing.T) {
	err := ValidateWeights(ConceptWeights{"horror": 1}, testVocabulary)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidateActions(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		err := ValidateActions([]UserAction{{ItemID: "42", Action: ActionLike}, {ItemID: "7", Action: ActionDislike}})
		assert.NoError(t, err)
	})

	t.Run("empty item id", func(t *testing.T) {
		err := ValidateActions([]UserAction{{ItemID: " ", Action: ActionLike}})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("bad action", func(t *testing.T) {
		err := ValidateActions([]UserAction{{ItemID: "1", Action: "meh"}})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestValidateText(t *testing.T) {
	got, err := ValidateText("  space opera  ")
	require.NoError(t, err)
	assert.Equal(t, "space opera", got)

	_, err = ValidateText(" \t\n")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCheckDimension(t *testing.T) {
	assert.NoError(t, CheckDimension(3, []float32{1, 2, 3}))
	assert.NoError(t, CheckDimension(0, []float32{1}))
	assert.ErrorIs(t, CheckDimension(3, []float32{1, 2}), ErrDimensionMismatch)
	assert.ErrorIs(t, CheckDimension(3, nil), ErrConfiguration)
}

func TestRemoteError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewRemoteError("search", "movies", cause)

	assert.ErrorIs(t, err, ErrRemoteService)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "movies")

	// Wrapping twice keeps the innermost operation.
	again := NewRemoteError("outer", "", err)
	var re *RemoteError
	require.True(t, errors.As(again, &re))
	assert.Equal(t, "search", re.Op)

	assert.Nil(t, NewRemoteError("noop", "", nil))
}
