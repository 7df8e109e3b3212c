package mock

import (
	"context"
	"testing"

	"github.com/poiesic/cinevec/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	a, err := m.EmbedText(ctx, "adventure")
	require.NoError(t, err)
	b, err := m.EmbedText(ctx, "adventure")
	require.NoError(t, err)
	c, err := m.EmbedText(ctx, "romance")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, DefaultDimension)
	assert.Equal(t, 3, m.CallCount())
}

func TestMockEmbedder_UnitLength(t *testing.T) {
	v := GenerateDeterministicVector("realism", 16)
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestMockEmbedder_RejectsEmpty(t *testing.T) {
	m := NewMockEmbedder()
	_, err := m.EmbedText(context.Background(), "  ")
	assert.ErrorIs(t, err, core.ErrEmptyText)

	_, err = m.EmbedTexts(context.Background(), []string{"ok", ""})
	assert.ErrorIs(t, err, core.ErrEmptyText)
}

func TestMockEmbedder_CustomDimensionAndReset(t *testing.T) {
	m := &MockEmbedder{Dimension: 8}
	vs, err := m.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vs[0], 8)
	assert.Equal(t, []string{"a", "b"}, m.Texts())

	m.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1}, nil
	}
	m.Reset()
	assert.Equal(t, 0, m.CallCount())
	assert.Nil(t, m.EmbedTextFunc)
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()
	mp, ok := p.(*MockProvider)
	require.True(t, ok)
	assert.Same(t, mp.GetMockEmbedder(), p.Embedder())
	assert.NoError(t, p.Close())
}
