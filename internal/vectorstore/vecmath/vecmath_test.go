package vecmath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 0}))
}

func TestTopK(t *testing.T) {
	candidates := [][]float32{{0, 1}, {1, 0}, {1, 1}}
	got := TopK([]float32{1, 0}, candidates, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, 2, got[1].Index)
	assert.Greater(t, got[0].Score, got[1].Score)

	assert.Len(t, TopK([]float32{1, 0}, candidates, 10), 3)
	assert.Empty(t, TopK([]float32{1, 0}, nil, 1))
}

func TestEncodeDecode(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}
	got, err := Decode(Encode(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}
