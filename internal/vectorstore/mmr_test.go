package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 0}, b: []float32{1, 0}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 0}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestMaximalMarginalRelevance(t *testing.T) {
	query := []float32{1, 0}
	candidates := [][]float32{
		{0.8, 0.6},  // most relevant
		{0.8, 0.6},  // duplicate of the first
		{0.6, -0.8}, // less relevant but diverse
	}

	picked := maximalMarginalRelevance(query, candidates, 0.5, 2)
	assert.Equal(t, []int{0, 2}, picked)
}

func TestMaximalMarginalRelevance_Bounds(t *testing.T) {
	assert.Nil(t, maximalMarginalRelevance([]float32{1}, nil, 0.5, 3))
	assert.Nil(t, maximalMarginalRelevance([]float32{1}, [][]float32{{1}}, 0.5, 0))

	picked := maximalMarginalRelevance([]float32{1, 0}, [][]float32{{1, 0}}, 0.5, 5)
	assert.Equal(t, []int{0}, picked)
}
