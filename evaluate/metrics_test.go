package evaluate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestROCAUC(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		pos    []bool
		want   float64
	}{
		{"perfect", []float64{0.9, 0.8, 0.2, 0.1}, []bool{true, true, false, false}, 1},
		{"inverted", []float64{0.1, 0.2, 0.8, 0.9}, []bool{true, true, false, false}, 0},
		{"all tied", []float64{0.5, 0.5, 0.5, 0.5}, []bool{true, false, true, false}, 0.5},
		{"one swap", []float64{0.9, 0.7, 0.8, 0.1}, []bool{true, true, false, false}, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ROCAUC(tt.scores, tt.pos)
			assert.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestROCAUC_SingleClass(t *testing.T) {
	_, ok := ROCAUC([]float64{1, 2}, []bool{true, true})
	assert.False(t, ok)
}

func TestMacroAccuracy(t *testing.T) {
	// class 0: 2/2, class 1: 1/2, class 2: 0/1
	predicted := []int{0, 0, 1, 0, 1}
	actual := []int{0, 0, 1, 1, 2}
	assert.InDelta(t, (1+0.5+0)/3.0, MacroAccuracy(predicted, actual), 1e-12)
	assert.Zero(t, MacroAccuracy(nil, nil))
}

func TestRSquared(t *testing.T) {
	r2, ok := RSquared([]float64{1, 2, 3}, []float64{1, 2, 3})
	assert.True(t, ok)
	assert.InDelta(t, 1, r2, 1e-12)

	// Predicting the mean scores 0.
	r2, ok = RSquared([]float64{2, 2, 2}, []float64{1, 2, 3})
	assert.True(t, ok)
	assert.InDelta(t, 0, r2, 1e-12)

	_, ok = RSquared([]float64{1, 1}, []float64{4, 4})
	assert.False(t, ok)
}
