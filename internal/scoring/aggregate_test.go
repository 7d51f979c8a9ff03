package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBottleneckWeight(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		min  float64
		want float64
	}{
		{name: "severe below 50", min: 49.9, want: 0.85},
		{name: "zero", min: 0, want: 0.85},
		{name: "moderate at 50", min: 50, want: 0.75},
		{name: "moderate below 70", min: 69.9, want: 0.75},
		{name: "default at 70", min: 70, want: 0.70},
		{name: "default high", min: 100, want: 0.70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, BottleneckWeight(tt.min), 1e-9)
		})
	}
}

func TestAggregate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		entries []float64
		want    int
	}{
		{name: "empty", entries: nil, want: 0},
		{name: "single value", entries: []float64{80}, want: 80},
		{name: "all equal", entries: []float64{60, 60, 60}, want: 60},
		// min=40 (severe, w=0.85), mean=60: 40*0.85 + 60*0.15 = 43.
		{name: "severe bottleneck", entries: []float64{40, 60, 80}, want: 43},
		// min=55 (moderate, w=0.75), mean=70: 55*0.75 + 70*0.25 = 58.75 -> 59.
		{name: "moderate bottleneck", entries: []float64{55, 70, 85}, want: 59},
		// min=75 (w=0.70), mean=85: 75*0.7 + 85*0.3 = 78.
		{name: "strong profile", entries: []float64{75, 85, 95}, want: 78},
		// Clamped to {0,100}: min=0 (w=0.85), mean=50: 50*0.15 = 7.5 -> 8.
		{name: "out of range clamped", entries: []float64{-10, 150}, want: 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Aggregate(tt.entries))
		})
	}
}

func TestAggregate_WeakCategoryDragsDownHighMean(t *testing.T) {
	t.Parallel()
	// Four excellent categories cannot average away one failing category.
	got := Aggregate([]float64{100, 100, 100, 100, 10})
	assert.Less(t, got, 40)
	assert.GreaterOrEqual(t, got, 0)
}

func TestAggregate_AlwaysInRange(t *testing.T) {
	t.Parallel()
	inputs := [][]float64{
		{0, 0, 0, 0, 0},
		{100, 100, 100, 100, 100},
		{-500, 700},
		{33.3, 66.6, 99.9},
	}
	for _, in := range inputs {
		got := Aggregate(in)
		assert.GreaterOrEqual(t, got, 0)
		assert.LessOrEqual(t, got, 100)
	}
}
