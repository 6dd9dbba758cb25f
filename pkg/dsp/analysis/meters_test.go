package analysis

import (
	"math"
	"testing"
)

func TestRMS(t *testing.T) {
	tests := []struct {
		name     string
		block    []float32
		expected float64
		epsilon  float64
	}{
		{"Empty block", []float32{}, 0.0, 0.0},
		{"Nil block", nil, 0.0, 0.0},
		{"Silence", []float32{0, 0, 0, 0}, 0.0, 0.0},
		{"DC full scale", []float32{1, 1, 1, 1}, 1.0, 1e-9},
		{"DC negative", []float32{-0.5, -0.5, -0.5, -0.5}, 0.5, 1e-9},
		{"Square wave", []float32{1, -1, 1, -1}, 1.0, 1e-9},
		{"Mixed", []float32{0.3, -0.4}, 0.35355, 1e-4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RMS(tt.block)
			if math.Abs(got-tt.expected) > tt.epsilon {
				t.Errorf("RMS(%v) = %f, want %f", tt.block, got, tt.expected)
			}
		})
	}
}

func TestRMSSine(t *testing.T) {
	// A full-scale sine has an RMS of 1/sqrt(2)
	const n = 4800
	block := make([]float32, n)
	for i := range block {
		block[i] = float32(math.Sin(2 * math.Pi * 100 * float64(i) / float64(n)))
	}

	got := RMS(block)
	expected := 1.0 / math.Sqrt2
	if math.Abs(got-expected) > 0.001 {
		t.Errorf("RMS(sine) = %f, want %f", got, expected)
	}
}

func TestPeak(t *testing.T) {
	tests := []struct {
		name     string
		block    []float32
		expected float64
	}{
		{"Empty block", []float32{}, 0.0},
		{"Positive peak", []float32{0.1, 0.5, 0.3}, 0.5},
		{"Negative peak", []float32{0.1, -0.7, 0.2}, 0.7},
		{"Full scale", []float32{0.2, 1.0, -1.0}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Peak(tt.block)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Peak(%v) = %f, want %f", tt.block, got, tt.expected)
			}
		})
	}
}
