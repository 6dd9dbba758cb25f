package analysis

import (
	"math"
)

// RMS returns the root mean square amplitude of a block of samples.
// An empty block measures as 0.
func RMS(block []float32) float64 {
	if len(block) == 0 {
		return 0
	}

	sum := 0.0
	for _, sample := range block {
		s := float64(sample)
		sum += s * s
	}

	return math.Sqrt(sum / float64(len(block)))
}

// Peak returns the maximum absolute sample value in a block.
// An empty block measures as 0.
func Peak(block []float32) float64 {
	peak := 0.0
	for _, sample := range block {
		abs := math.Abs(float64(sample))
		if abs > peak {
			peak = abs
		}
	}

	return peak
}
