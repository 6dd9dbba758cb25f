// Package gain provides amplitude and gain-related DSP operations.
package gain

import (
	"math"
)

// Constants for dB conversion
const (
	// MinDB is the metering floor. Levels at or below silence report this
	// value instead of negative infinity.
	MinDB = -100.0
)

// LinearToDb converts a linear amplitude value to decibels.
// Returns MinDB for values <= 0.
func LinearToDb(linear float64) float64 {
	if linear <= 0 {
		return MinDB
	}
	return 20.0 * math.Log10(linear)
}

// DbToLinear converts a decibel value to linear amplitude. The conversion is
// exact for any input, so it inverts LinearToDb for every positive
// amplitude, including those below the metering floor.
func DbToLinear(db float64) float64 {
	return math.Pow(10.0, db/20.0)
}

// LinearToDb32 is the float32 version of LinearToDb.
func LinearToDb32(linear float32) float32 {
	if linear <= 0 {
		return MinDB
	}
	return 20.0 * float32(math.Log10(float64(linear)))
}

// DbToLinear32 is the float32 version of DbToLinear.
func DbToLinear32(db float32) float32 {
	return float32(math.Pow(10.0, float64(db)/20.0))
}

// Apply applies a gain factor to a sample.
func Apply(sample, gain float32) float32 {
	return sample * gain
}

// ApplyBuffer applies gain to an entire buffer in-place.
func ApplyBuffer(buffer []float32, gain float32) {
	for i := range buffer {
		buffer[i] *= gain
	}
}

// ApplyBufferTo applies gain to a buffer and stores in destination.
func ApplyBufferTo(src []float32, gain float32, dst []float32) {
	length := len(src)
	if len(dst) < length {
		length = len(dst)
	}

	for i := 0; i < length; i++ {
		dst[i] = src[i] * gain
	}
}
