// Package dynamics provides gain-reduction processors for audio blocks.
package dynamics

import (
	"github.com/carpi-audio/duckd/pkg/dsp/analysis"
)

// NormalizeBlock applies block-wise peak normalization to a stereo pair.
//
// The peak absolute sample across both channels is located; when it exceeds
// full scale (strictly greater than 1.0) both channels are divided by the
// peak so the loudest sample lands exactly at 1.0. A block whose peak is
// exactly 1.0 is left untouched.
//
// This is a whole-block normalization, not a lookahead limiter: gain is
// sample-accurate within the block but re-evaluated per block. Returns the
// pre-normalization peak and whether limiting engaged.
func NormalizeBlock(left, right []float32) (peak float64, clipped bool) {
	peak = analysis.Peak(left)
	if p := analysis.Peak(right); p > peak {
		peak = p
	}

	if peak <= 1.0 {
		return peak, false
	}

	scale := float32(1.0 / peak)
	for i := range left {
		left[i] *= scale
	}
	for i := range right {
		right[i] *= scale
	}

	return peak, true
}
