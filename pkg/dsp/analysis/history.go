package analysis

import (
	"github.com/carpi-audio/duckd/pkg/dsp/gain"
)

// PeakHistory is a fixed-capacity FIFO of recent dB readings used to compute
// a peak-hold value for metering. The oldest reading is evicted when the
// capacity is reached. It never resizes or allocates after construction.
//
// PeakHistory is not safe for concurrent use; it belongs to a single meter
// loop.
type PeakHistory struct {
	values []float64
	head   int
	count  int
}

// NewPeakHistory creates a history holding up to capacity readings.
// Capacities below 1 are raised to 1.
func NewPeakHistory(capacity int) *PeakHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &PeakHistory{
		values: make([]float64, capacity),
	}
}

// Push appends a dB reading, evicting the oldest when full, and returns the
// maximum reading currently held. Pushing into an empty history returns the
// pushed value itself.
func (h *PeakHistory) Push(db float64) float64 {
	h.values[h.head] = db
	h.head = (h.head + 1) % len(h.values)
	if h.count < len(h.values) {
		h.count++
	}

	return h.Max()
}

// Max returns the maximum reading currently held. An empty history reports
// the metering floor, since 0 dB would read as full scale.
func (h *PeakHistory) Max() float64 {
	if h.count == 0 {
		return gain.MinDB
	}

	max := h.values[0]
	for i := 1; i < h.count; i++ {
		if h.values[i] > max {
			max = h.values[i]
		}
	}

	return max
}

// Len returns the number of readings currently held.
func (h *PeakHistory) Len() int {
	return h.count
}

// Reset discards all held readings.
func (h *PeakHistory) Reset() {
	h.head = 0
	h.count = 0
}
