package ducker

import (
	"sync/atomic"

	"github.com/carpi-audio/duckd/pkg/dsp/gain"
)

// Snapshot is a point-in-time copy of the engine's observable state,
// published whole by the observer loop and read by the control plane.
// Readers never see a partially updated set of fields.
type Snapshot struct {
	PrimaryLevelDB   float64 `json:"primary_level_db"`
	SecondaryLevelDB float64 `json:"secondary_level_db"`
	OutputLevelDB    float64 `json:"output_level_db"`
	PrimaryPeakDB    float64 `json:"primary_peak_db"`
	SecondaryPeakDB  float64 `json:"secondary_peak_db"`
	OutputPeakDB     float64 `json:"output_peak_db"`
	DuckAmount       float64 `json:"duck_amount"`
	PrimaryActive    bool    `json:"primary_active"`
	Clipping         bool    `json:"clipping"`
}

// initialSnapshot is what readers observe before the first publication: all
// levels at the metering floor, fully unducked, not clipping.
func initialSnapshot() Snapshot {
	return Snapshot{
		PrimaryLevelDB:   gain.MinDB,
		SecondaryLevelDB: gain.MinDB,
		OutputLevelDB:    gain.MinDB,
		PrimaryPeakDB:    gain.MinDB,
		SecondaryPeakDB:  gain.MinDB,
		OutputPeakDB:     gain.MinDB,
		DuckAmount:       1.0,
	}
}

// metricsBoard holds the latest snapshot behind an atomic pointer swap:
// single writer (the observer loop), any number of readers, no locks.
type metricsBoard struct {
	current atomic.Pointer[Snapshot]
}

func newMetricsBoard() *metricsBoard {
	b := &metricsBoard{}
	initial := initialSnapshot()
	b.current.Store(&initial)
	return b
}

// Publish atomically replaces the visible snapshot with a fully-formed copy.
func (b *metricsBoard) Publish(s Snapshot) {
	b.current.Store(&s)
}

// Read returns the latest published snapshot.
func (b *metricsBoard) Read() Snapshot {
	return *b.current.Load()
}
