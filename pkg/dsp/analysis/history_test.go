package analysis

import (
	"testing"

	"github.com/carpi-audio/duckd/pkg/dsp/gain"
)

func TestPeakHistoryFirstPush(t *testing.T) {
	h := NewPeakHistory(20)

	// Pushing into an empty history returns the value itself
	if got := h.Push(-42.0); got != -42.0 {
		t.Errorf("First Push returned %f, want -42.0", got)
	}

	if h.Len() != 1 {
		t.Errorf("Len = %d, want 1", h.Len())
	}
}

func TestPeakHistoryMax(t *testing.T) {
	h := NewPeakHistory(4)

	h.Push(-60.0)
	h.Push(-20.0)
	if got := h.Push(-40.0); got != -20.0 {
		t.Errorf("Push returned %f, want -20.0", got)
	}
}

func TestPeakHistoryEviction(t *testing.T) {
	h := NewPeakHistory(3)

	h.Push(-10.0) // will be evicted
	h.Push(-50.0)
	h.Push(-60.0)

	// Fourth push evicts -10.0, so the peak drops to the new maximum
	if got := h.Push(-55.0); got != -50.0 {
		t.Errorf("Push after eviction returned %f, want -50.0", got)
	}

	if h.Len() != 3 {
		t.Errorf("Len = %d, want 3", h.Len())
	}
}

func TestPeakHistoryCapacityFloor(t *testing.T) {
	h := NewPeakHistory(0)

	h.Push(-30.0)
	if got := h.Push(-80.0); got != -80.0 {
		t.Errorf("Single-slot history returned %f, want -80.0", got)
	}
}

func TestPeakHistoryMaxWhenEmpty(t *testing.T) {
	h := NewPeakHistory(4)

	// An empty history reads as the metering floor, not as 0 dB full scale.
	if got := h.Max(); got != gain.MinDB {
		t.Errorf("Max on empty history = %f, want %f", got, gain.MinDB)
	}

	h.Push(-30.0)
	h.Reset()
	if got := h.Max(); got != gain.MinDB {
		t.Errorf("Max after Reset = %f, want %f", got, gain.MinDB)
	}
}

func TestPeakHistoryReset(t *testing.T) {
	h := NewPeakHistory(5)
	h.Push(-10.0)
	h.Push(-20.0)

	h.Reset()

	if h.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", h.Len())
	}
	if got := h.Push(-90.0); got != -90.0 {
		t.Errorf("Push after Reset returned %f, want -90.0", got)
	}
}
