package ducker

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/carpi-audio/duckd/pkg/dsp/analysis"
	"github.com/carpi-audio/duckd/pkg/dsp/dynamics"
	"github.com/carpi-audio/duckd/pkg/dsp/gain"
)

// SettingsSource provides the per-block settings snapshot. The returned
// document is immutable; the engine loads it once at the top of each block.
type SettingsSource interface {
	Snapshot() *Settings
}

// Engine is the real-time gain-control state machine. ProcessBlock is called
// from the audio thread and owns all envelope state exclusively; everything
// the observer needs is published through atomic float bits, so the two
// contexts never share a lock.
type Engine struct {
	sampleRate float64

	settings SettingsSource

	// Envelope state, written only by the real-time context.
	duckAmount float64
	targetDuck float64

	// Pre-allocated work buffers for the post-trim copies of the inputs.
	// Sized once at construction so ProcessBlock never allocates.
	workPrimaryL   []float32
	workPrimaryR   []float32
	workSecondaryL []float32
	workSecondaryR []float32

	// Levels and flags published to the observer. Float64 values are stored
	// as raw bits for lock-free single-writer/multi-reader access.
	primaryLevelBits   atomic.Uint64
	secondaryLevelBits atomic.Uint64
	outputLevelBits    atomic.Uint64
	duckAmountBits     atomic.Uint64
	primaryActive      atomic.Bool
	clipping           atomic.Bool
	blocks             atomic.Uint64
}

// NewEngine creates an engine for the given samplerate and maximum block
// size. The envelope starts fully unducked.
func NewEngine(sampleRate float64, maxBlockSize int, settings SettingsSource) (*Engine, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid samplerate %f", sampleRate)
	}
	if maxBlockSize <= 0 {
		return nil, fmt.Errorf("invalid maximum block size %d", maxBlockSize)
	}
	if settings == nil {
		return nil, fmt.Errorf("nil settings source")
	}

	e := &Engine{
		sampleRate:     sampleRate,
		settings:       settings,
		duckAmount:     1.0,
		targetDuck:     1.0,
		workPrimaryL:   make([]float32, maxBlockSize),
		workPrimaryR:   make([]float32, maxBlockSize),
		workSecondaryL: make([]float32, maxBlockSize),
		workSecondaryR: make([]float32, maxBlockSize),
	}
	storeFloat(&e.duckAmountBits, 1.0)

	return e, nil
}

// ProcessBlock runs the per-block ducking state machine: input trims, level
// measurement, threshold decision, envelope smoothing, ducked mix, output
// trim and block peak limiting. Inputs and outputs are one block of samples
// per port. It performs no allocation, takes no locks and does no I/O.
//
// A returned error means the block was not processed; the host boundary is
// responsible for leaving the outputs in a defined state.
func (e *Engine) ProcessBlock(primaryL, primaryR, secondaryL, secondaryR, outputL, outputR []float32) error {
	n := len(outputL)
	if len(outputR) != n || len(primaryL) != n || len(primaryR) != n ||
		len(secondaryL) != n || len(secondaryR) != n {
		return fmt.Errorf("mismatched block lengths: primary %d/%d secondary %d/%d output %d/%d",
			len(primaryL), len(primaryR), len(secondaryL), len(secondaryR), len(outputL), len(outputR))
	}
	if n > len(e.workPrimaryL) {
		return fmt.Errorf("block of %d samples exceeds maximum %d", n, len(e.workPrimaryL))
	}
	if n == 0 {
		return nil
	}

	// One settings snapshot per block; control-plane updates can never tear
	// a block's view of the configuration.
	s := e.settings.Snapshot()

	// 1. Static input trims into the work buffers.
	primL := e.workPrimaryL[:n]
	primR := e.workPrimaryR[:n]
	secL := e.workSecondaryL[:n]
	secR := e.workSecondaryR[:n]

	primaryGain := gain.DbToLinear32(float32(s.PrimaryGainDB))
	secondaryGain := gain.DbToLinear32(float32(s.SecondaryGainDB))
	gain.ApplyBufferTo(primaryL, primaryGain, primL)
	gain.ApplyBufferTo(primaryR, primaryGain, primR)
	gain.ApplyBufferTo(secondaryL, secondaryGain, secL)
	gain.ApplyBufferTo(secondaryR, secondaryGain, secR)

	// 2. Per-path level measurement, worst channel wins.
	primaryRMS := math.Max(analysis.RMS(primL), analysis.RMS(primR))
	secondaryRMS := math.Max(analysis.RMS(secL), analysis.RMS(secR))

	// 3. Threshold decision: two states, re-evaluated every block.
	primaryDB := gain.LinearToDb(primaryRMS)
	active := primaryDB > s.PrimaryThresholdDB
	if active {
		e.targetDuck = gain.DbToLinear(s.DuckAmountDB)
	} else {
		e.targetDuck = 1.0
	}

	// 4. Linear ramp toward the target, block-granular, never overshooting.
	e.duckAmount = smoothDuck(e.duckAmount, e.targetDuck, s.AttackTimeMs, s.ReleaseTimeMs, e.sampleRate, n)

	// 5-7. Ducked mix plus output trim.
	duck := float32(e.duckAmount)
	outputGain := gain.DbToLinear32(float32(s.OutputGainDB))
	for i := 0; i < n; i++ {
		outputL[i] = (primL[i] + secL[i]*duck) * outputGain
		outputR[i] = (primR[i] + secR[i]*duck) * outputGain
	}

	// 8. Block peak limiting; engages strictly above full scale.
	_, clipped := dynamics.NormalizeBlock(outputL, outputR)

	outputRMS := math.Max(analysis.RMS(outputL), analysis.RMS(outputR))

	// 9. Publish levels and state for the observer.
	storeFloat(&e.primaryLevelBits, primaryRMS)
	storeFloat(&e.secondaryLevelBits, secondaryRMS)
	storeFloat(&e.outputLevelBits, outputRMS)
	storeFloat(&e.duckAmountBits, e.duckAmount)
	e.primaryActive.Store(active)
	e.clipping.Store(clipped)
	e.blocks.Add(1)

	return nil
}

// smoothDuck moves current toward target. Each block the step spreads the
// remaining gap over the attack or release time, scaled by the block length;
// attack applies when moving toward more ducking (down), release when moving
// back up. The result never overshoots the target and always stays within
// [0, 1].
func smoothDuck(current, target, attackMs, releaseMs, sampleRate float64, blockSize int) float64 {
	switch {
	case target < current:
		attackSamples := attackMs / 1000.0 * sampleRate
		step := (current - target) / math.Max(attackSamples, 1)
		current = math.Max(target, current-step*float64(blockSize))
	case target > current:
		releaseSamples := releaseMs / 1000.0 * sampleRate
		step := (target - current) / math.Max(releaseSamples, 1)
		current = math.Min(target, current+step*float64(blockSize))
	}

	if current < 0 {
		current = 0
	} else if current > 1 {
		current = 1
	}

	return current
}

// Levels returns the most recently measured linear RMS levels per path.
func (e *Engine) Levels() (primary, secondary, output float64) {
	return loadFloat(&e.primaryLevelBits), loadFloat(&e.secondaryLevelBits), loadFloat(&e.outputLevelBits)
}

// DuckAmount returns the current envelope value: 1.0 unducked, lower is
// ducked.
func (e *Engine) DuckAmount() float64 {
	return loadFloat(&e.duckAmountBits)
}

// PrimaryActive reports whether the last block's primary level exceeded the
// threshold.
func (e *Engine) PrimaryActive() bool {
	return e.primaryActive.Load()
}

// Clipping reports whether the limiter engaged on the most recent block.
func (e *Engine) Clipping() bool {
	return e.clipping.Load()
}

// Blocks returns the number of blocks processed since creation.
func (e *Engine) Blocks() uint64 {
	return e.blocks.Load()
}

// storeFloat and loadFloat publish float64 values through raw bits so the
// real-time writer and the observer never need a shared lock.
func storeFloat(dst *atomic.Uint64, v float64) {
	dst.Store(math.Float64bits(v))
}

func loadFloat(src *atomic.Uint64) float64 {
	return math.Float64frombits(src.Load())
}
