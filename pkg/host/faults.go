package host

import (
	"fmt"
	"sync/atomic"
)

// FaultRecorder captures block-processing failures on the real-time path
// without locks or I/O. The callback records; the observer loop takes and
// logs. Only the most recent untaken fault is kept — the total counter
// preserves how many occurred.
type FaultRecorder struct {
	total   atomic.Uint64
	pending atomic.Pointer[faultRecord]
}

type faultRecord struct {
	err error
}

// Record notes a failed block. Safe to call from the audio thread; the only
// allocation is the fault record itself, on the error path.
func (r *FaultRecorder) Record(err error) {
	if err == nil {
		return
	}
	r.total.Add(1)
	r.pending.Store(&faultRecord{err: err})
}

// Take returns the most recent unlogged fault, or nil if none occurred since
// the last call, together with the total fault count.
func (r *FaultRecorder) Take() (error, uint64) {
	total := r.total.Load()
	if rec := r.pending.Swap(nil); rec != nil {
		return rec.err, total
	}
	return nil, total
}

// Total returns the number of faults recorded since creation.
func (r *FaultRecorder) Total() uint64 {
	return r.total.Load()
}

// Guard invokes fn with the block's buffers, absorbing any failure at the
// real-time boundary: on error or panic the output buffers are zeroed (the
// defined "silent block" state) and the fault is recorded. The audio server
// callback itself never observes a failure.
func Guard(fn ProcessFunc, rec *FaultRecorder, primaryL, primaryR, secondaryL, secondaryR, outputL, outputR []float32) {
	defer func() {
		if p := recover(); p != nil {
			zeroBlock(outputL)
			zeroBlock(outputR)
			rec.Record(fmt.Errorf("panic in process callback: %v", p))
		}
	}()

	if err := fn(primaryL, primaryR, secondaryL, secondaryR, outputL, outputR); err != nil {
		zeroBlock(outputL)
		zeroBlock(outputR)
		rec.Record(err)
	}
}

func zeroBlock(block []float32) {
	for i := range block {
		block[i] = 0
	}
}
