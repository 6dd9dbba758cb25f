package ducker

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carpi-audio/duckd/pkg/dsp/analysis"
	"github.com/carpi-audio/duckd/pkg/dsp/gain"
	"github.com/carpi-audio/duckd/pkg/host"
)

// peakHoldReadings is how many metering readings the peak-hold rings retain.
// At the default metrics interval that is roughly 200 ms of hold.
const peakHoldReadings = 20

// monitor is the observer loop: the only non-real-time reader of the engine's
// published state. Each metrics tick it builds a Snapshot, feeds the
// peak-hold rings, publishes to the board and fires the metrics hook; each
// status tick it fires the status hook; and it is the single place where
// recorded block faults reach the log.
type monitor struct {
	engine *Engine
	faults *host.FaultRecorder
	board  *metricsBoard
	log    *logrus.Entry

	metricsInterval time.Duration
	statusInterval  time.Duration

	onMetrics func(Snapshot)
	onStatus  func()

	primaryPeaks   *analysis.PeakHistory
	secondaryPeaks *analysis.PeakHistory
	outputPeaks    *analysis.PeakHistory
}

func newMonitor(engine *Engine, faults *host.FaultRecorder, board *metricsBoard,
	log *logrus.Entry, metricsInterval, statusInterval time.Duration) *monitor {
	return &monitor{
		engine:          engine,
		faults:          faults,
		board:           board,
		log:             log,
		metricsInterval: metricsInterval,
		statusInterval:  statusInterval,
		primaryPeaks:    analysis.NewPeakHistory(peakHoldReadings),
		secondaryPeaks:  analysis.NewPeakHistory(peakHoldReadings),
		outputPeaks:     analysis.NewPeakHistory(peakHoldReadings),
	}
}

// run ticks until stop closes. The metrics interval bounds shutdown latency.
func (m *monitor) run(stop <-chan struct{}) {
	metricsTicker := time.NewTicker(m.metricsInterval)
	defer metricsTicker.Stop()
	statusTicker := time.NewTicker(m.statusInterval)
	defer statusTicker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-metricsTicker.C:
			m.tick()
		case <-statusTicker.C:
			if m.onStatus != nil {
				m.onStatus()
			}
		}
	}
}

// tick reads the engine's atomics, updates the peak-hold rings, publishes a
// fresh snapshot and drains any pending block fault.
func (m *monitor) tick() {
	primary, secondary, output := m.engine.Levels()

	snap := Snapshot{
		PrimaryLevelDB:   gain.LinearToDb(primary),
		SecondaryLevelDB: gain.LinearToDb(secondary),
		OutputLevelDB:    gain.LinearToDb(output),
		DuckAmount:       m.engine.DuckAmount(),
		PrimaryActive:    m.engine.PrimaryActive(),
		Clipping:         m.engine.Clipping(),
	}
	snap.PrimaryPeakDB = m.primaryPeaks.Push(snap.PrimaryLevelDB)
	snap.SecondaryPeakDB = m.secondaryPeaks.Push(snap.SecondaryLevelDB)
	snap.OutputPeakDB = m.outputPeaks.Push(snap.OutputLevelDB)

	m.board.Publish(snap)
	if m.onMetrics != nil {
		m.onMetrics(snap)
	}

	if err, total := m.faults.Take(); err != nil {
		m.log.WithFields(logrus.Fields{
			"error": err.Error(),
			"total": total,
		}).Warn("Audio block fault")
	}
}
