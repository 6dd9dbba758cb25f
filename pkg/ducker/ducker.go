package ducker

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carpi-audio/duckd/pkg/host"
)

// Default observer and watchdog intervals.
const (
	DefaultMetricsInterval = 10 * time.Millisecond
	DefaultStatusInterval  = time.Second
	DefaultWatchInterval   = 10 * time.Second
)

type lifecycle int

const (
	stateUninitialized lifecycle = iota
	stateActive
	stateStopped
)

// Hooks are optional callbacks fired from the observer loop, used to push
// metrics and status to WebSocket clients. They must not block.
type Hooks struct {
	OnMetrics func(Snapshot)
	OnStatus  func(Status)
}

// Config assembles a Ducker. Host, Store and Log are required; Router is
// optional (no automatic port routing without it); zero intervals take the
// defaults.
type Config struct {
	Host            host.Client
	Store           *Store
	Router          *host.Router
	Log             *logrus.Logger
	MetricsInterval time.Duration
	StatusInterval  time.Duration
	WatchInterval   time.Duration
	Hooks           Hooks
}

// Status is the daemon's control-plane status document.
type Status struct {
	Running       bool           `json:"running"`
	SampleRate    int            `json:"samplerate"`
	BlockSize     int            `json:"blocksize"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	LatencyMs     float64        `json:"latency_ms"`
	Ports         host.PortNames `json:"ports"`
	Blocks        uint64         `json:"blocks_processed"`
	Faults        uint64         `json:"faults"`
}

// Ducker coordinates the engine's lifecycle across the three execution
// contexts: the real-time callback (engine), the observer goroutine
// (monitor, watchdog) and the control plane (settings, status, metrics).
//
// The lifecycle is strictly one-way: it starts once and, once stopped,
// stays stopped.
type Ducker struct {
	host          host.Client
	store         *Store
	engine        *Engine
	router        *host.Router
	board         *metricsBoard
	monitor       *monitor
	watchInterval time.Duration
	log           *logrus.Entry

	mu      sync.Mutex
	state   lifecycle
	started time.Time
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New builds a ducker on an already-opened host client. The engine is sized
// for the host's samplerate and block size; nothing runs until Start.
func New(cfg Config) (*Ducker, error) {
	if cfg.Host == nil {
		return nil, fmt.Errorf("nil host client")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("nil settings store")
	}
	if cfg.Log == nil {
		return nil, fmt.Errorf("nil logger")
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = DefaultMetricsInterval
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = DefaultWatchInterval
	}

	engine, err := NewEngine(float64(cfg.Host.SampleRate()), cfg.Host.BufferSize(), cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("building engine: %w", err)
	}

	log := cfg.Log.WithField("component", "ducker")
	board := newMetricsBoard()

	d := &Ducker{
		host:          cfg.Host,
		store:         cfg.Store,
		engine:        engine,
		router:        cfg.Router,
		board:         board,
		watchInterval: cfg.WatchInterval,
		log:           log,
		stop:          make(chan struct{}),
	}

	d.monitor = newMonitor(engine, cfg.Host.Faults(), board, log,
		cfg.MetricsInterval, cfg.StatusInterval)
	if cfg.Hooks.OnMetrics != nil {
		d.monitor.onMetrics = cfg.Hooks.OnMetrics
	}
	if cfg.Hooks.OnStatus != nil {
		hook := cfg.Hooks.OnStatus
		d.monitor.onStatus = func() { hook(d.Status()) }
	}

	return d, nil
}

// Start activates the audio callback, launches the observer loop and the
// connection watchdog, and applies the routing once. It succeeds only from
// the initial state.
func (d *Ducker) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case stateActive:
		return ErrAlreadyStarted
	case stateStopped:
		return ErrStopped
	}

	if err := d.host.Activate(d.engine.ProcessBlock); err != nil {
		return fmt.Errorf("activating host client: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.monitor.run(d.stop)
	}()

	if d.router != nil {
		report := d.router.Reconnect()
		d.log.WithFields(logrus.Fields{
			"connected": len(report.Connected),
			"failed":    len(report.Failed),
		}).Info("Initial port routing applied")

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.router.Watch(d.stop, d.watchInterval)
		}()
	}

	d.state = stateActive
	d.started = time.Now()
	d.log.Info("Ducker started")

	return nil
}

// Stop deactivates the audio callback, waits for the observer and watchdog
// to exit and closes the host client. Stop is terminal; a second call
// returns ErrStopped and a call before Start returns ErrNotStarted.
func (d *Ducker) Stop() error {
	d.mu.Lock()
	switch d.state {
	case stateUninitialized:
		d.mu.Unlock()
		return ErrNotStarted
	case stateStopped:
		d.mu.Unlock()
		return ErrStopped
	}
	d.state = stateStopped
	// Release before waiting: the observer's status hook reads Status, which
	// takes the same lock.
	d.mu.Unlock()

	// Deactivate first: after it returns the real-time context no longer
	// touches the engine, so tearing down the rest is safe.
	if err := d.host.Deactivate(); err != nil {
		d.log.WithError(err).Warn("Deactivating host client failed")
	}

	close(d.stop)
	d.wg.Wait()

	if err := d.host.Close(); err != nil {
		d.log.WithError(err).Warn("Closing host client failed")
	}

	d.log.Info("Ducker stopped")
	return nil
}

// Status reports the daemon's current control-plane status.
func (d *Ducker) Status() Status {
	d.mu.Lock()
	running := d.state == stateActive
	started := d.started
	d.mu.Unlock()

	sampleRate := d.host.SampleRate()
	blockSize := d.host.BufferSize()

	var uptime, latency float64
	if running {
		uptime = time.Since(started).Seconds()
	}
	if sampleRate > 0 {
		latency = float64(blockSize) / float64(sampleRate) * 1000.0
	}

	return Status{
		Running:       running,
		SampleRate:    sampleRate,
		BlockSize:     blockSize,
		UptimeSeconds: uptime,
		LatencyMs:     latency,
		Ports:         d.host.Ports(),
		Blocks:        d.engine.Blocks(),
		Faults:        d.host.Faults().Total(),
	}
}

// Metrics returns the latest published metrics snapshot.
func (d *Ducker) Metrics() Snapshot {
	return d.board.Read()
}

// Settings exposes the settings store for the control plane.
func (d *Ducker) Settings() *Store {
	return d.store
}
