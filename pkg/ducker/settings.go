package ducker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Settings is the flat, typed configuration document for the ducking engine.
// JSON keys match the persisted on-disk document. All values are effectively
// immutable once published; the engine reads one settings pointer per audio
// block and never observes a partially updated document.
type Settings struct {
	// PrimaryThresholdDB is the primary level above which the secondary
	// stream is ducked.
	PrimaryThresholdDB float64 `json:"primary_threshold_db"`

	// DuckAmountDB is the target attenuation applied to the secondary
	// stream while ducking is active. Always <= 0.
	DuckAmountDB float64 `json:"duck_amount_db"`

	// Envelope timing in milliseconds.
	AttackTimeMs  float64 `json:"attack_time_ms"`
	ReleaseTimeMs float64 `json:"release_time_ms"`

	// HoldTimeMs is persisted and exposed but not consumed by the engine;
	// attack/release smoothing provides the hysteresis. See DESIGN.md.
	HoldTimeMs float64 `json:"hold_time_ms"`

	// Static input/output trims in dB.
	PrimaryGainDB   float64 `json:"primary_gain_db"`
	SecondaryGainDB float64 `json:"secondary_gain_db"`
	OutputGainDB    float64 `json:"output_gain_db"`

	// Limiter fields are reserved for a configurable-ceiling limiter; the
	// engine currently always normalizes blocks that exceed full scale.
	EnableLimiter      bool    `json:"enable_limiter"`
	LimiterThresholdDB float64 `json:"limiter_threshold_db"`
}

// DefaultSettings returns the documented default configuration.
func DefaultSettings() Settings {
	return Settings{
		PrimaryThresholdDB: -40.0,
		DuckAmountDB:       -20.0,
		AttackTimeMs:       50.0,
		ReleaseTimeMs:      500.0,
		HoldTimeMs:         100.0,
		PrimaryGainDB:      0.0,
		SecondaryGainDB:    0.0,
		OutputGainDB:       0.0,
		EnableLimiter:      true,
		LimiterThresholdDB: -1.0,
	}
}

// sanitize clamps out-of-range fields back to their defaults and returns the
// cleaned settings together with the JSON keys of any reverted fields.
func (s Settings) sanitize() (Settings, []string) {
	def := DefaultSettings()
	var reverted []string

	revert := func(key string) {
		reverted = append(reverted, key)
	}

	if s.PrimaryThresholdDB < -100 || s.PrimaryThresholdDB > 0 {
		s.PrimaryThresholdDB = def.PrimaryThresholdDB
		revert("primary_threshold_db")
	}
	if s.DuckAmountDB > 0 {
		s.DuckAmountDB = def.DuckAmountDB
		revert("duck_amount_db")
	}
	if s.AttackTimeMs <= 0 {
		s.AttackTimeMs = def.AttackTimeMs
		revert("attack_time_ms")
	}
	if s.ReleaseTimeMs <= 0 {
		s.ReleaseTimeMs = def.ReleaseTimeMs
		revert("release_time_ms")
	}
	if s.HoldTimeMs <= 0 {
		s.HoldTimeMs = def.HoldTimeMs
		revert("hold_time_ms")
	}
	if s.PrimaryGainDB < -60 || s.PrimaryGainDB > 24 {
		s.PrimaryGainDB = def.PrimaryGainDB
		revert("primary_gain_db")
	}
	if s.SecondaryGainDB < -60 || s.SecondaryGainDB > 24 {
		s.SecondaryGainDB = def.SecondaryGainDB
		revert("secondary_gain_db")
	}
	if s.OutputGainDB < -60 || s.OutputGainDB > 24 {
		s.OutputGainDB = def.OutputGainDB
		revert("output_gain_db")
	}
	if s.LimiterThresholdDB > 0 {
		s.LimiterThresholdDB = def.LimiterThresholdDB
		revert("limiter_threshold_db")
	}

	return s, reverted
}

// Patch is a partial settings update. Nil fields leave the current value
// unchanged. Unknown JSON keys in a decoded patch are ignored.
type Patch struct {
	PrimaryThresholdDB *float64 `json:"primary_threshold_db,omitempty"`
	DuckAmountDB       *float64 `json:"duck_amount_db,omitempty"`
	AttackTimeMs       *float64 `json:"attack_time_ms,omitempty"`
	ReleaseTimeMs      *float64 `json:"release_time_ms,omitempty"`
	HoldTimeMs         *float64 `json:"hold_time_ms,omitempty"`
	PrimaryGainDB      *float64 `json:"primary_gain_db,omitempty"`
	SecondaryGainDB    *float64 `json:"secondary_gain_db,omitempty"`
	OutputGainDB       *float64 `json:"output_gain_db,omitempty"`
	EnableLimiter      *bool    `json:"enable_limiter,omitempty"`
	LimiterThresholdDB *float64 `json:"limiter_threshold_db,omitempty"`
}

// apply overlays the patch onto s, key-wise.
func (p Patch) apply(s Settings) Settings {
	if p.PrimaryThresholdDB != nil {
		s.PrimaryThresholdDB = *p.PrimaryThresholdDB
	}
	if p.DuckAmountDB != nil {
		s.DuckAmountDB = *p.DuckAmountDB
	}
	if p.AttackTimeMs != nil {
		s.AttackTimeMs = *p.AttackTimeMs
	}
	if p.ReleaseTimeMs != nil {
		s.ReleaseTimeMs = *p.ReleaseTimeMs
	}
	if p.HoldTimeMs != nil {
		s.HoldTimeMs = *p.HoldTimeMs
	}
	if p.PrimaryGainDB != nil {
		s.PrimaryGainDB = *p.PrimaryGainDB
	}
	if p.SecondaryGainDB != nil {
		s.SecondaryGainDB = *p.SecondaryGainDB
	}
	if p.OutputGainDB != nil {
		s.OutputGainDB = *p.OutputGainDB
	}
	if p.EnableLimiter != nil {
		s.EnableLimiter = *p.EnableLimiter
	}
	if p.LimiterThresholdDB != nil {
		s.LimiterThresholdDB = *p.LimiterThresholdDB
	}
	return s
}

// Store owns the persisted settings document. Control-plane writers go
// through Update/Reset under a mutex; the real-time engine reads the current
// document with a single atomic pointer load per block, so a block can never
// see a torn mix of old and new fields.
type Store struct {
	path string
	log  *logrus.Entry

	mu      sync.Mutex // serializes Update/Reset and persistence
	current atomic.Pointer[Settings]
}

// NewStore loads the settings document at path, overlaying any persisted
// values on the defaults. A missing or unparsable file means "no overrides"
// and is never an error to the caller.
func NewStore(path string, log *logrus.Logger) *Store {
	s := &Store{
		path: path,
		log:  log.WithField("component", "store"),
	}

	loaded := s.load()
	s.current.Store(&loaded)

	return s
}

// load reads and validates the persisted document, falling back to pure
// defaults on any failure.
func (s *Store) load() Settings {
	settings := DefaultSettings()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithError(err).Warn("Could not read settings file, using defaults")
		}
		return settings
	}

	// Overlay on defaults; unknown keys in the document are ignored.
	if err := json.Unmarshal(data, &settings); err != nil {
		s.log.WithError(err).Warn("Corrupt settings file, using defaults")
		return DefaultSettings()
	}

	clean, reverted := settings.sanitize()
	for _, key := range reverted {
		s.log.WithField("key", key).Warn("Invalid persisted value, reverted to default")
	}

	return clean
}

// Snapshot returns the current immutable settings document. Safe to call
// from the real-time context: a single atomic load, no locks.
func (s *Store) Snapshot() *Settings {
	return s.current.Load()
}

// Get returns a copy of the current settings for the control plane.
func (s *Store) Get() Settings {
	return *s.current.Load()
}

// Update merges the patch into the current settings, publishes the result
// and persists it. A persistence failure is logged; the in-memory update
// still takes effect.
func (s *Store) Update(patch Patch) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := patch.apply(*s.current.Load())
	clean, reverted := merged.sanitize()
	for _, key := range reverted {
		s.log.WithField("key", key).Warn("Invalid value in settings update, reverted to default")
	}

	s.current.Store(&clean)
	s.persist(clean)

	return clean
}

// Reset discards the persisted document, returns to defaults and persists
// them immediately.
func (s *Store) Reset() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.log.WithError(err).Warn("Could not remove settings file")
	}

	def := DefaultSettings()
	s.current.Store(&def)
	s.persist(def)

	return def
}

// persist writes the document all-or-nothing: marshal to a temp file in the
// same directory, then rename over the target. Callers hold s.mu.
func (s *Store) persist(settings Settings) {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		s.log.WithError(err).Error("Could not encode settings")
		return
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.WithError(err).Error("Could not create settings directory")
		return
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		s.log.WithError(err).Error("Could not create temp settings file")
		return
	}

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmp.Name())
		s.log.WithError(fmt.Errorf("write: %v, close: %v", werr, cerr)).Error("Could not write settings")
		return
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		s.log.WithError(err).Error("Could not replace settings file")
	}
}
