// Package ducker implements the audio ducking engine and its runtime: typed
// persistent settings, the per-block gain state machine, the metrics
// snapshot board, the non-real-time observer loop and the lifecycle
// coordinator that ties them to an audio host client.
//
// The real-time side (Engine.ProcessBlock) and the control plane never share
// a lock: settings flow in as immutable copy-on-write snapshots, levels and
// flags flow out as atomic float bits, and metrics are published whole
// behind an atomic pointer.
package ducker
