// Package analysis provides level measurement tools for audio metering.
//
// Level Metering:
//   - Block RMS (Root Mean Square) measurement
//   - Block peak measurement
//   - Fixed-capacity peak-hold history for VU meters
//
// All measurement functions operate on a single block of samples without
// allocating, so they are safe to call from a real-time audio callback. The
// peak-hold history is meant for the non-real-time meter loop.
package analysis
