// Package engine runs mode tables against live or scripted inputs.
//
// A Loop owns one fsm.Machine and drives it from a Source:
//
//  1. Sample the source for an input vector
//  2. Stamp the tick with the next seq from the logical Clock
//  3. Evaluate the machine (major or minor, by seq and Config.Substeps)
//  4. Record the tick (Recorder, usually the SQLite store)
//  5. Publish major steps to the Sink (usually the Redis bridge)
//
// Single-writer: everything happens in the goroutine that calls Run or
// Step. Ordering and cadence come from seq, never from wall-clock time, so
// a recorded run can be replayed exactly (see Replay).
//
// Failures in steps 1, 4 and 5 are RuntimeErrors. Run logs them and keeps
// ticking.
package engine
