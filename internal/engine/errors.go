package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while running the loop.
//
// Runtime errors never stop the loop by themselves: Run logs them and
// moves on to the next tick. Step returns them so callers can decide.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run.
	RunID string

	// Seq is the tick the error belongs to, 0 if none.
	Seq int64

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeSource indicates the input source could not be sampled.
	ErrCodeSource RuntimeErrorCode = "SOURCE_FAILED"

	// ErrCodeSink indicates the outputs could not be published.
	ErrCodeSink RuntimeErrorCode = "SINK_FAILED"

	// ErrCodeRecord indicates the run or a tick could not be recorded.
	ErrCodeRecord RuntimeErrorCode = "RECORD_FAILED"

	// ErrCodeReplay indicates recorded ticks cannot be replayed.
	ErrCodeReplay RuntimeErrorCode = "REPLAY_FAILED"
)

// ErrSourceExhausted is returned by a Source that has no more samples.
// Run treats it as a clean end of the run.
var ErrSourceExhausted = errors.New("source exhausted")

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RunID != "" && e.Seq != 0 {
		msg = fmt.Sprintf("%s (run=%s, seq=%d)", msg, e.RunID, e.Seq)
	} else if e.RunID != "" {
		msg = fmt.Sprintf("%s (run=%s)", msg, e.RunID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Err }

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsSourceError reports whether err is an input sampling failure.
func IsSourceError(err error) bool { return hasCode(err, ErrCodeSource) }

// IsSinkError reports whether err is an output publishing failure.
func IsSinkError(err error) bool { return hasCode(err, ErrCodeSink) }

// IsRecordError reports whether err is a recording failure.
func IsRecordError(err error) bool { return hasCode(err, ErrCodeRecord) }

func newSourceError(runID string, err error) *RuntimeError {
	return &RuntimeError{Code: ErrCodeSource, Message: "sample inputs", RunID: runID, Err: err}
}

func newSinkError(runID string, seq int64, err error) *RuntimeError {
	return &RuntimeError{Code: ErrCodeSink, Message: "publish outputs", RunID: runID, Seq: seq, Err: err}
}

func newRecordError(runID string, seq int64, err error) *RuntimeError {
	return &RuntimeError{Code: ErrCodeRecord, Message: "record tick", RunID: runID, Seq: seq, Err: err}
}
