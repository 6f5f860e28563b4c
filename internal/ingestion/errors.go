package ingestion

import (
	"errors"
	"fmt"
)

// Terminal outcome kinds. Callers test them with errors.Is.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrMalformedInput = errors.New("malformed input")
	ErrSinkWrite      = errors.New("sink write failed")
	ErrInternal       = errors.New("internal error")
)

type Stage string

const (
	StageReceived         Stage = "received"
	StageParsed           Stage = "parsed"
	StageIdentityDerived  Stage = "identity_derived"
	StageMetadataResolved Stage = "metadata_resolved"
	StagePointBuilt       Stage = "point_built"
	StageWritten          Stage = "written"
	StageResponded        Stage = "responded"
)

// Error is the failure returned by the handler. Kind is one of the Err*
// values above; Stage is where processing stopped.
type Error struct {
	Kind  error
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func fail(kind error, stage Stage, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// KindOf names the outcome of err for logs, metrics and dead letters.
func KindOf(err error) string {
	switch {
	case err == nil:
		return "ack"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrSinkWrite):
		return "sink_write"
	default:
		return "internal"
	}
}

// StageOf returns the stage recorded on err, or "" if err is not an *Error.
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}
