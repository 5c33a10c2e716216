// Package domain holds the error taxonomy and run report shared by every reelcam component.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for reporting.
type Kind string

const (
	// KindIO means the video could not be opened or read. Fatal for the asset.
	KindIO Kind = "io_error"
	// KindGeometry means a computed box violated a geometric invariant. Fatal, indicates a defect.
	KindGeometry Kind = "geometry_error"
	// KindConsistency means an internal ordering check failed. Fatal.
	KindConsistency Kind = "consistency_error"
	// KindSkippedFrame means one timestamp could not be sought or read. Recovered.
	KindSkippedFrame Kind = "skipped_frame"
	// KindInputFormat means one box or point sample was malformed. Recovered by dropping it.
	KindInputFormat Kind = "input_format_error"
	// KindUnknown is used for errors outside the taxonomy.
	KindUnknown Kind = "unknown"
)

// Fatal reports whether errors of this kind abort the current asset.
func (k Kind) Fatal() bool {
	switch k {
	case KindSkippedFrame, KindInputFormat:
		return false
	default:
		return true
	}
}

// Error carries the kind plus the function and timestamp context needed to reproduce a failure.
type Error struct {
	Kind Kind
	Op   string
	// Timestamp is the frame timestamp in milliseconds, or -1 when not applicable.
	Timestamp int64
	Err       error
}

// NewError builds an Error without timestamp context.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Timestamp: -1, Err: err}
}

// NewErrorAt builds an Error bound to a frame timestamp.
func NewErrorAt(kind Kind, op string, ts int64, err error) *Error {
	return &Error{Kind: kind, Op: op, Timestamp: ts, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Timestamp >= 0 {
		msg = fmt.Sprintf("%s at %dms", msg, e.Timestamp)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind of err; KindUnknown if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err aborts the current asset. Unknown errors are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err).Fatal()
}
