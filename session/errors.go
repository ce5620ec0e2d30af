package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/tlist/archive"
	"github.com/pithecene-io/tlist/device"
)

// Sentinel errors for session failures that do not originate in the
// instrument or the file system.
var (
	// ErrHVOff is returned when HV control is disabled and the supply is off.
	ErrHVOff = errors.New("high voltage is off")
	// ErrRampTimeout is returned when the HV supply is still ramping at the
	// ramp deadline.
	ErrRampTimeout = errors.New("high voltage ramp timed out")
	// ErrAcquireTimeout is returned when acquisition exceeds its maximum
	// duration.
	ErrAcquireTimeout = errors.New("acquisition timed out")
	// ErrNoTimeBase is returned when a buffer carrying events reports no
	// usable time base.
	ErrNoTimeBase = errors.New("buffer has no time base")
)

// ErrorKind classifies a session failure.
type ErrorKind string

// Error kinds.
const (
	KindConfig         ErrorKind = "config"
	KindExistingOutput ErrorKind = "existing_output"
	KindDevice         ErrorKind = "device"
	KindStorage        ErrorKind = "storage"
	KindTimeout        ErrorKind = "timeout"
	KindHVOff          ErrorKind = "hv_off"
)

// Error is the terminal error of a failed session. State is the state the
// session was in when it failed.
type Error struct {
	State State
	Kind  ErrorKind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("session failed while %s (%s): %v", e.State, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// classify derives the kind of err.
func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, archive.ErrExists):
		return KindExistingOutput
	case errors.Is(err, ErrHVOff):
		return KindHVOff
	case errors.Is(err, ErrRampTimeout), errors.Is(err, ErrAcquireTimeout),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, device.ErrComm), errors.Is(err, ErrNoTimeBase):
		return KindDevice
	default:
		// File-system failures arrive as *lode.StorageError; anything
		// else unclassified is treated the same way.
		return KindStorage
	}
}

// KindOf returns the kind of a session error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
