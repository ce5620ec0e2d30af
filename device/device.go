// Package device defines the instrument contract consumed by the
// acquisition loop.
//
// The vendor device proxy (connection, authentication, transport) lives
// behind Instrument. tlist ships a simulator (device/sim) and a replay
// backend (capture); a vendor backend plugs in by implementing the same
// interface.
package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/tlist/types"
)

// ErrComm is matched by every instrument communication failure.
var ErrComm = errors.New("device communication failed")

// CommError wraps a failed instrument call.
type CommError struct {
	// Op names the failed call (e.g. "status", "list_buffer", "control start").
	Op  string
	Err error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CommError) Unwrap() error { return e.Err }

// Is reports whether target is ErrComm.
func (e *CommError) Is(target error) bool { return target == ErrComm }

// Wrap wraps err as a *CommError for op. Returns nil if err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CommError
	if errors.As(err, &ce) {
		return err
	}
	return &CommError{Op: op, Err: err}
}

// Instrument is one input of a list-mode capable MCA.
//
// All calls are synchronous. Implementations return *CommError (or an
// error matching ErrComm) on communication failure. An Instrument is used
// by a single session goroutine.
type Instrument interface {
	// Status returns the input status bitmask.
	Status(ctx context.Context) (types.StatusBits, error)
	// ListBuffer fetches the next batch of list-mode records.
	ListBuffer(ctx context.Context) (*types.ListBuffer, error)
	// ApplyAcquisitionConfig sets mode, preset, sync and memory group.
	ApplyAcquisitionConfig(ctx context.Context, cfg types.AcquisitionConfig) error
	// Control issues a control command.
	Control(ctx context.Context, cmd types.Command) error

	// SetVoltage sets the high-voltage target in volts.
	SetVoltage(ctx context.Context, volts float64) error
	// SetVoltageEnabled turns the high-voltage supply on or off.
	SetVoltageEnabled(ctx context.Context, on bool) error
	// Ramping reports whether the high-voltage supply is still ramping.
	Ramping(ctx context.Context) (bool, error)
	// Voltage reads back the applied voltage.
	Voltage(ctx context.Context) (float64, error)
	// VoltageEnabled reports whether the high-voltage supply is on.
	VoltageEnabled(ctx context.Context) (bool, error)

	// Calibration reads the energy calibration.
	Calibration(ctx context.Context) (types.Calibration, error)
	// MachineName returns the instrument's network name.
	MachineName(ctx context.Context) (string, error)

	// Close releases the connection.
	Close() error
}

// MaxVoltage is the upper bound accepted for the high-voltage target.
const MaxVoltage = 1000.0

// ValidateVoltage checks a high-voltage target against the supported range.
func ValidateVoltage(v float64) error {
	if v < 0 || v > MaxVoltage {
		return fmt.Errorf("voltage %v out of range 0..%v", v, MaxVoltage)
	}
	return nil
}
