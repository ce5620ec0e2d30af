package sim

import (
	"context"
	"sync"

	"github.com/pithecene-io/tlist/device"
	"github.com/pithecene-io/tlist/types"
)

// Scripted is an instrument that replays a fixed script of status values
// and buffers, and records every call. Use it for testing the poll loop.
type Scripted struct {
	mu sync.Mutex

	// Statuses are returned by successive Status calls. Once exhausted,
	// Status reports Final, which is zero (not busy) unless set.
	Statuses []types.StatusBits
	Final    types.StatusBits
	// Buffers are returned by successive ListBuffer calls. Once exhausted,
	// ListBuffer returns an empty buffer with TimeBaseNs.
	Buffers    []*types.ListBuffer
	TimeBaseNs float64

	// HV state.
	HVOn      bool
	RampPolls int // negative ramps forever
	Volts     float64
	Cal       types.Calibration
	Name      string

	// Fail maps an operation name ("status", "list_buffer", "apply_config",
	// "control start", "set_voltage", ...) to the error it should return.
	// FailAfter delays a failure until the operation has succeeded that
	// many times.
	Fail      map[string]error
	FailAfter map[string]int

	// Recorded calls.
	Calls    []string
	Commands []types.Command
	Applied  []types.AcquisitionConfig
	Closed   bool

	counts map[string]int
}

func (s *Scripted) call(op string) error {
	s.Calls = append(s.Calls, op)
	if s.counts == nil {
		s.counts = make(map[string]int)
	}
	n := s.counts[op]
	s.counts[op]++
	if err, ok := s.Fail[op]; ok && n >= s.FailAfter[op] {
		return device.Wrap(op, err)
	}
	return nil
}

// Status implements device.Instrument.
func (s *Scripted) Status(_ context.Context) (types.StatusBits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.call("status"); err != nil {
		return 0, err
	}
	if len(s.Statuses) == 0 {
		return s.Final, nil
	}
	st := s.Statuses[0]
	s.Statuses = s.Statuses[1:]
	return st, nil
}

// ListBuffer implements device.Instrument.
func (s *Scripted) ListBuffer(_ context.Context) (*types.ListBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.call("list_buffer"); err != nil {
		return nil, err
	}
	if len(s.Buffers) == 0 {
		return &types.ListBuffer{TimeBaseNs: s.TimeBaseNs}, nil
	}
	b := s.Buffers[0]
	s.Buffers = s.Buffers[1:]
	return b, nil
}

// ApplyAcquisitionConfig implements device.Instrument.
func (s *Scripted) ApplyAcquisitionConfig(_ context.Context, cfg types.AcquisitionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.call("apply_config"); err != nil {
		return err
	}
	s.Applied = append(s.Applied, cfg)
	return nil
}

// Control implements device.Instrument.
func (s *Scripted) Control(_ context.Context, cmd types.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.call("control " + string(cmd)); err != nil {
		return err
	}
	s.Commands = append(s.Commands, cmd)
	return nil
}

// SetVoltage implements device.Instrument.
func (s *Scripted) SetVoltage(_ context.Context, volts float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.call("set_voltage"); err != nil {
		return err
	}
	s.Volts = volts
	return nil
}

// SetVoltageEnabled implements device.Instrument.
func (s *Scripted) SetVoltageEnabled(_ context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.call("set_voltage_enabled"); err != nil {
		return err
	}
	s.HVOn = on
	return nil
}

// Ramping implements device.Instrument.
func (s *Scripted) Ramping(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.call("ramping"); err != nil {
		return false, err
	}
	if s.RampPolls < 0 {
		return true, nil
	}
	if s.RampPolls > 0 {
		s.RampPolls--
		return true, nil
	}
	return false, nil
}

// Voltage implements device.Instrument.
func (s *Scripted) Voltage(_ context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.call("voltage"); err != nil {
		return 0, err
	}
	return s.Volts, nil
}

// VoltageEnabled implements device.Instrument.
func (s *Scripted) VoltageEnabled(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.call("voltage_enabled"); err != nil {
		return false, err
	}
	return s.HVOn, nil
}

// Calibration implements device.Instrument.
func (s *Scripted) Calibration(_ context.Context) (types.Calibration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.call("calibration"); err != nil {
		return types.Calibration{}, err
	}
	return s.Cal, nil
}

// MachineName implements device.Instrument.
func (s *Scripted) MachineName(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.call("machine_name"); err != nil {
		return "", err
	}
	return s.Name, nil
}

// Close implements device.Instrument.
func (s *Scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

var _ device.Instrument = (*Scripted)(nil)
