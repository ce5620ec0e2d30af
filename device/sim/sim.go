// Package sim provides a deterministic list-mode instrument simulator.
//
// Events arrive as a seeded Poisson process on the simulated clock and are
// packed with decode.Encoder, so buffers contain rollover markers exactly
// where a real instrument would emit them.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pithecene-io/tlist/clock"
	"github.com/pithecene-io/tlist/decode"
	"github.com/pithecene-io/tlist/device"
	"github.com/pithecene-io/tlist/types"
)

// Config configures the simulator.
type Config struct {
	// Seed makes event generation reproducible.
	Seed int64
	// Rate is the mean event rate in events per second.
	Rate float64
	// Channels is the number of distinct event channels (1..65536).
	Channels int
	// TimeBaseNs is the clock tick length in nanoseconds.
	TimeBaseNs float64
	// RampPolls is how many Ramping calls report true after HV is enabled.
	RampPolls int
	// MaxBuffer caps the records per buffer; 0 means unbounded.
	MaxBuffer int
	// MachineName is reported by MachineName.
	MachineName string
	// Calibration is reported by Calibration.
	Calibration types.Calibration
}

// DefaultConfig returns a simulator configuration producing about a
// thousand events per second on a 100 ns clock.
func DefaultConfig() Config {
	return Config{
		Seed:        1,
		Rate:        1000,
		Channels:    4096,
		TimeBaseNs:  100,
		RampPolls:   3,
		MachineName: "lynx-sim",
		Calibration: types.Calibration{Offset: 0, Slope: 1},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Rate <= 0:
		return fmt.Errorf("sim: rate must be positive, got %v", c.Rate)
	case c.Channels < 1 || c.Channels > 1<<16:
		return fmt.Errorf("sim: channels must be in 1..65536, got %d", c.Channels)
	case c.TimeBaseNs <= 0:
		return fmt.Errorf("sim: time base must be positive, got %v", c.TimeBaseNs)
	case c.RampPolls < 0:
		return errors.New("sim: ramp polls must not be negative")
	case c.MaxBuffer < 0 || c.MaxBuffer == 1:
		return errors.New("sim: max buffer must be 0 (unbounded) or at least 2")
	}
	return nil
}

// ErrClosed is returned by calls on a closed simulator.
var ErrClosed = errors.New("simulator closed")

// Instrument is a simulated instrument.
type Instrument struct {
	cfg Config
	clk clock.Clock
	rng *rand.Rand

	mu         sync.Mutex
	closed     bool
	acq        types.AcquisitionConfig
	configured bool

	running   bool
	startedAt time.Time
	limitTick uint64 // preset length in ticks
	stopTick  uint64 // tick at which Stop or Abort froze the run
	stopped   bool
	nextTick  uint64
	enc       decode.Encoder

	hvOn     bool
	hvTarget float64
	rampLeft int
}

// New creates a simulator on clk.
func New(cfg Config, clk clock.Clock) (*Instrument, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Instrument{
		cfg: cfg,
		clk: clk,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (s *Instrument) ticksPerSecond() float64 {
	return 1e9 / s.cfg.TimeBaseNs
}

// interval draws the ticks until the next event.
func (s *Instrument) interval() uint64 {
	return uint64(s.rng.ExpFloat64()*s.ticksPerSecond()/s.cfg.Rate) + 1
}

// elapsedTicks returns the run position, bounded by the preset and by a
// stop request.
func (s *Instrument) elapsedTicks() uint64 {
	if !s.running && !s.stopped {
		return 0
	}
	if s.stopped {
		return s.stopTick
	}
	ticks := uint64(s.clk.Now().Sub(s.startedAt).Seconds() * s.ticksPerSecond())
	return min(ticks, s.limitTick)
}

func (s *Instrument) check(op string) error {
	if s.closed {
		return device.Wrap(op, ErrClosed)
	}
	return nil
}

// Status reports Busy until the run is stopped, or until the preset
// elapses and every event inside it has been read.
func (s *Instrument) Status(_ context.Context) (types.StatusBits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("status"); err != nil {
		return 0, err
	}
	if s.running && !s.stopped && (s.elapsedTicks() < s.limitTick || s.nextTick <= s.limitTick) {
		return types.StatusBusy, nil
	}
	return 0, nil
}

// ListBuffer returns every event generated up to the current run position.
func (s *Instrument) ListBuffer(_ context.Context) (*types.ListBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("list_buffer"); err != nil {
		return nil, err
	}

	pos := s.elapsedTicks()
	buf := &types.ListBuffer{
		TimeBaseNs: s.cfg.TimeBaseNs,
		StartTime:  s.startedAt,
	}
	for s.nextTick <= pos && (s.cfg.MaxBuffer == 0 || len(buf.Events) < s.cfg.MaxBuffer-1) {
		channel := uint16(s.rng.Intn(s.cfg.Channels))
		var err error
		if buf.Events, err = s.enc.Append(buf.Events, s.nextTick, channel); err != nil {
			return nil, device.Wrap("list_buffer", err)
		}
		s.nextTick += s.interval()
	}

	micros := uint64(decode.TicksToMicros(pos, s.cfg.TimeBaseNs))
	buf.RealTimeMicros = micros
	buf.LiveTimeMicros = micros
	if s.running && !s.stopped && pos >= s.limitTick && s.nextTick > s.limitTick {
		s.running = false
		s.stopped = true
		s.stopTick = s.limitTick
	}
	return buf, nil
}

// ApplyAcquisitionConfig stores the acquisition parameters.
func (s *Instrument) ApplyAcquisitionConfig(_ context.Context, cfg types.AcquisitionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("apply_config"); err != nil {
		return err
	}
	if cfg.PresetValue <= 0 {
		return device.Wrap("apply_config", fmt.Errorf("preset value must be positive, got %v", cfg.PresetValue))
	}
	if cfg.MemoryGroup < 1 {
		return device.Wrap("apply_config", fmt.Errorf("memory group must be at least 1, got %d", cfg.MemoryGroup))
	}
	s.acq = cfg
	s.configured = true
	return nil
}

// Control handles Clear, Start, Stop and Abort.
func (s *Instrument) Control(_ context.Context, cmd types.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := "control " + string(cmd)
	if err := s.check(op); err != nil {
		return err
	}

	switch cmd {
	case types.CommandClear:
		s.enc.Reset()
		s.running, s.stopped = false, false
		s.nextTick = s.interval()
	case types.CommandStart:
		if !s.configured {
			return device.Wrap(op, errors.New("acquisition not configured"))
		}
		s.running, s.stopped = true, false
		s.startedAt = s.clk.Now()
		s.limitTick = uint64(s.acq.PresetValue * s.ticksPerSecond())
	case types.CommandStop, types.CommandAbort:
		if s.running && !s.stopped {
			s.stopTick = s.elapsedTicks()
			s.stopped = true
		}
		s.running = false
	default:
		return device.Wrap(op, fmt.Errorf("unknown command %q", cmd))
	}
	return nil
}

// SetVoltage sets the HV target.
func (s *Instrument) SetVoltage(_ context.Context, volts float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("set_voltage"); err != nil {
		return err
	}
	if err := device.ValidateVoltage(volts); err != nil {
		return device.Wrap("set_voltage", err)
	}
	s.hvTarget = volts
	return nil
}

// SetVoltageEnabled switches HV and starts a ramp when turning it on.
func (s *Instrument) SetVoltageEnabled(_ context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("set_voltage_enabled"); err != nil {
		return err
	}
	if on && !s.hvOn {
		s.rampLeft = s.cfg.RampPolls
	}
	if !on {
		s.rampLeft = 0
	}
	s.hvOn = on
	return nil
}

// Ramping reports true for RampPolls calls after HV was enabled.
func (s *Instrument) Ramping(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("ramping"); err != nil {
		return false, err
	}
	if s.rampLeft > 0 {
		s.rampLeft--
		return true, nil
	}
	return false, nil
}

// Voltage returns the target when HV is on and settled, else zero.
func (s *Instrument) Voltage(_ context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("voltage"); err != nil {
		return 0, err
	}
	if !s.hvOn || s.rampLeft > 0 {
		return 0, nil
	}
	return s.hvTarget, nil
}

// VoltageEnabled reports whether HV is on.
func (s *Instrument) VoltageEnabled(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("voltage_enabled"); err != nil {
		return false, err
	}
	return s.hvOn, nil
}

// Calibration returns the configured calibration.
func (s *Instrument) Calibration(_ context.Context) (types.Calibration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("calibration"); err != nil {
		return types.Calibration{}, err
	}
	return s.cfg.Calibration, nil
}

// MachineName returns the configured machine name.
func (s *Instrument) MachineName(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("machine_name"); err != nil {
		return "", err
	}
	return s.cfg.MachineName, nil
}

// AcquisitionConfig returns the last applied acquisition configuration.
func (s *Instrument) AcquisitionConfig() types.AcquisitionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acq
}

// Close marks the simulator closed.
func (s *Instrument) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ device.Instrument = (*Instrument)(nil)
