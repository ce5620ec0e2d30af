package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/tlist/archive"
	"github.com/pithecene-io/tlist/clock"
	"github.com/pithecene-io/tlist/device"
	"github.com/pithecene-io/tlist/lode"
	"github.com/pithecene-io/tlist/log"
	"github.com/pithecene-io/tlist/metrics"
	"github.com/pithecene-io/tlist/types"
)

// Poll and ramp defaults.
const (
	DefaultPollInterval = 50 * time.Millisecond
	MinPollInterval     = 10 * time.Millisecond
	DefaultRampInterval = time.Second
	DefaultRampTimeout  = 5 * time.Minute
)

// DefaultMemoryGroup is the input memory group used when none is set.
const DefaultMemoryGroup = 1

// MaxDurationMargin is added to twice the preset to bound the acquiring
// state when MaxDuration is zero.
const MaxDurationMargin = time.Minute

// Unbounded disables the acquiring-state bound when set as MaxDuration.
// Any negative MaxDuration has the same effect.
const Unbounded time.Duration = -1

// DefaultMaxDuration returns the acquiring-state bound for a preset of
// presetSeconds.
func DefaultMaxDuration(presetSeconds float64) time.Duration {
	return time.Duration(2*presetSeconds*float64(time.Second)) + MaxDurationMargin
}

// Uploader copies a closed local file to secondary storage.
// *lode.Mirror and the mirror policies implement it.
type Uploader interface {
	Upload(ctx context.Context, path string) error
}

// Flusher is implemented by uploaders that defer work. Flush runs before
// the metrics snapshot and the session record.
type Flusher interface {
	Flush(ctx context.Context) error
}

// RecordWriter persists the session record. *lode.Client implements it.
type RecordWriter interface {
	WriteSession(ctx context.Context, rec lode.SessionRecord) error
}

// Config configures a single session.
type Config struct {
	// SessionID identifies the session in logs, metrics and records.
	SessionID string
	// Detector and Serial identify the detector in the summary file.
	Detector string
	Serial   string
	// Note1 and Note2 are free-text lines for the summary file.
	Note1 string
	Note2 string

	// Naming places the output files. A zero Start is set to the session
	// start time.
	Naming archive.Naming
	// Archive sets the optional output columns and trailer.
	Archive archive.Options
	// ChunkSize is the rotation threshold; archive.NoRotation disables it.
	ChunkSize int64
	// Capture records every polled buffer to Naming.CapturePath().
	Capture bool

	Preset      types.PresetType
	PresetValue float64 // seconds
	// MemoryGroup selects the input memory group. Zero means
	// DefaultMemoryGroup.
	MemoryGroup int

	// ControlHV sets the voltage and enables the supply before
	// acquiring. Without it the supply must already be on.
	ControlHV bool
	Voltage   float64

	PollInterval time.Duration
	RampInterval time.Duration
	RampTimeout  time.Duration
	// MaxDuration bounds the acquiring state. Zero means
	// DefaultMaxDuration(PresetValue); negative means unbounded.
	MaxDuration time.Duration

	// Instrument is the input to acquire from. Required.
	Instrument device.Instrument
	// Clock defaults to the real clock.
	Clock clock.Clock
	// Logger defaults to a no-op logger.
	Logger *log.Logger
	// Collector is the metrics collector for this session.
	// If nil, no metrics are recorded (all Collector methods are nil-safe).
	Collector *metrics.Collector
	// Mirror, if set, receives every closed chunk, the summary and the
	// capture. Mirror failures are logged and do not fail the session.
	Mirror Uploader
	// Records, if set, receives the session record at the end of the run.
	Records RecordWriter
}

// Validate checks the configuration. It does not modify c.
func (c *Config) Validate() error {
	var errs []error
	if c.Instrument == nil {
		errs = append(errs, errors.New("instrument is required"))
	}
	if c.Naming.Dir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Naming.Prefix == "" {
		errs = append(errs, errors.New("file prefix is required"))
	}
	if c.Naming.Suffix == "" {
		errs = append(errs, errors.New("file suffix is required"))
	}
	if _, ok := types.ParsePresetType(string(c.Preset)); !ok {
		errs = append(errs, fmt.Errorf("preset type %q must be Live or Real", c.Preset))
	}
	if c.PresetValue <= 0 {
		errs = append(errs, fmt.Errorf("preset value %v must be positive", c.PresetValue))
	}
	if c.ChunkSize < archive.NoRotation {
		errs = append(errs, fmt.Errorf("chunk size %d must be -1 or non-negative", c.ChunkSize))
	}
	if c.PollInterval != 0 && c.PollInterval < MinPollInterval {
		errs = append(errs, fmt.Errorf("poll interval %v is below the minimum %v", c.PollInterval, MinPollInterval))
	}
	if c.RampInterval < 0 || c.RampTimeout < 0 {
		errs = append(errs, errors.New("intervals and timeouts must not be negative"))
	}
	if c.MemoryGroup < 0 {
		errs = append(errs, fmt.Errorf("memory group %d must not be negative", c.MemoryGroup))
	}
	if c.ControlHV {
		if err := device.ValidateVoltage(c.Voltage); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RampInterval == 0 {
		c.RampInterval = DefaultRampInterval
	}
	if c.RampTimeout == 0 {
		c.RampTimeout = DefaultRampTimeout
	}
	if c.MemoryGroup == 0 {
		c.MemoryGroup = DefaultMemoryGroup
	}
	if c.MaxDuration == 0 {
		c.MaxDuration = DefaultMaxDuration(c.PresetValue)
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = log.Nop()
	}
	if preset, ok := types.ParsePresetType(string(c.Preset)); ok {
		c.Preset = preset
	}
	return c
}
