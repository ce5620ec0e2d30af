package config

import (
	"fmt"
	"time"
)

// Config represents a tlist.yaml configuration file.
// Values act as defaults for tlist run flags; CLI flags always override
// config values.
type Config struct {
	Lynx        LynxConfig        `yaml:"lynx"`
	Detector    DetectorConfig    `yaml:"detector"`
	Data        DataConfig        `yaml:"data"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Device      DeviceConfig      `yaml:"device"`
	Storage     StorageConfig     `yaml:"storage"`
	Adapter     AdapterConfig     `yaml:"adapter"`
}

// LynxConfig identifies the instrument and how to drive it.
type LynxConfig struct {
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// ControlHV sets and enables the high voltage before acquiring.
	ControlHV bool `yaml:"control_hv"`
	Input     int  `yaml:"input"`
}

// DetectorConfig describes the detector and the acquisition preset.
type DetectorConfig struct {
	Name   string  `yaml:"name"`
	Serial string  `yaml:"serial"`
	HV     float64 `yaml:"hv"`
	// TimeType is the preset type, Live or Real.
	TimeType string `yaml:"time_type"`
	// TimeLimit is the preset duration in seconds.
	TimeLimit float64 `yaml:"time_limit"`
}

// DataConfig places and shapes the output files.
type DataConfig struct {
	Dir      string `yaml:"dir"`
	FilePre  string `yaml:"file_pre"`
	FilePost string `yaml:"file_post"`
	// FileChunk is the rotation threshold in events; -1 disables rotation.
	FileChunk *int64 `yaml:"file_chunk,omitempty"`
	FileNote1 string `yaml:"file_note1"`
	FileNote2 string `yaml:"file_note2"`
	WallClock bool   `yaml:"wall_clock"`
	Trailer   bool   `yaml:"trailer"`
	Capture   bool   `yaml:"capture"`
}

// AcquisitionConfig holds poll-loop timing.
type AcquisitionConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	RampInterval Duration `yaml:"ramp_interval"`
	RampTimeout  Duration `yaml:"ramp_timeout"`
	// MaxDuration bounds the acquiring state. Zero derives it from the
	// time limit; negative disables it.
	MaxDuration Duration `yaml:"max_duration"`
	MemoryGroup int      `yaml:"memory_group"`
}

// DeviceConfig selects the instrument backend.
type DeviceConfig struct {
	// Backend is sim or replay.
	Backend     string    `yaml:"backend"`
	CapturePath string    `yaml:"capture_path"`
	Sim         SimConfig `yaml:"sim"`
}

// SimConfig configures the simulated instrument.
type SimConfig struct {
	Seed        int64   `yaml:"seed"`
	Rate        float64 `yaml:"rate"`
	Channels    int     `yaml:"channels"`
	TimeBaseNs  float64 `yaml:"time_base_ns"`
	MachineName string  `yaml:"machine_name"`
}

// StorageConfig configures archive mirroring and session records.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	// Policy is strict, buffered or streaming (default strict).
	Policy string `yaml:"policy"`
	// MaxPending is the buffered flush threshold or the streaming queue size.
	MaxPending int `yaml:"max_pending"`
}

// AdapterConfig holds notification adapter settings.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "50ms", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
