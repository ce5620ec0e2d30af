package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pithecene-io/tlist/archive"
	"github.com/pithecene-io/tlist/device"
	"github.com/pithecene-io/tlist/lode"
	"github.com/pithecene-io/tlist/policy"
	"github.com/pithecene-io/tlist/session"
	"github.com/pithecene-io/tlist/types"
)

// Device backends.
const (
	BackendSim    = "sim"
	BackendReplay = "replay"
)

// Storage backends.
const (
	StorageFS = "fs"
	StorageS3 = "s3"
)

// Adapter types.
const (
	AdapterWebhook = "webhook"
	AdapterRedis   = "redis"
)

// Validate checks cfg and returns every problem found, joined. It does
// not modify cfg.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(cfg.Detector.Name) == "" {
		add("detector.name is required")
	}
	if _, ok := types.ParsePresetType(cfg.Detector.TimeType); !ok {
		add("detector.time_type %q must be Live or Real", cfg.Detector.TimeType)
	}
	if cfg.Detector.TimeLimit <= 0 {
		add("detector.time_limit must be positive, got %v", cfg.Detector.TimeLimit)
	}
	if cfg.Lynx.ControlHV {
		if err := device.ValidateVoltage(cfg.Detector.HV); err != nil {
			add("detector.hv: %v", err)
		}
	}

	if cfg.Data.Dir == "" {
		add("data.dir is required")
	}
	if strings.TrimSpace(cfg.Data.FilePre) == "" {
		add("data.file_pre is required")
	}
	if strings.TrimSpace(cfg.Data.FilePost) == "" {
		add("data.file_post is required")
	}
	if c := cfg.Data.FileChunk; c != nil && *c < archive.NoRotation {
		add("data.file_chunk must be -1 or non-negative, got %d", *c)
	}

	acq := cfg.Acquisition
	if acq.PollInterval.Duration != 0 && acq.PollInterval.Duration < session.MinPollInterval {
		add("acquisition.poll_interval %v is below the minimum %v", acq.PollInterval.Duration, session.MinPollInterval)
	}
	for name, d := range map[string]time.Duration{
		"ramp_interval": acq.RampInterval.Duration,
		"ramp_timeout":  acq.RampTimeout.Duration,
	} {
		if d < 0 {
			add("acquisition.%s must not be negative", name)
		}
	}
	if acq.MemoryGroup < 0 {
		add("acquisition.memory_group must not be negative")
	}

	switch cfg.Device.Backend {
	case "", BackendSim:
		sim := cfg.Device.Sim
		if sim.Rate < 0 {
			add("device.sim.rate must not be negative")
		}
		if sim.Channels < 0 || sim.Channels > 1<<16 {
			add("device.sim.channels must be within 0..65536")
		}
		if sim.TimeBaseNs < 0 {
			add("device.sim.time_base_ns must not be negative")
		}
	case BackendReplay:
		if cfg.Device.CapturePath == "" {
			add("device.capture_path is required for the replay backend")
		}
	default:
		add("device.backend %q must be sim or replay", cfg.Device.Backend)
	}

	switch cfg.Storage.Backend {
	case "":
	case StorageFS:
		if cfg.Storage.Path == "" {
			add("storage.path is required for the fs backend")
		}
	case StorageS3:
		if bucket, _ := lode.ParseS3Path(cfg.Storage.Path); bucket == "" {
			add("storage.path must name an S3 bucket (bucket/prefix)")
		}
	default:
		add("storage.backend %q must be fs or s3", cfg.Storage.Backend)
	}
	if err := (policy.Config{Name: cfg.Storage.Policy, MaxPending: cfg.Storage.MaxPending}).Validate(); err != nil {
		add("storage: %v", err)
	}

	switch cfg.Adapter.Type {
	case "":
	case AdapterWebhook, AdapterRedis:
		if cfg.Adapter.URL == "" {
			add("adapter.url is required for the %s adapter", cfg.Adapter.Type)
		}
		if r := cfg.Adapter.Retries; r != nil && *r < 0 {
			add("adapter.retries must be >= 0, got %d", *r)
		}
	default:
		add("adapter.type %q must be webhook or redis", cfg.Adapter.Type)
	}

	return errors.Join(errs...)
}

// Normalize applies defaults to a validated cfg and returns it.
// Spaces in file name parts become underscores.
func Normalize(cfg *Config) *Config {
	out := *cfg
	if out.Device.Backend == "" {
		out.Device.Backend = BackendSim
	}
	if preset, ok := types.ParsePresetType(out.Detector.TimeType); ok {
		out.Detector.TimeType = string(preset)
	}
	out.Data.FilePre = archive.SafeName(out.Data.FilePre)
	out.Data.FilePost = archive.SafeName(out.Data.FilePost)
	if out.Data.FileChunk == nil {
		noRotation := archive.NoRotation
		out.Data.FileChunk = &noRotation
	}
	if out.Acquisition.PollInterval.Duration == 0 {
		out.Acquisition.PollInterval.Duration = session.DefaultPollInterval
	}
	if out.Acquisition.RampInterval.Duration == 0 {
		out.Acquisition.RampInterval.Duration = session.DefaultRampInterval
	}
	if out.Acquisition.RampTimeout.Duration == 0 {
		out.Acquisition.RampTimeout.Duration = session.DefaultRampTimeout
	}
	if out.Acquisition.MaxDuration.Duration == 0 {
		out.Acquisition.MaxDuration.Duration = session.DefaultMaxDuration(out.Detector.TimeLimit)
	}
	if out.Acquisition.MemoryGroup == 0 {
		out.Acquisition.MemoryGroup = session.DefaultMemoryGroup
	}
	if out.Storage.Backend != "" && out.Storage.Dataset == "" {
		out.Storage.Dataset = lode.DefaultDataset
	}
	if out.Storage.Backend != "" && out.Storage.Policy == "" {
		out.Storage.Policy = policy.NameStrict
	}
	return &out
}
