package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pithecene-io/tlist/adapter"
	"github.com/pithecene-io/tlist/adapter/redis"
	"github.com/pithecene-io/tlist/adapter/webhook"
	"github.com/pithecene-io/tlist/archive"
	"github.com/pithecene-io/tlist/capture"
	"github.com/pithecene-io/tlist/cli/config"
	"github.com/pithecene-io/tlist/clock"
	"github.com/pithecene-io/tlist/device"
	"github.com/pithecene-io/tlist/device/sim"
	"github.com/pithecene-io/tlist/iox"
	"github.com/pithecene-io/tlist/lode"
	"github.com/pithecene-io/tlist/log"
	"github.com/pithecene-io/tlist/metrics"
	"github.com/pithecene-io/tlist/policy"
	"github.com/pithecene-io/tlist/session"
	"github.com/pithecene-io/tlist/types"
)

// runEnv carries what a session needs beyond the config file.
type runEnv struct {
	sessionID string
	clock     clock.Clock
	logger    *log.Logger
	// start names the output files. Zero means clock.Now().
	start time.Time
	// instrument replaces the configured backend when set.
	instrument device.Instrument
}

// execute runs one session described by a validated, normalized cfg and
// publishes the completion notification. The result is nil only when
// the session could not be set up.
func execute(ctx context.Context, cfg *config.Config, env runEnv) (*session.Result, error) {
	start := env.start
	if start.IsZero() {
		start = env.clock.Now()
	}

	collector := metrics.NewCollector(cfg.Device.Backend, cfg.Detector.Name, cfg.Storage.Backend, env.sessionID)
	logger := env.logger.WithSession(log.SessionMeta{
		SessionID: env.sessionID,
		Detector:  cfg.Detector.Name,
		Device:    cfg.Device.Backend,
	})

	inst := env.instrument
	if inst == nil {
		var err error
		if inst, err = openInstrument(cfg, env.clock); err != nil {
			kind := session.KindStorage
			if cfg.Device.Backend == config.BackendSim {
				kind = session.KindConfig
			}
			return nil, setupError(kind, err)
		}
	}
	defer iox.DiscardClose(inst)

	scfg := sessionConfig(cfg, env.sessionID, start)
	scfg.Instrument = inst
	scfg.Clock = env.clock
	scfg.Logger = logger
	scfg.Collector = collector

	client, err := openStorage(ctx, cfg.Storage, lode.Config{
		Dataset:   cfg.Storage.Dataset,
		Detector:  cfg.Detector.Name,
		Day:       lode.DeriveDay(start),
		SessionID: env.sessionID,
	})
	if err != nil {
		return nil, setupError(session.KindStorage, err)
	}
	if client != nil {
		defer iox.DiscardClose(client)
		pol, err := policy.New(lode.NewMirror(client, collector), policy.Config{
			Name:       cfg.Storage.Policy,
			MaxPending: cfg.Storage.MaxPending,
			Logger:     logger,
		})
		if err != nil {
			return nil, setupError(session.KindConfig, err)
		}
		defer iox.DiscardClose(pol)
		scfg.Mirror = pol
		scfg.Records = client
	}

	s, err := session.New(scfg)
	if err != nil {
		return nil, err
	}
	res, runErr := s.Run(ctx)

	if cfg.Adapter.Type != "" {
		event := completedEvent(cfg, res, runErr, client, env.clock.Now())
		if err := notify(context.WithoutCancel(ctx), cfg.Adapter, env.clock, event); err != nil {
			logger.Warn("session notification failed", map[string]any{
				"adapter": cfg.Adapter.Type,
				"error":   err.Error(),
			})
		}
	}
	return res, runErr
}

// setupError reports a failure before the session was created.
func setupError(kind session.ErrorKind, err error) error {
	if errors.Is(err, device.ErrComm) {
		kind = session.KindDevice
	}
	return &session.Error{State: session.StateIdle, Kind: kind, Err: err}
}

func sessionConfig(cfg *config.Config, sessionID string, start time.Time) session.Config {
	chunk := archive.NoRotation
	if cfg.Data.FileChunk != nil {
		chunk = *cfg.Data.FileChunk
	}
	return session.Config{
		SessionID: sessionID,
		Detector:  cfg.Detector.Name,
		Serial:    cfg.Detector.Serial,
		Note1:     cfg.Data.FileNote1,
		Note2:     cfg.Data.FileNote2,
		Naming: archive.Naming{
			Dir:    cfg.Data.Dir,
			Prefix: cfg.Data.FilePre,
			Suffix: cfg.Data.FilePost,
			Start:  start,
		},
		Archive: archive.Options{
			WallClock: cfg.Data.WallClock,
			Trailer:   cfg.Data.Trailer,
		},
		ChunkSize:    chunk,
		Capture:      cfg.Data.Capture,
		Preset:       types.PresetType(cfg.Detector.TimeType),
		PresetValue:  cfg.Detector.TimeLimit,
		MemoryGroup:  cfg.Acquisition.MemoryGroup,
		ControlHV:    cfg.Lynx.ControlHV,
		Voltage:      cfg.Detector.HV,
		PollInterval: cfg.Acquisition.PollInterval.Duration,
		RampInterval: cfg.Acquisition.RampInterval.Duration,
		RampTimeout:  cfg.Acquisition.RampTimeout.Duration,
		MaxDuration:  cfg.Acquisition.MaxDuration.Duration,
	}
}

// openInstrument connects the configured backend.
func openInstrument(cfg *config.Config, clk clock.Clock) (device.Instrument, error) {
	switch cfg.Device.Backend {
	case config.BackendReplay:
		r, err := capture.Open(cfg.Device.CapturePath)
		if err != nil {
			return nil, lode.WrapReadError(err, cfg.Device.CapturePath)
		}
		return r, nil
	case config.BackendSim, "":
		return sim.New(simConfig(cfg.Device.Sim), clk)
	default:
		return nil, fmt.Errorf("unknown device backend %q", cfg.Device.Backend)
	}
}

// simConfig overlays the configured simulator fields on the defaults.
func simConfig(c config.SimConfig) sim.Config {
	out := sim.DefaultConfig()
	if c.Seed != 0 {
		out.Seed = c.Seed
	}
	if c.Rate > 0 {
		out.Rate = c.Rate
	}
	if c.Channels > 0 {
		out.Channels = c.Channels
	}
	if c.TimeBaseNs > 0 {
		out.TimeBaseNs = c.TimeBaseNs
	}
	if c.MachineName != "" {
		out.MachineName = c.MachineName
	}
	return out
}

// openStorage returns the mirror/record client, or nil when no storage
// backend is configured.
func openStorage(ctx context.Context, sc config.StorageConfig, lc lode.Config) (*lode.Client, error) {
	switch sc.Backend {
	case "":
		return nil, nil
	case config.StorageFS:
		return lode.NewClient(lc, sc.Path)
	case config.StorageS3:
		bucket, prefix := lode.ParseS3Path(sc.Path)
		return lode.NewS3Client(ctx, lc, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       sc.Region,
			Endpoint:     sc.Endpoint,
			UsePathStyle: sc.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
}

// openAdapter builds the configured notification adapter.
func openAdapter(ac config.AdapterConfig, clk clock.Clock) (adapter.Adapter, error) {
	switch ac.Type {
	case config.AdapterWebhook:
		retries := webhook.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		a, err := webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
			Clock:   clk,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case config.AdapterRedis:
		retries := redis.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		a, err := redis.New(redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
			Clock:   clk,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.Type)
	}
}

func notify(ctx context.Context, ac config.AdapterConfig, clk clock.Clock, event *adapter.SessionCompletedEvent) error {
	a, err := openAdapter(ac, clk)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(a)
	return a.Publish(ctx, event)
}

// completedEvent builds the notification for a finished session. res may
// be nil when the session failed during setup.
func completedEvent(cfg *config.Config, res *session.Result, err error, client *lode.Client, now time.Time) *adapter.SessionCompletedEvent {
	ev := &adapter.SessionCompletedEvent{
		Version:   types.Version,
		EventType: adapter.EventTypeSessionCompleted,
		Detector:  cfg.Detector.Name,
		Outcome:   adapter.OutcomeComplete,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if res != nil {
		ev.SessionID = res.SessionID
		ev.Day = lode.DeriveDay(res.StartedAt)
		ev.SummaryPath = res.Summary
		ev.TotalEvents = res.TotalEvents
		ev.Chunks = len(res.Chunks)
		ev.Anomalies = len(res.Anomalies)
		ev.DurationMs = res.Duration.Milliseconds()
		if res.Stopped {
			ev.Outcome = adapter.OutcomeStopped
		}
		if client != nil && res.Summary != "" {
			ev.StoragePath = client.FilePath(filepath.Base(res.Summary))
		}
	}
	if err != nil {
		ev.Outcome = adapter.OutcomeFailed
		ev.ErrorKind = string(session.KindOf(err))
		ev.Error = err.Error()
	}
	return ev
}
