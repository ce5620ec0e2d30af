package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tlist/cli/config"
	"github.com/pithecene-io/tlist/clock"
	"github.com/pithecene-io/tlist/log"
	"github.com/pithecene-io/tlist/session"
)

// sessionFlags are shared by run and replay. They override the config file.
func sessionFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag(),
		VerbosityFlag(),
		&cli.StringFlag{
			Name:  "session-id",
			Usage: "Session ID (default: a random UUID)",
		},
		&cli.StringFlag{
			Name:  "dir",
			Usage: "Data directory; files go to <dir>/YYYYMMDD/",
		},
		&cli.StringFlag{
			Name:  "file-pre",
			Usage: "Output file name prefix",
		},
		&cli.StringFlag{
			Name:  "file-post",
			Usage: "Output file name suffix (extension)",
		},
		&cli.Int64Flag{
			Name:  "file-chunk",
			Usage: "Events per archive file before rotating; -1 disables rotation",
			Value: -1,
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress result output",
		},
	}
}

// RunCommand returns the run command, the only command that acquires.
func RunCommand() *cli.Command {
	flags := append(sessionFlags(),
		&cli.StringFlag{
			Name:  "time-type",
			Usage: "Preset type: Live or Real",
		},
		&cli.Float64Flag{
			Name:  "time-limit",
			Usage: "Preset duration in seconds",
		},
		&cli.BoolFlag{
			Name:  "control-hv",
			Usage: "Set and enable the high voltage before acquiring",
		},
		&cli.Float64Flag{
			Name:  "hv",
			Usage: "High voltage in volts (with --control-hv)",
		},
		&cli.BoolFlag{
			Name:  "capture",
			Usage: "Record every raw buffer for replay",
		},
		&cli.DurationFlag{
			Name:  "max-duration",
			Usage: "Fail the session if acquiring takes longer (default: twice the time limit plus 1m, negative: unbounded)",
		},
		&cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "Delay between status polls",
		},
		&cli.StringFlag{
			Name:  "device",
			Usage: "Device backend: sim or replay",
		},
	)
	return &cli.Command{
		Name:   "run",
		Usage:  "Acquire a time-stamped list-mode session",
		Flags:  flags,
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return configError("%v", err)
	}
	applySessionFlags(c, cfg)
	cfg.Detector.TimeType = resolveString(c, "time-type", cfg.Detector.TimeType)
	cfg.Detector.TimeLimit = resolveFloat(c, "time-limit", cfg.Detector.TimeLimit)
	cfg.Detector.HV = resolveFloat(c, "hv", cfg.Detector.HV)
	cfg.Lynx.ControlHV = resolveBool(c, "control-hv", cfg.Lynx.ControlHV)
	cfg.Data.Capture = resolveBool(c, "capture", cfg.Data.Capture)
	cfg.Acquisition.MaxDuration.Duration = resolveDuration(c, "max-duration", cfg.Acquisition.MaxDuration.Duration)
	cfg.Acquisition.PollInterval.Duration = resolveDuration(c, "poll-interval", cfg.Acquisition.PollInterval.Duration)
	cfg.Device.Backend = resolveString(c, "device", cfg.Device.Backend)

	env, err := newRunEnv(c, clock.Real())
	if err != nil {
		return err
	}
	return runSession(c, cfg, env)
}

// applySessionFlags copies the shared session flags over cfg.
func applySessionFlags(c *cli.Context, cfg *config.Config) {
	cfg.Data.Dir = resolveString(c, "dir", cfg.Data.Dir)
	cfg.Data.FilePre = resolveString(c, "file-pre", cfg.Data.FilePre)
	cfg.Data.FilePost = resolveString(c, "file-post", cfg.Data.FilePost)
	if c.IsSet("file-chunk") {
		chunk := c.Int64("file-chunk")
		cfg.Data.FileChunk = &chunk
	}
}

func newRunEnv(c *cli.Context, clk clock.Clock) (runEnv, error) {
	level, err := log.LevelForVerbosity(c.Int("verbosity"))
	if err != nil {
		return runEnv{}, configError("%v", err)
	}
	id := c.String("session-id")
	if id == "" {
		id = uuid.NewString()
	}
	return runEnv{
		sessionID: id,
		clock:     clk,
		logger:    log.NewLogger(log.SessionMeta{}, level).WithOutput(c.App.ErrWriter),
	}, nil
}

// runSession validates cfg, runs it and maps the outcome to an exit code.
// SIGINT and SIGTERM stop the acquisition; the session then drains.
func runSession(c *cli.Context, cfg *config.Config, env runEnv) error {
	if err := config.Validate(cfg); err != nil {
		return configError("invalid configuration:\n%v", err)
	}
	cfg = config.Normalize(cfg)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := execute(ctx, cfg, env)
	if res != nil && !c.Bool("quiet") {
		printRunResult(c.App.Writer, res)
	}
	if err != nil {
		return cli.Exit(err.Error(), session.ExitCode(err))
	}
	return nil
}

func printRunResult(w io.Writer, res *session.Result) {
	outcome := "complete"
	switch {
	case res.Err != nil:
		outcome = "failed"
	case res.Stopped:
		outcome = "stopped"
	}

	fmt.Fprintf(w, "\nsession_id=%s, outcome=%s, duration=%s\n",
		res.SessionID, outcome, res.Duration.Round(time.Millisecond))

	fmt.Fprintf(w, "\n=== Session Result ===\n")
	fmt.Fprintf(w, "Session ID:   %s\n", res.SessionID)
	fmt.Fprintf(w, "State:        %s\n", res.State)
	fmt.Fprintf(w, "Summary:      %s\n", res.Summary)
	if res.Capture != "" {
		fmt.Fprintf(w, "Capture:      %s\n", res.Capture)
	}
	fmt.Fprintf(w, "Time base:    %g ns\n", res.TimeBaseNs)
	fmt.Fprintf(w, "Events:       %d\n", res.TotalEvents)
	fmt.Fprintf(w, "Anomalies:    %d\n", len(res.Anomalies))
	if res.Err != nil {
		fmt.Fprintf(w, "Error:        %v\n", res.Err)
	}

	if len(res.Chunks) > 0 {
		fmt.Fprintf(w, "\n=== Files ===\n")
		for _, ch := range res.Chunks {
			fmt.Fprintf(w, "  %s (%d events)\n", ch.Path, ch.Events)
		}
	}

	m := res.Metrics
	fmt.Fprintf(w, "\n=== Metrics ===\n")
	fmt.Fprintf(w, "Polls:            %d\n", m.Polls)
	fmt.Fprintf(w, "Buffers:          %d\n", m.Buffers)
	fmt.Fprintf(w, "Raw Events:       %d\n", m.RawEvents)
	fmt.Fprintf(w, "Rollover Markers: %d\n", m.RolloverMarkers)
	fmt.Fprintf(w, "Chunks Rotated:   %d\n", m.ChunksRotated)
	if m.CaptureFrames > 0 || m.CaptureFailures > 0 {
		fmt.Fprintf(w, "Capture Frames:   %d (%d failed)\n", m.CaptureFrames, m.CaptureFailures)
	}
	if m.MirrorWriteSuccess > 0 || m.MirrorWriteFailure > 0 {
		fmt.Fprintf(w, "Mirrored Files:   %d (%d failed)\n", m.MirrorWriteSuccess, m.MirrorWriteFailure)
	}
}
