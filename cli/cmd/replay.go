package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tlist/capture"
	"github.com/pithecene-io/tlist/cli/config"
	"github.com/pithecene-io/tlist/clock"
	"github.com/pithecene-io/tlist/iox"
	"github.com/pithecene-io/tlist/session"
)

// Default file name parts for replayed archives.
const (
	replayFilePre  = "replay"
	replayFilePost = "txt"
)

// ReplayCommand returns the replay command. It re-decodes a raw capture
// through the acquisition pipeline and writes a fresh archive.
func ReplayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Re-decode a raw capture into a new archive",
		ArgsUsage: "<capture file>",
		Flags:     sessionFlags(),
		Action:    replayAction,
	}
}

func replayAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return configError("usage: tlist replay [options] <capture file>")
	}
	path := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return configError("%v", err)
	}
	applySessionFlags(c, cfg)

	// The header supplies the preset and start time of the recorded
	// session; the replay runs on a clock anchored there so the archive
	// names and timestamps come out the same.
	rp, err := capture.Open(path)
	if err != nil {
		return cli.Exit(err.Error(), session.ExitCodeStorage)
	}
	defer iox.DiscardClose(rp)
	h := rp.Header()
	applyCaptureHeader(cfg, path, h)

	env, err := newRunEnv(c, clock.Fake(h.StartedAt))
	if err != nil {
		return err
	}
	env.start = h.StartedAt
	env.instrument = rp
	return runSession(c, cfg, env)
}

// applyCaptureHeader points cfg at the capture and fills the acquisition
// parameters it recorded.
func applyCaptureHeader(cfg *config.Config, path string, h capture.Header) {
	cfg.Device.Backend = config.BackendReplay
	cfg.Device.CapturePath = path
	if cfg.Detector.Name == "" {
		cfg.Detector.Name = h.Detector
	}
	cfg.Detector.TimeType = string(h.Acquisition.Preset)
	cfg.Detector.TimeLimit = h.Acquisition.PresetValue
	cfg.Acquisition.MemoryGroup = h.Acquisition.MemoryGroup
	cfg.Acquisition.MaxDuration = config.Duration{Duration: session.Unbounded}
	cfg.Lynx.ControlHV = false
	cfg.Data.Capture = false
	if cfg.Data.FilePre == "" {
		cfg.Data.FilePre = replayFilePre
	}
	if cfg.Data.FilePost == "" {
		cfg.Data.FilePost = replayFilePost
	}
}
