package cmd

import (
	"context"
	"errors"

	lodelib "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tlist/cli/config"
	"github.com/pithecene-io/tlist/cli/render"
	"github.com/pithecene-io/tlist/cli/tui"
	"github.com/pithecene-io/tlist/lode"
)

// StatsCommand returns the stats command. It reads back the latest
// stored session record.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show the latest stored session record",
		Flags: append([]cli.Flag{
			ConfigFlag(),
			&cli.StringFlag{Name: "storage-backend", Usage: "Storage backend: fs or s3"},
			&cli.StringFlag{Name: "storage-path", Usage: "Storage path (fs: directory, s3: bucket/prefix)"},
			&cli.StringFlag{Name: "storage-dataset", Usage: "Dataset ID", Value: lode.DefaultDataset},
			&cli.StringFlag{Name: "storage-region", Usage: "AWS region for S3"},
			&cli.StringFlag{Name: "storage-endpoint", Usage: "Custom S3 endpoint (MinIO, R2)"},
			&cli.BoolFlag{Name: "storage-s3-path-style", Usage: "Force S3 path-style addressing"},
			&cli.StringFlag{Name: "detector", Usage: "Only sessions of this detector"},
			&cli.StringFlag{Name: "session-id", Usage: "Only this session"},
		}, ReadOnlyFlags()...),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return configError("%v", err)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return configError("%v", err)
	}
	sc := config.StorageConfig{
		Backend:     resolveString(c, "storage-backend", cfg.Storage.Backend),
		Path:        resolveString(c, "storage-path", cfg.Storage.Path),
		Dataset:     resolveString(c, "storage-dataset", cfg.Storage.Dataset),
		Region:      resolveString(c, "storage-region", cfg.Storage.Region),
		Endpoint:    resolveString(c, "storage-endpoint", cfg.Storage.Endpoint),
		S3PathStyle: resolveBool(c, "storage-s3-path-style", cfg.Storage.S3PathStyle),
	}
	detector := resolveString(c, "detector", cfg.Detector.Name)

	ds, err := openReadDataset(c.Context, sc)
	if err != nil {
		return err
	}

	rec, err := lode.QueryLatestSession(c.Context, ds, detector, c.String("session-id"))
	if err != nil {
		if errors.Is(err, lode.ErrNoSessionFound) {
			return cli.Exit(err.Error(), 1)
		}
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsSession, rec)
	}
	return r.Render(rec)
}

func openReadDataset(ctx context.Context, sc config.StorageConfig) (lodelib.Dataset, error) {
	switch sc.Backend {
	case config.StorageFS:
		if sc.Path == "" {
			return nil, configError("--storage-path is required for the fs backend")
		}
		return lode.NewReadDatasetFS(sc.Dataset, sc.Path)
	case config.StorageS3:
		bucket, prefix := lode.ParseS3Path(sc.Path)
		if bucket == "" {
			return nil, configError("--storage-path must name an S3 bucket (bucket/prefix)")
		}
		return lode.NewReadDatasetS3(ctx, sc.Dataset, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       sc.Region,
			Endpoint:     sc.Endpoint,
			UsePathStyle: sc.S3PathStyle,
		})
	case "":
		return nil, configError("--storage-backend is required")
	default:
		return nil, configError("invalid --storage-backend %q (must be fs or s3)", sc.Backend)
	}
}
