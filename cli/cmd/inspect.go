package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tlist/archive"
	"github.com/pithecene-io/tlist/cli/render"
	"github.com/pithecene-io/tlist/cli/tui"
	"github.com/pithecene-io/tlist/iox"
)

// InspectCommand returns the inspect command. It parses a session
// summary file and shows its header, files and total.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show a session summary file",
		ArgsUsage: "<summary file>",
		Flags:     ReadOnlyFlags(),
		Action:    inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return configError("usage: tlist inspect [options] <summary file>")
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return configError("%v", err)
	}

	info, err := readSummary(c.Args().First())
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectSummary, info)
	}
	return r.Render(info)
}

func readSummary(path string) (*archive.SummaryInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(f)

	info, err := archive.ParseSummary(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return info, nil
}
