package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tlist/cli/render"
	"github.com/pithecene-io/tlist/types"
)

// VersionResponse is the response of the version command.
type VersionResponse struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
}

// VersionCommand returns the version command. It never touches the
// instrument or storage.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return configError("%v", err)
		}

		if c.Bool("tui") {
			return configError("--tui is not supported for version command")
		}

		return r.Render(VersionResponse{
			Version: types.Version,
			Commit:  commit,
		})
	}
}
