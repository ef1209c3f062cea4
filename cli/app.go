// Package cli contains the navigator command line.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	flagConfig  = "config"
	flagDebug   = "debug"
	flagURL     = "url"
	flagPlanLog = "planlog"
	flagPlotDir = "plot-dir"
	flagRate    = "rate"
	flagLimit   = "limit"
)

// NewApp returns the navigator app with Writer set to out and ErrWriter set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "navigator",
		Usage:           "plan paths through an occupancy grid and steer a robot along them",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE` (JSON or YAML)",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagPlanLog,
				Usage: "record planning attempts in the sqlite `FILE`",
			},
			&cli.StringFlag{
				Name:  flagPlotDir,
				Usage: "write a PNG of each published plan into `DIR`",
			},
		},
		Action: RunAction,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "connect to rosbridge and navigate until interrupted",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagURL,
						Usage: "rosbridge websocket `URL`, overriding the config",
					},
				},
				Action: RunAction,
			},
			{
				Name:      "replay",
				Usage:     "feed a recorded bag through the navigator and print what it publishes",
				ArgsUsage: "<bag file>",
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:  flagRate,
						Usage: "playback speed relative to the recording, 0 for as fast as possible",
					},
				},
				Action: ReplayAction,
			},
			{
				Name:  "history",
				Usage: "summarize recorded planning attempts",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagLimit,
						Value: 10,
						Usage: "number of recent attempts to list",
					},
				},
				Action: HistoryAction,
			},
		},
	}
}
