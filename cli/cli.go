package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const AppName = "tubegrade"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
	out    io.Writer
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		out:    os.Stdout,
		cli: &cli.App{
			Name:      AppName,
			Usage:     "Grade a student compiler against the reference compiler",
			ArgsUsage: "[test files...]",
			Description: `Tests the student compiler against the reference compiler.
By default it tests all files in the Test_Suite and shows detailed output
for the first failure. Add test files (tube source code) to test specific
files like example.tube.`,
			Flags: append([]cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
			}, runFlags()...),
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Action = app.run
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Build the submission and grade it against the test suite (default)",
		ArgsUsage: "[test files...]",
		Action:    app.run,
		Flags:     runFlags(),
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List previous grading runs",
		Action: app.list,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"C"},
				Usage:   "Submission directory whose history is listed",
				Value:   ".",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:            "view",
		Usage:           "View a grading run from history",
		ArgsUsage:       "[ID|INDEX] [pprof args...]",
		Action:          app.view,
		SkipFlagParsing: true,
		Description: `View a grading run from history.

Arguments:
  0           View last run (default)
  -1          View 2nd last run
  -2          View 3rd last run
  <hex-id>    View run matching the hex ID prefix

Examples:
  tubegrade view                 # View last run
  tubegrade view -1              # View 2nd last run
  tubegrade view abc123 -top     # Show cycle profile of run abc123 with pprof -top

Display Priority:
  1. Cycle profiles (cycles.pb.gz), opened with go tool pprof
  2. Evidence of non-passing tests (evidence.txt)
  3. Recorded outcomes`,
	})

	return app
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file (tool paths, test globs, rubric)",
			EnvVars: []string{"TUBEGRADE_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"C"},
			Usage:   "Submission directory to grade",
		},
		&cli.BoolFlag{
			Name:    "machine",
			Aliases: []string{"run-machine-mode"},
			Usage:   "Output the test result as 1's and 0's, for instructor use",
		},
		&cli.BoolFlag{
			Name:  "ir",
			Usage: "Also test the intermediate representation output (-ic)",
		},
		&cli.BoolFlag{
			Name:  "no-final",
			Usage: "Skip testing the final tubecode output",
		},
		&cli.BoolFlag{
			Name:  "optimize",
			Usage: "Compile the reference with -O and enforce cycle budgets",
			Value: true,
		},
		&cli.BoolFlag{
			Name:  "extra",
			Usage: "Include the extra credit tests",
		},
		&cli.StringFlag{
			Name:  "reference-over-budget",
			Usage: "What a reference over its cycle budget means: fault or ignore",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Timeout for every compiler and engine invocation",
		},
		&cli.StringFlag{
			Name:  "color",
			Usage: "Colour verdicts: auto, always or never",
			Value: "auto",
		},
		&cli.BoolFlag{
			Name:  "verbose-evidence",
			Usage: "Print the evidence of every test, not just the first failure",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "Write Prometheus metrics of the run to this file (textfile collector format)",
		},
		&cli.BoolFlag{
			Name:  "no-history",
			Usage: "Do not record this run in the history directory",
		},
	}
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI app
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && len(commit) >= 8 {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}
