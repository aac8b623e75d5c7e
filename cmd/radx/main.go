package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rxtech-lab/radx/internal/version"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// newCommand builds the radx command tree.
func newCommand() *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the radx YAML configuration",
		Value:   "",
		Sources: cli.EnvVars("RADX_CONFIG"),
	}

	return &cli.Command{
		Name:    "radx",
		Usage:   "Continuous futures backtesting and live signals",
		Version: version.GetVersion(),
		Flags:   []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:  "backtest",
				Usage: "Backtest the configured parameters once",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "strategy",
						Usage: "Strategy name, overrides the configuration",
					},
					&cli.BoolFlag{
						Name:  "trades",
						Usage: "Log every closed trade",
						Value: true,
					},
				},
				Action: backtestAction,
			},
			{
				Name:  "sweep",
				Usage: "Sweep the configured parameter grid and write a report",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "Report format (csv, parquet, yaml), overrides the configuration",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Report directory, overrides the configuration",
					},
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Hide the progress bar",
					},
				},
				Action: sweepAction,
			},
			{
				Name:   "live",
				Usage:  "Stream trades, aggregate bars and log signals",
				Action: liveAction,
			},
			{
				Name:  "export",
				Usage: "Export the continuous bar series to a Parquet file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "out",
						Usage:    "Output Parquet file",
						Required: true,
					},
				},
				Action: exportAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the configuration JSON schema",
				Action: schemaAction,
			},
			{
				Name:   "strategies",
				Usage:  "List the registered strategies",
				Action: strategiesAction,
			},
		},
	}
}
