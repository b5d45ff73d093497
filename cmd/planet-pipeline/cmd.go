package main

import (
	"context"

	cli "gopkg.in/urfave/cli.v1"
)

var searchFlags = []cli.Flag{
	cli.StringFlag{Name: "aoi, a", Usage: "GeoJSON file with the area of interest"},
	cli.StringFlag{Name: "start, s", Usage: "first acquisition day, YYYY-MM-DD"},
	cli.StringFlag{Name: "end, e", Usage: "last acquisition day, YYYY-MM-DD (inclusive)"},
	cli.StringFlag{Name: "name, n", Usage: "search name (default: AOI file name)"},
	cli.StringFlag{Name: "search-id", Usage: "update and rerun this saved search instead of creating one"},
	cli.StringFlag{Name: "crs", Usage: "equal-area CRS for coverage, e.g. EPSG:6933 (default: TARGET_CRS)"},
	cli.Float64Flag{Name: "threshold, t", Value: -1, Usage: "minimum coverage percent to order (default: COVERAGE_THRESHOLD)"},
	cli.StringFlag{Name: "data", Usage: "data directory (default: DATA_PATH)"},
}

func createCliApp(ctx context.Context) *cli.App {
	app := cli.NewApp()
	app.Name = "planet-pipeline"
	app.Usage = "Search Planet imagery over an AOI and order full-coverage days"
	app.Version = version
	app.Commands = cli.Commands{
		cli.Command{
			Name:   "search",
			Usage:  "Search the catalog and print per-day coverage without ordering",
			Flags:  searchFlags,
			Action: func(c *cli.Context) error { return searchAction(ctx, c) },
		},
		cli.Command{
			Name:  "run",
			Usage: "Search, then order and download every day meeting the coverage threshold",
			Flags: append(append([]cli.Flag{}, searchFlags...),
				cli.BoolFlag{Name: "yes, y", Usage: "order without asking for confirmation"},
				cli.BoolFlag{Name: "overwrite", Usage: "replace files that were already downloaded"},
			),
			Action: func(c *cli.Context) error { return runAction(ctx, c) },
		},
		cli.Command{
			Name:  "searches",
			Usage: "Manage saved searches",
			Subcommands: cli.Commands{
				cli.Command{
					Name:   "list",
					Usage:  "List saved searches",
					Action: func(c *cli.Context) error { return listSearchesAction(ctx, c) },
				},
				cli.Command{
					Name:      "delete",
					Usage:     "Delete saved searches by id",
					ArgsUsage: "<id>...",
					Action:    func(c *cli.Context) error { return deleteSearchesAction(ctx, c) },
				},
			},
		},
		cli.Command{
			Name:  "serve",
			Usage: "Run the ops server (health checks, metrics, job states)",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "addr", Usage: "listen address (default: OPS_ADDR or :9090)"},
				cli.StringFlag{Name: "run", Usage: "run id whose job states are exported as metrics"},
			},
			Action: func(c *cli.Context) error { return serveAction(ctx, c) },
		},
	}
	return app
}
