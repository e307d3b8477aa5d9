package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/lattice/cli/reader"
	"github.com/pithecene-io/lattice/cli/render"
	"github.com/pithecene-io/lattice/lode"
)

// statsTimeout bounds the metrics query.
const statsTimeout = 30 * time.Second

// StatsCommand returns the stats command. It reads the latest metrics
// record a run wrote to a lode dataset.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show the metrics of a run from a lode dataset",
		Flags: withFlags(ReadOnlyFlags(),
			&cli.StringFlag{Name: "storage-path", Usage: "Storage path (fs: directory, s3: bucket/prefix)", Required: true},
			&cli.StringFlag{Name: "storage-backend", Usage: "Storage backend: fs or s3", Value: lode.BackendFS},
			&cli.StringFlag{Name: "storage-dataset", Usage: "Dataset ID (default: lattice)"},
			&cli.StringFlag{Name: "storage-region", Usage: "AWS region for s3"},
			&cli.StringFlag{Name: "storage-endpoint", Usage: "Custom s3 endpoint"},
			&cli.BoolFlag{Name: "storage-s3-path-style", Usage: "Use path-style s3 addressing"},
			&cli.StringFlag{Name: "run-id", Usage: "Read metrics for a specific run ID"},
		),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, statsTimeout)
	defer cancel()

	ds, err := openDataset(ctx, c.String("storage-dataset"), lode.Location{
		Backend:      c.String("storage-backend"),
		Path:         c.String("storage-path"),
		Region:       c.String("storage-region"),
		Endpoint:     c.String("storage-endpoint"),
		UsePathStyle: c.Bool("storage-s3-path-style"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage reader: %w", err)
	}

	snapshot, err := reader.LatestMetrics(ctx, ds, c.String("run-id"))
	if errors.Is(err, lode.ErrNoMetricsFound) {
		return cli.Exit("no metrics record found", 1)
	}
	if err != nil {
		return fmt.Errorf("failed to read metrics: %w", err)
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_metrics", snapshot)
	}
	return r.Render(snapshot)
}
