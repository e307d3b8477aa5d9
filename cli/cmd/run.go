package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/lattice/cli/reader"
	"github.com/pithecene-io/lattice/cli/render"
	"github.com/pithecene-io/lattice/lode"
	"github.com/pithecene-io/lattice/metrics"
	"github.com/pithecene-io/lattice/runtime"
	"github.com/pithecene-io/lattice/types"
)

// Exit codes of the run command.
const (
	exitSuccess      = 0
	exitPhaseFailure = 1
	exitConfigError  = 2
)

// metricsWriteTimeout bounds the metrics record write after a run.
const metricsWriteTimeout = 30 * time.Second

// RunCommand returns the run command. It is the only command that writes.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Run the phases of a graph generation or movement",
		Flags:  withFlags(runFlags(), FormatFlag, &cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Suppress the run summary"}),
		Action: runAction,
	}
}

// runFlags are shared by run and validate so both resolve a config
// identically.
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to lattice.yaml"},
		&cli.StringFlag{Name: "schema", Usage: "Path to the graph schema (required)"},
		&cli.StringFlag{Name: "mode", Usage: "Run mode: generate or source", Value: string(runtime.ModeGenerate)},
		&cli.StringFlag{Name: "run-id", Usage: "Run ID (default: random UUID)"},
		&cli.Uint64Flag{Name: "seed", Usage: "Seed for every random decision of the run"},
		&cli.StringSliceFlag{Name: "phase", Usage: "Phases to run, in order (default: one, two)"},

		// Sizing
		&cli.Int64Flag{Name: "scale", Usage: "Number of root entities (generate mode)"},
		&cli.IntFlag{Name: "workers", Usage: "Workers per phase (default: NumCPU)"},
		&cli.IntFlag{Name: "chunk-size", Usage: "Work items per chunk", Value: runtime.DefaultChunkSize},
		&cli.IntFlag{Name: "id-batch", Usage: "Identifiers claimed per id batch", Value: runtime.DefaultIDBatch},
		&cli.IntFlag{Name: "memory-capacity", Usage: "Stitch memory vertices kept per label"},
		&cli.Int64Flag{Name: "ids-bottom", Usage: "Lowest minted identifier"},
		&cli.Int64Flag{Name: "ids-top", Usage: "Minted identifier upper bound (exclusive)"},

		// Source
		&cli.StringFlag{Name: "source", Usage: "Source path (jsonl file, or dataset root)"},
		&cli.StringFlag{Name: "source-kind", Usage: "Source kind: jsonl or dataset", Value: sourceJSONL},
		&cli.StringFlag{Name: "source-dataset", Usage: "Source dataset ID"},
		&cli.StringFlag{Name: "source-backend", Usage: "Source dataset backend: fs or s3"},
		&cli.StringFlag{Name: "source-region", Usage: "AWS region for an s3 source"},
		&cli.StringFlag{Name: "source-run-id", Usage: "Read only vertices written by this run"},
		&cli.StringFlag{Name: "source-label", Usage: "Read only vertices with this label"},
		&cli.Int64Flag{Name: "source-max-id", Usage: "Largest source id (skips the max-id scan)"},

		// Output
		&cli.StringFlag{Name: "output", Usage: "Output: noop, stub, lode, postgres, frames", Value: "noop"},
		&cli.StringFlag{Name: "encoder", Usage: "Encoder override: record or frame"},
		&cli.StringFlag{Name: "output-path", Usage: "Output path (fs directory, or bucket/prefix for s3)"},
		&cli.StringFlag{Name: "output-backend", Usage: "Lode backend: fs, s3 or memory"},
		&cli.StringFlag{Name: "output-region", Usage: "AWS region for s3 (default: credential chain)"},
		&cli.StringFlag{Name: "output-endpoint", Usage: "Custom s3 endpoint"},
		&cli.BoolFlag{Name: "output-s3-path-style", Usage: "Use path-style s3 addressing"},
		&cli.StringFlag{Name: "output-dataset", Usage: "Lode dataset ID (default: lattice)"},
		&cli.StringFlag{Name: "dsn", Usage: "Postgres connection string"},
		&cli.BoolFlag{Name: "drop-storage", Usage: "Clear the output before phase one"},
		&cli.BoolFlag{Name: "no-metrics", Usage: "Do not write the metrics record to a lode output"},

		// Write policy
		&cli.StringFlag{Name: "policy", Usage: "Write policy: strict or buffered", Value: "strict"},
		&cli.IntFlag{Name: "buffer-records", Usage: "Buffered flush threshold in elements"},
		&cli.Int64Flag{Name: "buffer-bytes", Usage: "Buffered flush threshold in bytes"},
		&cli.Float64Flag{Name: "rate-limit", Usage: "Max elements per second written to the sink"},

		// Adapter
		&cli.StringFlag{Name: "adapter", Usage: "Phase notifications: webhook or redis"},
		&cli.StringFlag{Name: "adapter-url", Usage: "Webhook or Redis URL"},
		&cli.StringFlag{Name: "adapter-channel", Usage: "Redis channel"},
		&cli.DurationFlag{Name: "adapter-timeout", Usage: "Per-attempt notification timeout"},
		&cli.IntFlag{Name: "adapter-retries", Usage: "Notification retries after the first attempt"},
	}
}

// RunSummary is the result payload of the run command.
type RunSummary struct {
	RunID      string            `json:"run_id" yaml:"run_id"`
	Mode       string            `json:"mode" yaml:"mode"`
	Output     string            `json:"output" yaml:"output"`
	Outcome    string            `json:"outcome" yaml:"outcome"`
	Error      string            `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMs int64             `json:"duration_ms" yaml:"duration_ms"`
	IDsIssued  int64             `json:"ids_issued" yaml:"ids_issued"`
	Phases     []reader.PhaseRow `json:"phases" yaml:"phases"`
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	opts, err := resolveRunOptions(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	plan, err := buildRun(ctx, opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid run config: %v", err), exitConfigError)
	}
	defer plan.close()

	start := time.Now()
	_, runErr := plan.controller.RunPhases(ctx, opts.phases...)
	snap := plan.collector.Snapshot()

	if plan.metrics != nil {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsWriteTimeout)
		if err := lode.WriteMetrics(wctx, plan.metrics, snap, time.Now()); err != nil {
			plan.logger.Warn("failed to write metrics record", map[string]any{"error": err.Error()})
		}
		cancel()
	}

	if !opts.quiet {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		if err := r.Render(newRunSummary(opts, snap, runErr, time.Since(start))); err != nil {
			return err
		}
	}

	if runErr != nil {
		code := exitPhaseFailure
		if errors.Is(runErr, types.ErrConfiguration) || errors.Is(runErr, types.ErrPhaseOrder) {
			code = exitConfigError
		}
		return cli.Exit(fmt.Sprintf("run failed: %v", runErr), code)
	}
	return nil
}

func newRunSummary(opts *runOptions, snap metrics.Snapshot, runErr error, elapsed time.Duration) *RunSummary {
	s := &RunSummary{
		RunID:      opts.runID,
		Mode:       opts.mode,
		Output:     opts.output.Name,
		Outcome:    "completed",
		DurationMs: elapsed.Milliseconds(),
		IDsIssued:  snap.IDsIssued,
		Phases:     phaseRows(snap),
	}
	if runErr != nil {
		s.Outcome = "failed"
		s.Error = runErr.Error()
	}
	return s
}

// phaseRows lists the per-phase counters of snap in phase order.
func phaseRows(snap metrics.Snapshot) []reader.PhaseRow {
	rows := make([]reader.PhaseRow, 0, len(snap.Phases))
	for name, p := range snap.Phases {
		rows = append(rows, reader.PhaseRow{
			Phase:      name,
			Chunks:     p.ChunksClaimed,
			Items:      p.ItemsProcessed,
			Vertices:   p.VerticesWritten,
			Edges:      p.EdgesWritten,
			Logs:       p.LogsWritten,
			Dropped:    p.Dropped,
			Errors:     p.WriteErrors,
			DurationMs: p.Duration.Milliseconds(),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Phase < rows[j].Phase })
	return rows
}
