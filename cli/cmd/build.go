package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	lodelib "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/lattice/adapter"
	"github.com/pithecene-io/lattice/adapter/redis"
	"github.com/pithecene-io/lattice/adapter/webhook"
	"github.com/pithecene-io/lattice/cli/config"
	"github.com/pithecene-io/lattice/lode"
	"github.com/pithecene-io/lattice/log"
	"github.com/pithecene-io/lattice/metrics"
	"github.com/pithecene-io/lattice/output"
	"github.com/pithecene-io/lattice/registry"
	"github.com/pithecene-io/lattice/runtime"
	"github.com/pithecene-io/lattice/schema"
	"github.com/pithecene-io/lattice/source"
	"github.com/pithecene-io/lattice/types"
)

// Source kinds.
const (
	sourceJSONL   = "jsonl"
	sourceDataset = "dataset"
)

// Adapter types.
const (
	adapterWebhook = "webhook"
	adapterRedis   = "redis"
)

// runOptions is a fully resolved run configuration.
type runOptions struct {
	schemaPath string
	mode       string
	runID      string
	seed       uint64
	phases     []types.Phase

	scale          int64
	workers        int
	chunkSize      int
	idBatch        int
	memoryCapacity int
	ids            runtime.IDRange

	source      config.SourceConfig
	output      config.OutputConfig
	adapter     config.AdapterConfig
	dropStorage bool
	metrics     bool
	quiet       bool
}

// resolveRunOptions merges flags over cfg. Only missing required values
// are reported here; the controller validates the rest.
func resolveRunOptions(c *cli.Context, cfg *config.Config) (*runOptions, error) {
	opts := &runOptions{
		schemaPath:     resolveString(c, "schema", cfg.Schema),
		mode:           resolveString(c, "mode", cfg.Mode),
		runID:          resolveString(c, "run-id", cfg.RunID),
		seed:           resolveUint64(c, "seed", cfg.Seed),
		scale:          resolveInt64(c, "scale", cfg.Scale),
		workers:        resolveInt(c, "workers", cfg.Workers),
		chunkSize:      resolveInt(c, "chunk-size", cfg.ChunkSize),
		idBatch:        resolveInt(c, "id-batch", cfg.IDBatch),
		memoryCapacity: resolveInt(c, "memory-capacity", cfg.MemoryCapacity),
		ids: runtime.IDRange{
			Bottom: resolveInt64(c, "ids-bottom", cfg.IDs.Bottom),
			Top:    resolveInt64(c, "ids-top", cfg.IDs.Top),
		},
		dropStorage: resolveBool(c, "drop-storage", cfg.DropStorage),
		metrics:     cfg.MetricsEnabled() && !c.Bool("no-metrics"),
		quiet:       c.Bool("quiet"),
	}

	if opts.schemaPath == "" {
		return nil, errors.New("--schema is required (flag or config schema)")
	}
	if opts.runID == "" {
		opts.runID = uuid.NewString()
	}

	phaseNames := c.StringSlice("phase")
	if len(phaseNames) == 0 {
		opts.phases = types.AllPhases()
	}
	for _, name := range phaseNames {
		p, err := types.ParsePhase(name)
		if err != nil {
			return nil, err
		}
		opts.phases = append(opts.phases, p)
	}

	opts.source = cfg.Source
	opts.source.Path = resolveString(c, "source", cfg.Source.Path)
	opts.source.Kind = resolveString(c, "source-kind", cfg.Source.Kind)
	opts.source.Dataset = resolveString(c, "source-dataset", cfg.Source.Dataset)
	opts.source.Backend = resolveString(c, "source-backend", cfg.Source.Backend)
	opts.source.Region = resolveString(c, "source-region", cfg.Source.Region)
	opts.source.RunID = resolveString(c, "source-run-id", cfg.Source.RunID)
	opts.source.Label = resolveString(c, "source-label", cfg.Source.Label)
	if c.IsSet("source-max-id") {
		maxID := c.Int64("source-max-id")
		opts.source.MaxID = &maxID
	}
	if opts.mode == string(runtime.ModeSource) && opts.source.Path == "" {
		return nil, errors.New("--source is required in source mode (flag or config source.path)")
	}

	opts.output = config.OutputConfig{
		Name:          resolveString(c, "output", cfg.Output.Name),
		Encoder:       resolveString(c, "encoder", cfg.Output.Encoder),
		Path:          resolveString(c, "output-path", cfg.Output.Path),
		Backend:       resolveString(c, "output-backend", cfg.Output.Backend),
		Region:        resolveString(c, "output-region", cfg.Output.Region),
		Endpoint:      resolveString(c, "output-endpoint", cfg.Output.Endpoint),
		S3PathStyle:   resolveBool(c, "output-s3-path-style", cfg.Output.S3PathStyle),
		Dataset:       resolveString(c, "output-dataset", cfg.Output.Dataset),
		DSN:           resolveString(c, "dsn", cfg.Output.DSN),
		Policy:        resolveString(c, "policy", cfg.Output.Policy),
		BufferRecords: resolveInt(c, "buffer-records", cfg.Output.BufferRecords),
		BufferBytes:   resolveInt64(c, "buffer-bytes", cfg.Output.BufferBytes),
		RateLimit:     resolveFloat64(c, "rate-limit", cfg.Output.RateLimit),
	}

	opts.adapter = cfg.Adapter
	opts.adapter.Type = resolveString(c, "adapter", cfg.Adapter.Type)
	opts.adapter.URL = resolveString(c, "adapter-url", cfg.Adapter.URL)
	opts.adapter.Channel = resolveString(c, "adapter-channel", cfg.Adapter.Channel)
	opts.adapter.Timeout.Duration = resolveDuration(c, "adapter-timeout", cfg.Adapter.Timeout.Duration)
	if c.IsSet("adapter-retries") {
		retries := c.Int("adapter-retries")
		opts.adapter.Retries = &retries
	}
	return opts, nil
}

// runPlan is a constructed, not yet started, run.
type runPlan struct {
	schema     *schema.Schema
	controller *runtime.Controller
	collector  *metrics.Collector
	logger     *log.Logger
	adapter    adapter.Adapter
	// metrics receives the run's metrics record; nil unless the output is lode.
	metrics lodelib.Dataset
}

// buildRun loads the schema and wires source, adapter, output settings and
// controller. Nothing is written until phases run.
func buildRun(ctx context.Context, opts *runOptions) (*runPlan, error) {
	s, err := schema.Load(opts.schemaPath)
	if err != nil {
		return nil, err
	}

	runMeta := &types.RunMeta{RunID: opts.runID, Seed: opts.seed}
	logger := log.NewLogger(runMeta)

	src, err := buildSource(ctx, opts.source)
	if err != nil {
		return nil, err
	}
	ad, err := buildAdapter(opts.adapter)
	if err != nil {
		return nil, err
	}
	plan := &runPlan{schema: s, logger: logger, adapter: ad}

	outputName := opts.output.Name
	if outputName == "" {
		outputName = registry.OutputNoop
	}
	plan.collector = metrics.NewCollector(opts.mode, outputName, opts.output.Encoder, opts.runID)

	cfg := runtime.Config{
		RunMeta:        runMeta,
		Mode:           runtime.Mode(opts.mode),
		Schema:         s,
		Scale:          opts.scale,
		Workers:        opts.workers,
		ChunkSize:      opts.chunkSize,
		IDBatch:        opts.idBatch,
		IDs:            opts.ids,
		Source:         src,
		SourceMaxID:    opts.source.MaxID,
		MemoryCapacity: opts.memoryCapacity,
		Output: registry.OutputSettings{
			Name:         outputName,
			Encoder:      opts.output.Encoder,
			Path:         opts.output.Path,
			Backend:      opts.output.Backend,
			Region:       opts.output.Region,
			Endpoint:     opts.output.Endpoint,
			UsePathStyle: opts.output.S3PathStyle,
			Dataset:      opts.output.Dataset,
			DSN:          opts.output.DSN,
			Write: output.Config{
				Policy:        output.Policy(opts.output.Policy),
				BufferRecords: opts.output.BufferRecords,
				BufferBytes:   opts.output.BufferBytes,
				RateLimit:     opts.output.RateLimit,
				Logger:        logger,
			},
		},
		DropStorage: opts.dropStorage,
		Adapter:     ad,
		Logger:      logger,
		Collector:   plan.collector,
	}
	if err := cfg.Output.Write.Validate(); err != nil {
		plan.close()
		return nil, types.NewConfigError("output.policy", err.Error())
	}

	plan.controller, err = runtime.NewController(cfg)
	if err != nil {
		plan.close()
		return nil, err
	}

	if outputName == registry.OutputLode && opts.metrics {
		ds, err := outputDataset(ctx, opts.output)
		if err != nil {
			plan.close()
			return nil, err
		}
		plan.metrics = ds
	}
	return plan, nil
}

func (p *runPlan) close() {
	if p.adapter != nil {
		if err := p.adapter.Close(); err != nil {
			p.logger.Warn("failed to close adapter", map[string]any{"error": err.Error()})
		}
	}
	_ = p.logger.Sync()
}

// buildSource returns nil when no source is configured.
func buildSource(ctx context.Context, cfg config.SourceConfig) (source.Source, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	switch cfg.Kind {
	case "", sourceJSONL:
		return source.NewJSONL(cfg.Path), nil
	case sourceDataset:
		ds, err := openDataset(ctx, cfg.Dataset, lode.Location{
			Backend:      cfg.Backend,
			Path:         cfg.Path,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return source.NewDataset(ds, lode.Filter{RunID: cfg.RunID, Label: cfg.Label}), nil
	default:
		return nil, types.NewConfigError("source.kind", fmt.Sprintf("unknown source kind %q (must be jsonl or dataset)", cfg.Kind))
	}
}

// buildAdapter returns nil when no adapter is configured.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	retries := -1
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}
	switch cfg.Type {
	case "":
		return nil, nil
	case adapterWebhook:
		if retries < 0 {
			retries = webhook.DefaultRetries
		}
		a, err := webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
			Backoff: cfg.Backoff.Duration,
		})
		if err != nil {
			return nil, types.NewConfigError("adapter", err.Error())
		}
		return a, nil
	case adapterRedis:
		if retries < 0 {
			retries = redis.DefaultRetries
		}
		a, err := redis.New(redis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
			Backoff: cfg.Backoff.Duration,
		})
		if err != nil {
			return nil, types.NewConfigError("adapter", err.Error())
		}
		return a, nil
	default:
		return nil, types.NewConfigError("adapter.type", fmt.Sprintf("unknown adapter %q (must be webhook or redis)", cfg.Type))
	}
}

// outputDataset opens the lode dataset an output writes to.
func outputDataset(ctx context.Context, cfg config.OutputConfig) (lodelib.Dataset, error) {
	return openDataset(ctx, cfg.Dataset, lode.Location{
		Backend:      cfg.Backend,
		Path:         cfg.Path,
		Region:       cfg.Region,
		Endpoint:     cfg.Endpoint,
		UsePathStyle: cfg.S3PathStyle,
	})
}

func openDataset(ctx context.Context, dataset string, loc lode.Location) (lodelib.Dataset, error) {
	if dataset == "" {
		dataset = registry.DefaultDataset
	}
	factory, err := lode.Factory(ctx, loc)
	if err != nil {
		return nil, types.NewConfigError("storage", err.Error())
	}
	return lode.NewDataset(dataset, factory)
}
