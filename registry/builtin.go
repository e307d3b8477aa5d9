package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/lattice/driver"
	"github.com/pithecene-io/lattice/emitter"
	"github.com/pithecene-io/lattice/encoder"
	"github.com/pithecene-io/lattice/framefile"
	"github.com/pithecene-io/lattice/lode"
	"github.com/pithecene-io/lattice/output"
	"github.com/pithecene-io/lattice/pgstore"
	"github.com/pithecene-io/lattice/types"
)

// Built-in component names.
const (
	ChunkRange    = "range"
	ChunkSequence = "sequence"

	IDRanged = "ranged"
	IDOffset = "offset"

	EmitterGenerator   = "generator"
	EmitterVertices    = "vertices"
	EmitterEdges       = "edges"
	EmitterStitch      = "stitch"
	EmitterPassthrough = "passthrough"
	EmitterExpand      = "expand"

	EncoderRecord = "record"
	EncoderFrame  = "frame"

	OutputNoop     = "noop"
	OutputStub     = "stub"
	OutputLode     = "lode"
	OutputPostgres = "postgres"
	OutputFrames   = "frames"
)

// DefaultDataset is the lode dataset id when none is configured.
const DefaultDataset = "lattice"

// Default returns a registry holding every built-in component.
func Default() *Registry {
	r := New()

	r.RegisterChunkDriver(ChunkRange, func(_ context.Context, spec ChunkSpec) (driver.WorkChunkDriver, error) {
		d, err := driver.NewRangeChunkDriver(spec.Bottom, spec.Top, int64(spec.Size))
		if err != nil {
			return nil, err
		}
		return d, nil
	})
	r.RegisterChunkDriver(ChunkSequence, func(_ context.Context, spec ChunkSpec) (driver.WorkChunkDriver, error) {
		if spec.Sequence == nil {
			return nil, types.NewConfigError("source", "sequence driver needs a source")
		}
		d, err := driver.NewSequenceChunkDriver(spec.Sequence, spec.Size)
		if err != nil {
			return nil, err
		}
		return d, nil
	})

	r.RegisterIDDriver(IDRanged, func(spec IDSpec) (*driver.RangedIDDriver, error) {
		var opts []driver.IDOption
		if spec.Passthrough {
			opts = append(opts, driver.WithHintPassthrough())
		}
		return driver.NewRangedIDDriver(spec.Bottom, spec.Top, opts...)
	})
	r.RegisterIDDriver(IDOffset, func(spec IDSpec) (*driver.RangedIDDriver, error) {
		var opts []driver.IDOption
		if spec.Passthrough {
			opts = append(opts, driver.WithHintPassthrough())
		}
		return driver.NewOffsetIDDriver(spec.InputMax, opts...)
	})

	r.RegisterEmitter(EmitterGenerator, func(env Env) (emitter.Emitter, error) {
		if err := needGenerator(env); err != nil {
			return nil, err
		}
		if env.IDs == nil {
			return nil, errors.New("generator emitter needs an id driver")
		}
		return emitter.NewGenerate(env.Generator, env.IDs, env.IDBatch), nil
	})
	r.RegisterEmitter(EmitterVertices, func(env Env) (emitter.Emitter, error) {
		if err := needGenerator(env); err != nil {
			return nil, err
		}
		if env.IDs == nil {
			return nil, errors.New("vertices emitter needs an id driver")
		}
		return emitter.NewVertices(env.Generator, env.IDs, env.IDBatch), nil
	})
	r.RegisterEmitter(EmitterEdges, func(env Env) (emitter.Emitter, error) {
		if err := needGenerator(env); err != nil {
			return nil, err
		}
		return emitter.NewEdges(env.Generator), nil
	})
	r.RegisterEmitter(EmitterStitch, func(env Env) (emitter.Emitter, error) {
		if err := needGenerator(env); err != nil {
			return nil, err
		}
		return emitter.NewStitch(env.Generator), nil
	})
	r.RegisterEmitter(EmitterPassthrough, func(Env) (emitter.Emitter, error) {
		return emitter.NewPassthrough(), nil
	})
	r.RegisterEmitter(EmitterExpand, func(env Env) (emitter.Emitter, error) {
		if err := needGenerator(env); err != nil {
			return nil, err
		}
		if env.IDs == nil {
			return nil, errors.New("expand emitter needs an id driver")
		}
		return emitter.NewExpand(env.Generator, env.IDs, env.IDBatch), nil
	})

	r.RegisterRecordEncoder(EncoderRecord, func(meta map[string]string) encoder.Encoder[encoder.Record] {
		return encoder.NewRecordEncoder(meta)
	})
	r.RegisterFrameEncoder(EncoderFrame, func(meta map[string]string) encoder.Encoder[[]byte] {
		return encoder.NewFrameEncoder(meta)
	})

	r.RegisterOutput(OutputNoop, func(context.Context, *Registry, Env) (output.Output, error) {
		return output.NewNoop(), nil
	})
	r.RegisterOutput(OutputStub, func(_ context.Context, reg *Registry, env Env) (output.Output, error) {
		return newRecordOutput(reg, env, OutputStub, output.NewStubSink[encoder.Record]())
	})
	r.RegisterOutput(OutputLode, func(ctx context.Context, reg *Registry, env Env) (output.Output, error) {
		factory, err := lode.Factory(ctx, lode.Location{
			Backend:      env.Output.Backend,
			Path:         env.Output.Path,
			Region:       env.Output.Region,
			Endpoint:     env.Output.Endpoint,
			UsePathStyle: env.Output.UsePathStyle,
		})
		if err != nil {
			return nil, types.NewConfigError("output.path", err.Error())
		}
		dataset := env.Output.Dataset
		if dataset == "" {
			dataset = DefaultDataset
		}
		sink, err := lode.NewSink(lode.SinkConfig{
			Dataset: dataset,
			RunID:   env.RunID,
			Phase:   env.Phase.String(),
		}, factory)
		if err != nil {
			return nil, err
		}
		return newRecordOutput(reg, env, OutputLode, sink)
	})
	r.RegisterOutput(OutputPostgres, func(ctx context.Context, reg *Registry, env Env) (output.Output, error) {
		pool := env.Output.Pool
		if pool == nil {
			if env.Output.DSN == "" {
				return nil, types.NewConfigError("output.dsn", "required for the postgres output")
			}
			p, err := pgstore.Connect(ctx, env.Output.DSN)
			if err != nil {
				return nil, err
			}
			pool = p
		}
		store, err := pgstore.New(ctx, pool, env.RunID, env.Logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return newRecordOutput(reg, env, OutputPostgres, store)
	})
	r.RegisterOutput(OutputFrames, func(_ context.Context, reg *Registry, env Env) (output.Output, error) {
		if env.Output.Path == "" {
			return nil, types.NewConfigError("output.path", "required for the frames output")
		}
		sink, err := framefile.NewSink(env.Output.Path)
		if err != nil {
			return nil, err
		}
		name := env.Output.Encoder
		if name == "" {
			name = EncoderFrame
		}
		newEncoder, err := reg.FrameEncoder(name)
		if err != nil {
			return nil, err
		}
		out, err := output.New[[]byte](OutputFrames, newEncoder(encoderMeta(env)), sink, writeConfig(env))
		if err != nil {
			_ = sink.Close()
			return nil, err
		}
		return out, nil
	})

	return r
}

// newRecordOutput pairs a record sink with the configured record encoder.
func newRecordOutput(reg *Registry, env Env, name string, sink output.Sink[encoder.Record]) (output.Output, error) {
	encName := env.Output.Encoder
	if encName == "" {
		encName = EncoderRecord
	}
	newEncoder, err := reg.RecordEncoder(encName)
	if err != nil {
		return nil, err
	}
	out, err := output.New[encoder.Record](name, newEncoder(encoderMeta(env)), sink, writeConfig(env))
	if err != nil {
		_ = sink.Close()
		return nil, err
	}
	return out, nil
}

func encoderMeta(env Env) map[string]string {
	return map[string]string{"run_id": env.RunID, "phase": env.Phase.String()}
}

func writeConfig(env Env) output.Config {
	cfg := env.Output.Write
	if cfg.Logger == nil {
		cfg.Logger = env.Logger
	}
	return cfg
}

func needGenerator(env Env) error {
	if env.Generator == nil {
		return fmt.Errorf("phase %s: emitter needs a schema generator", env.Phase)
	}
	return nil
}
