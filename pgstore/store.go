// Package pgstore bulk-loads lattice output into PostgreSQL with COPY.
//
// Vertices land in graph_vertices, edges in graph_edges and auxiliary log
// records in graph_logs. Every row carries the run id.
package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"

	"github.com/pithecene-io/lattice/encoder"
	"github.com/pithecene-io/lattice/log"
	"github.com/pithecene-io/lattice/output"
	"github.com/pithecene-io/lattice/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool abstracts *pgxpool.Pool so tests can use pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close()
}

// Table names.
const (
	TableVertices = "graph_vertices"
	TableEdges    = "graph_edges"
	TableLogs     = "graph_logs"
)

var (
	vertexColumns = []string{"run_id", "id", "id_origin", "label", "properties"}
	edgeColumns   = []string{
		"run_id", "label",
		"from_id", "from_origin", "from_label",
		"to_id", "to_origin", "to_label",
		"properties",
	}
	logColumns = []string{"run_id", "level", "message", "fields"}
)

// SchemaSQL creates the output tables.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS graph_vertices (
    run_id      TEXT   NOT NULL,
    id          BIGINT NOT NULL,
    id_origin   TEXT   NOT NULL,
    label       TEXT   NOT NULL,
    properties  JSONB  NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS graph_edges (
    run_id      TEXT   NOT NULL,
    label       TEXT   NOT NULL,
    from_id     BIGINT NOT NULL,
    from_origin TEXT   NOT NULL,
    from_label  TEXT   NOT NULL DEFAULT '',
    to_id       BIGINT NOT NULL,
    to_origin   TEXT   NOT NULL,
    to_label    TEXT   NOT NULL DEFAULT '',
    properties  JSONB  NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS graph_logs (
    run_id      TEXT  NOT NULL,
    level       TEXT  NOT NULL,
    message     TEXT  NOT NULL,
    fields      JSONB NOT NULL DEFAULT '{}'
);`

// dropSQL empties every output table.
const dropSQL = `TRUNCATE graph_vertices, graph_edges, graph_logs`

// Store is a COPY-based sink. It implements output.Sink[encoder.Record]
// and output.Dropper.
type Store struct {
	pool   DBPool
	runID  string
	logger *log.Logger
}

// Connect opens a pgx pool for dsn.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return pool, nil
}

// New verifies the connection and returns a store writing rows for runID.
func New(ctx context.Context, pool DBPool, runID string, logger *log.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		pool:   pool,
		runID:  runID,
		logger: logger.With(map[string]any{"component": "pgstore"}),
	}, nil
}

// EnsureSchema creates the output tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, SchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// WriteBatch copies one shard batch into its table. Header and noop
// records are skipped.
func (s *Store) WriteBatch(ctx context.Context, shard output.Shard, units []encoder.Record) error {
	var (
		table   string
		columns []string
		rows    [][]any
	)
	switch shard.ElementType {
	case types.ElementVertex:
		table, columns = TableVertices, vertexColumns
	case types.ElementEdge:
		table, columns = TableEdges, edgeColumns
	case types.ElementLog:
		table, columns = TableLogs, logColumns
	default:
		return nil
	}

	for i := range units {
		r := &units[i]
		if r.Kind != encoder.KindElement {
			continue
		}
		props, err := marshalProperties(r.Properties)
		if err != nil {
			return fmt.Errorf("failed to encode properties for %s: %w", shard, err)
		}
		switch shard.ElementType {
		case types.ElementVertex:
			rows = append(rows, []any{s.runID, r.ID, r.IDOrigin, r.Label, props})
		case types.ElementEdge:
			rows = append(rows, []any{
				s.runID, r.Label,
				r.From, r.FromOrigin, r.FromLabel,
				r.To, r.ToOrigin, r.ToLabel,
				props,
			})
		case types.ElementLog:
			rows = append(rows, []any{s.runID, r.Label, r.Message, props})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	copied, err := s.pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy %s: %w", table, err)
	}
	if int(copied) != len(rows) {
		return fmt.Errorf("mismatch in copied %s count: expected %d, got %d", table, len(rows), copied)
	}
	return nil
}

// Drop truncates every output table.
func (s *Store) Drop(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, dropSQL); err != nil {
		return fmt.Errorf("failed to truncate output tables: %w", err)
	}
	s.logger.Info("output tables truncated", nil)
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var (
	_ output.Sink[encoder.Record] = (*Store)(nil)
	_ output.Dropper              = (*Store)(nil)
)

// marshalProperties encodes a property map as JSONB text. Nil maps become
// an empty object so the NOT NULL column is satisfied.
func marshalProperties(props map[string]any) ([]byte, error) {
	if len(props) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(props)
}
