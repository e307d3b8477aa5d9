// Package source reads existing vertices for source mode: a JSONL file or
// a lode dataset written by an earlier run.
package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	lodelib "github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/lattice/driver"
	"github.com/pithecene-io/lattice/lode"
	"github.com/pithecene-io/lattice/types"
)

// Source yields the input vertices of a source-mode run.
type Source interface {
	// Open returns a fresh sequence of *types.Vertex values in source order.
	// Each call starts from the beginning.
	Open(ctx context.Context) (driver.Sequence, error)
	// Name identifies the source in logs.
	Name() string
}

// MaxID drains a fresh sequence of src and returns the largest vertex id,
// or -1 when the source is empty.
func MaxID(ctx context.Context, src Source) (int64, error) {
	seq, err := src.Open(ctx)
	if err != nil {
		return 0, err
	}
	maxID := int64(-1)
	for {
		v, ok, err := seq.Next(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			return maxID, nil
		}
		maxID = max(maxID, v.(*types.Vertex).ID.Value())
	}
}

// line is one JSONL input record.
type line struct {
	ID         *int64         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

// JSONL reads vertices from a newline-delimited JSON file with objects of
// the form {"id": 1, "label": "user", "properties": {...}}.
type JSONL struct {
	path string
	api  jsoniter.API
}

// NewJSONL creates a JSONL source over path.
func NewJSONL(path string) *JSONL {
	return &JSONL{path: path, api: jsoniter.ConfigCompatibleWithStandardLibrary}
}

// Name implements Source.
func (s *JSONL) Name() string {
	return "jsonl:" + s.path
}

// Open implements Source. The file is closed when the sequence is
// exhausted or fails.
func (s *JSONL) Open(_ context.Context) (driver.Sequence, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	return &jsonlSequence{file: f, scanner: sc, api: s.api, path: s.path}, nil
}

// maxLineSize bounds one JSONL record.
const maxLineSize = 4 << 20

type jsonlSequence struct {
	file    *os.File
	scanner *bufio.Scanner
	api     jsoniter.API
	path    string
	n       int
	done    bool
}

func (q *jsonlSequence) Next(ctx context.Context) (any, bool, error) {
	if q.done {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, q.finish(err)
	}

	var raw []byte
	for len(raw) == 0 {
		if !q.scanner.Scan() {
			return nil, false, q.finish(q.scanner.Err())
		}
		q.n++
		raw = bytes.TrimSpace(q.scanner.Bytes())
	}

	var l line
	if err := q.api.Unmarshal(raw, &l); err != nil {
		return nil, false, q.finish(fmt.Errorf("%s:%d: %w", q.path, q.n, err))
	}
	if l.ID == nil {
		return nil, false, q.finish(fmt.Errorf("%s:%d: missing id", q.path, q.n))
	}
	if l.Label == "" {
		return nil, false, q.finish(fmt.Errorf("%s:%d: missing label", q.path, q.n))
	}
	return &types.Vertex{ID: types.SourceID(*l.ID), Label: l.Label, Properties: l.Properties}, true, nil
}

// finish closes the file once and returns err.
func (q *jsonlSequence) finish(err error) error {
	if !q.done {
		q.done = true
		if cerr := q.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Dataset reads the vertices of a lode dataset.
type Dataset struct {
	dataset lodelib.Dataset
	filter  lode.Filter
}

// NewDataset reads vertices of ds matching filter. The filter's element
// type is forced to vertex.
func NewDataset(ds lodelib.Dataset, filter lode.Filter) *Dataset {
	filter.ElementType = types.ElementVertex
	return &Dataset{dataset: ds, filter: filter}
}

// Name implements Source.
func (s *Dataset) Name() string {
	return "lode"
}

// Open implements Source.
func (s *Dataset) Open(_ context.Context) (driver.Sequence, error) {
	return &datasetSequence{scanner: lode.NewScanner(s.dataset, s.filter)}, nil
}

type datasetSequence struct {
	scanner *lode.Scanner
}

func (q *datasetSequence) Next(ctx context.Context) (any, bool, error) {
	rec, ok, err := q.scanner.Next(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	el, err := rec.Emitable()
	if err != nil {
		return nil, false, err
	}
	// Vertices keep their source-side id as a pass-through id.
	v := el.Vertex
	v.ID = types.SourceID(v.ID.Value())
	return v, true, nil
}

var (
	_ Source = (*JSONL)(nil)
	_ Source = (*Dataset)(nil)
)
