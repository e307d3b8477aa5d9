package lode

import (
	"context"
	"errors"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/lattice/encoder"
	"github.com/pithecene-io/lattice/output"
	"github.com/pithecene-io/lattice/types"
)

// SinkConfig identifies where a sink's records land in the dataset.
type SinkConfig struct {
	// Dataset is the dataset id. Required.
	Dataset string
	// RunID and Phase become partition values of every record.
	RunID string
	Phase string
}

// Sink writes encoded records to a lode dataset, one dataset write
// (one snapshot) per batch. It implements output.Sink[encoder.Record]
// and output.Dropper.
type Sink struct {
	config  SinkConfig
	factory lode.StoreFactory

	mu      sync.Mutex // serializes dataset writes
	dataset lode.Dataset
}

// NewSink opens the dataset and returns a sink over it.
func NewSink(cfg SinkConfig, factory lode.StoreFactory) (*Sink, error) {
	if cfg.Dataset == "" {
		return nil, errors.New("lode sink: dataset is required")
	}
	ds, err := NewDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, err
	}
	return &Sink{config: cfg, factory: factory, dataset: ds}, nil
}

// Dataset returns the underlying dataset.
func (s *Sink) Dataset() lode.Dataset {
	return s.dataset
}

// WriteBatch implements output.Sink.
func (s *Sink) WriteBatch(ctx context.Context, shard output.Shard, units []encoder.Record) error {
	if len(units) == 0 {
		return nil
	}

	records := make([]any, 0, len(units))
	for i := range units {
		records = append(records, toRecordMap(&units[i], s.config))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, s.config.Dataset+"/"+shard.String())
	}
	return nil
}

// Drop deletes every object in the sink's store. The store root must be
// dedicated to this dataset.
func (s *Sink) Drop(ctx context.Context) error {
	store, err := s.factory()
	if err != nil {
		return WrapInitError(err, s.config.Dataset)
	}
	paths, err := store.List(ctx, "")
	if err != nil {
		return wrap("drop", s.config.Dataset, err)
	}
	for _, p := range paths {
		if err := store.Delete(ctx, p); err != nil {
			return wrap("drop", p, err)
		}
	}
	return nil
}

// Close implements output.Sink. Dataset writes are synchronous, so there
// is nothing to flush.
func (s *Sink) Close() error {
	return nil
}

var (
	_ output.Sink[encoder.Record] = (*Sink)(nil)
	_ output.Dropper              = (*Sink)(nil)
)

// toRecordMap flattens a record for the JSONL codec. Hive layout needs
// records as map[string]any carrying every partition key.
func toRecordMap(r *encoder.Record, cfg SinkConfig) map[string]any {
	m := map[string]any{
		"record_kind":  RecordKindElement,
		"kind":         r.Kind,
		"element_type": string(r.ElementType),
		"label":        r.Label,
		"run_id":       cfg.RunID,
		"phase":        cfg.Phase,
	}
	if r.IDOrigin != "" {
		m["id"] = r.ID
		m["id_origin"] = r.IDOrigin
	}
	if r.FromOrigin != "" {
		m["from"] = r.From
		m["from_origin"] = r.FromOrigin
		m["from_label"] = r.FromLabel
		m["to"] = r.To
		m["to_origin"] = r.ToOrigin
		m["to_label"] = r.ToLabel
	}
	if r.Message != "" {
		m["message"] = r.Message
	}
	if len(r.Properties) > 0 {
		m["properties"] = r.Properties
	}
	if len(r.Meta) > 0 {
		m["meta"] = r.Meta
	}
	return m
}

// fromRecordMap rebuilds a record read back from the dataset. JSON numbers
// decode as float64, so ids go through toInt64.
func fromRecordMap(m map[string]any) encoder.Record {
	r := encoder.Record{
		Kind:        toString(m["kind"]),
		ElementType: types.ElementType(toString(m["element_type"])),
		Label:       toString(m["label"]),
		ID:          toInt64(m["id"]),
		IDOrigin:    toString(m["id_origin"]),
		From:        toInt64(m["from"]),
		FromOrigin:  toString(m["from_origin"]),
		FromLabel:   toString(m["from_label"]),
		To:          toInt64(m["to"]),
		ToOrigin:    toString(m["to_origin"]),
		ToLabel:     toString(m["to_label"]),
		Message:     toString(m["message"]),
	}
	if props, ok := m["properties"].(map[string]any); ok {
		r.Properties = props
	}
	if meta, ok := m["meta"].(map[string]any); ok {
		r.Meta = make(map[string]string, len(meta))
		for k, v := range meta {
			r.Meta[k] = toString(v)
		}
	}
	return r
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
