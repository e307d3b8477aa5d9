// Package framefile writes encoded frames to append-only files, one file
// per shard, and reads them back for inspection.
//
// Layout under the root directory:
//
//	<root>/<element_type>/<label>.frames
//
// Each file starts with the encoder's header frame followed by element
// frames in write order.
package framefile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pithecene-io/lattice/iox"
	"github.com/pithecene-io/lattice/output"
)

// Ext is the file extension of frame files.
const Ext = ".frames"

// Sink appends frames to per-shard files. It implements output.Sink[[]byte],
// output.HeaderSink and output.Dropper.
type Sink struct {
	root string

	mu    sync.Mutex
	files map[output.Shard]*os.File
}

// NewSink creates the root directory if needed.
func NewSink(root string) (*Sink, error) {
	if root == "" {
		return nil, errors.New("framefile: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("framefile: create root: %w", err)
	}
	return &Sink{root: root, files: make(map[output.Shard]*os.File)}, nil
}

// Root returns the root directory.
func (s *Sink) Root() string {
	return s.root
}

// Path returns the file path for shard.
func (s *Sink) Path(shard output.Shard) string {
	return filepath.Join(s.root, string(shard.ElementType), fileName(shard.Label))
}

// fileName maps a label to a file name. Labels may contain path
// separators; an empty label becomes "_".
func fileName(label string) string {
	if label == "" {
		label = "_"
	}
	return strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(label) + Ext
}

// file returns the open file for shard. Caller holds mu.
func (s *Sink) file(shard output.Shard) (*os.File, error) {
	if f, ok := s.files[shard]; ok {
		return f, nil
	}
	path := s.Path(shard)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("framefile: create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("framefile: open %s: %w", path, err)
	}
	s.files[shard] = f
	return f, nil
}

// WriteBatch appends frames in order.
func (s *Sink) WriteBatch(_ context.Context, shard output.Shard, units [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.file(shard)
	if err != nil {
		return err
	}
	for _, frame := range units {
		if _, err := f.Write(frame); err != nil {
			return fmt.Errorf("framefile: write %s: %w", f.Name(), err)
		}
	}
	return nil
}

// WantsHeader implements output.HeaderSink.
func (s *Sink) WantsHeader() bool {
	return true
}

// Drop closes every file and removes the root directory.
func (s *Sink) Drop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeFiles()
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("framefile: remove %s: %w", s.root, err)
	}
	return nil
}

// Close syncs and closes every open file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeFiles()
}

// closeFiles closes and forgets every file. Caller holds mu.
func (s *Sink) closeFiles() error {
	var first error
	for shard, f := range s.files {
		if err := iox.SyncClose(f); err != nil && first == nil {
			first = err
		}
		delete(s.files, shard)
	}
	return first
}

var (
	_ output.Sink[[]byte] = (*Sink)(nil)
	_ output.HeaderSink   = (*Sink)(nil)
	_ output.Dropper      = (*Sink)(nil)
)
