package framefile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pithecene-io/lattice/encoder"
	"github.com/pithecene-io/lattice/iox"
	"github.com/pithecene-io/lattice/types"
)

// FileSummary describes one frame file.
type FileSummary struct {
	Path        string
	ElementType types.ElementType
	Label       string
	Elements    int64
	Headers     int64
	// Truncated is set when the file ends in a partial frame.
	Truncated bool
	// Meta is the metadata of the first header frame.
	Meta map[string]string
}

// Summary aggregates every frame file under a root.
type Summary struct {
	Root  string
	Files []FileSummary
}

// Counts returns element counts keyed by element type, then label.
func (s *Summary) Counts() map[types.ElementType]map[string]int64 {
	out := make(map[types.ElementType]map[string]int64)
	for _, f := range s.Files {
		byLabel, ok := out[f.ElementType]
		if !ok {
			byLabel = make(map[string]int64)
			out[f.ElementType] = byLabel
		}
		byLabel[f.Label] += f.Elements
	}
	return out
}

// Total returns the number of element frames across all files.
func (s *Summary) Total() int64 {
	var n int64
	for _, f := range s.Files {
		n += f.Elements
	}
	return n
}

// Inspect decodes every frame file under root.
func Inspect(root string) (*Summary, error) {
	sum := &Summary{Root: root}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), Ext) {
			return nil
		}
		fsum, err := InspectFile(path)
		if err != nil {
			return err
		}
		sum.Files = append(sum.Files, *fsum)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(sum.Files, func(i, j int) bool { return sum.Files[i].Path < sum.Files[j].Path })
	return sum, nil
}

// InspectFile decodes one frame file. A partial trailing frame marks the
// summary truncated instead of failing; any other decode error fails.
func InspectFile(path string) (*FileSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer iox.DiscardClose(f)

	sum := &FileSummary{Path: path, ElementType: types.ElementType(filepath.Base(filepath.Dir(path)))}
	err = ReadRecords(f, func(rec *encoder.Record) error {
		switch rec.Kind {
		case encoder.KindHeader:
			sum.Headers++
			if sum.Meta == nil {
				sum.Meta = rec.Meta
			}
		case encoder.KindElement:
			sum.Elements++
		}
		if sum.Label == "" {
			sum.Label = rec.Label
		}
		return nil
	})

	var frameErr *encoder.FrameError
	if errors.As(err, &frameErr) && frameErr.Kind == encoder.FrameErrorPartial {
		sum.Truncated = true
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if sum.Label == "" {
		sum.Label = strings.TrimSuffix(filepath.Base(path), Ext)
	}
	return sum, nil
}

// ReadRecords decodes frames from r and calls fn for each record until
// the stream ends or fn returns an error.
func ReadRecords(r io.Reader, fn func(*encoder.Record) error) error {
	dec := encoder.NewFrameDecoder(r)
	for {
		rec, err := dec.ReadRecord()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
