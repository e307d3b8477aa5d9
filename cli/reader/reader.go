package reader

import (
	"context"
	"fmt"
	"sort"

	lodelib "github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/lattice/framefile"
	"github.com/pithecene-io/lattice/lode"
	"github.com/pithecene-io/lattice/schema"
	"github.com/pithecene-io/lattice/types"
)

// SummarizeSchema flattens s into a SchemaSummary in declaration order.
func SummarizeSchema(s *schema.Schema) *SchemaSummary {
	sum := &SchemaSummary{
		Entrypoint:   s.EntrypointVertexType,
		StitchType:   s.StitchType,
		StitchWeight: s.StitchWeight,
		VertexTypes:  make([]VertexTypeRow, 0, len(s.VertexTypes)),
		EdgeTypes:    make([]EdgeTypeRow, 0, len(s.EdgeTypes)),
	}
	for _, vt := range s.VertexTypes {
		row := VertexTypeRow{
			Name:       vt.Name,
			Label:      vt.LabelOrName(),
			Properties: len(vt.Properties),
			OutEdges:   make([]string, 0, len(vt.OutEdges)),
		}
		for _, oe := range vt.OutEdges {
			row.OutEdges = append(row.OutEdges, oe.Name)
		}
		sum.VertexTypes = append(sum.VertexTypes, row)
	}
	for _, et := range s.EdgeTypes {
		sum.EdgeTypes = append(sum.EdgeTypes, EdgeTypeRow{
			Name:       et.Name,
			Label:      et.LabelOrName(),
			OutVertex:  et.OutVertex,
			InVertex:   et.InVertex,
			Properties: len(et.Properties),
		})
	}
	return sum
}

// InspectFrames decodes the frame files under root.
func InspectFrames(root string) (*FramesSummary, error) {
	inspected, err := framefile.Inspect(root)
	if err != nil {
		return nil, err
	}
	return SummarizeFrames(inspected), nil
}

// SummarizeFrames totals a frame-file summary per element type and label.
// Labels are sorted by element type, then label.
func SummarizeFrames(s *framefile.Summary) *FramesSummary {
	out := &FramesSummary{Root: s.Root, Files: len(s.Files), Labels: []FrameLabelRow{}}
	byKey := make(map[string]*FrameLabelRow)
	for _, f := range s.Files {
		switch f.ElementType {
		case types.ElementVertex:
			out.Vertices += f.Elements
		case types.ElementEdge:
			out.Edges += f.Elements
		case types.ElementLog:
			out.Logs += f.Elements
		}
		if f.Truncated {
			out.Truncated++
		}
		key := string(f.ElementType) + "/" + f.Label
		row, ok := byKey[key]
		if !ok {
			row = &FrameLabelRow{ElementType: string(f.ElementType), Label: f.Label}
			byKey[key] = row
		}
		row.Elements += f.Elements
		row.Truncated = row.Truncated || f.Truncated
	}
	for _, row := range byKey {
		out.Labels = append(out.Labels, *row)
	}
	sort.Slice(out.Labels, func(i, j int) bool {
		if out.Labels[i].ElementType != out.Labels[j].ElementType {
			return out.Labels[i].ElementType < out.Labels[j].ElementType
		}
		return out.Labels[i].Label < out.Labels[j].Label
	})
	return out
}

// LatestMetrics reads the most recent metrics record of ds, optionally
// restricted to runID.
func LatestMetrics(ctx context.Context, ds lodelib.Dataset, runID string) (*MetricsSnapshot, error) {
	record, err := lode.QueryLatestMetrics(ctx, ds, runID)
	if err != nil {
		return nil, err
	}
	snap, err := ParseMetricsRecord(record)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metrics record: %w", err)
	}
	return snap, nil
}
