// Package reader provides the read-side data access layer for the lattice CLI.
//
// Read-only commands build their payloads here, so the same structs feed
// json/yaml/table rendering and the TUI.
package reader

// SchemaSummary describes a loaded schema.
type SchemaSummary struct {
	Entrypoint   string          `json:"entrypoint" yaml:"entrypoint"`
	StitchType   string          `json:"stitch_type,omitempty" yaml:"stitch_type,omitempty"`
	StitchWeight float64         `json:"stitch_weight,omitempty" yaml:"stitch_weight,omitempty"`
	VertexTypes  []VertexTypeRow `json:"vertex_types" yaml:"vertex_types"`
	EdgeTypes    []EdgeTypeRow   `json:"edge_types" yaml:"edge_types"`
}

// VertexTypeRow is one vertex type of a schema summary.
type VertexTypeRow struct {
	Name       string   `json:"name" yaml:"name"`
	Label      string   `json:"label" yaml:"label"`
	Properties int      `json:"properties" yaml:"properties"`
	OutEdges   []string `json:"out_edges" yaml:"out_edges"`
}

// EdgeTypeRow is one edge type of a schema summary.
type EdgeTypeRow struct {
	Name       string `json:"name" yaml:"name"`
	Label      string `json:"label" yaml:"label"`
	OutVertex  string `json:"out_vertex" yaml:"out_vertex"`
	InVertex   string `json:"in_vertex" yaml:"in_vertex"`
	Properties int    `json:"properties" yaml:"properties"`
}

// FramesSummary describes a frame-file output directory.
type FramesSummary struct {
	Root      string          `json:"root" yaml:"root"`
	Files     int             `json:"files" yaml:"files"`
	Vertices  int64           `json:"vertices" yaml:"vertices"`
	Edges     int64           `json:"edges" yaml:"edges"`
	Logs      int64           `json:"logs" yaml:"logs"`
	Truncated int             `json:"truncated" yaml:"truncated"`
	Labels    []FrameLabelRow `json:"labels" yaml:"labels"`
}

// FrameLabelRow counts the elements of one label.
type FrameLabelRow struct {
	ElementType string `json:"element_type" yaml:"element_type"`
	Label       string `json:"label" yaml:"label"`
	Elements    int64  `json:"elements" yaml:"elements"`
	Truncated   bool   `json:"truncated" yaml:"truncated"`
}

// MetricsSnapshot is a metrics record read back from a dataset.
type MetricsSnapshot struct {
	RunID       string `json:"run_id" yaml:"run_id"`
	Mode        string `json:"mode" yaml:"mode"`
	Output      string `json:"output" yaml:"output"`
	Encoder     string `json:"encoder" yaml:"encoder"`
	CompletedAt string `json:"completed_at" yaml:"completed_at"`

	PhasesStarted   int64 `json:"phases_started" yaml:"phases_started"`
	PhasesCompleted int64 `json:"phases_completed" yaml:"phases_completed"`
	PhasesFailed    int64 `json:"phases_failed" yaml:"phases_failed"`
	IDsIssued       int64 `json:"ids_issued" yaml:"ids_issued"`

	Phases []PhaseRow `json:"phases" yaml:"phases"`
}

// PhaseRow holds the counters of one phase.
type PhaseRow struct {
	Phase      string `json:"phase" yaml:"phase"`
	Chunks     int64  `json:"chunks" yaml:"chunks"`
	Items      int64  `json:"items" yaml:"items"`
	Vertices   int64  `json:"vertices" yaml:"vertices"`
	Edges      int64  `json:"edges" yaml:"edges"`
	Logs       int64  `json:"logs" yaml:"logs"`
	Dropped    int64  `json:"dropped" yaml:"dropped"`
	Errors     int64  `json:"errors" yaml:"errors"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
}
