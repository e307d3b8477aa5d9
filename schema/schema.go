// Package schema models the declarative graph schema that drives synthesis.
//
// A Schema is parsed and validated once, then shared read-only by every
// worker. Validation only checks that every type reference resolves.
package schema

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Schema is the top-level graph schema document.
type Schema struct {
	EntrypointVertexType string       `yaml:"entrypointVertexType"`
	VertexTypes          []VertexType `yaml:"vertexTypes"`
	EdgeTypes            []EdgeType   `yaml:"edgeTypes"`
	// StitchWeight is the expected number of stitch edges per root in phase two.
	StitchWeight float64 `yaml:"stitchWeight,omitempty"`
	// StitchType names the edge type used for stitching.
	StitchType string `yaml:"stitchType,omitempty"`

	vertices map[string]int
	edges    map[string]int
}

// VertexType declares one kind of vertex.
type VertexType struct {
	Name       string     `yaml:"name"`
	Label      string     `yaml:"label,omitempty"`
	Properties []Property `yaml:"properties,omitempty"`
	OutEdges   []OutEdge  `yaml:"outEdges,omitempty"`
}

// EdgeType declares one kind of edge. OutVertex is the tail type and
// InVertex the head type.
type EdgeType struct {
	Name       string     `yaml:"name"`
	Label      string     `yaml:"label,omitempty"`
	InVertex   string     `yaml:"inVertex"`
	OutVertex  string     `yaml:"outVertex"`
	Properties []Property `yaml:"properties,omitempty"`
}

// Property declares an optional element property.
type Property struct {
	Name string `yaml:"name"`
	Type string `yaml:"type,omitempty"`
	// Likelihood is the probability in [0,1] that the property is present.
	Likelihood     float64        `yaml:"likelihood"`
	ValueGenerator ValueGenerator `yaml:"valueGenerator"`
}

// ValueGenerator names a value generator and its arguments.
type ValueGenerator struct {
	Impl string         `yaml:"impl"`
	Args map[string]any `yaml:"args,omitempty"`
}

// OutEdge is an edge-creation rule attached to a vertex type.
type OutEdge struct {
	// Name references an EdgeType.
	Name            string  `yaml:"name"`
	Likelihood      float64 `yaml:"likelihood"`
	ChancesToCreate int     `yaml:"chancesToCreate"`
	ChancesToJoin   int     `yaml:"chancesToJoin"`
}

// LabelOrName returns the label, falling back to the type name.
func (v VertexType) LabelOrName() string {
	if v.Label != "" {
		return v.Label
	}
	return v.Name
}

// LabelOrName returns the label, falling back to the type name.
func (e EdgeType) LabelOrName() string {
	if e.Label != "" {
		return e.Label
	}
	return e.Name
}

// Load reads and parses a schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("schema file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read schema file %q: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid schema YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Marshal encodes the schema back to YAML.
func (s *Schema) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// Validate checks that every type reference resolves and builds the
// lookup indexes. It returns the first *ReferenceError found.
func (s *Schema) Validate() error {
	s.vertices = make(map[string]int, len(s.VertexTypes))
	s.edges = make(map[string]int, len(s.EdgeTypes))

	for i, v := range s.VertexTypes {
		if v.Name == "" {
			return &ReferenceError{Owner: fmt.Sprintf("vertexTypes[%d]", i), Field: "name"}
		}
		if _, dup := s.vertices[v.Name]; dup {
			return &ReferenceError{Owner: "vertexTypes", Field: "name", Name: v.Name, Duplicate: true}
		}
		s.vertices[v.Name] = i
	}
	for i, e := range s.EdgeTypes {
		if e.Name == "" {
			return &ReferenceError{Owner: fmt.Sprintf("edgeTypes[%d]", i), Field: "name"}
		}
		if _, dup := s.edges[e.Name]; dup {
			return &ReferenceError{Owner: "edgeTypes", Field: "name", Name: e.Name, Duplicate: true}
		}
		s.edges[e.Name] = i
	}

	if _, ok := s.vertices[s.EntrypointVertexType]; !ok {
		return &ReferenceError{Owner: "schema", Field: "entrypointVertexType", Name: s.EntrypointVertexType}
	}
	for _, e := range s.EdgeTypes {
		if _, ok := s.vertices[e.InVertex]; !ok {
			return &ReferenceError{Owner: "edge " + e.Name, Field: "inVertex", Name: e.InVertex}
		}
		if _, ok := s.vertices[e.OutVertex]; !ok {
			return &ReferenceError{Owner: "edge " + e.Name, Field: "outVertex", Name: e.OutVertex}
		}
	}
	for _, v := range s.VertexTypes {
		for _, oe := range v.OutEdges {
			if _, ok := s.edges[oe.Name]; !ok {
				return &ReferenceError{Owner: "vertex " + v.Name, Field: "outEdges", Name: oe.Name}
			}
		}
	}
	if s.StitchType != "" {
		if _, ok := s.edges[s.StitchType]; !ok {
			return &ReferenceError{Owner: "schema", Field: "stitchType", Name: s.StitchType}
		}
	}
	return nil
}

// Entrypoint returns the root vertex type.
func (s *Schema) Entrypoint() *VertexType {
	v, _ := s.VertexType(s.EntrypointVertexType)
	return v
}

// VertexType looks up a vertex type by name.
func (s *Schema) VertexType(name string) (*VertexType, bool) {
	i, ok := s.vertices[name]
	if !ok {
		return nil, false
	}
	return &s.VertexTypes[i], true
}

// EdgeType looks up an edge type by name.
func (s *Schema) EdgeType(name string) (*EdgeType, bool) {
	i, ok := s.edges[name]
	if !ok {
		return nil, false
	}
	return &s.EdgeTypes[i], true
}

// Stitch returns the stitch edge type, if one is configured.
func (s *Schema) Stitch() (*EdgeType, bool) {
	if s.StitchType == "" {
		return nil, false
	}
	return s.EdgeType(s.StitchType)
}

// VertexLabels returns the distinct vertex labels, sorted.
func (s *Schema) VertexLabels() []string {
	labels := make([]string, 0, len(s.VertexTypes))
	for _, v := range s.VertexTypes {
		labels = append(labels, v.LabelOrName())
	}
	return dedupe(labels)
}

// EdgeLabels returns the distinct edge labels, sorted.
func (s *Schema) EdgeLabels() []string {
	labels := make([]string, 0, len(s.EdgeTypes))
	for _, e := range s.EdgeTypes {
		labels = append(labels, e.LabelOrName())
	}
	return dedupe(labels)
}

// VertexTypeByLabel finds the first vertex type carrying label.
func (s *Schema) VertexTypeByLabel(label string) (*VertexType, bool) {
	for i := range s.VertexTypes {
		if s.VertexTypes[i].LabelOrName() == label {
			return &s.VertexTypes[i], true
		}
	}
	return nil, false
}

func dedupe(in []string) []string {
	sort.Strings(in)
	out := in[:0]
	for i, s := range in {
		if i == 0 || s != in[i-1] {
			out = append(out, s)
		}
	}
	return out
}
