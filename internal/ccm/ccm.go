// Package ccm defines the Canonical Code Model: the language-agnostic
// document of declarations and relationships produced by analysis. The
// serialized form of a Document is the contract between the extraction
// pipeline and downstream consumers such as the graph converter.
package ccm

import (
	"errors"
	"fmt"
)

// Version is the schema version written into every Document.
const Version = "1.0.0"

// AnalyzerVersion identifies the producer in Document metadata.
const AnalyzerVersion = "2.1.0"

// NodeType classifies a canonical declaration node.
type NodeType string

const (
	NodeModule      NodeType = "module"
	NodeClass       NodeType = "class"
	NodeInterface   NodeType = "interface"
	NodeFunction    NodeType = "function"
	NodeMethod      NodeType = "method"
	NodeConstructor NodeType = "constructor"
	NodeProperty    NodeType = "property"
	NodeVariable    NodeType = "variable"
)

// RelationshipType classifies a directed reference between two nodes.
type RelationshipType string

const (
	RelCalls      RelationshipType = "calls"
	RelInherits   RelationshipType = "inherits"
	RelImplements RelationshipType = "implements"
	RelImports    RelationshipType = "imports"
	RelReferences RelationshipType = "references"
)

// Resolution confidence values, derived from the method that produced the
// target binding. "none" marks an unresolved relationship.
const (
	ConfidenceExact  = "exact"  // qualified or lexical-scope match
	ConfidenceAlias  = "alias"  // matched through an import alias
	ConfidenceSimple = "simple" // global match by simple name
	ConfidenceArity  = "arity"  // simple name plus parameter-count heuristic
	ConfidenceNone   = "none"   // no candidate found
)

// Location is a 1-indexed, inclusive source span.
type Location struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// TypeInfo is a structural type descriptor. Languages without static
// annotations record the type name "unknown" rather than omitting it, so
// the schema shape stays uniform across languages.
type TypeInfo struct {
	Name        string `json:"name"`
	IsPrimitive bool   `json:"is_primitive,omitempty"`
	IsArray     bool   `json:"is_array,omitempty"`
	IsNullable  bool   `json:"is_nullable,omitempty"`
}

// Unknown is the placeholder type recorded when no annotation exists.
func Unknown() *TypeInfo { return &TypeInfo{Name: "unknown"} }

// Parameter is one entry of a declaration's ordered parameter list.
type Parameter struct {
	Name         string    `json:"name"`
	TypeInfo     *TypeInfo `json:"type_info"`
	DefaultValue string    `json:"default_value,omitempty"`
	IsOptional   bool      `json:"is_optional,omitempty"`
	IsVariadic   bool      `json:"is_variadic,omitempty"`
}

// Documentation is the docstring or comment block attached to a node.
type Documentation struct {
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
}

// Empty reports whether the documentation carries no text.
func (d *Documentation) Empty() bool {
	return d == nil || (d.Summary == "" && d.Description == "")
}

// Relationship is a directed edge authored by a source node. TargetID is
// nil when the reference could not be resolved to any node in the run.
type Relationship struct {
	SourceID   string           `json:"source_id"`
	TargetID   *string          `json:"target_id"`
	TargetName string           `json:"target_name"`
	Type       RelationshipType `json:"type"`
	Resolved   bool             `json:"resolved"`
	Confidence string           `json:"confidence"`
}

// Node is a single extracted declaration.
type Node struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	NodeType      NodeType       `json:"node_type"`
	Location      Location       `json:"location"`
	Language      string         `json:"language"`
	Visibility    string         `json:"visibility,omitempty"`
	Modifiers     []string       `json:"modifiers,omitempty"`
	Parameters    []Parameter    `json:"parameters,omitempty"`
	ReturnType    *TypeInfo      `json:"return_type,omitempty"`
	ParentID      string         `json:"parent_id,omitempty"`
	ChildrenIDs   []string       `json:"children_ids,omitempty"`
	Relationships []Relationship `json:"relationships"`
	Documentation *Documentation `json:"documentation,omitempty"`

	// LowFidelity marks nodes produced by the regex fallback path, which
	// cannot see spans, parameters, or nesting with grammar accuracy.
	LowFidelity bool `json:"low_fidelity,omitempty"`
}

// Project describes the analyzed source tree.
type Project struct {
	Name        string   `json:"name"`
	RootPath    string   `json:"root_path"`
	ProjectType string   `json:"project_type"`
	Languages   []string `json:"languages"`
}

// Metadata carries run-level statistics computed by the assembler.
type Metadata struct {
	AnalyzerVersion         string         `json:"analyzer_version"`
	TotalNodes              int            `json:"total_nodes"`
	TotalRelationships      int            `json:"total_relationships"`
	ResolvedRelationships   int            `json:"resolved_relationships"`
	UnresolvedRelationships int            `json:"unresolved_relationships"`
	ResolutionRate          float64        `json:"resolution_rate"`
	DocumentationCoverage   float64        `json:"documentation_coverage"`
	NodeTypeCounts          map[string]int `json:"node_type_counts"`
	RelationshipTypeCounts  map[string]int `json:"relationship_type_counts"`
	LanguageDistribution    map[string]int `json:"language_distribution"`
	TotalFiles              int            `json:"total_files"`
	SkippedFiles            int            `json:"skipped_files"`
}

// Document is the canonical analysis result.
type Document struct {
	CCMVersion          string         `json:"ccm_version"`
	Project             Project        `json:"project"`
	Nodes               []Node         `json:"nodes"`
	GlobalRelationships []Relationship `json:"global_relationships"`
	Metadata            Metadata       `json:"metadata"`
}

// ErrSchema is the sentinel wrapped by all Validate failures. The graph
// conversion stage treats any error wrapping it as fatal.
var ErrSchema = errors.New("document violates canonical schema")

// Validate checks the structural invariants a consumer may rely on:
// a version tag, unique node ids, sane locations, and edge endpoints that
// reference existing nodes. Relationship counts are cross-checked against
// metadata totals.
func (d *Document) Validate() error {
	if d.CCMVersion == "" {
		return fmt.Errorf("%w: missing ccm_version", ErrSchema)
	}
	ids := make(map[string]bool, len(d.Nodes))
	for i := range d.Nodes {
		n := &d.Nodes[i]
		if n.ID == "" {
			return fmt.Errorf("%w: node %d has empty id", ErrSchema, i)
		}
		if ids[n.ID] {
			return fmt.Errorf("%w: duplicate node id %q", ErrSchema, n.ID)
		}
		ids[n.ID] = true
		if n.NodeType == "" {
			return fmt.Errorf("%w: node %q has empty node_type", ErrSchema, n.ID)
		}
		if n.Location.StartLine < 1 || n.Location.EndLine < n.Location.StartLine {
			return fmt.Errorf("%w: node %q has invalid location %d-%d",
				ErrSchema, n.ID, n.Location.StartLine, n.Location.EndLine)
		}
	}
	check := func(r *Relationship) error {
		if r.SourceID != "" && !ids[r.SourceID] {
			return fmt.Errorf("%w: relationship source %q references no node", ErrSchema, r.SourceID)
		}
		if r.TargetID != nil && !ids[*r.TargetID] {
			return fmt.Errorf("%w: relationship target %q references no node", ErrSchema, *r.TargetID)
		}
		if r.Resolved != (r.TargetID != nil) {
			return fmt.Errorf("%w: relationship %q->%q resolved flag disagrees with target",
				ErrSchema, r.SourceID, r.TargetName)
		}
		return nil
	}
	resolved := 0
	for i := range d.GlobalRelationships {
		if err := check(&d.GlobalRelationships[i]); err != nil {
			return err
		}
		if d.GlobalRelationships[i].Resolved {
			resolved++
		}
	}
	for i := range d.Nodes {
		for j := range d.Nodes[i].Relationships {
			if err := check(&d.Nodes[i].Relationships[j]); err != nil {
				return err
			}
		}
	}
	if d.Metadata.TotalRelationships != len(d.GlobalRelationships) {
		return fmt.Errorf("%w: metadata records %d relationships, document carries %d",
			ErrSchema, d.Metadata.TotalRelationships, len(d.GlobalRelationships))
	}
	if d.Metadata.ResolvedRelationships != resolved {
		return fmt.Errorf("%w: metadata records %d resolved relationships, document carries %d",
			ErrSchema, d.Metadata.ResolvedRelationships, resolved)
	}
	return nil
}
