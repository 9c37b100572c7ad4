// Package assemble aggregates per-file extraction results and resolved
// relationships into the canonical document. It performs no resolution
// itself: pure aggregation and statistics, idempotent over its inputs.
package assemble

import (
	"sort"

	"github.com/codeatlas-dev/codeatlas/internal/ccm"
	"github.com/codeatlas-dev/codeatlas/internal/extract"
)

// Input is everything the assembler needs for one document.
type Input struct {
	Project       ccm.Project
	Files         []extract.FileResult
	Relationships []ccm.Relationship
	TotalFiles    int
	SkippedFiles  int
}

// Assemble builds the canonical document. Nodes are emitted in
// deterministic order (file path, then start line, then id) and each
// node carries the outgoing relationships it authored.
func Assemble(in Input) *ccm.Document {
	var nodes []ccm.Node
	for _, f := range in.Files {
		nodes = append(nodes, f.Nodes...)
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Location.FilePath != nodes[j].Location.FilePath {
			return nodes[i].Location.FilePath < nodes[j].Location.FilePath
		}
		if nodes[i].Location.StartLine != nodes[j].Location.StartLine {
			return nodes[i].Location.StartLine < nodes[j].Location.StartLine
		}
		return nodes[i].ID < nodes[j].ID
	})

	bySource := make(map[string][]ccm.Relationship, len(in.Relationships))
	for _, r := range in.Relationships {
		bySource[r.SourceID] = append(bySource[r.SourceID], r)
	}
	for i := range nodes {
		if rels, ok := bySource[nodes[i].ID]; ok {
			nodes[i].Relationships = rels
		} else {
			nodes[i].Relationships = []ccm.Relationship{}
		}
	}

	resolved := 0
	relTypes := map[string]int{}
	for _, r := range in.Relationships {
		if r.Resolved {
			resolved++
		}
		relTypes[string(r.Type)]++
	}

	nodeTypes := map[string]int{}
	langDist := map[string]int{}
	documented := 0
	for i := range nodes {
		nodeTypes[string(nodes[i].NodeType)]++
		langDist[nodes[i].Language]++
		if !nodes[i].Documentation.Empty() {
			documented++
		}
	}

	total := len(in.Relationships)
	rate := 0.0
	if total > 0 {
		rate = float64(resolved) / float64(total) * 100
	}
	coverage := 0.0
	if len(nodes) > 0 {
		coverage = float64(documented) / float64(len(nodes)) * 100
	}

	rels := in.Relationships
	if rels == nil {
		rels = []ccm.Relationship{}
	}
	if nodes == nil {
		nodes = []ccm.Node{}
	}

	return &ccm.Document{
		CCMVersion:          ccm.Version,
		Project:             in.Project,
		Nodes:               nodes,
		GlobalRelationships: rels,
		Metadata: ccm.Metadata{
			AnalyzerVersion:         ccm.AnalyzerVersion,
			TotalNodes:              len(nodes),
			TotalRelationships:      total,
			ResolvedRelationships:   resolved,
			UnresolvedRelationships: total - resolved,
			ResolutionRate:          rate,
			DocumentationCoverage:   coverage,
			NodeTypeCounts:          nodeTypes,
			RelationshipTypeCounts:  relTypes,
			LanguageDistribution:    langDist,
			TotalFiles:              in.TotalFiles,
			SkippedFiles:            in.SkippedFiles,
		},
	}
}
