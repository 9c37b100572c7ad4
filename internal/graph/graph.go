// Package graph converts a serialized canonical document into a
// visualization-oriented dependency graph: package hierarchy, merged
// weighted edges, and per-node complexity buckets. The converter depends
// only on the document, never on live extractor state, so the two stages
// can run as separate processes. A document that fails schema validation
// is a fatal error here: hierarchy construction needs the full structure.
package graph

import (
	"context"
	"fmt"
	"math"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/risor-io/risor"

	"github.com/codeatlas-dev/codeatlas/internal/ccm"
)

// ConverterVersion identifies this stage in graph metadata.
const ConverterVersion = "1.0.0"

// Complexity buckets, ordered.
const (
	BucketLow      = "low"
	BucketMedium   = "medium"
	BucketHigh     = "high"
	BucketVeryHigh = "very_high"
)

// Policy holds the behavioral knobs of conversion. Bucket thresholds are
// documented defaults, not hard-coded law; ScriptSource optionally
// replaces the built-in score with a Risor expression evaluated per node
// with globals `outgoing`, `nested`, `name`, and `node_type`.
type Policy struct {
	LowMax       int // complexity <= LowMax     -> low
	MediumMax    int // complexity <= MediumMax  -> medium
	HighMax      int // complexity <= HighMax    -> high, above -> very_high
	NestedWeight int // weight of each nested declaration in the score
	ScriptSource string
}

// DefaultPolicy returns the documented thresholds (5/15/30) and nested
// weight 2.
func DefaultPolicy() Policy {
	return Policy{LowMax: 5, MediumMax: 15, HighMax: 30, NestedWeight: 2}
}

func (p Policy) bucket(score int) string {
	switch {
	case score <= p.LowMax:
		return BucketLow
	case score <= p.MediumMax:
		return BucketMedium
	case score <= p.HighMax:
		return BucketHigh
	default:
		return BucketVeryHigh
	}
}

// NodeMeta carries per-node detail for visualization tooltips.
type NodeMeta struct {
	OriginalID      string `json:"original_id"`
	Language        string `json:"language"`
	Visibility      string `json:"visibility,omitempty"`
	ParametersCount int    `json:"parameters_count"`
	ChildrenCount   int    `json:"children_count"`
	StartLine       int    `json:"start_line"`
	EndLine         int    `json:"end_line"`
	LowFidelity     bool   `json:"low_fidelity,omitempty"`
}

// Node is a coarsened view of a canonical node.
type Node struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	FilePath      string   `json:"file_path"`
	Package       string   `json:"package"`
	Size          int      `json:"size"`
	Complexity    int      `json:"complexity"`
	Bucket        string   `json:"complexity_bucket"`
	Documentation string   `json:"documentation,omitempty"`
	Metadata      NodeMeta `json:"metadata"`
}

// Edge is a merged, weighted relationship between two graph nodes.
// Weight equals the number of canonical relationships merged into it.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
	Weight int    `json:"weight"`
}

// Package is a derived grouping node in the strict package tree.
type Package struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	FullName string   `json:"full_name"`
	Children []string `json:"children"`
	Type     string   `json:"type"`
}

// Complexity summarizes the score distribution.
type Complexity struct {
	Average      float64        `json:"average"`
	Maximum      int            `json:"maximum"`
	Distribution map[string]int `json:"distribution"`
}

// SourceAnalysis echoes the canonical document's own metadata.
type SourceAnalysis struct {
	TotalNodes         int     `json:"total_nodes"`
	TotalRelationships int     `json:"total_relationships"`
	ResolutionRate     float64 `json:"resolution_rate"`
	AnalyzerVersion    string  `json:"analyzer_version"`
}

// Statistics is the graph-level summary block.
type Statistics struct {
	TotalNodes       int            `json:"total_nodes"`
	TotalEdges       int            `json:"total_edges"`
	TotalPackages    int            `json:"total_packages"`
	NodeTypes        map[string]int `json:"node_types"`
	EdgeTypes        map[string]int `json:"edge_types"`
	Languages        map[string]int `json:"languages"`
	Packages         map[string]int `json:"packages"`
	Complexity       Complexity     `json:"complexity"`
	OriginalAnalysis SourceAnalysis `json:"original_analysis"`
}

// Meta is graph-level provenance.
type Meta struct {
	ProjectName      string   `json:"project_name"`
	ProjectType      string   `json:"project_type"`
	Languages        []string `json:"languages"`
	CCMVersion       string   `json:"ccm_version"`
	ConverterVersion string   `json:"converter_version"`
}

// Graph is the complete conversion output.
type Graph struct {
	Nodes      []Node     `json:"nodes"`
	Edges      []Edge     `json:"edges"`
	Packages   []Package  `json:"packages"`
	Statistics Statistics `json:"statistics"`
	Metadata   Meta       `json:"metadata"`
}

// Convert transforms a canonical document into a dependency graph.
// The same document always converts to the same graph, byte for byte.
func Convert(ctx context.Context, doc *ccm.Document, policy Policy) (*Graph, error) {
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("graph conversion: %w", err)
	}

	pkgs := buildPackages(doc)

	// 1. Coarsen nodes. Graph ids are reassigned sequentially in document
	// order, which is already deterministic.
	idMap := make(map[string]string, len(doc.Nodes))
	counters := map[string]int{}
	nodes := make([]Node, 0, len(doc.Nodes))
	var scores []int
	for i := range doc.Nodes {
		n := &doc.Nodes[i]
		counters[string(n.NodeType)]++
		gid := fmt.Sprintf("%s_%06d", n.NodeType, counters[string(n.NodeType)])
		idMap[n.ID] = gid

		score, err := complexityOf(ctx, n, policy)
		if err != nil {
			return nil, fmt.Errorf("graph conversion: %w", err)
		}
		scores = append(scores, score)

		nodes = append(nodes, Node{
			ID:            gid,
			Name:          n.Name,
			Type:          string(n.NodeType),
			FilePath:      n.Location.FilePath,
			Package:       pkgs.packageOf(n.Location.FilePath),
			Size:          score/5 + 1,
			Complexity:    score,
			Bucket:        policy.bucket(score),
			Documentation: docText(n.Documentation),
			Metadata: NodeMeta{
				OriginalID:      n.ID,
				Language:        n.Language,
				Visibility:      n.Visibility,
				ParametersCount: len(n.Parameters),
				ChildrenCount:   len(n.ChildrenIDs),
				StartLine:       n.Location.StartLine,
				EndLine:         n.Location.EndLine,
				LowFidelity:     n.LowFidelity,
			},
		})
	}

	// 2. Merge edges: canonical relationships with the same ordered
	// endpoint pair and type collapse into one edge whose weight is the
	// merge count. Unresolved relationships have no drawable endpoint and
	// stay behind in the canonical document's statistics.
	type edgeKey struct {
		source, target, typ string
	}
	weights := map[edgeKey]int{}
	for i := range doc.GlobalRelationships {
		r := &doc.GlobalRelationships[i]
		if r.TargetID == nil {
			continue
		}
		weights[edgeKey{idMap[r.SourceID], idMap[*r.TargetID], string(r.Type)}]++
	}
	keys := make([]edgeKey, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].source != keys[j].source {
			return keys[i].source < keys[j].source
		}
		if keys[i].target != keys[j].target {
			return keys[i].target < keys[j].target
		}
		return keys[i].typ < keys[j].typ
	})
	edges := make([]Edge, 0, len(keys))
	for i, k := range keys {
		edges = append(edges, Edge{
			ID:     fmt.Sprintf("edge_%06d", i+1),
			Source: k.source,
			Target: k.target,
			Type:   k.typ,
			Weight: weights[k],
		})
	}

	stats := statistics(nodes, edges, scores, pkgs, doc)

	langs := doc.Project.Languages
	if langs == nil {
		langs = []string{}
	}
	return &Graph{
		Nodes:      nodes,
		Edges:      edges,
		Packages:   pkgs.list(),
		Statistics: stats,
		Metadata: Meta{
			ProjectName:      doc.Project.Name,
			ProjectType:      doc.Project.ProjectType,
			Languages:        langs,
			CCMVersion:       doc.CCMVersion,
			ConverterVersion: ConverterVersion,
		},
	}, nil
}

// complexityOf scores one node: outgoing relationship count plus a
// weighted count of nested declarations, or the policy script's verdict.
func complexityOf(ctx context.Context, n *ccm.Node, policy Policy) (int, error) {
	outgoing := len(n.Relationships)
	nested := len(n.ChildrenIDs)

	if policy.ScriptSource == "" {
		return outgoing + policy.NestedWeight*nested, nil
	}

	result, err := risor.Eval(ctx, policy.ScriptSource,
		risor.WithGlobal("outgoing", int64(outgoing)),
		risor.WithGlobal("nested", int64(nested)),
		risor.WithGlobal("name", n.Name),
		risor.WithGlobal("node_type", string(n.NodeType)),
	)
	if err != nil {
		return 0, fmt.Errorf("complexity script: %w", err)
	}
	switch v := result.Interface().(type) {
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("complexity script: expected numeric result, got %T", v)
	}
}

func docText(d *ccm.Documentation) string {
	if d.Empty() {
		return ""
	}
	if d.Description == "" {
		return d.Summary
	}
	if d.Summary == "" {
		return d.Description
	}
	return d.Summary + " " + d.Description
}

// RootPackage is the synthetic root of the package tree.
const RootPackage = "root"

// packageTree is the strict tree of grouping nodes derived from file
// paths: every package except the root has exactly one parent.
type packageTree struct {
	children map[string]map[string]bool // full name -> child full names
	byFile   map[string]string          // file path -> package full name
}

func buildPackages(doc *ccm.Document) *packageTree {
	t := &packageTree{
		children: map[string]map[string]bool{RootPackage: {}},
		byFile:   map[string]string{},
	}
	for i := range doc.Nodes {
		file := doc.Nodes[i].Location.FilePath
		if _, seen := t.byFile[file]; seen {
			continue
		}
		dir := path.Dir(filepath.ToSlash(file))
		if dir == "." || dir == "/" {
			t.byFile[file] = RootPackage
			continue
		}
		segments := strings.Split(strings.Trim(dir, "/"), "/")
		full := strings.Join(segments, ".")
		t.byFile[file] = full

		// Parent links by truncating one segment at a time up to the root.
		for i := len(segments); i >= 1; i-- {
			pkg := strings.Join(segments[:i], ".")
			parent := RootPackage
			if i > 1 {
				parent = strings.Join(segments[:i-1], ".")
			}
			if t.children[parent] == nil {
				t.children[parent] = map[string]bool{}
			}
			t.children[parent][pkg] = true
			if t.children[pkg] == nil {
				t.children[pkg] = map[string]bool{}
			}
		}
	}
	return t
}

func (t *packageTree) packageOf(file string) string {
	if pkg, ok := t.byFile[file]; ok {
		return pkg
	}
	return RootPackage
}

// list emits the package nodes sorted by full name, root first.
func (t *packageTree) list() []Package {
	names := make([]string, 0, len(t.children))
	for name := range t.children {
		if name != RootPackage {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	names = append([]string{RootPackage}, names...)

	out := make([]Package, 0, len(names))
	for _, full := range names {
		children := make([]string, 0, len(t.children[full]))
		for c := range t.children[full] {
			children = append(children, c)
		}
		sort.Strings(children)
		short := full
		if i := strings.LastIndex(full, "."); i >= 0 {
			short = full[i+1:]
		}
		out = append(out, Package{
			ID:       full,
			Name:     short,
			FullName: full,
			Children: children,
			Type:     "package",
		})
	}
	return out
}

func statistics(nodes []Node, edges []Edge, scores []int, pkgs *packageTree, doc *ccm.Document) Statistics {
	nodeTypes := map[string]int{}
	languages := map[string]int{}
	perPackage := map[string]int{}
	for i := range nodes {
		nodeTypes[nodes[i].Type]++
		languages[nodes[i].Metadata.Language]++
		perPackage[nodes[i].Package]++
	}
	edgeTypes := map[string]int{}
	for i := range edges {
		edgeTypes[edges[i].Type]++
	}

	maxScore, sum := 0, 0
	dist := map[string]int{BucketLow: 0, BucketMedium: 0, BucketHigh: 0, BucketVeryHigh: 0}
	for i, s := range scores {
		sum += s
		if s > maxScore {
			maxScore = s
		}
		dist[nodes[i].Bucket]++
	}
	avg := 0.0
	if len(scores) > 0 {
		avg = math.Round(float64(sum)/float64(len(scores))*100) / 100
	}

	return Statistics{
		TotalNodes:    len(nodes),
		TotalEdges:    len(edges),
		TotalPackages: len(pkgs.children),
		NodeTypes:     nodeTypes,
		EdgeTypes:     edgeTypes,
		Languages:     languages,
		Packages:      perPackage,
		Complexity: Complexity{
			Average:      avg,
			Maximum:      maxScore,
			Distribution: dist,
		},
		OriginalAnalysis: SourceAnalysis{
			TotalNodes:         doc.Metadata.TotalNodes,
			TotalRelationships: doc.Metadata.TotalRelationships,
			ResolutionRate:     doc.Metadata.ResolutionRate,
			AnalyzerVersion:    doc.Metadata.AnalyzerVersion,
		},
	}
}
