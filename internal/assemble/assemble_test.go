package assemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas-dev/codeatlas/internal/ccm"
	"github.com/codeatlas-dev/codeatlas/internal/extract"
)

func sampleInput() Input {
	target := "function_000001"
	return Input{
		Project: ccm.Project{Name: "demo", RootPath: "/demo", Languages: []string{"go", "python"}},
		Files: []extract.FileResult{
			{
				Path: "b.py", Language: "python",
				Nodes: []ccm.Node{
					{ID: "module_000002", Name: "b", NodeType: ccm.NodeModule,
						Location: ccm.Location{FilePath: "b.py", StartLine: 1, EndLine: 1}, Language: "python"},
					{ID: "function_000002", Name: "g", NodeType: ccm.NodeFunction,
						Location:      ccm.Location{FilePath: "b.py", StartLine: 3, EndLine: 6},
						Language:      "python",
						Documentation: &ccm.Documentation{Summary: "does g"}},
				},
			},
			{
				Path: "a.py", Language: "python",
				Nodes: []ccm.Node{
					{ID: "module_000001", Name: "a", NodeType: ccm.NodeModule,
						Location: ccm.Location{FilePath: "a.py", StartLine: 1, EndLine: 1}, Language: "python"},
					{ID: "function_000001", Name: "f", NodeType: ccm.NodeFunction,
						Location: ccm.Location{FilePath: "a.py", StartLine: 3, EndLine: 5}, Language: "python"},
				},
			},
		},
		Relationships: []ccm.Relationship{
			{SourceID: "function_000002", TargetID: &target, TargetName: "f",
				Type: ccm.RelCalls, Resolved: true, Confidence: ccm.ConfidenceSimple},
			{SourceID: "function_000001", TargetName: "missing",
				Type: ccm.RelCalls, Resolved: false, Confidence: ccm.ConfidenceNone},
		},
		TotalFiles:   2,
		SkippedFiles: 1,
	}
}

func TestAssemble_DeterministicNodeOrder(t *testing.T) {
	doc := Assemble(sampleInput())
	require.Len(t, doc.Nodes, 4)
	// Sorted by file path then start line, not input order.
	assert.Equal(t, "module_000001", doc.Nodes[0].ID)
	assert.Equal(t, "function_000001", doc.Nodes[1].ID)
	assert.Equal(t, "module_000002", doc.Nodes[2].ID)
	assert.Equal(t, "function_000002", doc.Nodes[3].ID)
}

func TestAssemble_AttachesRelationshipsToAuthors(t *testing.T) {
	doc := Assemble(sampleInput())
	byID := map[string]ccm.Node{}
	for _, n := range doc.Nodes {
		byID[n.ID] = n
	}
	require.Len(t, byID["function_000002"].Relationships, 1)
	assert.Equal(t, "f", byID["function_000002"].Relationships[0].TargetName)
	require.Len(t, byID["function_000001"].Relationships, 1)
	// Nodes that author nothing still carry an empty slice, not nil.
	assert.NotNil(t, byID["module_000001"].Relationships)
	assert.Empty(t, byID["module_000001"].Relationships)
}

func TestAssemble_Statistics(t *testing.T) {
	doc := Assemble(sampleInput())
	m := doc.Metadata

	assert.Equal(t, ccm.AnalyzerVersion, m.AnalyzerVersion)
	assert.Equal(t, 4, m.TotalNodes)
	assert.Equal(t, 2, m.TotalRelationships)
	assert.Equal(t, 1, m.ResolvedRelationships)
	assert.Equal(t, 1, m.UnresolvedRelationships)
	assert.InDelta(t, 50.0, m.ResolutionRate, 0.001)
	assert.InDelta(t, 25.0, m.DocumentationCoverage, 0.001)
	assert.Equal(t, map[string]int{"module": 2, "function": 2}, m.NodeTypeCounts)
	assert.Equal(t, map[string]int{"calls": 2}, m.RelationshipTypeCounts)
	assert.Equal(t, map[string]int{"python": 4}, m.LanguageDistribution)
	assert.Equal(t, 2, m.TotalFiles)
	assert.Equal(t, 1, m.SkippedFiles)
}

func TestAssemble_EmptyProject(t *testing.T) {
	doc := Assemble(Input{Project: ccm.Project{Name: "empty"}})
	assert.Equal(t, ccm.Version, doc.CCMVersion)
	assert.NotNil(t, doc.Nodes)
	assert.NotNil(t, doc.GlobalRelationships)
	// No relationships: rate is 0, not NaN.
	assert.Equal(t, 0.0, doc.Metadata.ResolutionRate)
	assert.Equal(t, 0.0, doc.Metadata.DocumentationCoverage)
}

func TestAssemble_Idempotent(t *testing.T) {
	a := Assemble(sampleInput())
	b := Assemble(sampleInput())
	assert.Equal(t, a, b)
}

func TestAssemble_OutputValidates(t *testing.T) {
	doc := Assemble(sampleInput())
	require.NoError(t, doc.Validate())
}
