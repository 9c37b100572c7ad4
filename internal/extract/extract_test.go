package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas-dev/codeatlas/internal/ccm"
	"github.com/codeatlas-dev/codeatlas/internal/syntax"
)

func sampleFile() *syntax.FileSyntax {
	return &syntax.FileSyntax{
		Path:     "svc/orders.py",
		Language: "python",
		Module:   "orders",
		Decls: []syntax.Decl{
			{
				Kind: syntax.KindClass, Name: "Order",
				StartLine: 5, EndLine: 20,
				Visibility: "public",
				Bases:      []string{"Base"},
			},
			{
				Kind: syntax.KindFunction, Name: "__init__",
				StartLine: 6, EndLine: 8, ClassName: "Order",
				Parameters: []syntax.Param{{Name: "total", Type: "int"}},
			},
			{
				Kind: syntax.KindFunction, Name: "submit",
				StartLine: 10, EndLine: 18, ClassName: "Order",
				Calls: []syntax.Call{{Target: "validate", Args: 1, Line: 12}},
				Doc:   "Submits the order.",
			},
			{
				Kind: syntax.KindFunction, Name: "validate",
				StartLine: 22, EndLine: 30,
				Parameters: []syntax.Param{{Name: "order", Type: "Order"}},
				ReturnType: "bool",
			},
		},
		Imports: []syntax.Import{{Target: "decimal", Line: 1}},
	}
}

func TestFile_DeterministicIDs(t *testing.T) {
	a := NewRun(DefaultOptions()).File(sampleFile())
	b := NewRun(DefaultOptions()).File(sampleFile())
	require.Equal(t, a.Nodes, b.Nodes)
	require.Equal(t, a.Refs, b.Refs)

	// ids are per-type sequence numbers.
	assert.Equal(t, "module_000001", a.Nodes[0].ID)
	ids := map[string]bool{}
	for _, n := range a.Nodes {
		assert.False(t, ids[n.ID], "duplicate id %s", n.ID)
		ids[n.ID] = true
	}
	assert.True(t, ids["class_000001"])
	assert.True(t, ids["constructor_000001"])
	assert.True(t, ids["method_000001"])
	assert.True(t, ids["function_000001"])
}

func TestFile_NodeClassification(t *testing.T) {
	res := NewRun(DefaultOptions()).File(sampleFile())

	byName := map[string]ccm.Node{}
	for _, n := range res.Nodes {
		byName[n.Name] = n
	}

	assert.Equal(t, ccm.NodeModule, byName["orders"].NodeType)
	assert.Equal(t, ccm.NodeClass, byName["Order"].NodeType)
	assert.Equal(t, ccm.NodeConstructor, byName["__init__"].NodeType)
	assert.Equal(t, ccm.NodeMethod, byName["submit"].NodeType)
	assert.Equal(t, ccm.NodeFunction, byName["validate"].NodeType)
}

func TestFile_ParentChildLinks(t *testing.T) {
	res := NewRun(DefaultOptions()).File(sampleFile())

	byName := map[string]ccm.Node{}
	for _, n := range res.Nodes {
		byName[n.Name] = n
	}
	module, class := byName["orders"], byName["Order"]

	assert.Equal(t, module.ID, class.ParentID)
	assert.Equal(t, class.ID, byName["submit"].ParentID)
	assert.Equal(t, class.ID, byName["__init__"].ParentID)
	assert.Equal(t, module.ID, byName["validate"].ParentID)

	assert.ElementsMatch(t, []string{byName["__init__"].ID, byName["submit"].ID}, class.ChildrenIDs)
	assert.ElementsMatch(t, []string{class.ID, byName["validate"].ID}, module.ChildrenIDs)
}

func TestFile_References(t *testing.T) {
	res := NewRun(DefaultOptions()).File(sampleFile())

	var calls, inherits, imports []Reference
	for _, r := range res.Refs {
		switch r.Type {
		case ccm.RelCalls:
			calls = append(calls, r)
		case ccm.RelInherits:
			inherits = append(inherits, r)
		case ccm.RelImports:
			imports = append(imports, r)
		}
	}

	require.Len(t, calls, 1)
	assert.Equal(t, "validate", calls[0].Target)
	assert.Equal(t, 1, calls[0].Args)
	assert.Equal(t, "Order", calls[0].Class)

	require.Len(t, inherits, 1)
	assert.Equal(t, "Base", inherits[0].Target)

	require.Len(t, imports, 1)
	assert.Equal(t, "decimal", imports[0].Target)
	assert.Equal(t, "module_000001", imports[0].SourceID)
}

func TestFile_MultipleBaseClasses(t *testing.T) {
	fs := &syntax.FileSyntax{
		Path: "m.py", Language: "python", Module: "m",
		Decls: []syntax.Decl{{
			Kind: syntax.KindClass, Name: "Derived",
			StartLine: 1, EndLine: 4,
			Bases: []string{"Emitter", "Closer"},
		}},
	}
	res := NewRun(DefaultOptions()).File(fs)

	var inherits []Reference
	for _, r := range res.Refs {
		if r.Type == ccm.RelInherits {
			inherits = append(inherits, r)
		}
	}
	// One inherits reference per base, all authored by the same class.
	require.Len(t, inherits, 2)
	assert.Equal(t, inherits[0].SourceID, inherits[1].SourceID)
	assert.ElementsMatch(t, []string{"Emitter", "Closer"},
		[]string{inherits[0].Target, inherits[1].Target})
}

func TestFile_DocstringAttachment(t *testing.T) {
	res := NewRun(DefaultOptions()).File(sampleFile())
	for _, n := range res.Nodes {
		if n.Name == "submit" {
			require.NotNil(t, n.Documentation)
			assert.Equal(t, "Submits the order.", n.Documentation.Summary)
		}
	}
}

func TestFile_PrecedingCommentWinsOverDocstring(t *testing.T) {
	fs := &syntax.FileSyntax{
		Path: "a.py", Language: "python", Module: "a",
		Decls: []syntax.Decl{{
			Kind: syntax.KindFunction, Name: "f",
			StartLine: 3, EndLine: 5, Doc: "trailing docstring",
		}},
		Comments: []syntax.Comment{{Text: "preceding comment", StartLine: 2, EndLine: 2}},
	}
	res := NewRun(DefaultOptions()).File(fs)
	fn := res.Nodes[1]
	require.NotNil(t, fn.Documentation)
	assert.Equal(t, "preceding comment", fn.Documentation.Summary)
}

func TestFile_CommentProximityGap(t *testing.T) {
	fs := &syntax.FileSyntax{
		Path: "a.py", Language: "python", Module: "a",
		Decls: []syntax.Decl{{
			Kind: syntax.KindFunction, Name: "f",
			StartLine: 10, EndLine: 12,
		}},
		// Blank line between comment and declaration: too far at the
		// default proximity of 1.
		Comments: []syntax.Comment{{Text: "distant", StartLine: 8, EndLine: 8}},
	}
	res := NewRun(DefaultOptions()).File(fs)
	assert.Nil(t, res.Nodes[1].Documentation)

	res = NewRun(Options{DocProximity: 2}).File(fs)
	require.NotNil(t, res.Nodes[1].Documentation)
	assert.Equal(t, "distant", res.Nodes[1].Documentation.Summary)
}

func TestFile_EarliestDeclarationClaimsComment(t *testing.T) {
	fs := &syntax.FileSyntax{
		Path: "a.py", Language: "python", Module: "a",
		Decls: []syntax.Decl{
			{Kind: syntax.KindFunction, Name: "g", StartLine: 6, EndLine: 7},
			{Kind: syntax.KindFunction, Name: "f", StartLine: 5, EndLine: 5},
		},
		// Ends at line 4: adjacent to f (line 5), not to g (line 6).
		Comments: []syntax.Comment{{Text: "who owns me", StartLine: 4, EndLine: 4}},
	}
	res := NewRun(DefaultOptions()).File(fs)
	byName := map[string]ccm.Node{}
	for _, n := range res.Nodes {
		byName[n.Name] = n
	}
	require.NotNil(t, byName["f"].Documentation)
	assert.Nil(t, byName["g"].Documentation)
}

func TestFile_ModuleDocumentation(t *testing.T) {
	fs := &syntax.FileSyntax{
		Path: "a.py", Language: "python", Module: "a",
		Decls: []syntax.Decl{{
			Kind: syntax.KindFunction, Name: "f", StartLine: 10, EndLine: 12,
		}},
		Comments: []syntax.Comment{{
			Text: "Module purpose.\nMore detail.", StartLine: 1, EndLine: 2,
		}},
	}
	res := NewRun(DefaultOptions()).File(fs)
	module := res.Nodes[0]
	require.NotNil(t, module.Documentation)
	assert.Equal(t, "Module purpose.", module.Documentation.Summary)
	assert.Equal(t, "More detail.", module.Documentation.Description)
}

func TestFile_LowFidelityPropagates(t *testing.T) {
	fs := &syntax.FileSyntax{
		Path: "App.kt", Language: "kotlin", Module: "App", LowFidelity: true,
		Decls: []syntax.Decl{{
			Kind: syntax.KindFunction, Name: "main",
			StartLine: 3, EndLine: 3, LowFidelity: true,
		}},
	}
	res := NewRun(DefaultOptions()).File(fs)
	for _, n := range res.Nodes {
		assert.True(t, n.LowFidelity, "node %s", n.Name)
	}
}

func TestParameters_Normalization(t *testing.T) {
	params := parameters([]syntax.Param{
		{Name: "plain"},
		{Name: "count=10"},
		{Name: "*args"},
		{Name: "x: int"},
		{Name: "typed", Type: "List[str]"},
	}, "python")

	require.Len(t, params, 5)
	assert.Equal(t, "unknown", params[0].TypeInfo.Name)

	assert.Equal(t, "count", params[1].Name)
	assert.Equal(t, "10", params[1].DefaultValue)
	assert.True(t, params[1].IsOptional)

	assert.True(t, params[2].IsVariadic)
	assert.Equal(t, "args", params[2].Name)

	assert.Equal(t, "x", params[3].Name)
	assert.Equal(t, "int", params[3].TypeInfo.Name)
	assert.True(t, params[3].TypeInfo.IsPrimitive)

	assert.True(t, params[4].TypeInfo.IsArray)
	assert.Equal(t, "str", params[4].TypeInfo.Name)
}

func TestTypeInfo_Markers(t *testing.T) {
	info := typeInfo("Optional[str]", "python")
	assert.True(t, info.IsNullable)
	assert.Equal(t, "str", info.Name)

	info = typeInfo("Vec<u32>", "rust")
	assert.True(t, info.IsArray)
	assert.Equal(t, "u32", info.Name)
	assert.True(t, info.IsPrimitive)

	info = typeInfo("", "go")
	assert.Equal(t, "unknown", info.Name)
}
