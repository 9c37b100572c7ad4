package codeatlas

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas-dev/codeatlas/internal/ccm"
	"github.com/codeatlas-dev/codeatlas/internal/graph"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	return root
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// pythonProject is a two-file tree with a cross-file call, an aliased
// import, and an undefined reference.
var pythonProject = map[string]string{
	"helpers.py": `def assist(task):
    """Does the heavy lifting."""
    return task
`,
	"main.py": `import helpers as h

def run():
    h.assist("job")
    vanish()
`,
	"requirements.txt": "requests\n",
}

func TestAnalyze_EndToEnd(t *testing.T) {
	root := writeTree(t, pythonProject)
	e := newTestEngine(t)

	doc, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)
	require.NoError(t, doc.Validate())

	assert.Equal(t, ccm.Version, doc.CCMVersion)
	assert.Equal(t, filepath.Base(root), doc.Project.Name)
	assert.Equal(t, "python", doc.Project.ProjectType)
	assert.Equal(t, []string{"python"}, doc.Project.Languages)

	byName := map[string]ccm.Node{}
	for _, n := range doc.Nodes {
		byName[n.Name] = n
	}
	require.Contains(t, byName, "assist")
	require.Contains(t, byName, "run")
	assert.Equal(t, ccm.NodeFunction, byName["assist"].NodeType)
	require.NotNil(t, byName["assist"].Documentation)
	assert.Equal(t, "Does the heavy lifting.", byName["assist"].Documentation.Summary)

	// The aliased cross-file call resolves; the undefined one is recorded
	// unresolved rather than dropped.
	var aliased, missing *ccm.Relationship
	for i := range doc.GlobalRelationships {
		r := &doc.GlobalRelationships[i]
		switch r.TargetName {
		case "h.assist":
			aliased = r
		case "vanish":
			missing = r
		}
	}
	require.NotNil(t, aliased)
	assert.True(t, aliased.Resolved)
	assert.Equal(t, byName["assist"].ID, *aliased.TargetID)
	assert.Equal(t, ccm.ConfidenceAlias, aliased.Confidence)

	require.NotNil(t, missing)
	assert.False(t, missing.Resolved)
	assert.Nil(t, missing.TargetID)

	assert.Equal(t, 2, doc.Metadata.TotalFiles)
	// requirements.txt has no supported language.
	assert.Equal(t, 1, doc.Metadata.SkippedFiles)
	assert.Greater(t, doc.Metadata.ResolutionRate, 0.0)
}

func TestAnalyze_MultipleInheritance(t *testing.T) {
	root := writeTree(t, map[string]string{
		"shapes.py": `class Drawable:
    pass

class Movable:
    pass

class Sprite(Drawable, Movable):
    pass
`,
	})
	e := newTestEngine(t)

	doc, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)
	require.NoError(t, doc.Validate())

	byName := map[string]ccm.Node{}
	for _, n := range doc.Nodes {
		byName[n.Name] = n
	}
	require.Contains(t, byName, "Sprite")

	// Each base class yields its own resolved inherits edge from Sprite.
	var targets []string
	for _, r := range doc.GlobalRelationships {
		if r.Type != ccm.RelInherits {
			continue
		}
		assert.Equal(t, byName["Sprite"].ID, r.SourceID)
		require.True(t, r.Resolved, "inherits %s unresolved", r.TargetName)
		targets = append(targets, *r.TargetID)
	}
	assert.ElementsMatch(t,
		[]string{byName["Drawable"].ID, byName["Movable"].ID}, targets)
}

func TestAnalyze_Deterministic(t *testing.T) {
	root := writeTree(t, pythonProject)
	e := newTestEngine(t)

	a, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)
	b, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)

	aJSON, err := json.Marshal(a)
	require.NoError(t, err)
	bJSON, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, aJSON, bJSON)
}

func TestAnalyze_SerialMatchesParallel(t *testing.T) {
	root := writeTree(t, pythonProject)

	serial, err := newTestEngine(t, WithParallel(false)).Analyze(context.Background(), root)
	require.NoError(t, err)
	parallel, err := newTestEngine(t, WithParallel(true)).Analyze(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, serial, parallel)
}

func TestAnalyze_LanguageFilter(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py": "def f():\n    pass\n",
		"b.go": "package b\n\nfunc G() {}\n",
	})
	e := newTestEngine(t, WithLanguages("go"))

	doc, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, doc.Project.Languages)
	for _, n := range doc.Nodes {
		assert.Equal(t, "go", n.Language)
	}
}

func TestAnalyze_Excludes(t *testing.T) {
	root := writeTree(t, map[string]string{
		"app.py":      "def f():\n    pass\n",
		"app_test.py": "def test_f():\n    pass\n",
	})
	e := newTestEngine(t, WithExcludes("**_test.py"))

	doc, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)
	for _, n := range doc.Nodes {
		assert.NotContains(t, n.Location.FilePath, "_test")
	}
}

func TestAnalyze_MixedLanguagesWithFallback(t *testing.T) {
	root := writeTree(t, map[string]string{
		"svc/server.go": "package svc\n\nfunc Serve() {}\n",
		"app/Main.kt":   "fun main() {\n}\n",
	})
	e := newTestEngine(t)

	doc, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "kotlin"}, doc.Project.Languages)

	for _, n := range doc.Nodes {
		if n.Language == "kotlin" {
			assert.True(t, n.LowFidelity, "node %s", n.Name)
		}
		if n.Name == "Serve" {
			assert.False(t, n.LowFidelity)
		}
	}
}

func TestAnalyze_CacheSpeedsSecondRunWithoutChangingOutput(t *testing.T) {
	root := writeTree(t, pythonProject)
	cache := filepath.Join(t.TempDir(), "cache.db")
	e := newTestEngine(t, WithCache(cache))

	cold, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)
	warm, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, cold, warm)

	// A content change invalidates only that file's entry.
	require.NoError(t, os.WriteFile(filepath.Join(root, "helpers.py"),
		[]byte("def assist(task, retries):\n    return task\n"), 0o644))
	changed, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)

	var assist *ccm.Node
	for i := range changed.Nodes {
		if changed.Nodes[i].Name == "assist" {
			assist = &changed.Nodes[i]
		}
	}
	require.NotNil(t, assist)
	assert.Len(t, assist.Parameters, 2)
}

func TestAnalyze_EmptyTree(t *testing.T) {
	e := newTestEngine(t)
	doc, err := e.Analyze(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.NoError(t, doc.Validate())
	assert.Zero(t, doc.Metadata.TotalNodes)
	assert.Equal(t, 0.0, doc.Metadata.ResolutionRate)
}

func TestAnalyze_MissingRoot(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Analyze(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestGraph_FromAnalyzeOutput(t *testing.T) {
	root := writeTree(t, pythonProject)
	e := newTestEngine(t)
	doc, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)

	g, err := Graph(context.Background(), doc, graph.DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, doc.Metadata.TotalNodes, g.Statistics.TotalNodes)
	assert.NotEmpty(t, g.Packages)

	// Conversion survives a JSON round trip of the document, since the
	// two stages may run as separate processes.
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	var decoded ccm.Document
	require.NoError(t, json.Unmarshal(data, &decoded))
	g2, err := Graph(context.Background(), &decoded, graph.DefaultPolicy())
	require.NoError(t, err)

	g1JSON, _ := json.Marshal(g)
	g2JSON, _ := json.Marshal(g2)
	assert.Equal(t, g1JSON, g2JSON)
}
