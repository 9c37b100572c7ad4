package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas-dev/codeatlas/internal/syntax"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, c.Migrate())
	t.Cleanup(func() { c.Close() })
	return c
}

func sampleSyntax() *syntax.FileSyntax {
	return &syntax.FileSyntax{
		Path:     "src/app.py",
		Language: "python",
		Module:   "app",
		Decls: []syntax.Decl{{
			Kind: syntax.KindFunction, Name: "main",
			StartLine: 1, EndLine: 4,
			Calls: []syntax.Call{{Target: "run", Args: 0, Line: 2}},
		}},
		Imports: []syntax.Import{{Target: "os", Line: 1}},
	}
}

func TestCache_MissOnEmpty(t *testing.T) {
	c := newTestCache(t)
	fs, hit, err := c.Get("src/app.py", "h1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, fs)
}

func TestCache_PutGetRoundTrip(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Put("src/app.py", "h1", sampleSyntax()))

	fs, hit, err := c.Get("src/app.py", "h1")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, sampleSyntax(), fs)
}

func TestCache_HashMismatchIsMiss(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Put("src/app.py", "h1", sampleSyntax()))

	_, hit, err := c.Get("src/app.py", "h2")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_PutReplacesExisting(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Put("src/app.py", "h1", sampleSyntax()))

	updated := sampleSyntax()
	updated.Decls[0].Name = "entry"
	require.NoError(t, c.Put("src/app.py", "h2", updated))

	_, hit, err := c.Get("src/app.py", "h1")
	require.NoError(t, err)
	assert.False(t, hit)

	fs, hit, err := c.Get("src/app.py", "h2")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "entry", fs.Decls[0].Name)
}

func TestCache_Prune(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Put("a.py", "h", sampleSyntax()))
	require.NoError(t, c.Put("b.py", "h", sampleSyntax()))
	require.NoError(t, c.Prune([]string{"a.py"}))

	_, hit, err := c.Get("a.py", "h")
	require.NoError(t, err)
	assert.True(t, hit)
	_, hit, err = c.Get("b.py", "h")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_Metadata(t *testing.T) {
	c := newTestCache(t)
	v, err := c.GetMetadata("analyzer_version")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, c.SetMetadata("analyzer_version", "2.1.0"))
	require.NoError(t, c.SetMetadata("analyzer_version", "2.2.0"))
	v, err = c.GetMetadata("analyzer_version")
	require.NoError(t, err)
	assert.Equal(t, "2.2.0", v)
}

func TestCache_Reset(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Put("a.py", "h", sampleSyntax()))
	require.NoError(t, c.SetMetadata("k", "v"))
	require.NoError(t, c.Reset())

	_, hit, err := c.Get("a.py", "h")
	require.NoError(t, err)
	assert.False(t, hit)

	// Reset clears cached files, not metadata.
	v, err := c.GetMetadata("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestCache_MigrateIdempotent(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Migrate())
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/cache.db")
	require.Error(t, err)
}
