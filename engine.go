package codeatlas

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/codeatlas-dev/codeatlas/internal/assemble"
	"github.com/codeatlas-dev/codeatlas/internal/ccm"
	"github.com/codeatlas-dev/codeatlas/internal/extract"
	"github.com/codeatlas-dev/codeatlas/internal/graph"
	"github.com/codeatlas-dev/codeatlas/internal/lang"
	"github.com/codeatlas-dev/codeatlas/internal/resolve"
	"github.com/codeatlas-dev/codeatlas/internal/store"
	"github.com/codeatlas-dev/codeatlas/internal/syntax"
	"github.com/codeatlas-dev/codeatlas/internal/walk"
)

// Engine orchestrates the analysis pipeline: file discovery, language
// detection, parsing, extraction, and project-wide resolution.
type Engine struct {
	languages    map[string]bool // nil means all languages
	excludes     []string
	cache        *store.Cache
	logger       *slog.Logger
	docProximity int

	// useParallel enables the parallel parsing phase.
	useParallel bool
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLanguages restricts which languages the Engine will process.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) error {
		e.languages = make(map[string]bool, len(languages))
		for _, l := range languages {
			e.languages[l] = true
		}
		return nil
	}
}

// WithExcludes adds glob patterns matched against slash-separated paths
// relative to the analysis root. Matching files and directories are
// skipped.
func WithExcludes(patterns ...string) Option {
	return func(e *Engine) error {
		e.excludes = append(e.excludes, patterns...)
		return nil
	}
}

// WithCache enables the SQLite extraction cache at dbPath. Unchanged
// files (by content hash) skip re-parsing on subsequent runs.
func WithCache(dbPath string) Option {
	return func(e *Engine) error {
		c, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("codeatlas: open cache: %w", err)
		}
		if err := c.Migrate(); err != nil {
			c.Close()
			return fmt.Errorf("codeatlas: migrate cache: %w", err)
		}
		e.cache = c
		return nil
	}
}

// WithLogger sets the structured logger for non-fatal events (skipped
// files, parse failures). The default logger discards nothing and writes
// to stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithDocProximity sets the maximum line gap between a comment block and
// a declaration for the block to attach as documentation.
func WithDocProximity(lines int) Option {
	return func(e *Engine) error {
		e.docProximity = lines
		return nil
	}
}

// WithParallel controls parallel parsing. When true (default), Analyze
// fans file parsing out across a worker pool; extraction and resolution
// ordering is unaffected either way.
func WithParallel(parallel bool) Option {
	return func(e *Engine) error {
		e.useParallel = parallel
		return nil
	}
}

// New creates an Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:       slog.Default(),
		docProximity: 1,
		useParallel:  true,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

// Close releases the Engine's cache resources, if any.
func (e *Engine) Close() error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Close()
}

// Graph converts a canonical document into a dependency graph. It is a
// standalone stage: the document may come from Analyze in this process
// or from a JSON file written by an earlier run.
func Graph(ctx context.Context, doc *Document, policy GraphPolicy) (*DependencyGraph, error) {
	return graph.Convert(ctx, doc, policy)
}

// sourceFile is one file staged for parsing: content read, hash
// computed, language detected, adapter chosen.
type sourceFile struct {
	path     string // relative, slash-separated
	language string
	hash     string
	content  []byte
	adapter  syntax.Adapter
	cached   *syntax.FileSyntax // non-nil on a cache hit
}

// Analyze walks root and produces the canonical document for the whole
// tree. Individual file failures are logged and counted as skipped;
// only infrastructure errors (unreadable root, cache I/O) abort the run.
func (e *Engine) Analyze(ctx context.Context, root string) (*ccm.Document, error) {
	walker, err := walk.New(e.excludes)
	if err != nil {
		return nil, fmt.Errorf("codeatlas: %w", err)
	}
	files, err := walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("codeatlas: %w", err)
	}

	if err := e.checkCacheVersion(); err != nil {
		return nil, err
	}

	// ---- Phase A: serial preparation (read, hash, detect, cache probe) ----
	skipped := walker.Skipped()
	var staged []sourceFile
	for _, f := range files {
		sf, ok, err := e.prepare(f)
		if err != nil {
			e.logger.Warn("skipping unreadable file", "path", f.Path, "error", err)
			skipped++
			continue
		}
		if !ok {
			skipped++
			continue
		}
		staged = append(staged, sf)
	}

	// ---- Phase B: parsing, parallel when enabled ----
	parsed, parseSkipped := e.parseAll(ctx, staged)
	skipped += parseSkipped

	// ---- Phase C: serial extraction in sorted path order ----
	run := extract.NewRun(extract.Options{DocProximity: e.docProximity})
	var results []extract.FileResult
	var refs []extract.Reference
	for _, fs := range parsed {
		res := run.File(fs)
		// Builtin calls are library noise, dropped before resolution. The
		// per-file result keeps the full reference list because the symbol
		// table reads import aliases from it.
		for _, r := range res.Refs {
			if r.Type == ccm.RelCalls && resolve.Builtin(r.Target) {
				continue
			}
			refs = append(refs, r)
		}
		results = append(results, res)
	}

	table := resolve.Build(results)
	rels := resolve.Resolve(table, refs, e.useParallel)

	doc := assemble.Assemble(assemble.Input{
		Project:       e.project(root, parsed),
		Files:         results,
		Relationships: rels,
		TotalFiles:    len(parsed),
		SkippedFiles:  skipped,
	})

	if e.cache != nil {
		keep := make([]string, 0, len(staged))
		for _, sf := range staged {
			keep = append(keep, sf.path)
		}
		if err := e.cache.Prune(keep); err != nil {
			e.logger.Warn("cache prune failed", "error", err)
		}
	}
	return doc, nil
}

// prepare does Phase A work for one discovered file. ok is false when
// the file's language is unsupported or filtered out.
func (e *Engine) prepare(f walk.File) (sourceFile, bool, error) {
	content, err := os.ReadFile(f.Abs)
	if err != nil {
		return sourceFile{}, false, err
	}
	language := lang.Detect(f.Path, content)
	if language == lang.Unknown {
		return sourceFile{}, false, nil
	}
	if e.languages != nil && !e.languages[language] {
		return sourceFile{}, false, nil
	}
	adapter, ok := syntax.ForLanguage(language)
	if !ok {
		return sourceFile{}, false, nil
	}

	sf := sourceFile{
		path:     f.Path,
		language: language,
		hash:     fmt.Sprintf("%x", sha256.Sum256(content)),
		content:  content,
		adapter:  adapter,
	}
	if e.cache != nil {
		if cached, hit, err := e.cache.Get(sf.path, sf.hash); err != nil {
			e.logger.Warn("cache lookup failed", "path", sf.path, "error", err)
		} else if hit {
			sf.cached = cached
		}
	}
	return sf, true, nil
}

// parseFile parses one staged file, consulting the cache first.
func (e *Engine) parseFile(sf sourceFile) (*syntax.FileSyntax, error) {
	if sf.cached != nil {
		return sf.cached, nil
	}
	fs, err := sf.adapter.File(sf.path, sf.content)
	if err != nil {
		return nil, err
	}
	return fs, nil
}

// storeParsed writes a freshly parsed stream back to the cache.
func (e *Engine) storeParsed(sf sourceFile, fs *syntax.FileSyntax) {
	if e.cache == nil || sf.cached != nil {
		return
	}
	if err := e.cache.Put(sf.path, sf.hash, fs); err != nil {
		e.logger.Warn("cache store failed", "path", sf.path, "error", err)
	}
}

// checkCacheVersion drops the cache when it was written by a different
// analyzer version, since parsing rules may have changed.
func (e *Engine) checkCacheVersion() error {
	if e.cache == nil {
		return nil
	}
	stored, err := e.cache.GetMetadata("analyzer_version")
	if err != nil {
		return fmt.Errorf("codeatlas: %w", err)
	}
	if stored == ccm.AnalyzerVersion {
		return nil
	}
	if stored != "" {
		if err := e.cache.Reset(); err != nil {
			return fmt.Errorf("codeatlas: %w", err)
		}
	}
	if err := e.cache.SetMetadata("analyzer_version", ccm.AnalyzerVersion); err != nil {
		return fmt.Errorf("codeatlas: %w", err)
	}
	return nil
}

// project derives the project description from the root and the parsed
// file set. Languages are the distinct detected languages, sorted.
func (e *Engine) project(root string, parsed []*syntax.FileSyntax) ccm.Project {
	seen := map[string]bool{}
	for _, fs := range parsed {
		seen[fs.Language] = true
	}
	languages := make([]string, 0, len(seen))
	for l := range seen {
		languages = append(languages, l)
	}
	sort.Strings(languages)

	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return ccm.Project{
		Name:        filepath.Base(abs),
		RootPath:    abs,
		ProjectType: lang.ProjectType(abs),
		Languages:   languages,
	}
}
