// Package extract walks normalized declaration streams and emits
// canonical nodes, plus the raw references the resolver binds later.
// ID assignment is deterministic: callers feed files sorted by path, and
// the extractor orders declarations by start line, so a re-run over
// unchanged input yields identical ids.
package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codeatlas-dev/codeatlas/internal/ccm"
	"github.com/codeatlas-dev/codeatlas/internal/syntax"
)

// Options are the behavioral policies of extraction.
type Options struct {
	// DocProximity is the maximum line gap between a comment block's end
	// and a declaration's start for the block to attach as documentation.
	// The default 1 means strictly adjacent (no blank line between).
	DocProximity int
}

// DefaultOptions returns the documented extraction defaults.
func DefaultOptions() Options {
	return Options{DocProximity: 1}
}

// Symbol is the resolver-facing identity of an extracted node.
type Symbol struct {
	ID     string
	Name   string
	Kind   ccm.NodeType
	Module string
	Class  string // enclosing class, "" for free functions and classes
	File   string
	Line   int
	Arity  int // parameter count; -1 for non-callables
}

// Reference is an unresolved outgoing reference authored by a node.
type Reference struct {
	SourceID string
	Type     ccm.RelationshipType
	Target   string // name as written, possibly dotted
	Alias    string // import alias, imports only
	Args     int    // call argument count, -1 when unknown
	Module   string // enclosing module at the reference site
	Class    string // enclosing class at the reference site
	File     string
	Line     int
}

// FileResult is the per-file output of extraction.
type FileResult struct {
	Path     string
	Language string
	Nodes    []ccm.Node
	Symbols  []Symbol
	Refs     []Reference
}

// Run holds the run-scoped id counters. A Run is created fresh per
// invocation and discarded with the emitted document; nothing survives
// across runs.
type Run struct {
	counters map[ccm.NodeType]int
	opts     Options
}

// NewRun creates a Run with the given options.
func NewRun(opts Options) *Run {
	if opts.DocProximity < 1 {
		opts.DocProximity = 1
	}
	return &Run{counters: make(map[ccm.NodeType]int), opts: opts}
}

func (r *Run) nextID(t ccm.NodeType) string {
	r.counters[t]++
	return fmt.Sprintf("%s_%06d", t, r.counters[t])
}

// File extracts canonical nodes from one normalized stream. Extraction
// never fails: any per-declaration gap degrades to a partially filled
// node rather than dropping the declaration.
func (r *Run) File(fs *syntax.FileSyntax) FileResult {
	res := FileResult{Path: fs.Path, Language: fs.Language}

	docs := newDocIndex(fs.Comments, r.opts.DocProximity)

	// Module node first, then declarations by start line (name as a
	// final tie-break for fallback output, where spans collapse).
	decls := make([]syntax.Decl, len(fs.Decls))
	copy(decls, fs.Decls)
	sort.SliceStable(decls, func(i, j int) bool {
		if decls[i].StartLine != decls[j].StartLine {
			return decls[i].StartLine < decls[j].StartLine
		}
		return decls[i].Name < decls[j].Name
	})

	module := ccm.Node{
		ID:          r.nextID(ccm.NodeModule),
		Name:        fs.Module,
		NodeType:    ccm.NodeModule,
		Location:    ccm.Location{FilePath: fs.Path, StartLine: 1, EndLine: 1},
		Language:    fs.Language,
		LowFidelity: fs.LowFidelity,
	}

	classIDs := map[string]string{} // class name -> node id, this file
	var nodes []ccm.Node
	var syms []Symbol

	for _, d := range decls {
		n := r.node(fs, d, docs)
		switch n.NodeType {
		case ccm.NodeClass, ccm.NodeInterface:
			classIDs[d.Name] = n.ID
		}
		nodes = append(nodes, n)

		arity := -1
		switch n.NodeType {
		case ccm.NodeFunction, ccm.NodeMethod, ccm.NodeConstructor:
			arity = len(n.Parameters)
		}
		syms = append(syms, Symbol{
			ID:     n.ID,
			Name:   d.Name,
			Kind:   n.NodeType,
			Module: fs.Module,
			Class:  d.ClassName,
			File:   fs.Path,
			Line:   d.StartLine,
			Arity:  arity,
		})

		// Outgoing references authored by this node.
		for _, c := range d.Calls {
			res.Refs = append(res.Refs, Reference{
				SourceID: n.ID, Type: ccm.RelCalls, Target: c.Target,
				Args: c.Args, Module: fs.Module, Class: d.ClassName,
				File: fs.Path, Line: c.Line,
			})
		}
		for _, b := range d.Bases {
			res.Refs = append(res.Refs, Reference{
				SourceID: n.ID, Type: ccm.RelInherits, Target: b,
				Args: -1, Module: fs.Module, File: fs.Path, Line: d.StartLine,
			})
		}
		for _, iface := range d.Interfaces {
			res.Refs = append(res.Refs, Reference{
				SourceID: n.ID, Type: ccm.RelImplements, Target: iface,
				Args: -1, Module: fs.Module, File: fs.Path, Line: d.StartLine,
			})
		}
	}

	// Parent links: methods to their class, everything else to the module.
	for i := range nodes {
		n := &nodes[i]
		if cls := syms[i].Class; cls != "" {
			if id, ok := classIDs[cls]; ok {
				n.ParentID = id
				continue
			}
		}
		n.ParentID = module.ID
	}
	for i := range nodes {
		parent := &module
		if nodes[i].ParentID != module.ID {
			for j := range nodes {
				if nodes[j].ID == nodes[i].ParentID {
					parent = &nodes[j]
					break
				}
			}
		}
		parent.ChildrenIDs = append(parent.ChildrenIDs, nodes[i].ID)
	}

	// Module documentation: a leading comment block no declaration claims.
	if doc := docs.moduleDoc(); doc != nil {
		module.Documentation = doc
	}

	// Imports are authored by the module node.
	for _, imp := range fs.Imports {
		res.Refs = append(res.Refs, Reference{
			SourceID: module.ID, Type: ccm.RelImports, Target: imp.Target,
			Alias: imp.Alias, Args: -1, Module: fs.Module,
			File: fs.Path, Line: imp.Line,
		})
	}

	res.Nodes = append([]ccm.Node{module}, nodes...)
	res.Symbols = append([]Symbol{{
		ID: module.ID, Name: fs.Module, Kind: ccm.NodeModule,
		Module: fs.Module, File: fs.Path, Line: 1, Arity: -1,
	}}, syms...)
	return res
}

// node builds one canonical node from a declaration.
func (r *Run) node(fs *syntax.FileSyntax, d syntax.Decl, docs *docIndex) ccm.Node {
	t := nodeType(d)
	n := ccm.Node{
		ID:       r.nextID(t),
		Name:     d.Name,
		NodeType: t,
		Location: ccm.Location{
			FilePath:  fs.Path,
			StartLine: d.StartLine,
			EndLine:   max(d.EndLine, d.StartLine),
		},
		Language:    fs.Language,
		Visibility:  d.Visibility,
		Modifiers:   d.Modifiers,
		LowFidelity: d.LowFidelity || fs.LowFidelity,
	}

	switch t {
	case ccm.NodeFunction, ccm.NodeMethod, ccm.NodeConstructor:
		n.Parameters = parameters(d.Parameters, fs.Language)
		n.ReturnType = typeInfo(d.ReturnType, fs.Language)
	}

	// Preceding comment block wins over a trailing docstring.
	if doc := docs.claim(d.StartLine); doc != nil {
		n.Documentation = doc
	} else if d.Doc != "" {
		n.Documentation = splitDoc(d.Doc)
	}
	return n
}

func nodeType(d syntax.Decl) ccm.NodeType {
	switch d.Kind {
	case syntax.KindClass:
		return ccm.NodeClass
	case syntax.KindInterface:
		return ccm.NodeInterface
	case syntax.KindVariable:
		return ccm.NodeVariable
	}
	if d.ClassName == "" {
		return ccm.NodeFunction
	}
	switch d.Name {
	case "__init__", "constructor", "init", "<init>", d.ClassName:
		return ccm.NodeConstructor
	}
	return ccm.NodeMethod
}

// parameters converts raw parameters, recording "unknown" for missing
// annotations so the schema shape stays uniform across languages.
func parameters(params []syntax.Param, language string) []ccm.Parameter {
	if len(params) == 0 {
		return nil
	}
	out := make([]ccm.Parameter, 0, len(params))
	for _, p := range params {
		name, def := p.Name, p.Default
		// Fallback output may leave "name=default" unsplit.
		if def == "" && strings.Contains(name, "=") {
			parts := strings.SplitN(name, "=", 2)
			name, def = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		}
		variadic := p.Variadic
		if strings.HasPrefix(name, "*") || strings.HasPrefix(name, "...") {
			variadic = true
			name = strings.TrimLeft(name, "*.")
		}
		if idx := strings.Index(name, ":"); idx > 0 && p.Type == "" {
			p.Type = strings.TrimSpace(name[idx+1:])
			name = strings.TrimSpace(name[:idx])
		}
		out = append(out, ccm.Parameter{
			Name:         name,
			TypeInfo:     typeInfo(p.Type, language),
			DefaultValue: def,
			IsOptional:   def != "",
			IsVariadic:   variadic,
		})
	}
	return out
}

// primitives lists the built-in value types per language, used to tag
// structural type descriptors.
var primitives = map[string]map[string]bool{
	"python":     set("int", "float", "str", "bool", "bytes", "None"),
	"javascript": set("number", "string", "boolean", "undefined", "null"),
	"typescript": set("number", "string", "boolean", "undefined", "null", "void"),
	"java":       set("int", "long", "float", "double", "boolean", "char", "byte", "short", "void"),
	"c":          set("int", "long", "float", "double", "char", "void"),
	"cpp":        set("int", "long", "float", "double", "char", "bool", "void"),
	"go":         set("int", "int32", "int64", "float32", "float64", "string", "bool", "byte", "error"),
	"rust":       set("i32", "i64", "u32", "u64", "f32", "f64", "bool", "char", "str", "usize"),
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

var arrayMarkers = []string{"[]", "List[", "Array<", "Vec<", "list[", "array["}
var nullableMarkers = []string{"?", "Optional[", "Maybe<", "Option<"}

// typeInfo parses a raw type annotation into a structural descriptor.
// An empty annotation yields the "unknown" placeholder, never nil.
func typeInfo(raw string, language string) *ccm.TypeInfo {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ccm.Unknown()
	}
	info := &ccm.TypeInfo{}
	for _, m := range arrayMarkers {
		if strings.Contains(raw, m) {
			info.IsArray = true
			break
		}
	}
	for _, m := range nullableMarkers {
		if strings.Contains(raw, m) {
			info.IsNullable = true
			break
		}
	}
	clean := raw
	for _, m := range append(append([]string{}, arrayMarkers...), nullableMarkers...) {
		clean = strings.ReplaceAll(clean, m, "")
	}
	clean = strings.Trim(clean, "]> \t*&")
	info.Name = clean
	info.IsPrimitive = primitives[language][clean]
	return info
}

// splitDoc turns a raw documentation string into summary + description:
// first line summarizes, the rest describes.
func splitDoc(text string) *ccm.Documentation {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	lines := strings.SplitN(text, "\n", 2)
	doc := &ccm.Documentation{Summary: strings.TrimSpace(lines[0])}
	if len(lines) > 1 {
		doc.Description = strings.TrimSpace(lines[1])
	}
	return doc
}

// docIndex matches comment blocks to declarations by line adjacency.
// Each block attaches at most once; the earliest declaration wins.
type docIndex struct {
	byEndLine map[int]int // comment end line -> index into blocks
	blocks    []syntax.Comment
	claimed   []bool
	proximity int
}

func newDocIndex(comments []syntax.Comment, proximity int) *docIndex {
	idx := &docIndex{
		byEndLine: make(map[int]int, len(comments)),
		blocks:    comments,
		claimed:   make([]bool, len(comments)),
		proximity: proximity,
	}
	for i, c := range comments {
		idx.byEndLine[c.EndLine] = i
	}
	return idx
}

// claim returns the documentation block immediately preceding a
// declaration at startLine, within the configured proximity.
func (d *docIndex) claim(startLine int) *ccm.Documentation {
	for gap := 1; gap <= d.proximity; gap++ {
		if i, ok := d.byEndLine[startLine-gap]; ok && !d.claimed[i] {
			d.claimed[i] = true
			return splitDoc(d.blocks[i].Text)
		}
	}
	return nil
}

// moduleDoc returns an unclaimed comment block starting at the top of the
// file, attached to the module node.
func (d *docIndex) moduleDoc() *ccm.Documentation {
	for i, c := range d.blocks {
		if c.StartLine <= 2 && !d.claimed[i] {
			d.claimed[i] = true
			return splitDoc(c.Text)
		}
	}
	return nil
}
