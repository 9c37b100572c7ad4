// Package syntax normalizes per-language parse results into a single
// declaration stream. Two adapter implementations exist: a tree-sitter
// walk for languages with a native grammar, and a line-oriented regex
// fallback for the rest. Output ordering is immaterial; the extractor
// re-sorts downstream.
package syntax

import (
	"path/filepath"
	"strings"

	"github.com/codeatlas-dev/codeatlas/internal/lang"
)

// DeclKind classifies a normalized declaration.
type DeclKind string

const (
	KindFunction  DeclKind = "function"
	KindClass     DeclKind = "class"
	KindInterface DeclKind = "interface"
	KindVariable  DeclKind = "variable"
)

// Param is a raw parameter as written in source; types and defaults are
// best-effort and may be empty.
type Param struct {
	Name     string
	Type     string
	Default  string
	Variadic bool
}

// Call is a call expression observed inside a declaration's span.
type Call struct {
	Target string // callee as written, possibly dotted
	Args   int    // argument count, -1 when not observable
	Line   int
}

// Decl is one normalized declaration.
type Decl struct {
	Kind      DeclKind
	Name      string
	StartLine int
	EndLine   int

	// ClassName is the enclosing class for methods; empty for free
	// functions and for classes themselves.
	ClassName string

	Parameters []Param
	ReturnType string
	Modifiers  []string
	Visibility string

	// Doc is a trailing documentation convention captured by the adapter
	// (e.g. a Python body docstring). Preceding comment blocks are matched
	// by the extractor from Comments instead.
	Doc string

	Calls      []Call   // functions only
	Bases      []string // classes: inheritance targets
	Interfaces []string // classes: implemented interfaces

	// LowFidelity marks declarations from the regex fallback path.
	LowFidelity bool
}

// Import is an import/use/include statement.
type Import struct {
	Target string // module path or name as written
	Alias  string // local alias, empty when none
	Line   int
}

// Comment is a contiguous comment block with markers stripped.
type Comment struct {
	Text      string
	StartLine int
	EndLine   int
}

// FileSyntax is the normalized declaration stream for one file.
type FileSyntax struct {
	Path        string
	Language    string
	Module      string // file stem, the module name
	Decls       []Decl
	Imports     []Import
	Comments    []Comment
	LowFidelity bool
}

// Adapter produces a normalized declaration stream per file. A malformed
// file yields an error; the caller logs it and substitutes an empty
// stream — one file's failure never aborts the run.
type Adapter interface {
	Language() string
	File(path string, content []byte) (*FileSyntax, error)
}

// ForLanguage selects the adapter for a language: native grammar when one
// exists, regex fallback when line patterns are known, (nil, false)
// otherwise.
func ForLanguage(language string) (Adapter, bool) {
	if g, ok := lang.Grammar(language); ok {
		return &treeAdapter{language: language, grammar: g}, true
	}
	if _, ok := fallbackPatterns[language]; ok {
		return &fallbackAdapter{language: language}, true
	}
	return nil, false
}

// moduleName derives the module name from a file path (its stem).
func moduleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
