// Package lang maps file paths and content samples to language tags and
// owns the registry of native tree-sitter grammars.
package lang

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Unknown is returned for files no signal can classify. Unknown files are
// excluded from extraction but counted in summary statistics.
const Unknown = "unknown"

// extToLanguage maps file extensions to canonical language names.
var extToLanguage = map[string]string{
	".py":  "python",
	".pyi": "python",

	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",

	".java":  "java",
	".kt":    "kotlin",
	".scala": "scala",

	".c":   "c",
	".cpp": "cpp",
	".cxx": "cpp",
	".cc":  "cpp",
	".hpp": "cpp",
	".hxx": "cpp",

	".go":    "go",
	".rs":    "rust",
	".swift": "swift",
	".cs":    "csharp",

	".rb":  "ruby",
	".php": "php",
	".pl":  "perl",

	".sh":   "bash",
	".bash": "bash",
	".zsh":  "bash",

	".sql": "sql",
	".lua": "lua",
}

// specialNames maps extension-less well-known filenames.
var specialNames = map[string]string{
	"dockerfile": "dockerfile",
	"makefile":   "makefile",
}

// shebangs maps interpreter names found on a #! line.
var shebangs = map[string]string{
	"python":  "python",
	"python3": "python",
	"node":    "javascript",
	"deno":    "javascript",
	"ruby":    "ruby",
	"perl":    "perl",
	"php":     "php",
	"bash":    "bash",
	"sh":      "bash",
	"zsh":     "bash",
}

// Detect returns the language tag for a file. The extension map is the
// primary signal; content heuristics (shebang line, distinctive keywords)
// apply only when the extension is absent or ambiguous. Pure function of
// (path, sample).
func Detect(path string, sample []byte) string {
	name := strings.ToLower(filepath.Base(path))
	if lang, ok := specialNames[name]; ok {
		return lang
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case "":
		return detectContent(sample)
	case ".h":
		// Shared between C and C++; decide from content.
		if looksLikeCPP(sample) {
			return "cpp"
		}
		return "c"
	}
	if lang, ok := extToLanguage[ext]; ok {
		return lang
	}
	return Unknown
}

func detectContent(sample []byte) string {
	line := sample
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		line = sample[:i]
	}
	if !bytes.HasPrefix(line, []byte("#!")) {
		return Unknown
	}
	// Interpreter is the last path segment, skipping an env indirection.
	fields := strings.Fields(string(line[2:]))
	if len(fields) == 0 {
		return Unknown
	}
	interp := filepath.Base(fields[0])
	if interp == "env" && len(fields) > 1 {
		interp = filepath.Base(fields[1])
	}
	if lang, ok := shebangs[interp]; ok {
		return lang
	}
	return Unknown
}

func looksLikeCPP(sample []byte) bool {
	for _, kw := range [][]byte{
		[]byte("class "), []byte("template"), []byte("namespace "),
		[]byte("std::"), []byte("#include <iostream>"),
	} {
		if bytes.Contains(sample, kw) {
			return true
		}
	}
	return false
}

// langToGrammar maps language names to tree-sitter grammars. Lazily
// initialized on first call.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"go":         golang.GetLanguage(),
			"typescript": ts.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"python":     python.GetLanguage(),
			"rust":       rust.GetLanguage(),
			"c":          c.GetLanguage(),
			"cpp":        cpp.GetLanguage(),
			"java":       java.GetLanguage(),
			"php":        php.GetLanguage(),
			"ruby":       ruby.GetLanguage(),
		}
	})
}

// Grammar returns the native tree-sitter grammar for a language.
// Returns (nil, false) for languages served by the regex fallback.
func Grammar(lang string) (*sitter.Language, bool) {
	initGrammars()
	g, ok := langToGrammar[lang]
	return g, ok
}

// projectMarkers maps signature files to project types, checked in order.
var projectMarkers = []struct {
	file string
	typ  string
}{
	{"package.json", "nodejs"},
	{"requirements.txt", "python"},
	{"setup.py", "python"},
	{"pyproject.toml", "python"},
	{"pom.xml", "java"},
	{"build.gradle", "java"},
	{"go.mod", "go"},
	{"Cargo.toml", "rust"},
	{"composer.json", "php"},
	{"Gemfile", "ruby"},
}

// ProjectType guesses the dominant project type from signature files at
// the repository root.
func ProjectType(root string) string {
	for _, m := range projectMarkers {
		if _, err := os.Stat(filepath.Join(root, m.file)); err == nil {
			return m.typ
		}
	}
	return Unknown
}
