package syntax

import (
	"regexp"
	"strings"
)

// languagePatterns holds the line-oriented patterns for one fallback
// language. Group 1 of every pattern captures the declared name.
type languagePatterns struct {
	functions []*regexp.Regexp
	classes   []*regexp.Regexp
	imports   []*regexp.Regexp
	comments  []*regexp.Regexp
}

var (
	slashComment = regexp.MustCompile(`^\s*//\s*(.*)`)
	hashComment  = regexp.MustCompile(`^\s*#\s*(.*)`)
)

// fallbackPatterns covers languages without a compiled-in grammar. The
// path is lower fidelity: spans collapse to the declaration line and
// every produced declaration is flagged reduced-confidence.
var fallbackPatterns = map[string]languagePatterns{
	"kotlin": {
		functions: res(`(?m)^\s*(?:\w+\s+)*fun\s+(\w+)\s*\(`),
		classes:   res(`(?m)^\s*(?:\w+\s+)*(?:class|object)\s+(\w+)`),
		imports:   res(`(?m)^\s*import\s+([\w.]+)`),
		comments:  []*regexp.Regexp{slashComment},
	},
	"swift": {
		functions: res(`(?m)^\s*(?:\w+\s+)*func\s+(\w+)\s*\(`),
		classes:   res(`(?m)^\s*(?:\w+\s+)*(?:class|struct|enum)\s+(\w+)`),
		imports:   res(`(?m)^\s*import\s+(\w+)`),
		comments:  []*regexp.Regexp{slashComment},
	},
	"scala": {
		functions: res(`(?m)^\s*(?:\w+\s+)*def\s+(\w+)`),
		classes:   res(`(?m)^\s*(?:\w+\s+)*(?:class|object|trait)\s+(\w+)`),
		imports:   res(`(?m)^\s*import\s+([\w.]+)`),
		comments:  []*regexp.Regexp{slashComment},
	},
	"csharp": {
		functions: res(`(?m)^\s*(?:public|private|protected|internal|static|\s)*\s+[\w<>\[\]]+\s+(\w+)\s*\([^)]*\)\s*\{`),
		classes:   res(`(?m)^\s*(?:public|private|protected|internal|\s)*\s*(?:class|interface|struct)\s+(\w+)`),
		imports:   res(`(?m)^\s*using\s+([\w.]+)\s*;`),
		comments:  []*regexp.Regexp{slashComment},
	},
	"bash": {
		functions: res(`(?m)^\s*function\s+(\w+)`, `(?m)^\s*(\w+)\s*\(\)\s*\{`),
		comments:  []*regexp.Regexp{hashComment},
	},
	"perl": {
		functions: res(`(?m)^\s*sub\s+(\w+)`),
		classes:   res(`(?m)^\s*package\s+([\w:]+)\s*;`),
		imports:   res(`(?m)^\s*use\s+([\w:]+)`),
		comments:  []*regexp.Regexp{hashComment},
	},
	"lua": {
		functions: res(`(?m)^\s*(?:local\s+)?function\s+([\w.:]+)`),
		imports:   res(`(?m)require\s*\(?\s*["']([\w./]+)["']`),
		comments:  []*regexp.Regexp{regexp.MustCompile(`^\s*--\s*(.*)`)},
	},
	"sql": {
		functions: res(`(?mi)^\s*create\s+(?:or\s+replace\s+)?(?:function|procedure)\s+([\w.]+)`),
		comments:  []*regexp.Regexp{regexp.MustCompile(`^\s*--\s*(.*)`)},
	},
}

func res(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// fallbackAdapter scans line-oriented declaration patterns for languages
// without a native grammar.
type fallbackAdapter struct {
	language string
}

func (a *fallbackAdapter) Language() string { return a.language }

func (a *fallbackAdapter) File(path string, content []byte) (*FileSyntax, error) {
	patterns := fallbackPatterns[a.language]
	text := string(content)

	fs := &FileSyntax{
		Path:        path,
		Language:    a.language,
		Module:      moduleName(path),
		LowFidelity: true,
	}

	emit := func(kind DeclKind, re *regexp.Regexp) {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if len(m) < 4 || m[2] < 0 {
				continue
			}
			line := strings.Count(text[:m[2]], "\n") + 1
			fs.Decls = append(fs.Decls, Decl{
				Kind:        kind,
				Name:        text[m[2]:m[3]],
				StartLine:   line,
				EndLine:     line,
				Visibility:  "public",
				LowFidelity: true,
			})
		}
	}
	for _, re := range patterns.functions {
		emit(KindFunction, re)
	}
	for _, re := range patterns.classes {
		emit(KindClass, re)
	}
	for _, re := range patterns.imports {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if len(m) < 4 || m[2] < 0 {
				continue
			}
			fs.Imports = append(fs.Imports, Import{
				Target: text[m[2]:m[3]],
				Line:   strings.Count(text[:m[2]], "\n") + 1,
			})
		}
	}

	var comments []Comment
	for i, line := range strings.Split(text, "\n") {
		for _, re := range patterns.comments {
			if m := re.FindStringSubmatch(line); m != nil {
				if body := strings.TrimSpace(m[1]); body != "" {
					comments = append(comments, Comment{
						Text:      body,
						StartLine: i + 1,
						EndLine:   i + 1,
					})
				}
				break
			}
		}
	}
	fs.Comments = mergeComments(comments)
	return fs, nil
}
