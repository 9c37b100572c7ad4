// Package resolve binds raw references to node ids across the whole
// project. It runs in two passes: a single-writer collection pass that
// builds the global symbol table, and a resolution pass that may fan out
// lookups against the finished, read-only table. The resolution pass
// takes a completed *Table by construction, which makes the phase
// barrier a data dependency rather than a convention.
package resolve

import (
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/codeatlas-dev/codeatlas/internal/ccm"
	"github.com/codeatlas-dev/codeatlas/internal/extract"
)

// entry is one symbol table row.
type entry struct {
	id    string
	kind  ccm.NodeType
	file  string
	line  int
	arity int
}

// Table is the global symbol table: fully-qualified and simple names to
// candidate nodes, plus per-file import aliases. Read-only once built.
type Table struct {
	byName  map[string][]entry           // qualified and simple names
	aliases map[string]map[string]string // file -> alias -> target name
}

// Build runs the collection pass over every extracted file. Candidate
// lists are sorted by declaration order (file path, then line) so that
// tie-breaking is deterministic regardless of input order.
func Build(files []extract.FileResult) *Table {
	t := &Table{
		byName:  make(map[string][]entry),
		aliases: make(map[string]map[string]string),
	}
	for _, f := range files {
		for _, s := range f.Symbols {
			e := entry{id: s.ID, kind: s.Kind, file: s.File, line: s.Line, arity: s.Arity}
			t.add(s.Name, e)
			switch {
			case s.Class != "":
				t.add(s.Class+"."+s.Name, e)
				t.add(s.Module+"."+s.Class+"."+s.Name, e)
			case s.Kind != ccm.NodeModule:
				t.add(s.Module+"."+s.Name, e)
			}
		}
		for _, r := range f.Refs {
			if r.Type == ccm.RelImports && r.Alias != "" {
				if t.aliases[f.Path] == nil {
					t.aliases[f.Path] = make(map[string]string)
				}
				t.aliases[f.Path][r.Alias] = r.Target
			}
		}
	}
	for name := range t.byName {
		es := t.byName[name]
		sort.Slice(es, func(i, j int) bool {
			if es[i].file != es[j].file {
				return es[i].file < es[j].file
			}
			return es[i].line < es[j].line
		})
	}
	return t
}

func (t *Table) add(name string, e entry) {
	t.byName[name] = append(t.byName[name], e)
}

// builtins lists well-known library calls that are never project symbols.
// References to them are dropped before resolution rather than recorded
// as unresolved noise.
var builtins = map[string]bool{
	"print": true, "len": true, "range": true, "str": true, "int": true,
	"float": true, "bool": true, "list": true, "dict": true, "tuple": true,
	"isinstance": true, "enumerate": true, "sorted": true, "zip": true,
	"map": true, "filter": true, "open": true, "super": true, "type": true,
	"console.log": true, "parseInt": true, "parseFloat": true,
	"setTimeout": true, "setInterval": true, "require": true,
	"append": true, "make": true, "new": true, "panic": true, "copy": true,
	"println": true, "printf": true, "sprintf": true, "format": true,
}

// Builtin reports whether a call target is a well-known library builtin.
func Builtin(target string) bool {
	if builtins[target] {
		return true
	}
	if i := strings.LastIndex(target, "."); i >= 0 {
		return builtins[target[i+1:]]
	}
	return false
}

// Resolve binds every reference against the table. Unresolvable
// references are recorded with a nil target and count toward the
// resolution-rate denominator. Lookups fan out across workers when
// parallel is true; the output order always matches the input order.
func Resolve(t *Table, refs []extract.Reference, parallel bool) []ccm.Relationship {
	out := make([]ccm.Relationship, len(refs))

	workers := 1
	if parallel {
		workers = min(runtime.NumCPU(), max(len(refs), 1))
	}
	if workers <= 1 {
		for i := range refs {
			out[i] = t.resolveOne(refs[i])
		}
		return out
	}

	var wg sync.WaitGroup
	idxCh := make(chan int, len(refs))
	for i := range refs {
		idxCh <- i
	}
	close(idxCh)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxCh {
				out[i] = t.resolveOne(refs[i])
			}
		}()
	}
	wg.Wait()
	return out
}

// resolveOne resolves a single reference in scope order: lexical (class,
// then module), import aliases, global qualified name, global simple
// name, and finally the arity heuristic. Ambiguity breaks toward the
// earliest-declared candidate.
func (t *Table) resolveOne(r extract.Reference) ccm.Relationship {
	rel := ccm.Relationship{
		SourceID:   r.SourceID,
		TargetName: r.Target,
		Type:       r.Type,
		Confidence: ccm.ConfidenceNone,
	}

	target := strings.TrimSpace(r.Target)
	if target == "" {
		return rel
	}

	// Scope-ordered candidate names, most specific first.
	type candidate struct {
		name string
		conf string
	}
	var candidates []candidate
	if r.Class != "" {
		candidates = append(candidates,
			candidate{r.Module + "." + r.Class + "." + target, ccm.ConfidenceExact},
			candidate{r.Class + "." + target, ccm.ConfidenceExact},
		)
	}
	candidates = append(candidates, candidate{r.Module + "." + target, ccm.ConfidenceExact})

	// Import aliases: "h.helper" resolves through alias h.
	if aliases := t.aliases[r.File]; aliases != nil {
		if expanded, ok := aliases[target]; ok {
			candidates = append(candidates,
				candidate{expanded, ccm.ConfidenceAlias},
				candidate{lastSegment(expanded), ccm.ConfidenceAlias})
		} else if head, rest, ok := strings.Cut(target, "."); ok {
			if expanded, ok := aliases[head]; ok {
				candidates = append(candidates,
					candidate{lastSegment(expanded) + "." + rest, ccm.ConfidenceAlias},
					candidate{expanded + "." + rest, ccm.ConfidenceAlias})
			}
		}
	}

	candidates = append(candidates, candidate{target, ccm.ConfidenceSimple})
	if r.Type == ccm.RelImports {
		// Path-style import targets resolve by their final segment.
		if seg := lastSegment(target); seg != target {
			candidates = append(candidates, candidate{seg, ccm.ConfidenceSimple})
		}
	}

	for _, c := range candidates {
		if es, ok := t.byName[c.name]; ok {
			if e := pick(es, r); e != nil {
				rel.TargetID = &e.id
				rel.Resolved = true
				rel.Confidence = c.conf
				return rel
			}
		}
	}

	// Qualified lookup failed; try the simple name with the arity
	// heuristic against every candidate set.
	if i := strings.LastIndex(target, "."); i >= 0 {
		simple := target[i+1:]
		if es, ok := t.byName[simple]; ok {
			if e := pick(es, r); e != nil {
				rel.TargetID = &e.id
				rel.Resolved = true
				rel.Confidence = ccm.ConfidenceArity
				return rel
			}
		}
	}
	return rel
}

// pick selects the matching candidate: references must bind to a node of
// a compatible kind, preferring an exact arity match for calls. Ties go
// to the earliest-declared entry; candidate lists are pre-sorted.
func pick(es []entry, r extract.Reference) *entry {
	var compatible []entry
	for _, e := range es {
		if kindCompatible(r.Type, e.kind) {
			compatible = append(compatible, e)
		}
	}
	if len(compatible) == 0 {
		return nil
	}
	if r.Type == ccm.RelCalls && r.Args >= 0 {
		for i := range compatible {
			if compatible[i].arity == r.Args {
				return &compatible[i]
			}
		}
	}
	return &compatible[0]
}

func kindCompatible(rel ccm.RelationshipType, kind ccm.NodeType) bool {
	switch rel {
	case ccm.RelCalls:
		// Constructors are reachable through their class name.
		return kind == ccm.NodeFunction || kind == ccm.NodeMethod ||
			kind == ccm.NodeConstructor || kind == ccm.NodeClass
	case ccm.RelInherits:
		return kind == ccm.NodeClass || kind == ccm.NodeInterface
	case ccm.RelImplements:
		return kind == ccm.NodeInterface || kind == ccm.NodeClass
	case ccm.RelImports:
		return kind == ccm.NodeModule
	}
	return true
}

func lastSegment(s string) string {
	s = strings.ReplaceAll(s, "/", ".")
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}
