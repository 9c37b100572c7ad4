// Package codeatlas analyzes multi-language source trees into a single
// canonical code model and converts that model into a dependency graph
// suitable for visualization.
//
// # Pipeline
//
// Analysis operates in two stages:
//
//  1. Analyze: walk the source tree, detect each file's language, parse
//     it (tree-sitter grammars for the ten primary languages, regex
//     patterns for the rest), extract declarations into canonical nodes,
//     and resolve cross-references project-wide. The output is a single
//     canonical document: nodes, relationships, and run statistics.
//
//  2. Graph: validate a canonical document and convert it into a
//     visualization graph with a package hierarchy, merged weighted
//     edges, and per-node complexity buckets. Conversion needs only the
//     document, so it can run in a separate process from analysis.
//
// # Usage
//
// Create an Engine, analyze a tree, and convert:
//
//	e, err := codeatlas.New()
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	doc, err := e.Analyze(ctx, "path/to/project")
//	g, err := codeatlas.Graph(ctx, doc, graph.DefaultPolicy())
//
// # Incremental analysis
//
// With [WithCache], the Engine stores each file's parsed syntax stream in
// SQLite keyed by content hash and skips re-parsing unchanged files on
// the next run. Resolution always runs over the whole project, so the
// document is identical whether or not the cache was warm.
//
// # Determinism
//
// The same tree always produces the same document and the same graph,
// byte for byte: files are processed in sorted path order, node ids are
// sequence numbers per node type, and every ambiguous resolution breaks
// toward the earliest declaration.
package codeatlas
