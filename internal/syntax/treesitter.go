package syntax

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// grammarSpec names the tree-sitter node kinds a language uses for each
// declaration category. The walk itself is language-independent; adding a
// language means adding a spec row, not branching the walker.
type grammarSpec struct {
	functions  map[string]bool
	classes    map[string]bool
	interfaces map[string]bool
	imports    map[string]bool
	calls      map[string]bool
}

var grammarSpecs = map[string]grammarSpec{
	"python": {
		functions: set("function_definition"),
		classes:   set("class_definition"),
		imports:   set("import_statement", "import_from_statement"),
		calls:     set("call"),
	},
	"javascript": {
		functions: set("function_declaration", "generator_function_declaration", "method_definition"),
		classes:   set("class_declaration"),
		imports:   set("import_statement"),
		calls:     set("call_expression", "new_expression"),
	},
	"typescript": {
		functions:  set("function_declaration", "generator_function_declaration", "method_definition"),
		classes:    set("class_declaration"),
		interfaces: set("interface_declaration"),
		imports:    set("import_statement"),
		calls:      set("call_expression", "new_expression"),
	},
	"go": {
		functions: set("function_declaration", "method_declaration"),
		classes:   set("type_spec"), // narrowed to struct/interface in classify
		imports:   set("import_spec"),
		calls:     set("call_expression"),
	},
	"rust": {
		functions:  set("function_item"),
		classes:    set("struct_item", "enum_item"),
		interfaces: set("trait_item"),
		imports:    set("use_declaration"),
		calls:      set("call_expression"),
	},
	"java": {
		functions:  set("method_declaration", "constructor_declaration"),
		classes:    set("class_declaration", "enum_declaration"),
		interfaces: set("interface_declaration"),
		imports:    set("import_declaration"),
		calls:      set("method_invocation", "object_creation_expression"),
	},
	"c": {
		functions: set("function_definition"),
		classes:   set("struct_specifier"),
		imports:   set("preproc_include"),
		calls:     set("call_expression"),
	},
	"cpp": {
		functions: set("function_definition"),
		classes:   set("class_specifier", "struct_specifier"),
		imports:   set("preproc_include"),
		calls:     set("call_expression"),
	},
	"php": {
		functions:  set("function_definition", "method_declaration"),
		classes:    set("class_declaration"),
		interfaces: set("interface_declaration"),
		imports:    set("namespace_use_declaration"),
		calls:      set("function_call_expression", "member_call_expression", "object_creation_expression"),
	},
	"ruby": {
		functions: set("method", "singleton_method"),
		classes:   set("class", "module"),
		calls:     set("call"),
	},
}

func set(kinds ...string) map[string]bool {
	m := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// treeAdapter walks a full tree-sitter syntax tree.
type treeAdapter struct {
	language string
	grammar  *sitter.Language
}

func (a *treeAdapter) Language() string { return a.language }

func (a *treeAdapter) File(path string, content []byte) (*FileSyntax, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(a.grammar)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	fs := &FileSyntax{
		Path:     path,
		Language: a.language,
		Module:   moduleName(path),
	}
	w := &treeWalker{spec: grammarSpecs[a.language], lang: a.language, src: content, out: fs}
	w.walk(tree.RootNode(), "")
	fs.Comments = mergeComments(w.comments)
	return fs, nil
}

// treeWalker carries walk state for one file.
type treeWalker struct {
	spec     grammarSpec
	lang     string
	src      []byte
	out      *FileSyntax
	comments []Comment
}

// walk visits every node, tracking the enclosing class name so methods
// can be attached to their class downstream.
func (w *treeWalker) walk(node *sitter.Node, class string) {
	kind := node.Type()

	switch {
	case strings.Contains(kind, "comment"):
		w.comments = append(w.comments, Comment{
			Text:      stripCommentMarkers(node.Content(w.src)),
			StartLine: int(node.StartPoint().Row) + 1,
			EndLine:   int(node.EndPoint().Row) + 1,
		})
		return

	case w.spec.imports[kind]:
		if imp, ok := w.importFrom(node); ok {
			w.out.Imports = append(w.out.Imports, imp)
		}
		// import_from_statement and friends have no nested declarations.
		return

	case w.spec.functions[kind]:
		if d, ok := w.functionFrom(node, class); ok {
			w.out.Decls = append(w.out.Decls, d)
		}
		// Nested declarations (e.g. inner classes in a method) are rare
		// enough that the walk continues with the same class context.

	case w.spec.classes[kind] || w.spec.interfaces[kind]:
		if d, ok := w.classFrom(node, kind); ok {
			w.out.Decls = append(w.out.Decls, d)
			class = d.Name
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		w.walk(node.Child(i), class)
	}
}

func (w *treeWalker) functionFrom(node *sitter.Node, class string) (Decl, bool) {
	name := nodeName(node, w.src)
	if name == "" {
		return Decl{}, false // anonymous; not addressable, skip
	}

	d := Decl{
		Kind:       KindFunction,
		Name:       name,
		StartLine:  int(node.StartPoint().Row) + 1,
		EndLine:    int(node.EndPoint().Row) + 1,
		ClassName:  class,
		Parameters: w.paramsFrom(node),
		ReturnType: w.returnTypeFrom(node),
	}

	// Go methods carry their type in the receiver, not a lexical class.
	if w.lang == "go" && node.Type() == "method_declaration" {
		if recv := node.ChildByFieldName("receiver"); recv != nil {
			if t := firstOfKind(recv, "type_identifier"); t != nil {
				d.ClassName = t.Content(w.src)
			}
		}
	}

	d.Modifiers, d.Visibility = w.modifiersFrom(node, name)
	d.Doc = w.bodyDocstring(node)
	w.collectCalls(node, &d)
	return d, true
}

func (w *treeWalker) classFrom(node *sitter.Node, kind string) (Decl, bool) {
	name := nodeName(node, w.src)
	if name == "" {
		return Decl{}, false
	}

	declKind := KindClass
	if w.spec.interfaces[kind] {
		declKind = KindInterface
	}
	// Go folds structs and interfaces into one type_spec kind; split on
	// the underlying type node.
	if w.lang == "go" {
		t := node.ChildByFieldName("type")
		switch {
		case t == nil:
			return Decl{}, false
		case t.Type() == "interface_type":
			declKind = KindInterface
		case t.Type() == "struct_type":
			declKind = KindClass
		default:
			return Decl{}, false // alias or non-structural type
		}
	}

	d := Decl{
		Kind:      declKind,
		Name:      name,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
	}
	d.Modifiers, d.Visibility = w.modifiersFrom(node, name)
	d.Doc = w.bodyDocstring(node)
	d.Bases, d.Interfaces = w.heritageFrom(node)
	return d, true
}

// heritageFrom collects base-class and interface references from the
// language's heritage clause, wherever the grammar puts it.
func (w *treeWalker) heritageFrom(node *sitter.Node) (bases, ifaces []string) {
	for _, field := range []string{"superclasses", "superclass", "base_clause"} {
		if c := node.ChildByFieldName(field); c != nil {
			bases = append(bases, identifierTexts(c, w.src)...)
		}
	}
	if c := node.ChildByFieldName("interfaces"); c != nil {
		ifaces = append(ifaces, identifierTexts(c, w.src)...)
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "class_heritage", "extends_clause":
			bases = append(bases, identifierTexts(child, w.src)...)
		case "implements_clause", "super_interfaces", "base_list":
			ifaces = append(ifaces, identifierTexts(child, w.src)...)
		case "superclass": // java names it as a node kind, not a field
			bases = append(bases, identifierTexts(child, w.src)...)
		}
	}
	return bases, ifaces
}

func (w *treeWalker) paramsFrom(node *sitter.Node) []Param {
	params := node.ChildByFieldName("parameters")
	if params == nil {
		params = node.ChildByFieldName("parameter_list")
	}
	if params == nil {
		return nil
	}

	var out []Param
	for i := 0; i < int(params.NamedChildCount()); i++ {
		child := params.NamedChild(i)
		kind := child.Type()
		if strings.Contains(kind, "comment") {
			continue
		}
		p := Param{}
		switch {
		case kind == "identifier" || kind == "simple_parameter":
			p.Name = child.Content(w.src)
		case strings.Contains(kind, "splat") || strings.HasPrefix(kind, "list_splat") ||
			strings.Contains(kind, "variadic"):
			p.Variadic = true
			p.Name = strings.TrimLeft(child.Content(w.src), "*&.")
		default:
			if n := child.ChildByFieldName("name"); n != nil {
				p.Name = n.Content(w.src)
			} else if id := firstOfKind(child, "identifier"); id != nil {
				p.Name = id.Content(w.src)
			} else {
				p.Name = child.Content(w.src)
			}
			if t := child.ChildByFieldName("type"); t != nil {
				p.Type = t.Content(w.src)
			}
			if v := child.ChildByFieldName("value"); v != nil {
				p.Default = v.Content(w.src)
			}
		}
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" || p.Name == "self" || p.Name == "this" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (w *treeWalker) returnTypeFrom(node *sitter.Node) string {
	for _, field := range []string{"return_type", "result"} {
		if t := node.ChildByFieldName(field); t != nil {
			return strings.TrimSpace(strings.TrimPrefix(t.Content(w.src), ":"))
		}
	}
	// C/C++/Java put the type before the declarator.
	if t := node.ChildByFieldName("type"); t != nil {
		return t.Content(w.src)
	}
	return ""
}

// modifiersFrom reads modifier tokens and derives visibility. Languages
// without explicit keywords fall back to naming conventions.
func (w *treeWalker) modifiersFrom(node *sitter.Node, name string) (mods []string, vis string) {
	vis = "public"
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "async":
			mods = append(mods, "async")
		case "modifiers", "storage_class_specifier", "visibility_modifier", "access_modifier":
			for _, tok := range strings.Fields(child.Content(w.src)) {
				switch tok {
				case "public", "private", "protected":
					vis = tok
				case "static", "abstract", "final", "override", "virtual", "const", "readonly":
					mods = append(mods, tok)
				}
			}
		case "decorator", "attribute_item", "annotation", "marker_annotation":
			mods = append(mods, strings.TrimSpace(child.Content(w.src)))
		}
	}
	switch w.lang {
	case "python", "ruby":
		if strings.HasPrefix(name, "_") {
			vis = "private"
		}
	case "go":
		if name != "" && name[0] >= 'a' && name[0] <= 'z' {
			vis = "package"
		}
	case "rust":
		if node.ChildByFieldName("visibility_modifier") == nil &&
			firstOfKind(node, "visibility_modifier") == nil {
			vis = "private"
		}
	}
	return mods, vis
}

// bodyDocstring captures the trailing documentation convention: a string
// expression as the first statement of a Python body.
func (w *treeWalker) bodyDocstring(node *sitter.Node) string {
	if w.lang != "python" {
		return ""
	}
	body := node.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	if s := first.NamedChild(0); s.Type() == "string" {
		return strings.Trim(s.Content(w.src), "\"' \n\r")
	}
	return ""
}

// collectCalls gathers call expressions inside a function's span without
// descending into nested function declarations.
func (w *treeWalker) collectCalls(node *sitter.Node, d *Decl) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		kind := child.Type()
		if kind != node.Type() && (w.spec.functions[kind] || w.spec.classes[kind]) {
			continue
		}
		if w.spec.calls[kind] {
			if call, ok := w.callFrom(child); ok {
				d.Calls = append(d.Calls, call)
			}
		}
		w.collectCalls(child, d)
	}
}

func (w *treeWalker) callFrom(node *sitter.Node) (Call, bool) {
	var target string
	if f := node.ChildByFieldName("function"); f != nil {
		target = f.Content(w.src)
	} else if n := node.ChildByFieldName("name"); n != nil {
		target = n.Content(w.src)
		if obj := node.ChildByFieldName("object"); obj != nil {
			target = obj.Content(w.src) + "." + target
		}
	} else if w.lang == "ruby" {
		if m := node.ChildByFieldName("method"); m != nil {
			target = m.Content(w.src)
		}
	}
	target = strings.TrimSpace(target)
	if target == "" || strings.ContainsAny(target, "(){}[]") {
		return Call{}, false
	}

	args := -1
	if a := node.ChildByFieldName("arguments"); a != nil {
		args = int(a.NamedChildCount())
	}
	return Call{
		Target: target,
		Args:   args,
		Line:   int(node.StartPoint().Row) + 1,
	}, true
}

func (w *treeWalker) importFrom(node *sitter.Node) (Import, bool) {
	imp := Import{Line: int(node.StartPoint().Row) + 1}

	switch node.Type() {
	case "import_from_statement": // python: from X import Y [as Z]
		if m := node.ChildByFieldName("module_name"); m != nil {
			imp.Target = m.Content(w.src)
		}
	case "preproc_include":
		if p := node.ChildByFieldName("path"); p != nil {
			imp.Target = strings.Trim(p.Content(w.src), "\"<>")
		}
	default:
		if m := node.ChildByFieldName("module_name"); m != nil {
			imp.Target = m.Content(w.src)
		} else if m := node.ChildByFieldName("name"); m != nil {
			imp.Target = m.Content(w.src)
		} else if m := node.ChildByFieldName("path"); m != nil {
			imp.Target = strings.Trim(m.Content(w.src), "\"'")
		} else if m := node.ChildByFieldName("source"); m != nil {
			imp.Target = strings.Trim(m.Content(w.src), "\"'")
		} else if m := firstOfKind(node, "dotted_name"); m != nil {
			imp.Target = m.Content(w.src)
		} else if m := firstOfKind(node, "string"); m != nil {
			imp.Target = strings.Trim(m.Content(w.src), "\"'`")
		} else if m := firstOfKind(node, "scoped_identifier"); m != nil {
			imp.Target = m.Content(w.src)
		}
	}

	// Aliased forms: python "import x as y", go named import_spec.
	if a := node.ChildByFieldName("alias"); a != nil {
		imp.Alias = a.Content(w.src)
	} else if a := firstOfKind(node, "aliased_import"); a != nil {
		if n := a.ChildByFieldName("alias"); n != nil {
			imp.Alias = n.Content(w.src)
		}
		if n := a.ChildByFieldName("name"); n != nil {
			imp.Target = n.Content(w.src)
		}
	}

	imp.Target = strings.TrimSpace(imp.Target)
	return imp, imp.Target != ""
}

// nodeName extracts a declaration's name via the grammar's name field or
// the first identifier-like child.
func nodeName(node *sitter.Node, src []byte) string {
	if n := node.ChildByFieldName("name"); n != nil {
		return n.Content(src)
	}
	if d := node.ChildByFieldName("declarator"); d != nil {
		// C/C++ function_definition: name hides inside the declarator.
		if id := firstOfKind(d, "identifier"); id != nil {
			return id.Content(src)
		}
		if id := firstOfKind(d, "field_identifier"); id != nil {
			return id.Content(src)
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier", "type_identifier", "field_identifier",
			"property_identifier", "constant":
			return child.Content(src)
		}
	}
	return ""
}

// firstOfKind returns the first descendant of the given kind, depth-first.
func firstOfKind(node *sitter.Node, kind string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == kind {
			return child
		}
		if found := firstOfKind(child, kind); found != nil {
			return found
		}
	}
	return nil
}

// identifierTexts collects identifier-like leaf texts under a node.
func identifierTexts(node *sitter.Node, src []byte) []string {
	var out []string
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		switch n.Type() {
		case "identifier", "type_identifier", "constant", "scoped_identifier",
			"scoped_type_identifier", "attribute", "qualified_name":
			out = append(out, n.Content(src))
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(node)
	return out
}

// stripCommentMarkers removes per-line comment syntax, keeping the text.
func stripCommentMarkers(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "///")
		line = strings.TrimPrefix(line, "//")
		line = strings.TrimPrefix(line, "#")
		line = strings.TrimPrefix(line, "/*")
		line = strings.TrimSuffix(line, "*/")
		line = strings.TrimPrefix(strings.TrimSpace(line), "* ")
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// mergeComments joins comment nodes on consecutive lines into blocks.
func mergeComments(comments []Comment) []Comment {
	if len(comments) == 0 {
		return nil
	}
	var out []Comment
	cur := comments[0]
	for _, c := range comments[1:] {
		if c.StartLine == cur.EndLine+1 {
			cur.Text += "\n" + c.Text
			cur.EndLine = c.EndLine
			continue
		}
		out = append(out, cur)
		cur = c
	}
	return append(out, cur)
}
