package cfront

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

var (
	defaultThreadLocal = []string{"__thread", "_Thread_local", "thread_local"}
	// words that may stand alone in an error node right before a
	// declaration, when the grammar failed on an unknown specifier
	specifierWords = []string{
		"static", "extern", "auto", "register", "const", "volatile",
		"inline", "__inline", "__inline__", "_Noreturn", "restrict",
	}
	storageClasses = map[string]bool{
		"static": true, "extern": true, "auto": true, "register": true,
	}
	asmWords = map[string]bool{"asm": true, "__asm": true, "__asm__": true}
	declaratorKinds = map[string]bool{
		"identifier":               true,
		"type_identifier":          true, // typedef names
		"init_declarator":          true,
		"pointer_declarator":       true,
		"array_declarator":         true,
		"function_declarator":      true,
		"parenthesized_declarator": true,
		"attributed_declarator":    true,
	}
)

type typedefEntry struct {
	file *parsedFile
	decl *sitter.Node // type_definition
	d    *sitter.Node // its declarator
}

// converter lowers tree-sitter nodes of one unit into Nodes.
type converter struct {
	tls       map[string]bool
	prefix    map[string]bool
	typedefs  map[string]typedefEntry
	resolved  map[string]*Type
	resolving map[string]bool
}

func newConverter(files []*parsedFile, opts ParseOptions) *converter {
	c := &converter{
		tls:       make(map[string]bool),
		prefix:    make(map[string]bool),
		typedefs:  make(map[string]typedefEntry),
		resolved:  make(map[string]*Type),
		resolving: make(map[string]bool),
	}
	for _, w := range defaultThreadLocal {
		c.tls[w] = true
	}
	for _, w := range opts.ThreadLocalKeywords {
		c.tls[w] = true
	}
	for _, w := range specifierWords {
		c.prefix[w] = true
	}
	for w := range c.tls {
		c.prefix[w] = true
	}
	for _, w := range opts.SpecifierMacros {
		c.prefix[w] = true
	}

	// first definition wins, as a compiler would reject the rest anyway
	for _, pf := range files {
		for _, item := range pf.items {
			if item.Type() != "type_definition" {
				continue
			}
			for _, d := range declarators(item) {
				name := declaratorName(pf, d)
				if name == "" {
					continue
				}
				if _, ok := c.typedefs[name]; !ok {
					c.typedefs[name] = typedefEntry{file: pf, decl: item, d: d}
				}
			}
		}
	}
	return c
}

func (c *converter) unit(files []*parsedFile) *Node {
	root := &Node{Kind: KindTranslationUnit}
	if len(files) > 0 {
		main := files[0]
		root.Range = Range{File: main.path, End: uint32(len(main.content))} // #nosec G115 -- checked in load
	}
	for _, pf := range files {
		for _, item := range pf.items {
			root.Children = append(root.Children, c.item(pf, item)...)
		}
	}
	return root
}

func (c *converter) item(pf *parsedFile, n *sitter.Node) []*Node {
	switch n.Type() {
	case "declaration":
		return c.declaration(pf, n)
	case "function_definition":
		if fn := c.function(pf, n); fn != nil {
			return []*Node{fn}
		}
	case "type_definition":
		return c.typedef(pf, n)
	}
	return nil
}

func (c *converter) declaration(pf *parsedFile, n *sitter.Node) []*Node {
	ds := declarators(n)
	if head := c.macroTypeHead(pf, n, ds); head != nil {
		return c.macroDeclaration(pf, n, head)
	}
	if len(ds) == 0 || c.isMacroInvocation(pf, n, ds) {
		return nil
	}
	words, start := c.specifiers(pf, n)
	base := c.baseType(pf, n, words)
	storage := storageOf(words)
	tls := c.threadLocal(words)

	out := make([]*Node, 0, len(ds))
	for _, d := range ds {
		name, t := c.unwind(pf, d, base)
		if name == "" {
			continue
		}
		kind := KindVar
		if t.Kind == TypeFunction {
			kind = KindFunctionDecl
		}
		out = append(out, &Node{
			Kind:        kind,
			Name:        name,
			Storage:     storage,
			Specifiers:  words,
			Type:        t,
			Range:       Range{File: pf.path, Start: start, End: n.EndByte()},
			ThreadLocal: tls,
		})
	}
	return out
}

// isMacroInvocation recognises `FOO(bar);` at statement level: the grammar
// reads it as a declaration of bar with type FOO.
func (c *converter) isMacroInvocation(pf *parsedFile, n *sitter.Node, ds []*sitter.Node) bool {
	if len(ds) != 1 || ds[0].Type() != "parenthesized_declarator" {
		return false
	}
	typ := n.ChildByFieldName("type")
	if typ == nil || typ.Type() != "type_identifier" {
		return false
	}
	if _, ok := c.typedefs[typ.Content(pf.content)]; ok {
		return false
	}
	inner := innerDeclarator(ds[0])
	return inner != nil && inner.Type() == "identifier"
}

// macroTypeHead recognises `MACRO T name;` where MACRO is a specifier
// macro such as PGDLLIMPORT: the grammar takes MACRO for the type and T for
// a bare declarator, and the real declarator ends up in an error node.
// It returns the node holding T.
func (c *converter) macroTypeHead(pf *parsedFile, n *sitter.Node, ds []*sitter.Node) *sitter.Node {
	typ := n.ChildByFieldName("type")
	if typ == nil || typ.Type() != "type_identifier" {
		return nil
	}
	if _, ok := c.typedefs[typ.Content(pf.content)]; ok {
		return nil
	}
	var head *sitter.Node
	if len(ds) > 0 {
		head = ds[0]
		if head.Type() == "init_declarator" {
			head = head.ChildByFieldName("declarator")
		}
	} else {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			ch := n.NamedChild(i)
			if ch != nil && ch.StartByte() >= typ.EndByte() && ch.Type() == "primitive_type" {
				head = ch
				break
			}
		}
	}
	if head == nil {
		return nil
	}
	switch head.Type() {
	case "identifier", "type_identifier", "primitive_type":
	default:
		return nil
	}
	// a real declarator name is never followed by another name or a '*'
	next := head.EndByte()
	for int(next) < len(pf.content) && isBlank(pf.content[next:next+1]) {
		next++
	}
	if int(next) >= len(pf.content) {
		return nil
	}
	switch ch := pf.content[next]; {
	case ch == '*':
	case isIdentStart(ch):
		w := string(pf.content[next:identEnd(pf.content, int(next))])
		if attributeWords[w] || asmWords[w] {
			return nil
		}
	default:
		return nil
	}
	return head
}

// macroDeclaration reads the declarators of a macro-prefixed declaration
// from the source text, starting at the word the grammar took for the
// declarator.
func (c *converter) macroDeclaration(pf *parsedFile, n *sitter.Node, head *sitter.Node) []*Node {
	words, start := c.specifiersUntil(pf, n, head.StartByte())
	segs, end := splitDeclarators(pf.content, head.StartByte())
	if end < n.EndByte() {
		end = n.EndByte()
	}
	if len(segs) == 0 {
		return nil
	}

	first := parseShape(pf.content[segs[0][0]:segs[0][1]])
	words = append(append([]string(nil), words...), first.words...)
	var spelling []string
	for _, w := range first.words {
		if !c.prefix[w] {
			spelling = append(spelling, w)
		}
	}
	var base *Type
	if len(spelling) == 1 {
		base = c.resolveTypedef(spelling[0])
	}
	if base == nil {
		base = &Type{Kind: TypeScalar, Spelling: strings.Join(spelling, " ")}
	}
	for _, w := range words {
		if w == "const" {
			base = withConst(base)
			break
		}
	}
	storage := storageOf(words)
	tls := c.threadLocal(words)

	out := make([]*Node, 0, len(segs))
	for i, seg := range segs {
		shape := first
		if i > 0 {
			shape = parseShape(pf.content[seg[0]:seg[1]])
		}
		if shape.name == "" {
			continue
		}
		t := shape.apply(base)
		kind := KindVar
		if t.Kind == TypeFunction {
			kind = KindFunctionDecl
		}
		out = append(out, &Node{
			Kind:        kind,
			Name:        shape.name,
			Storage:     storage,
			Specifiers:  words,
			Type:        t,
			Range:       Range{File: pf.path, Start: start, End: end},
			ThreadLocal: tls,
		})
	}
	return out
}

func (c *converter) function(pf *parsedFile, n *sitter.Node) *Node {
	d := n.ChildByFieldName("declarator")
	if d == nil {
		return nil
	}
	words, start := c.specifiers(pf, n)
	name, t := c.unwind(pf, d, c.baseType(pf, n, words))
	fn := &Node{
		Kind:       KindFunction,
		Name:       name,
		Storage:    storageOf(words),
		Specifiers: words,
		Type:       t,
		Range:      Range{File: pf.path, Start: start, End: n.EndByte()},
	}
	if body := n.ChildByFieldName("body"); body != nil {
		fn.Children = []*Node{c.block(pf, body)}
	}
	return fn
}

func (c *converter) typedef(pf *parsedFile, n *sitter.Node) []*Node {
	var out []*Node
	for _, d := range declarators(n) {
		name := declaratorName(pf, d)
		if name == "" {
			continue
		}
		out = append(out, &Node{
			Kind:  KindTypedef,
			Name:  name,
			Type:  c.resolveTypedef(name),
			Range: Range{File: pf.path, Start: n.StartByte(), End: n.EndByte()},
		})
	}
	return out
}

func (c *converter) block(pf *parsedFile, n *sitter.Node) *Node {
	b := &Node{
		Kind:  KindBlock,
		Range: Range{File: pf.path, Start: n.StartByte(), End: n.EndByte()},
	}
	c.statements(pf, n, &b.Children)
	return b
}

// statements collects declarations, nested blocks and nested function
// definitions found under n, looking through control statements.
func (c *converter) statements(pf *parsedFile, n *sitter.Node, out *[]*Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		ch := n.Child(i)
		if ch == nil {
			continue
		}
		switch ch.Type() {
		case "declaration":
			*out = append(*out, c.declaration(pf, ch)...)
		case "compound_statement":
			*out = append(*out, c.block(pf, ch))
		case "function_definition":
			if fn := c.function(pf, ch); fn != nil {
				*out = append(*out, fn)
			}
		case "type_definition":
			*out = append(*out, c.typedef(pf, ch)...)
		default:
			if ch.NamedChildCount() > 0 {
				c.statements(pf, ch, out)
			}
		}
	}
}

// specifiers returns the specifier words of a declaration and the offset
// where its range starts. An error node that directly precedes the
// declaration and holds only specifier words belongs to it: the grammar
// splits `NON_EXEC_STATIC int x;` that way.
func (c *converter) specifiers(pf *parsedFile, n *sitter.Node) ([]string, uint32) {
	end := n.EndByte()
	if d := n.ChildByFieldName("declarator"); d != nil {
		end = d.StartByte()
	}
	return c.specifiersUntil(pf, n, end)
}

func (c *converter) specifiersUntil(pf *parsedFile, n *sitter.Node, end uint32) ([]string, uint32) {
	start := n.StartByte()
	words := scanWords(pf.content[start:end])

	prev := n.PrevSibling()
	if prev != nil && prev.Type() == "ERROR" && isBlank(pf.content[prev.EndByte():start]) {
		extra := scanWords(pf.content[prev.StartByte():prev.EndByte()])
		if len(extra) > 0 && c.allPrefix(extra) {
			words = append(extra, words...)
			start = prev.StartByte()
		}
	}
	return words, start
}

func (c *converter) allPrefix(words []string) bool {
	for _, w := range words {
		if !c.prefix[w] {
			return false
		}
	}
	return true
}

func (c *converter) threadLocal(words []string) bool {
	for _, w := range words {
		if c.tls[w] {
			return true
		}
	}
	return false
}

func storageOf(words []string) string {
	for _, w := range words {
		if storageClasses[w] {
			return w
		}
	}
	return ""
}

func (c *converter) baseType(pf *parsedFile, n *sitter.Node, words []string) *Type {
	var t *Type
	typ := n.ChildByFieldName("type")
	if typ != nil && typ.Type() == "type_identifier" {
		t = c.resolveTypedef(typ.Content(pf.content))
	}
	if t == nil {
		spelling := ""
		if typ != nil {
			spelling = strings.Join(strings.Fields(typ.Content(pf.content)), " ")
		}
		t = &Type{Kind: TypeScalar, Spelling: spelling}
	}
	for _, w := range words {
		if w == "const" {
			return withConst(t)
		}
	}
	return t
}

// resolveTypedef returns the type a typedef name stands for, or nil when
// the name is unknown. Results are shared and must not be mutated.
func (c *converter) resolveTypedef(name string) *Type {
	if t, ok := c.resolved[name]; ok {
		return t
	}
	entry, ok := c.typedefs[name]
	if !ok || c.resolving[name] {
		return nil
	}
	c.resolving[name] = true
	words, _ := c.specifiers(entry.file, entry.decl)
	_, t := c.unwind(entry.file, entry.d, c.baseType(entry.file, entry.decl, words))
	delete(c.resolving, name)
	c.resolved[name] = t
	return t
}

// unwind applies declarator d to base, outermost declarator first, and
// returns the declared name with its full type.
func (c *converter) unwind(pf *parsedFile, d *sitter.Node, t *Type) (string, *Type) {
	for d != nil {
		switch d.Type() {
		case "identifier", "type_identifier", "field_identifier":
			return d.Content(pf.content), t
		case "pointer_declarator":
			ptr := &Type{Kind: TypePointer, Elem: t}
			for i := 0; i < int(d.NamedChildCount()); i++ {
				q := d.NamedChild(i)
				if q != nil && q.Type() == "type_qualifier" && q.Content(pf.content) == "const" {
					ptr.Const = true
				}
			}
			t = ptr
			d = d.ChildByFieldName("declarator")
		case "array_declarator":
			t = &Type{Kind: TypeArray, Elem: t, Sized: d.ChildByFieldName("size") != nil}
			d = d.ChildByFieldName("declarator")
		case "function_declarator":
			t = &Type{Kind: TypeFunction, Elem: t}
			d = d.ChildByFieldName("declarator")
		case "init_declarator", "parenthesized_declarator", "attributed_declarator":
			d = innerDeclarator(d)
		default:
			return "", t
		}
	}
	return "", t
}

func declaratorName(pf *parsedFile, d *sitter.Node) string {
	for d != nil {
		switch d.Type() {
		case "identifier", "type_identifier", "field_identifier", "primitive_type":
			return d.Content(pf.content)
		case "pointer_declarator", "array_declarator", "function_declarator":
			d = d.ChildByFieldName("declarator")
		default:
			d = innerDeclarator(d)
		}
	}
	return ""
}

func innerDeclarator(d *sitter.Node) *sitter.Node {
	if inner := d.ChildByFieldName("declarator"); inner != nil {
		return inner
	}
	for i := 0; i < int(d.NamedChildCount()); i++ {
		ch := d.NamedChild(i)
		if ch != nil && declaratorKinds[ch.Type()] {
			return ch
		}
	}
	return nil
}

// declarators lists the declarator children of a declaration, skipping
// everything up to and including its type specifier.
func declarators(n *sitter.Node) []*sitter.Node {
	var after uint32
	if typ := n.ChildByFieldName("type"); typ != nil {
		after = typ.EndByte()
	}
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		ch := n.NamedChild(i)
		if ch == nil || ch.StartByte() < after {
			continue
		}
		if declaratorKinds[ch.Type()] {
			out = append(out, ch)
		}
	}
	return out
}
