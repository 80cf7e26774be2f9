package cfront

// scanWords returns the identifier-like tokens of a specifier prefix that
// sit outside braces and parentheses. Comments and literals are skipped, so
// `struct { const int a; }` or `/* const */` contribute nothing.
func scanWords(b []byte) []string {
	var out []string
	depth := 0
	for i := 0; i < len(b); {
		if j, ok := skipTrivia(b, i); ok {
			i = j
			continue
		}
		ch := b[i]
		switch {
		case ch == '{' || ch == '(' || ch == '[':
			depth++
			i++
		case ch == '}' || ch == ')' || ch == ']':
			if depth > 0 {
				depth--
			}
			i++
		case isIdentStart(ch):
			j := identEnd(b, i)
			if depth == 0 {
				out = append(out, string(b[i:j]))
			}
			i = j
		default:
			i++
		}
	}
	return out
}

// skipTrivia steps over a comment or a string/char literal starting at i.
func skipTrivia(b []byte, i int) (int, bool) {
	ch := b[i]
	switch {
	case ch == '/' && i+1 < len(b) && b[i+1] == '*':
		i += 2
		for i+1 < len(b) && !(b[i] == '*' && b[i+1] == '/') {
			i++
		}
		return min(i+2, len(b)), true
	case ch == '/' && i+1 < len(b) && b[i+1] == '/':
		for i < len(b) && b[i] != '\n' {
			i++
		}
		return i, true
	case ch == '"' || ch == '\'':
		i++
		for i < len(b) && b[i] != ch {
			if b[i] == '\\' {
				i++
			}
			i++
		}
		return min(i+1, len(b)), true
	}
	return i, false
}

// closing returns the index of the bracket closing the one at open, or
// len(b) when it is never closed.
func closing(b []byte, open int) int {
	depth := 0
	for i := open; i < len(b); {
		if j, ok := skipTrivia(b, i); ok {
			i = j
			continue
		}
		switch b[i] {
		case '{', '(', '[':
			depth++
		case '}', ')', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
		i++
	}
	return len(b)
}

// splitDeclarators splits the declarator list that starts at from into one
// range per declarator, each cut before its initializer. It stops after the
// terminating ';', or before a bracket that closes an enclosing scope, and
// returns where it stopped.
func splitDeclarators(b []byte, from uint32) ([][2]uint32, uint32) {
	var out [][2]uint32
	segStart, segEnd := int(from), -1
	flush := func(at int) {
		if segEnd < 0 {
			segEnd = at
		}
		out = append(out, [2]uint32{offset(segStart), offset(segEnd)})
	}
	depth := 0
	for i := int(from); i < len(b); {
		if j, ok := skipTrivia(b, i); ok {
			i = j
			continue
		}
		switch ch := b[i]; {
		case ch == '{' || ch == '(' || ch == '[':
			depth++
		case ch == '}' || ch == ')' || ch == ']':
			if depth == 0 {
				flush(i)
				return out, offset(i)
			}
			depth--
		case depth == 0 && ch == '=':
			if segEnd < 0 {
				segEnd = i
			}
		case depth == 0 && ch == ',':
			flush(i)
			segStart, segEnd = i+1, -1
		case depth == 0 && ch == ';':
			flush(i)
			return out, offset(i + 1)
		}
		i++
	}
	flush(len(b))
	return out, offset(len(b))
}

func offset(i int) uint32 {
	return uint32(i) // #nosec G115 -- content length checked in load
}

var (
	attributeWords = map[string]bool{
		"__attribute__": true, "__declspec": true, "_Alignas": true, "alignas": true,
	}
	pointerQualifiers = map[string]bool{
		"volatile": true, "restrict": true, "__restrict": true, "_Atomic": true,
	}
)

// declShape is one declarator read from text: the words in front of it,
// its name and what it derives from the base type.
type declShape struct {
	words  []string
	name   string
	ptrs   []bool // const-qualified, innermost first
	arrays []bool // sized, outermost first
	fn     bool
	inner  *declShape // parenthesized declarator, e.g. (*fp)
}

const (
	tokNone = iota
	tokName
	tokAttr
	tokGroup
)

func parseShape(b []byte) declShape {
	var s declShape
	var after []string
	prev := tokNone
	for i := 0; i < len(b); {
		if j, ok := skipTrivia(b, i); ok {
			i = j
			continue
		}
		ch := b[i]
		switch {
		case ch == '*':
			s.ptrs = append(s.ptrs, false)
			prev = tokNone
			i++
		case ch == '(' || ch == '[':
			j := closing(b, i)
			body := b[i+1 : min(j, len(b))]
			next := tokNone
			switch {
			case prev == tokAttr:
			case ch == '[':
				s.arrays = append(s.arrays, !isBlank(body))
			case s.inner == nil && startsWithPointer(body):
				in := parseShape(body)
				s.inner = &in
				next = tokGroup
			case prev == tokName || prev == tokGroup:
				s.fn = true
			}
			prev = next
			i = j + 1
		case isIdentStart(ch):
			j := identEnd(b, i)
			w := string(b[i:j])
			prev = tokName
			switch {
			case attributeWords[w]:
				prev = tokAttr
			case len(s.ptrs) == 0:
				s.words = append(s.words, w)
			case w == "const":
				s.ptrs[len(s.ptrs)-1] = true
			case pointerQualifiers[w]:
			default:
				after = append(after, w)
			}
			i = j
		default:
			i++
		}
	}

	switch {
	case s.inner != nil:
		s.name = s.inner.name
	case len(after) > 0:
		s.name = after[len(after)-1]
	case len(s.words) > 0:
		s.name = s.words[len(s.words)-1]
		s.words = s.words[:len(s.words)-1]
	}
	return s
}

// apply derives the declared type from base, innermost derivation first.
func (s declShape) apply(t *Type) *Type {
	for _, konst := range s.ptrs {
		t = &Type{Kind: TypePointer, Elem: t, Const: konst}
	}
	if s.fn {
		t = &Type{Kind: TypeFunction, Elem: t}
	}
	for i := len(s.arrays) - 1; i >= 0; i-- {
		t = &Type{Kind: TypeArray, Elem: t, Sized: s.arrays[i]}
	}
	if s.inner != nil {
		t = s.inner.apply(t)
	}
	return t
}

func startsWithPointer(b []byte) bool {
	for _, ch := range b {
		switch ch {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			continue
		}
		return ch == '*'
	}
	return false
}

func identEnd(b []byte, i int) int {
	j := i + 1
	for j < len(b) && isIdentPart(b[j]) {
		j++
	}
	return j
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || ch >= '0' && ch <= '9'
}

func isBlank(b []byte) bool {
	for _, ch := range b {
		switch ch {
		case ' ', '\t', '\n', '\r', '\f', '\v':
		default:
			return false
		}
	}
	return true
}
