package analyze

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"tlsify/internal/cfront"
	"tlsify/internal/diag"
	"tlsify/internal/rewrite"
	"tlsify/internal/source"
)

type fakeFrontEnd struct {
	unit *cfront.Unit
	err  error
}

func (f *fakeFrontEnd) Parse(context.Context, string, cfront.ParseOptions) (*cfront.Unit, error) {
	return f.unit, f.err
}

func (f *fakeFrontEnd) Close() {}

func canonicalDir(t *testing.T) string {
	t.Helper()
	dir, err := source.Canonical(t.TempDir())
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	return dir
}

func intType() *cfront.Type {
	return &cfront.Type{Kind: cfront.TypeScalar, Spelling: "int"}
}

func TestFakeUnitCandidates(t *testing.T) {
	root := canonicalDir(t)
	path := filepath.Join(root, "a.c")
	outside := "/usr/include/errno.h"
	src := []byte("static int x;\nint no_such_variable;\n")

	varNode := func(name, storage string, start, end uint32, file string) *cfront.Node {
		return &cfront.Node{
			Kind:    cfront.KindVar,
			Name:    name,
			Storage: storage,
			Type:    intType(),
			Range:   cfront.Range{File: file, Start: start, End: end},
		}
	}
	unit := &cfront.Unit{
		Path:    path,
		Files:   []string{path, outside},
		Sources: map[string][]byte{path: src, outside: []byte("int errno;\n")},
		Root: &cfront.Node{Kind: cfront.KindTranslationUnit, Children: []*cfront.Node{
			varNode("x", "static", 0, 13, path),
			varNode("no_such_variable", "", 14, 35, path),
			varNode("errno", "", 0, 10, outside),
			{Kind: cfront.KindFunction, Name: "f", Children: []*cfront.Node{
				{Kind: cfront.KindBlock, Children: []*cfront.Node{
					varNode("local", "", 0, 13, path),
					// a duplicate proposal for the same spot must collapse
					varNode("x", "static", 0, 13, path),
				}},
			}},
		}},
	}

	bag := diag.NewBag(0)
	a, err := New(&fakeFrontEnd{unit: unit}, Options{SourceRoot: root}, diag.BagReporter{Bag: bag})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	recs, err := a.AnalyzeFile(context.Background(), path)
	if err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %+v", recs)
	}
	want := rewrite.Record{Path: path, Offset: 7, Text: "__thread ", Unit: path, Name: "x"}
	if recs[0] != want {
		t.Fatalf("record = %+v, want %+v", recs[0], want)
	}
}

func TestExistingThreadLocalIsReported(t *testing.T) {
	root := canonicalDir(t)
	path := filepath.Join(root, "a.c")
	src := []byte("static __thread int x;\n")
	unit := &cfront.Unit{
		Path:    path,
		Sources: map[string][]byte{path: src},
		Root: &cfront.Node{Kind: cfront.KindTranslationUnit, Children: []*cfront.Node{{
			Kind: cfront.KindVar, Name: "x", Storage: "static", Type: intType(), ThreadLocal: true,
			Range: cfront.Range{File: path, Start: 0, End: 22},
		}}},
	}
	bag := diag.NewBag(0)
	a, err := New(&fakeFrontEnd{unit: unit}, Options{SourceRoot: root}, diag.BagReporter{Bag: bag})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	recs, err := a.AnalyzeFile(context.Background(), path)
	if err != nil || len(recs) != 0 {
		t.Fatalf("recs=%v err=%v", recs, err)
	}
	var found bool
	for _, d := range bag.Items() {
		if d.Code == diag.ExistingTLS {
			found = true
			if d.Severity != diag.SevError || d.Pos.Line != 1 {
				t.Fatalf("diagnostic = %+v", d)
			}
		}
	}
	if !found {
		t.Fatalf("no ExistingTLS diagnostic in %v", bag.Codes())
	}
}

func TestDegenerateRange(t *testing.T) {
	root := canonicalDir(t)
	path := filepath.Join(root, "a.c")
	unit := &cfront.Unit{
		Path:    path,
		Sources: map[string][]byte{path: []byte("static ")},
		Root: &cfront.Node{Kind: cfront.KindTranslationUnit, Children: []*cfront.Node{{
			Kind: cfront.KindVar, Name: "broken", Storage: "static", Type: intType(),
			Range: cfront.Range{File: path, Start: 0, End: 7},
		}}},
	}
	bag := diag.NewBag(0)
	a, err := New(&fakeFrontEnd{unit: unit}, Options{SourceRoot: root}, diag.BagReporter{Bag: bag})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	recs, err := a.AnalyzeFile(context.Background(), path)
	if err != nil || len(recs) != 0 {
		t.Fatalf("recs=%v err=%v", recs, err)
	}
	codes := bag.Codes()
	if len(codes) == 0 || !containsCode(codes, diag.InsertionPointNotFound) {
		t.Fatalf("codes = %v", codes)
	}
}

func TestParseFailureIsRecoverable(t *testing.T) {
	root := canonicalDir(t)
	bag := diag.NewBag(0)
	a, err := New(&fakeFrontEnd{err: errors.New("boom")}, Options{SourceRoot: root}, diag.BagReporter{Bag: bag})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	recs, err := a.AnalyzeFile(context.Background(), filepath.Join(root, "a.c"))
	if err != nil || recs != nil {
		t.Fatalf("recs=%v err=%v", recs, err)
	}
	if !containsCode(bag.Codes(), diag.ParseFailure) {
		t.Fatalf("codes = %v", bag.Codes())
	}

	a, err = New(&fakeFrontEnd{err: cfront.ErrFrontEndUnavailable}, Options{SourceRoot: root}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.AnalyzeFile(context.Background(), "x.c"); !errors.Is(err, cfront.ErrFrontEndUnavailable) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestPrefixPattern(t *testing.T) {
	re := PrefixPattern(DefaultPrefixMacros)
	cases := []struct {
		decl string
		want int
	}{
		{"static int x;", 7},
		{"int x;", 0},
		{"const static  int x;", 14},
		{"NON_EXEC_STATIC int x;", 16},
		{"extern const NON_EXEC_STATIC int x;", 29},
		{"constant_t x;", 0},
		{"  static\n\tint x;", 10},
	}
	for _, tc := range cases {
		loc := re.FindStringIndex(tc.decl)
		if loc == nil || loc[0] != 0 || loc[1] != tc.want {
			t.Errorf("%q: match %v, want end %d", tc.decl, loc, tc.want)
		}
	}
}

const sample = `static int x;
static const int c = 1;
static const int carr[10];
static int *parr[10];
int no_such_variable;
extern int ext;
const char *msg = "hi";
int f(void)
{
	static int calls;
	int local = 0;
	return calls + local;
}
`

const sampleRewritten = `static __thread int x;
static const int c = 1;
static const int carr[10];
static __thread int *parr[10];
int no_such_variable;
extern __thread int ext;
const __thread char *msg = "hi";
int f(void)
{
	static __thread int calls;
	int local = 0;
	return calls + local;
}
`

func analyzeWithTreeSitter(t *testing.T, root, path string, opts Options, r diag.Reporter) []rewrite.Record {
	t.Helper()
	fe, err := cfront.NewTreeSitter()
	if err != nil {
		t.Fatalf("NewTreeSitter: %v", err)
	}
	defer fe.Close()
	opts.SourceRoot = root
	opts.KeepGoing = true
	a, err := New(fe, opts, r)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	recs, err := a.Analyze(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	return recs
}

func applyRecords(t *testing.T, src []byte, recs []rewrite.Record) []byte {
	t.Helper()
	edits := make([]rewrite.Edit, 0, len(recs))
	for _, r := range recs {
		edits = append(edits, r.Edit())
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].Offset < edits[j].Offset })
	out, err := rewrite.Apply(src, edits)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return out
}

func TestTreeSitterEndToEndAndIdempotence(t *testing.T) {
	root := canonicalDir(t)
	path := filepath.Join(root, "sample.c")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	recs := analyzeWithTreeSitter(t, root, path, Options{}, nil)
	if len(recs) != 5 {
		t.Fatalf("expected 5 records, got %+v", recs)
	}
	if recs[0].Offset != 7 || recs[0].Name != "x" {
		t.Fatalf("first record = %+v", recs[0])
	}
	out := applyRecords(t, []byte(sample), recs)
	if string(out) != sampleRewritten {
		t.Fatalf("rewritten:\n%s", out)
	}

	// second pass over rewritten code proposes nothing
	if err := os.WriteFile(path, out, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	bag := diag.NewBag(0)
	again := analyzeWithTreeSitter(t, root, path, Options{}, diag.BagReporter{Bag: bag})
	if len(again) != 0 {
		t.Fatalf("second pass proposed %+v", again)
	}
	if !containsCode(bag.Codes(), diag.ExistingTLS) {
		t.Fatalf("expected ExistingTLS reports, got %v", bag.Codes())
	}
}

func TestSpecifierMacroDeclarationsKeepTheirNames(t *testing.T) {
	root := canonicalDir(t)
	path := filepath.Join(root, "m.c")
	src := "NON_EXEC_STATIC int counter;\n"
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	recs := analyzeWithTreeSitter(t, root, path, Options{}, nil)
	if len(recs) != 1 || recs[0].Name != "counter" || recs[0].Offset != uint32(len("NON_EXEC_STATIC ")) {
		t.Fatalf("records = %+v", recs)
	}

	out := applyRecords(t, []byte(src), recs)
	if string(out) != "NON_EXEC_STATIC __thread int counter;\n" {
		t.Fatalf("rewritten = %q", out)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	bag := diag.NewBag(0)
	if again := analyzeWithTreeSitter(t, root, path, Options{}, diag.BagReporter{Bag: bag}); len(again) != 0 {
		t.Fatalf("second pass proposed %+v", again)
	}
	var messages []string
	for _, d := range bag.Items() {
		if d.Code == diag.ExistingTLS {
			messages = append(messages, d.Message)
		}
	}
	if len(messages) != 1 || messages[0] != "counter is already thread-local" {
		t.Fatalf("existing thread-local reports = %q", messages)
	}
}

func TestHeadersOutsideRootAreNotEdited(t *testing.T) {
	base := canonicalDir(t)
	root := filepath.Join(base, "src")
	inc := filepath.Join(base, "include")
	for _, d := range []string{root, inc} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(inc, "ext.h"), []byte("int external_counter;\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "local.h"), []byte("int shared_counter;\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	path := filepath.Join(root, "main.c")
	src := "#include <ext.h>\n#include \"local.h\"\nint own;\n"
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	recs := analyzeWithTreeSitter(t, root, path, Options{IncludePaths: []string{inc}}, nil)
	got := map[string]string{}
	for _, r := range recs {
		got[r.Name] = filepath.Base(r.Path)
	}
	if len(got) != 2 || got["own"] != "main.c" || got["shared_counter"] != "local.h" {
		t.Fatalf("records = %+v", recs)
	}
}

func TestCustomKeyword(t *testing.T) {
	root := canonicalDir(t)
	path := filepath.Join(root, "k.c")
	if err := os.WriteFile(path, []byte("static long hits;\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	recs := analyzeWithTreeSitter(t, root, path, Options{Keyword: "_Thread_local"}, nil)
	if len(recs) != 1 || recs[0].Text != "_Thread_local " || recs[0].Offset != 7 {
		t.Fatalf("records = %+v", recs)
	}
}

func containsCode(codes []diag.Code, want diag.Code) bool {
	for _, c := range codes {
		if c == want {
			return true
		}
	}
	return false
}
