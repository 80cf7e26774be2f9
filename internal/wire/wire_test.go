package wire

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"tlsify/internal/diag"
	"tlsify/internal/rewrite"
	"tlsify/internal/source"
)

func TestResponseCarriesRecordsAndDiagnostics(t *testing.T) {
	resp := &Response{
		Records: []rewrite.Record{
			{Path: "/src/a.c", Offset: 7, Text: "__thread ", Unit: "/src/a.c", Name: "x"},
			{Path: "/src/a.h", Offset: 0, Length: 3, Text: "int"},
		},
		Diagnostics: []diag.Diagnostic{
			diag.New(diag.SevError, diag.ExistingTLS, "y is already thread-local").
				At("/src/a.c", 40).
				WithPos(source.LineCol{Line: 3, Col: 1}).
				With("unit", "/src/a.c"),
		},
	}
	var buf bytes.Buffer
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	got, err := ReadResponse(&buf)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if !reflect.DeepEqual(got.Records, resp.Records) {
		t.Fatalf("records = %+v", got.Records)
	}
	if len(got.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %+v", got.Diagnostics)
	}
	d := got.Diagnostics[0]
	if d.Code != diag.ExistingTLS || d.Severity != diag.SevError || d.Location() != "/src/a.c:3:1" {
		t.Fatalf("diagnostic = %+v", d)
	}
	if unit, ok := d.Field("unit"); !ok || unit != "/src/a.c" {
		t.Fatalf("diagnostic = %+v", d)
	}
}

func TestUndecodableResponses(t *testing.T) {
	var good bytes.Buffer
	if err := WriteResponse(&good, &Response{}); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}

	stale, err := msgpack.Marshal(&Response{Schema: SchemaVersion + 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	cases := map[string][]byte{
		"empty":     nil,
		"garbage":   []byte("not msgpack at all"),
		"trailing":  append(append([]byte{}, good.Bytes()...), 0x01),
		"truncated": good.Bytes()[:good.Len()-1],
		"schema":    stale,
	}
	for name, data := range cases {
		if _, err := ReadResponse(bytes.NewReader(data)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := ReadResponse(bytes.NewReader(stale)); !errors.Is(err, ErrSchema) {
		t.Errorf("schema: expected ErrSchema, got %v", err)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	req := &Request{
		RunID:        "run-1",
		Shard:        2,
		IncludePaths: []string{"/src/include"},
		SourceFiles:  []string{"/src/a.c", "/src/b.c"},
		SourceRoot:   "/src",
		Keyword:      "__thread",
		PrefixMacros: []string{"NON_EXEC_STATIC"},
		KeepGoing:    true,
	}
	var buf bytes.Buffer
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	got, err := ReadRequest(&buf)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if !reflect.DeepEqual(got, req) {
		t.Fatalf("got %+v, want %+v", got, req)
	}
}
