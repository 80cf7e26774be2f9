// Package wire defines the one-shot messages exchanged with worker
// processes: one Request on the worker's stdin, one Response on its stdout.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"tlsify/internal/diag"
	"tlsify/internal/rewrite"
)

// Current schema version - increment when Request or Response change
const SchemaVersion uint16 = 1

// ErrSchema is returned when a message was written by a different build.
var ErrSchema = errors.New("wire schema mismatch")

// Request is everything a worker needs to analyse one shard.
type Request struct {
	Schema uint16

	// Batch identity, for log correlation only
	RunID string
	Shard int

	IncludePaths []string
	SourceFiles  []string
	SourceRoot   string

	Keyword       string
	PrefixMacros  []string
	KeepGoing     bool
	ReportSkipped bool
}

// Response is the complete result of one shard.
type Response struct {
	Schema      uint16
	Records     []rewrite.Record
	Diagnostics []diag.Diagnostic
}

// WriteRequest encodes req to w, stamping the schema version.
func WriteRequest(w io.Writer, req *Request) error {
	req.Schema = SchemaVersion
	return msgpack.NewEncoder(w).Encode(req)
}

// ReadRequest decodes exactly one request from r.
func ReadRequest(r io.Reader) (*Request, error) {
	var req Request
	if err := decodeAll(r, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if req.Schema != SchemaVersion {
		return nil, fmt.Errorf("%w: request v%d, want v%d", ErrSchema, req.Schema, SchemaVersion)
	}
	return &req, nil
}

// WriteResponse encodes resp to w, stamping the schema version.
func WriteResponse(w io.Writer, resp *Response) error {
	resp.Schema = SchemaVersion
	return msgpack.NewEncoder(w).Encode(resp)
}

// ReadResponse decodes exactly one response. Empty input, trailing bytes or
// a foreign schema all make the response undecodable.
func ReadResponse(r io.Reader) (*Response, error) {
	var resp Response
	if err := decodeAll(r, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Schema != SchemaVersion {
		return nil, fmt.Errorf("%w: response v%d, want v%d", ErrSchema, resp.Schema, SchemaVersion)
	}
	return &resp, nil
}

func decodeAll(r io.Reader, out any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return io.ErrUnexpectedEOF
	}
	br := bytes.NewReader(data)
	if err := msgpack.NewDecoder(br).Decode(out); err != nil {
		return err
	}
	if br.Len() != 0 {
		return fmt.Errorf("%d trailing byte(s)", br.Len())
	}
	return nil
}
