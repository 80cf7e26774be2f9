package pool

import (
	"context"
	"io"

	"tlsify/internal/analyze"
	"tlsify/internal/cfront"
	"tlsify/internal/diag"
	"tlsify/internal/wire"
)

// FrontEndFactory creates the front end a worker owns for one shard.
type FrontEndFactory func() (cfront.FrontEnd, error)

// TreeSitterFactory is the default FrontEndFactory.
func TreeSitterFactory() (cfront.FrontEnd, error) {
	return cfront.NewTreeSitter()
}

// Serve analyses one shard with a front end of its own. Recoverable
// problems travel back as diagnostics in the response; a non-nil error
// means the shard as a whole failed.
func Serve(ctx context.Context, req *wire.Request, newFrontEnd FrontEndFactory) (*wire.Response, error) {
	if newFrontEnd == nil {
		newFrontEnd = TreeSitterFactory
	}
	fe, err := newFrontEnd()
	if err != nil {
		return nil, err
	}
	defer fe.Close()

	bag := diag.NewBag(0)
	a, err := analyze.New(fe, analyze.Options{
		SourceRoot:    req.SourceRoot,
		IncludePaths:  req.IncludePaths,
		Keyword:       req.Keyword,
		PrefixMacros:  req.PrefixMacros,
		KeepGoing:     req.KeepGoing,
		ReportSkipped: req.ReportSkipped,
	}, diag.BagReporter{Bag: bag})
	if err != nil {
		return nil, err
	}
	recs, err := a.Analyze(ctx, req.SourceFiles)
	if err != nil {
		return nil, err
	}
	// a header shared by several units of the shard reports once
	bag.Dedup()
	bag.Sort()
	return &wire.Response{Records: recs, Diagnostics: bag.Items()}, nil
}

// ServeStream is the body of the worker process: one request in, one
// response out.
func ServeStream(ctx context.Context, in io.Reader, out io.Writer, newFrontEnd FrontEndFactory) error {
	req, err := wire.ReadRequest(in)
	if err != nil {
		return err
	}
	resp, err := Serve(ctx, req, newFrontEnd)
	if err != nil {
		return err
	}
	return wire.WriteResponse(out, resp)
}

// InProcessRunner analyses shards on goroutines of the current process.
// Each call builds its own front end, so shards share no parser state.
type InProcessRunner struct {
	NewFrontEnd FrontEndFactory
}

func (r InProcessRunner) Run(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	return Serve(ctx, req, r.NewFrontEnd)
}
