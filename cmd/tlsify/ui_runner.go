package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"tlsify/internal/pool"
	"tlsify/internal/ui"
	"tlsify/internal/wire"
)

type analysisOutcome struct {
	result *pool.Result
	err    error
}

func runAnalysisWithUI(ctx context.Context, title string, orch *pool.Orchestrator, req wire.Request) (*pool.Result, error) {
	shards := orch.Plan(req.SourceFiles)
	sizes := make([]int, len(shards))
	for i, s := range shards {
		sizes[i] = len(s)
	}

	events := make(chan pool.Event, 256)
	outcomeCh := make(chan analysisOutcome, 1)

	go func() {
		o := *orch
		o.Progress = pool.Tee(orch.Progress, pool.ChannelSink{Ch: events})
		res, err := o.Run(ctx, req)
		outcomeCh <- analysisOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, sizes, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil && outcome.err == nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
