package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"storyvm/internal/ui"
)

type batchOutcome struct {
	results []batchResult
	err     error
}

// runBatchWithUI runs the batch while a Bubble Tea view renders its progress.
func runBatchWithUI(ctx context.Context, r *batchRunner, stories []string, jobs int) ([]batchResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := make(chan ui.Event, 256)
	outcomeCh := make(chan batchOutcome, 1)

	go func() {
		rc := *r
		rc.events = events
		res, err := rc.runAll(ctx, stories, jobs)
		outcomeCh <- batchOutcome{results: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel("running stories", stories, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	// The view quits early on ctrl-c: stop the runners and drain their events.
	cancel()
	go func() {
		for range events { //nolint:revive // drain
		}
	}()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}
