package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tomvdbrandt/canopy/pkg/reconcile"
)

// Messages flowing back into the Update loop. Every network interaction is a
// tea.Cmd goroutine; results are applied on the event loop with
// apply-if-still-present semantics, so out-of-order resolution is safe.

// outcomeMsg carries the result of a reconciled mutation or reload.
type outcomeMsg struct {
	out reconcile.Outcome
}

// statsAppliedMsg signals that the post-render stats tasks have drained and
// the view must refilter (a fail-open connection filter may now exclude
// nodes).
type statsAppliedMsg struct{}

// errMsg carries a failed operation to the error state.
type errMsg struct {
	err error
}

// clearHighlightMsg ends the transient focus highlight.
type clearHighlightMsg struct{}

// configChangedMsg notifies the view that the config file on disk changed.
type configChangedMsg struct{}

// NotifyConfigChanged builds the message the watcher sends into the running
// program when the config file is rewritten.
func NotifyConfigChanged() tea.Msg { return configChangedMsg{} }

const requestTimeout = 30 * time.Second

// outcomeCmd runs fn off-thread and wraps its result for the update loop.
func outcomeCmd(fn func(ctx context.Context) (reconcile.Outcome, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		out, err := fn(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return outcomeMsg{out: out}
	}
}

// drainTasksCmd runs the reconciler's post-render task queue.
func drainTasksCmd(r *reconcile.Reconciler) tea.Cmd {
	if r.PendingTaskCount() == 0 {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		r.RunPendingTasks(ctx)
		return statsAppliedMsg{}
	}
}

// clearHighlightCmd schedules the end of a focus highlight.
func clearHighlightCmd() tea.Cmd {
	return tea.Tick(1200*time.Millisecond, func(time.Time) tea.Msg {
		return clearHighlightMsg{}
	})
}
