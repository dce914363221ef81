package resolver

import (
	"context"

	"github.com/spotterhq/spotter/pkg/core"
)

// Task is a query running in the background.
type Task struct {
	done   chan struct{}
	cancel context.CancelFunc

	result core.ResolutionResult
	err    error
}

// Start runs q asynchronously. Cancel abandons the pending candidate lookup;
// Wait then returns context.Canceled.
func (r *Resolver) Start(ctx context.Context, q Query) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(t.done)
		defer cancel()
		t.result, t.err = r.Resolve(ctx, q)
	}()
	return t
}

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel stops the task. It is safe to call more than once and after completion.
func (t *Task) Cancel() {
	t.cancel()
}

// Wait blocks until the task finishes and returns its outcome.
func (t *Task) Wait() (core.ResolutionResult, error) {
	<-t.done
	return t.result, t.err
}
