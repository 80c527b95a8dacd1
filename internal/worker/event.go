package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Event carries one lifecycle event through its handler. Work registered with
// WaitUntil extends the event: dispatch does not finish until it settles.
type Event struct {
	Name string

	ctx   context.Context
	group *errgroup.Group
}

func newEvent(ctx context.Context, name string) *Event {
	g, gctx := errgroup.WithContext(ctx)
	return &Event{Name: name, ctx: gctx, group: g}
}

// Context is cancelled when the dispatcher is torn down or registered work fails.
func (e *Event) Context() context.Context {
	return e.ctx
}

// WaitUntil registers asynchronous work with the event.
func (e *Event) WaitUntil(work func(ctx context.Context) error) {
	e.group.Go(func() error {
		return work(e.ctx)
	})
}

// wait blocks until every registered piece of work has returned and reports
// the first failure.
func (e *Event) wait() error {
	return e.group.Wait()
}

// dispatch runs handler for a new event and waits for its extended work.
func dispatch(ctx context.Context, name string, handler func(*Event)) error {
	ev := newEvent(ctx, name)
	handler(ev)
	return ev.wait()
}
