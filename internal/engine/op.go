package engine

import (
	"context"
	"sync"
)

// Op tracks the remote half of an optimistic mutation. The local half is
// already applied when the Op is returned; callers that need to chain a
// dependent action wait on it, everyone else ignores it.
type Op struct {
	name string
	done chan struct{}
	once sync.Once
	err  error
}

func newOp(name string) *Op {
	return &Op{name: name, done: make(chan struct{})}
}

// completedOp returns an Op that is already finished.
func completedOp(name string, err error) *Op {
	op := newOp(name)
	op.finish(err)
	return op
}

func (o *Op) finish(err error) {
	o.once.Do(func() {
		o.err = err
		close(o.done)
	})
}

// Name is the operation label used in logs and notifications.
func (o *Op) Name() string {
	return o.name
}

// Done is closed when the remote call chain has finished.
func (o *Op) Done() <-chan struct{} {
	return o.done
}

// Err returns the outcome. It is nil while the Op is still running.
func (o *Op) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Wait blocks until the Op finishes or ctx ends.
func (o *Op) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
