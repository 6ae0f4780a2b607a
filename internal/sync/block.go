// This package provides synchronization primitives not found in the standard library.
package sync

import (
	"context"
	"sync"
)

// Block is a barrier that is closed, exactly once, when an operation finishes; it carries the
// operation's result.
type Block interface {
	// Wait waits until either the Block is closed or the provided [context.Context] is cancelled.
	// It returns either the error provided to [Close] or the Context's cancellation error.
	Wait(context.Context) error
	// Done returns a channel that's closed when the Block is closed.
	Done() <-chan struct{}
	// Close unblocks waiters and records err as the result.
	// Only the first call has any effect.
	Close(error)
	// Closed returns true if the Block has been closed.
	Closed() bool
	// Err returns the error passed to [Close], or nil if the Block is still open.
	Err() error
}

type errBlock struct {
	// once guards setting err and closing ch
	once sync.Once
	ch   chan struct{}
	err  error
}

func NewErrorBlock() Block {
	return &errBlock{
		ch: make(chan struct{}),
	}
}

var _ Block = &errBlock{}

func (b *errBlock) Wait(ctx context.Context) error {
	select {
	case <-b.ch:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *errBlock) Close(err error) {
	b.once.Do(func() {
		b.err = err
		close(b.ch)
	})
}

func (b *errBlock) Closed() bool {
	select {
	case <-b.ch:
		return true
	default:
		return false
	}
}

func (b *errBlock) Done() <-chan struct{} {
	return b.ch
}

func (b *errBlock) Err() error {
	if !b.Closed() {
		return nil
	}
	return b.err
}
