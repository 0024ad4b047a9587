// Package channel provides the bounded mailbox used to hand requests to a single owner goroutine.
package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Send and Receive once the mailbox is closed.
var ErrClosed = errors.New("channel: mailbox closed")

// DefaultMailboxSize is used when a non-positive size is requested.
const DefaultMailboxSize = 64

// Mailbox is a bounded multi-producer, single-consumer queue that can be closed
// without racing concurrent senders. The underlying channel is never closed.
type Mailbox[T any] struct {
	ch        chan T
	closed    chan struct{}
	closeOnce sync.Once

	sends    atomic.Int64
	receives atomic.Int64
	blocks   atomic.Int64
}

// NewMailbox creates a mailbox holding up to size pending items.
func NewMailbox[T any](size int) *Mailbox[T] {
	if size <= 0 {
		size = DefaultMailboxSize
	}
	return &Mailbox[T]{
		ch:     make(chan T, size),
		closed: make(chan struct{}),
	}
}

// Send enqueues v, blocking while the mailbox is full.
func (m *Mailbox[T]) Send(ctx context.Context, v T) error {
	select {
	case <-m.closed:
		return ErrClosed
	default:
	}

	select {
	case m.ch <- v:
		m.sends.Add(1)
		return nil
	default:
		m.blocks.Add(1)
		// Blocking send
		select {
		case m.ch <- v:
			m.sends.Add(1)
			return nil
		case <-m.closed:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Receive dequeues the next item, blocking until one arrives, ctx ends or the mailbox closes.
func (m *Mailbox[T]) Receive(ctx context.Context) (T, error) {
	select {
	case v := <-m.ch:
		m.receives.Add(1)
		return v, nil
	case <-m.closed:
		var zero T
		return zero, ErrClosed
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryReceive dequeues without blocking. Used to drain after Close.
func (m *Mailbox[T]) TryReceive() (T, bool) {
	select {
	case v := <-m.ch:
		m.receives.Add(1)
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of pending items.
func (m *Mailbox[T]) Len() int { return len(m.ch) }

// Cap returns the capacity.
func (m *Mailbox[T]) Cap() int { return cap(m.ch) }

// Done is closed when the mailbox is closed.
func (m *Mailbox[T]) Done() <-chan struct{} { return m.closed }

// Close stops accepting items. Pending items stay available to TryReceive.
func (m *Mailbox[T]) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}

// Stats returns mailbox statistics.
func (m *Mailbox[T]) Stats() MailboxStats {
	return MailboxStats{
		Size:        cap(m.ch),
		Length:      len(m.ch),
		Sends:       m.sends.Load(),
		Receives:    m.receives.Load(),
		Blocks:      m.blocks.Load(),
		Utilization: float64(len(m.ch)) / float64(cap(m.ch)),
	}
}

// MailboxStats contains mailbox statistics.
type MailboxStats struct {
	Size        int     `json:"size"`
	Length      int     `json:"length"`
	Sends       int64   `json:"sends"`
	Receives    int64   `json:"receives"`
	Blocks      int64   `json:"blocks"`
	Utilization float64 `json:"utilization"`
}
