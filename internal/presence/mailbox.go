package presence

import (
	"sync"

	"github.com/and161185/goph-talk/internal/errs"
)

// Mailbox is a bounded outbound queue drained by a connection's writer goroutine.
// Put never blocks, and is safe to call concurrently with Close.
type Mailbox[T any] struct {
	mu     sync.Mutex
	closed bool
	ch     chan T
}

// NewMailbox allocates a mailbox holding up to size items (minimum 1).
func NewMailbox[T any](size int) *Mailbox[T] {
	if size < 1 {
		size = 1
	}
	return &Mailbox[T]{ch: make(chan T, size)}
}

// Put enqueues v. It fails with errs.ErrConnClosed after Close and errs.ErrSlowConsumer when full.
func (m *Mailbox[T]) Put(v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errs.ErrConnClosed
	}
	select {
	case m.ch <- v:
		return nil
	default:
		return errs.ErrSlowConsumer
	}
}

// C is the receive side for the writer; it is closed by Close.
func (m *Mailbox[T]) C() <-chan T { return m.ch }

// Close stops accepting items. Items already queued stay readable from C. Idempotent.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}

// Closed reports whether Close was called.
func (m *Mailbox[T]) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
