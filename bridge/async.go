package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	// ErrDropped is returned by Async.Send when the buffer is full.
	ErrDropped = errors.New("bridge: buffer full, message dropped")
	// ErrClosed is returned by Async.Send after Close.
	ErrClosed = errors.New("bridge: sink closed")
)

// Async decouples emitters from slow sinks. Send never blocks: messages are
// queued in a bounded buffer and delivered in order by one goroutine.
type Async struct {
	next   Sink
	ch     chan Message
	done   chan struct{}
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

// NewAsync starts delivering to next with a buffer of size messages
// (default 256).
func NewAsync(next Sink, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		next:   next,
		ch:     make(chan Message, size),
		done:   make(chan struct{}),
		logger: logger,
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for msg := range a.ch {
		if err := a.next.Send(context.Background(), msg); err != nil {
			a.logger.Warn("bridge: async delivery failed", "type", msg.Type, "seq", msg.Seq, "error", err)
		}
	}
}

// Send queues msg. ctx is not used; delivery happens on the background
// goroutine.
func (a *Async) Send(_ context.Context, msg Message) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.ch <- msg:
		return nil
	default:
		a.dropped.Add(1)
		a.logger.Warn("bridge: buffer full, dropping message", "type", msg.Type, "seq", msg.Seq)
		return ErrDropped
	}
}

// Dropped returns how many messages were dropped on a full buffer.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Close drains the buffer and closes the wrapped sink.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()
	<-a.done
	return a.next.Close()
}
