package bridge

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Emitter stamps messages for one page and hands them to a sink. Delivery
// errors are logged and otherwise ignored.
type Emitter struct {
	sink   Sink
	page   string
	seq    atomic.Uint64
	now    func() time.Time
	logger *slog.Logger
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithPage tags every message with a page id.
func WithPage(id string) EmitterOption {
	return func(e *Emitter) { e.page = id }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) EmitterOption {
	return func(e *Emitter) { e.now = now }
}

// WithEmitterLogger sets a custom logger.
func WithEmitterLogger(l *slog.Logger) EmitterOption {
	return func(e *Emitter) { e.logger = l }
}

// NewEmitter creates an Emitter over sink.
func NewEmitter(sink Sink, opts ...EmitterOption) *Emitter {
	e := &Emitter{sink: sink, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	if e.sink == nil {
		e.sink = Discard
	}
	return e
}

// Emit sends one message.
func (e *Emitter) Emit(kind Kind, data any) {
	msg := Message{
		Type:      kind,
		Seq:       e.seq.Add(1),
		Timestamp: e.now().UTC(),
		Page:      e.page,
		Data:      data,
	}
	if err := e.sink.Send(context.Background(), msg); err != nil {
		e.logger.Debug("bridge: emit failed", "type", kind, "page", e.page, "error", err)
	}
}
