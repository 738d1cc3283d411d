package bridge

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
)

// Sink is an output backend for messages.
type Sink interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Func delivers messages through a Go function call, without serialisation.
// It is the in-process path used when the host lives in the same binary.
type Func func(ctx context.Context, msg Message) error

// Send implements Sink. A nil Func drops the message.
func (f Func) Send(ctx context.Context, msg Message) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

// Close implements Sink.
func (Func) Close() error { return nil }

// Stdout writes messages as JSON lines to an io.Writer.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(msg)
}

func (s *Stdout) Close() error { return nil }

// Discard drops every message.
var Discard Sink = Func(nil)
