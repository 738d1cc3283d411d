package bridge

import (
	"context"
	"log/slog"
	"sync"
)

// Router fans messages out to every attached sink. One sink error does not
// block the others; errors are logged and the first one is returned.
type Router struct {
	mu     sync.RWMutex
	sinks  []Sink
	ids    []uint64
	nextID uint64
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{logger: logger}
	for _, s := range sinks {
		r.Attach(s)
	}
	return r
}

// Attach adds a sink and returns a function that detaches it.
func (r *Router) Attach(s Sink) (detach func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.sinks = append(r.sinks, s)
	r.ids = append(r.ids, id)
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, have := range r.ids {
			if have == id {
				r.sinks = append(r.sinks[:i:i], r.sinks[i+1:]...)
				r.ids = append(r.ids[:i:i], r.ids[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of attached sinks.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

func (r *Router) Send(ctx context.Context, msg Message) error {
	r.mu.RLock()
	sinks := append([]Sink(nil), r.sinks...)
	r.mu.RUnlock()

	var firstErr error
	for _, s := range sinks {
		if err := s.Send(ctx, msg); err != nil {
			r.logger.Warn("bridge: send failed", "type", msg.Type, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.sinks, r.ids = nil, nil
	return firstErr
}
