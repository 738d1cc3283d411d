package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recorder struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recorder) Send(_ context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return r.err
}

func (r *recorder) Close() error { return nil }

func (r *recorder) snapshot() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

func TestStdout_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	_ = s.Send(context.Background(), Message{Type: KindHighlightRemoved, Seq: 1, Data: HighlightRemoved{ID: "hl_1"}})
	_ = s.Send(context.Background(), Message{Type: KindSelectionCleared, Seq: 2})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: got %d, want 2", len(lines))
	}
	var got struct {
		Type string `json:"type"`
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != "highlightRemoved" || got.Data.ID != "hl_1" {
		t.Fatalf("line 0: got %+v", got)
	}
}

func TestRouter_FanOutContinuesOnError(t *testing.T) {
	bad := &recorder{err: errors.New("boom")}
	good := &recorder{}
	r := NewRouter(nil, bad, good)
	err := r.Send(context.Background(), Message{Type: KindContentRendered})
	if err == nil {
		t.Fatal("Send: want first error")
	}
	if len(good.snapshot()) != 1 {
		t.Fatal("good sink skipped after bad sink failed")
	}
}

func TestRouter_AttachDetach(t *testing.T) {
	r := NewRouter(nil)
	var n int
	detach := r.Attach(Func(func(context.Context, Message) error { n++; return nil }))
	_ = r.Send(context.Background(), Message{})
	detach()
	detach()
	_ = r.Send(context.Background(), Message{})
	if n != 1 || r.Len() != 0 {
		t.Fatalf("got n=%d len=%d, want 1 and 0", n, r.Len())
	}
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type: got %q", r.Header.Get("Content-Type"))
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	if err := wh.Send(context.Background(), Message{Type: KindWordSelected}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls: got %d, want 3", calls.Load())
	}
}

func TestWebhook_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookRetries(1), WithWebhookBackoff(time.Millisecond))
	err := wh.Send(context.Background(), Message{})
	if err == nil || !strings.Contains(err.Error(), "all retries exhausted") {
		t.Fatalf("got %v, want exhausted error", err)
	}
}

func TestAsync_DeliversInOrder(t *testing.T) {
	rec := &recorder{}
	a := NewAsync(rec, 16, nil)
	for i := 1; i <= 10; i++ {
		if err := a.Send(context.Background(), Message{Seq: uint64(i)}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	msgs := rec.snapshot()
	if len(msgs) != 10 {
		t.Fatalf("delivered: got %d, want 10", len(msgs))
	}
	for i, m := range msgs {
		if m.Seq != uint64(i+1) {
			t.Fatalf("order: msgs[%d].Seq = %d", i, m.Seq)
		}
	}
	if err := a.Send(context.Background(), Message{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close: got %v, want ErrClosed", err)
	}
}

func TestAsync_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	blocking := Func(func(context.Context, Message) error { <-release; return nil })
	a := NewAsync(blocking, 1, nil)

	var dropped int
	for i := 0; i < 5; i++ {
		if errors.Is(a.Send(context.Background(), Message{}), ErrDropped) {
			dropped++
		}
	}
	close(release)
	_ = a.Close()
	if dropped == 0 || a.Dropped() != uint64(dropped) {
		t.Fatalf("dropped: got %d (counter %d), want > 0", dropped, a.Dropped())
	}
}

func TestEmitter_StampsMessages(t *testing.T) {
	rec := &recorder{}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewEmitter(rec, WithPage("p1"), WithClock(func() time.Time { return at }))
	e.Emit(KindSelectionCleared, nil)
	e.Emit(KindWordSelected, WordSelected{Word: "hi"})

	msgs := rec.snapshot()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].Seq != 1 || msgs[1].Seq != 2 {
		t.Fatalf("seq: got %d,%d", msgs[0].Seq, msgs[1].Seq)
	}
	if msgs[1].Page != "p1" || !msgs[1].Timestamp.Equal(at) {
		t.Fatalf("stamp: got %+v", msgs[1])
	}
}

func TestWebSocket_Send(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	sent := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			sent <- err
			return
		}
		ws := NewWebSocket(conn, time.Second)
		sent <- ws.Send(context.Background(), Message{Type: KindSelectable, Data: Selectable{Enabled: true}})
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close()

	if err := <-sent; err != nil {
		t.Fatalf("Send: %v", err)
	}
	var got struct {
		Type string     `json:"type"`
		Data Selectable `json:"data"`
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.Type != "selectable" || !got.Data.Enabled {
		t.Fatalf("got %+v", got)
	}
}
