package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/readmark/annotate"
	"github.com/hazyhaar/readmark/dbopen"
	"github.com/hazyhaar/readmark/idgen"
	"github.com/hazyhaar/readmark/kit"
)

func newLogger(t *testing.T, opts ...Option) *Logger {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return New(db, 16, opts...)
}

func TestLog_FillsDefaults(t *testing.T) {
	l := newLogger(t, WithIDs(idgen.Sequence("a_")))
	defer l.Close()
	ctx := context.Background()

	if err := l.Log(ctx, Entry{Op: "set_busy", Error: "boom"}); err != nil {
		t.Fatal(err)
	}
	got, err := l.Query(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("entries: got %d, want 1", len(got))
	}
	if got[0].ID != "a_1" || got[0].Status != "error" || got[0].Timestamp.IsZero() {
		t.Errorf("entry: got %+v", got[0])
	}
}

func TestLogAsync_DrainedOnClose(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	l := New(db, 16, WithFlushInterval(time.Hour))
	for i := range 5 {
		l.LogAsync(Entry{Op: fmt.Sprintf("op_%d", i)})
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("rows: got %d, want 5", n)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestMiddleware_RecordsCall(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	l := New(db, 16)

	ok := l.Middleware("list_highlights")(func(context.Context, any) (any, error) { return "x", nil })
	fail := l.Middleware("create_highlight")(func(context.Context, any) (any, error) {
		return nil, fmt.Errorf("wrap: %w", annotate.ErrNoSelection)
	})

	ctx := kit.WithTraceID(kit.WithPageID(kit.WithTransport(context.Background(), "mcp"), "pg_1"), "abcd")
	if _, err := ok(ctx, map[string]string{"page": "pg_1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := fail(ctx, nil); !errors.Is(err, annotate.ErrNoSelection) {
		t.Fatalf("error not passed through: %v", err)
	}
	l.Close()

	got, err := l.Query(context.Background(), Filter{PageID: "pg_1", Op: "create_highlight"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("entries: got %d, want 1", len(got))
	}
	e := got[0]
	if e.Status != "error" || e.ErrorCode != "no_selection" || e.Transport != "mcp" || e.TraceID != "abcd" {
		t.Errorf("entry: got %+v", e)
	}

	all, _ := l.Query(context.Background(), Filter{PageID: "pg_1"})
	if len(all) != 2 {
		t.Errorf("page entries: got %d, want 2", len(all))
	}
	for _, e := range all {
		if e.Op == "list_highlights" && e.Params != `{"page":"pg_1"}` {
			t.Errorf("params: got %q", e.Params)
		}
	}
}

func TestQuery_LimitAndSince(t *testing.T) {
	l := newLogger(t)
	defer l.Close()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range 4 {
		if err := l.Log(ctx, Entry{Op: "op", Timestamp: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatal(err)
		}
	}

	got, _ := l.Query(ctx, Filter{Limit: 2})
	if len(got) != 2 || !got[0].Timestamp.Equal(base.Add(3*time.Minute)) {
		t.Errorf("limit: got %+v", got)
	}
	got, _ = l.Query(ctx, Filter{Since: base.Add(2 * time.Minute)})
	if len(got) != 2 {
		t.Errorf("since: got %d, want 2", len(got))
	}
}

func TestCleanup(t *testing.T) {
	l := newLogger(t)
	defer l.Close()
	ctx := context.Background()
	_ = l.Log(ctx, Entry{Op: "old", Timestamp: time.Now().Add(-48 * time.Hour)})
	_ = l.Log(ctx, Entry{Op: "new"})

	n, err := l.Cleanup(ctx, 24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("Cleanup: got %d, %v", n, err)
	}
	got, _ := l.Query(ctx, Filter{})
	if len(got) != 1 || got[0].Op != "new" {
		t.Errorf("remaining: got %+v", got)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("é", 600)
	got := truncate(long, maxParams)
	if !strings.HasSuffix(got, "…") || len(got) > maxParams+len("…") {
		t.Errorf("truncate: len %d", len(got))
	}
	if strings.ContainsRune(got, '�') {
		t.Error("truncate split a rune")
	}
	if truncate("short", maxParams) != "short" {
		t.Error("short input changed")
	}
}

func TestInit(t *testing.T) {
	db := dbopen.OpenMemory(t)
	if err := Init(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	l := New(db, 1)
	defer l.Close()
	if err := l.Log(context.Background(), Entry{Op: "x"}); err != nil {
		t.Errorf("log after Init: %v", err)
	}
}
