package hoststore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/readmark/bridge"
	"github.com/hazyhaar/readmark/dbopen"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(dbopen.OpenMemory(t, dbopen.WithSchema(Schema)))
}

func TestApply_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	if err := s.RegisterPage(ctx, "pg1", "https://example.com/a", "A"); err != nil {
		t.Fatal(err)
	}
	sink := s.Sink()

	send := func(kind bridge.Kind, data any) {
		t.Helper()
		if err := sink.Send(ctx, bridge.Message{Type: kind, Page: "pg1", Data: data}); err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
	}
	send(bridge.KindHighlightCreated, bridge.HighlightCreated{ID: "hl_1", Text: "one", Timestamp: 1000})
	send(bridge.KindHighlightCreated, bridge.HighlightCreated{ID: "hl_2", Text: "two", Timestamp: 2000})
	send(bridge.KindSelectionCleared, nil)

	got, err := s.Highlights(ctx, "https://example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "hl_1" || got[1].Text != "two" {
		t.Fatalf("got %+v", got)
	}
	if got[0].CreatedAt.UnixMilli() != 1000 {
		t.Errorf("created at: got %v", got[0].CreatedAt)
	}

	send(bridge.KindHighlightRemoved, bridge.HighlightRemoved{ID: "hl_1"})
	got, _ = s.Highlights(ctx, "https://example.com/a")
	if len(got) != 1 || got[0].ID != "hl_2" {
		t.Fatalf("after remove: got %+v", got)
	}

	send(bridge.KindAllHighlightsRemoved, bridge.AllHighlightsRemoved{Count: 1})
	got, _ = s.Highlights(ctx, "https://example.com/a")
	if len(got) != 0 {
		t.Fatalf("after remove all: got %+v", got)
	}
}

func TestApply_SurvivesNewSession(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_ = s.RegisterPage(ctx, "pg1", "https://example.com/a", "")
	_ = s.Apply(ctx, bridge.Message{Type: bridge.KindHighlightCreated, Page: "pg1",
		Data: map[string]any{"id": "hl_1", "text": "kept", "timestamp": 5}})

	_ = s.RegisterPage(ctx, "pg2", "https://example.com/a", "")
	got, err := s.Highlights(ctx, "https://example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "kept" || got[0].PageID != "pg1" {
		t.Fatalf("got %+v", got)
	}
}

func TestApply_UnknownPage(t *testing.T) {
	s := newStore(t)
	err := s.Apply(context.Background(), bridge.Message{
		Type: bridge.KindHighlightRemoved, Page: "nope", Data: bridge.HighlightRemoved{ID: "x"},
	})
	if !errors.Is(err, ErrUnknownPage) {
		t.Fatalf("got %v, want ErrUnknownPage", err)
	}
}

func TestOpen_File(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "data", "readmark.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.RegisterPage(context.Background(), "pg", "u", "t"); err != nil {
		t.Fatal(err)
	}
}
