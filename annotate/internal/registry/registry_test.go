package registry

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/hazyhaar/readmark/annotate/internal/fault"
	"github.com/hazyhaar/readmark/doctree"
)

func hl(id string) Highlight {
	return Highlight{ID: id, Text: "t-" + id, CreatedAt: time.Unix(0, 0)}
}

func TestAdd_Duplicate(t *testing.T) {
	r := New()
	if err := r.Add(hl("a"), 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	err := r.Add(hl("a"), 2)
	if !errors.Is(err, fault.ErrDuplicateID) {
		t.Fatalf("Add dup: got %v, want ErrDuplicateID", err)
	}
	if e, _ := r.Lookup("a"); e.Marker != 1 {
		t.Fatalf("duplicate add replaced marker: got %d", e.Marker)
	}
}

func TestRemove_KeepsOrder(t *testing.T) {
	r := New()
	for i, id := range []string{"a", "b", "c", "d"} {
		if err := r.Add(hl(id), doctree.NodeID(i+1)); err != nil {
			t.Fatal(err)
		}
	}
	e, err := r.Remove("b")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if e.Marker != 2 || e.Text != "t-b" {
		t.Fatalf("Remove returned %+v", e)
	}
	if got, want := r.IDs(), []string{"a", "c", "d"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("IDs: got %v, want %v", got, want)
	}
	if e, ok := r.Lookup("d"); !ok || e.Marker != 4 {
		t.Fatalf("Lookup after shift: got %+v %v", e, ok)
	}
	if _, err := r.Remove("b"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("second Remove: got %v, want ErrNotFound", err)
	}
}

func TestClear(t *testing.T) {
	r := New()
	_ = r.Add(hl("a"), 1)
	_ = r.Add(hl("b"), 2)
	r.Clear()
	if r.Len() != 0 || r.Has("a") || len(r.List()) != 0 {
		t.Fatal("Clear left entries behind")
	}
	if err := r.Add(hl("a"), 3); err != nil {
		t.Fatalf("Add after Clear: %v", err)
	}
}
