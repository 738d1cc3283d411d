// Package registry is the in-memory index of live highlights.
package registry

import (
	"fmt"
	"time"

	"github.com/hazyhaar/readmark/annotate/internal/fault"
	"github.com/hazyhaar/readmark/doctree"
)

// Highlight is a persisted-by-host annotation over a span of article text.
type Highlight struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Entry pairs a highlight with the marker node that renders it.
type Entry struct {
	Highlight
	Marker doctree.NodeID
}

// Registry keeps entries keyed by id in insertion order.
type Registry struct {
	byID  map[string]int
	items []Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[string]int)}
}

// Add registers h with its marker.
func (r *Registry) Add(h Highlight, marker doctree.NodeID) error {
	if _, ok := r.byID[h.ID]; ok {
		return fmt.Errorf("registry: add %q: %w", h.ID, fault.ErrDuplicateID)
	}
	r.byID[h.ID] = len(r.items)
	r.items = append(r.items, Entry{Highlight: h, Marker: marker})
	return nil
}

// Remove deletes and returns the entry for id.
func (r *Registry) Remove(id string) (Entry, error) {
	i, ok := r.byID[id]
	if !ok {
		return Entry{}, fmt.Errorf("registry: remove %q: %w", id, fault.ErrNotFound)
	}
	e := r.items[i]
	r.items = append(r.items[:i], r.items[i+1:]...)
	delete(r.byID, id)
	for j := i; j < len(r.items); j++ {
		r.byID[r.items[j].ID] = j
	}
	return e, nil
}

// Lookup returns the entry for id.
func (r *Registry) Lookup(id string) (Entry, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Entry{}, false
	}
	return r.items[i], true
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// List returns the highlights in insertion order.
func (r *Registry) List() []Highlight {
	out := make([]Highlight, len(r.items))
	for i, e := range r.items {
		out[i] = e.Highlight
	}
	return out
}

// Entries returns a copy of every entry in insertion order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.items))
	copy(out, r.items)
	return out
}

// IDs returns the registered ids in insertion order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.items))
	for i, e := range r.items {
		out[i] = e.ID
	}
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.items) }

// Clear drops every entry.
func (r *Registry) Clear() {
	r.items = nil
	clear(r.byID)
}
