// Package span wraps document ranges in highlight marker elements and
// unwraps them again.
package span

import (
	"fmt"

	"github.com/hazyhaar/readmark/annotate/internal/fault"
	"github.com/hazyhaar/readmark/doctree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Marker attributes. Hosts and stylesheets rely on these names.
const (
	Class    = "readmark-highlight"
	AttrID   = "data-highlight-id"
	AttrText = "data-highlight-text"
)

// Mutator edits one document.
type Mutator struct {
	doc *doctree.Document
}

// New returns a Mutator over doc.
func New(doc *doctree.Document) *Mutator {
	return &Mutator{doc: doc}
}

// bound is a normalised boundary: either inside a text node (text set, off
// a byte offset strictly inside it) or between children of container (off a
// child index).
type bound struct {
	container doctree.NodeID
	text      doctree.NodeID
	off       int
}

func (m *Mutator) normalize(p doctree.Point) bound {
	d := m.doc
	if !d.IsText(p.Node) {
		return bound{container: p.Node, off: p.Offset}
	}
	parent := d.Parent(p.Node)
	idx := d.ChildIndex(p.Node)
	switch p.Offset {
	case 0:
		return bound{container: parent, off: idx}
	case len(d.Data(p.Node)):
		return bound{container: parent, off: idx + 1}
	}
	return bound{container: parent, text: p.Node, off: p.Offset}
}

// hoist moves a boundary sitting at the very start or end of an inline
// element to just before or after that element.
func (m *Mutator) hoist(b bound) (bound, bool) {
	d := m.doc
	c := b.container
	if b.text != doctree.None || !d.IsElement(c) || d.IsBlock(c) || !d.IsElement(d.Parent(c)) {
		return b, false
	}
	switch b.off {
	case 0:
		return bound{container: d.Parent(c), off: d.ChildIndex(c)}, true
	case d.ChildCount(c):
		return bound{container: d.Parent(c), off: d.ChildIndex(c) + 1}, true
	}
	return b, false
}

func (m *Mutator) chain(b bound) []bound {
	out := []bound{b}
	for {
		next, ok := m.hoist(out[len(out)-1])
		if !ok {
			return out
		}
		out = append(out, next)
	}
}

// IsMarker reports whether id is a highlight marker element.
func (m *Mutator) IsMarker(id doctree.NodeID) bool {
	d := m.doc
	if d.Atom(id) != atom.Span || !d.HasClass(id, Class) {
		return false
	}
	_, ok := d.Attr(id, AttrID)
	return ok
}

func (m *Mutator) insideMarker(id doctree.NodeID) bool {
	for ; id != doctree.None; id = m.doc.Parent(id) {
		if m.IsMarker(id) {
			return true
		}
	}
	return false
}

func (m *Mutator) containsMarker(id doctree.NodeID) bool {
	return m.doc.Find(id, m.IsMarker) != doctree.None
}

func invalid(reason string) error {
	return fmt.Errorf("span: wrap: %s: %w", reason, fault.ErrInvalidRange)
}

// Wrap replaces the content of r with a single marker span carrying id and
// text, and returns the marker. On error the document is unchanged.
func (m *Mutator) Wrap(r doctree.Range, id, text string) (doctree.NodeID, error) {
	d := m.doc
	if !d.ValidPoint(r.Start) || !d.ValidPoint(r.End) {
		return doctree.None, invalid("stale boundary")
	}
	if c, err := d.Compare(r.Start, r.End); err != nil || c >= 0 {
		return doctree.None, invalid("collapsed or reversed")
	}
	if d.Collapsed(r) {
		return doctree.None, invalid("no text")
	}

	start, end, ok := m.commonBounds(m.normalize(r.Start), m.normalize(r.End))
	if !ok {
		return doctree.None, invalid("boundaries in different parents")
	}
	parent := start.container
	if !d.AcceptsPhrasing(parent) {
		return doctree.None, invalid("parent cannot hold inline content")
	}
	if m.insideMarker(parent) {
		return doctree.None, invalid("overlaps an existing highlight")
	}

	first, last := start.text, end.text
	startIdx, endIdx := start.off, end.off
	if first == doctree.None {
		first = d.ChildAt(parent, startIdx)
	} else {
		startIdx = d.ChildIndex(first)
	}
	if last == doctree.None {
		last = d.ChildAt(parent, endIdx-1)
		endIdx--
	} else {
		endIdx = d.ChildIndex(last)
	}
	if first == doctree.None || last == doctree.None || startIdx > endIdx {
		return doctree.None, invalid("empty")
	}
	for n := first; ; n = d.NextSibling(n) {
		if d.IsElement(n) {
			if d.IsBlock(n) || d.IsRawText(n) || d.ContainsBlockOrRaw(n) {
				return doctree.None, invalid("covers a block or raw-text element")
			}
			if m.containsMarker(n) {
				return doctree.None, invalid("overlaps an existing highlight")
			}
		}
		if n == last {
			break
		}
	}

	// Validation done; from here on only infallible edits.
	if end.text != doctree.None {
		if _, err := d.SplitText(end.text, end.off); err != nil {
			return doctree.None, fmt.Errorf("span: wrap: split end: %w", err)
		}
	}
	if start.text != doctree.None {
		tail, err := d.SplitText(start.text, start.off)
		if err != nil {
			return doctree.None, fmt.Errorf("span: wrap: split start: %w", err)
		}
		if last == start.text {
			last = tail
		}
		first = tail
	}

	marker := d.CreateElement("span",
		html.Attribute{Key: "class", Val: Class},
		html.Attribute{Key: AttrID, Val: id},
		html.Attribute{Key: AttrText, Val: text},
	)
	if err := d.InsertBefore(parent, marker, first); err != nil {
		return doctree.None, fmt.Errorf("span: wrap: insert marker: %w", err)
	}
	for n := first; n != doctree.None; {
		next := d.NextSibling(n)
		if err := d.MoveBefore(marker, n, doctree.None); err != nil {
			return doctree.None, fmt.Errorf("span: wrap: move: %w", err)
		}
		if n == last {
			break
		}
		n = next
	}
	return marker, nil
}

// commonBounds hoists the two boundaries out of inline elements until they
// share a container, taking the lowest container that works. Boundaries that
// enclose a whole inline element are then lifted out of it together.
func (m *Mutator) commonBounds(s, e bound) (bound, bound, bool) {
	found := s.container == e.container
	if !found {
		ends := m.chain(e)
	search:
		for _, sb := range m.chain(s) {
			for _, eb := range ends {
				if sb.container == eb.container {
					s, e, found = sb, eb, true
					break search
				}
			}
		}
	}
	if !found {
		return s, e, false
	}
	for {
		ns, ok1 := m.hoist(s)
		ne, ok2 := m.hoist(e)
		if !ok1 || !ok2 || ns.container != ne.container {
			return s, e, true
		}
		s, e = ns, ne
	}
}

// Unwrap moves the marker's children to its position, removes the marker and
// re-merges adjacent text. Unknown, stale or detached markers yield NotFound.
func (m *Mutator) Unwrap(marker doctree.NodeID) error {
	d := m.doc
	if !d.Attached(marker) || !m.IsMarker(marker) {
		return fmt.Errorf("span: unwrap: %w", fault.ErrNotFound)
	}
	parent := d.Parent(marker)
	for c := d.FirstChild(marker); c != doctree.None; c = d.FirstChild(marker) {
		if err := d.MoveBefore(parent, c, marker); err != nil {
			return fmt.Errorf("span: unwrap: %w", err)
		}
	}
	d.Delete(marker)
	d.Normalize(parent)
	return nil
}

// Markers returns every attached marker in document order.
func (m *Mutator) Markers() []doctree.NodeID {
	return m.doc.FindAll(m.doc.Root(), m.IsMarker)
}

// MarkerID returns the highlight id carried by a marker.
func (m *Mutator) MarkerID(marker doctree.NodeID) string {
	v, _ := m.doc.Attr(marker, AttrID)
	return v
}

// MarkerIDs returns the ids of every attached marker in document order.
func (m *Mutator) MarkerIDs() []string {
	markers := m.Markers()
	out := make([]string, len(markers))
	for i, mk := range markers {
		out[i] = m.MarkerID(mk)
	}
	return out
}

// MarkerByID finds the marker for a highlight id.
func (m *Mutator) MarkerByID(id string) doctree.NodeID {
	return m.doc.Find(m.doc.Root(), func(n doctree.NodeID) bool {
		return m.IsMarker(n) && m.MarkerID(n) == id
	})
}

// SweepOrphans unwraps every marker whose id is not referenced and returns
// how many were removed.
func (m *Mutator) SweepOrphans(referenced func(id string) bool) int {
	n := 0
	for _, mk := range m.Markers() {
		if referenced(m.MarkerID(mk)) {
			continue
		}
		if m.Unwrap(mk) == nil {
			n++
		}
	}
	return n
}
