package doctree

import (
	"strings"
	"unicode/utf8"
)

// Point is a boundary point. For a text node Offset is a byte offset into its
// data; for any other node it is a child index.
type Point struct {
	Node   NodeID
	Offset int
}

// Range is a pair of boundary points in document order.
type Range struct {
	Start Point
	End   Point
}

// IsZero reports whether r is the zero Range.
func (r Range) IsZero() bool { return r == Range{} }

// ValidPoint reports whether p refers to a live, attached node with an
// in-bounds offset.
func (d *Document) ValidPoint(p Point) bool {
	if !d.Attached(p.Node) || p.Offset < 0 {
		return false
	}
	if d.nodes[p.Node].kind == KindText {
		s := d.nodes[p.Node].data
		return p.Offset <= len(s) && runeStart(s, p.Offset)
	}
	return p.Offset <= d.ChildCount(p.Node)
}

// ordinal maps a boundary point to its position in a document-order
// enumeration of every boundary point.
func (d *Document) ordinal(p Point) (int, bool) {
	if !d.ValidPoint(p) {
		return 0, false
	}
	n, found := 0, -1
	var visit func(NodeID) bool
	visit = func(id NodeID) bool {
		nd := &d.nodes[id]
		if nd.kind == KindText {
			if id == p.Node {
				found = n + p.Offset
				return true
			}
			n += len(nd.data) + 1
			return false
		}
		i := 0
		for c := nd.first; c != None; c = d.nodes[c].next {
			if id == p.Node && i == p.Offset {
				found = n
				return true
			}
			n++
			if visit(c) {
				return true
			}
			i++
		}
		if id == p.Node && i == p.Offset {
			found = n
			return true
		}
		n++
		return false
	}
	visit(d.root)
	return found, found >= 0
}

// Compare returns -1, 0 or 1 as a is before, equal to or after b.
func (d *Document) Compare(a, b Point) (int, error) {
	oa, ok := d.ordinal(a)
	if !ok {
		return 0, ErrInvalidNode
	}
	ob, ok := d.ordinal(b)
	if !ok {
		return 0, ErrInvalidNode
	}
	switch {
	case oa < ob:
		return -1, nil
	case oa > ob:
		return 1, nil
	}
	return 0, nil
}

// RangeText returns the text covered by r, skipping raw-text elements.
func (d *Document) RangeText(r Range) (string, error) {
	s, ok := d.ordinal(r.Start)
	if !ok {
		return "", ErrInvalidNode
	}
	e, ok := d.ordinal(r.End)
	if !ok {
		return "", ErrInvalidNode
	}
	if e < s {
		return "", ErrReversed
	}
	var sb strings.Builder
	n := 0
	var visit func(NodeID, bool)
	visit = func(id NodeID, raw bool) {
		nd := &d.nodes[id]
		if nd.kind == KindText {
			l := len(nd.data)
			lo, hi := max(s, n), min(e, n+l)
			if lo < hi && !raw {
				sb.WriteString(nd.data[lo-n : hi-n])
			}
			n += l + 1
			return
		}
		raw = raw || (nd.kind == KindElement && IsRawText(nd.atom))
		for c := nd.first; c != None; c = d.nodes[c].next {
			n++
			if n > e {
				return
			}
			visit(c, raw)
		}
		n++
	}
	visit(d.root, false)
	return sb.String(), nil
}

// Collapsed reports whether r covers no text.
func (d *Document) Collapsed(r Range) bool {
	txt, err := d.RangeText(r)
	return err != nil || txt == ""
}

// RuneLen returns the length in runes of the rendered text under root.
func (d *Document) RuneLen(root NodeID) int {
	return utf8.RuneCountInString(d.TextContent(root))
}

// PointAt resolves a rune offset into the rendered text under root. At a
// boundary between two text nodes the point lands at the start of the later
// one unless preferEnd is set.
func (d *Document) PointAt(root NodeID, off int, preferEnd bool) (Point, error) {
	if off < 0 {
		return Point{}, ErrOffset
	}
	var (
		pos  int
		last NodeID
		res  Point
		done bool
	)
	d.Walk(root, func(id NodeID) bool {
		if done {
			return false
		}
		nd := &d.nodes[id]
		switch nd.kind {
		case KindElement:
			return !IsRawText(nd.atom)
		case KindText:
		default:
			return true
		}
		if nd.data == "" {
			return false
		}
		l := utf8.RuneCountInString(nd.data)
		if off < pos+l || (preferEnd && off == pos+l) {
			res = Point{Node: id, Offset: byteOffset(nd.data, off-pos)}
			done = true
			return false
		}
		pos += l
		last = id
		return false
	})
	if done {
		return res, nil
	}
	if off == pos && last != None {
		return Point{Node: last, Offset: len(d.nodes[last].data)}, nil
	}
	return Point{}, ErrOffset
}

// RangeAt resolves a [start, end) rune span of the text under root.
func (d *Document) RangeAt(root NodeID, start, end int) (Range, error) {
	if end < start {
		return Range{}, ErrReversed
	}
	s, err := d.PointAt(root, start, false)
	if err != nil {
		return Range{}, err
	}
	e, err := d.PointAt(root, end, true)
	if err != nil {
		return Range{}, err
	}
	if start == end {
		e = s
	}
	return Range{Start: s, End: e}, nil
}

// NodeAt returns the text node containing the rune at off under root.
func (d *Document) NodeAt(root NodeID, off int) NodeID {
	p, err := d.PointAt(root, off, false)
	if err != nil {
		return None
	}
	return p.Node
}

func byteOffset(s string, runes int) int {
	i := 0
	for runes > 0 && i < len(s) {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		runes--
	}
	return i
}
