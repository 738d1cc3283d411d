// Package doctree is an arena-allocated HTML document tree with stable node
// handles.
//
// Nodes are addressed by NodeID. A handle stays valid until the node is
// deleted and is never reused for another node, so callers (the highlight
// registry in particular) can hold handles across edits and detect stale ones
// with Valid. Parsing and serialisation go through golang.org/x/net/html.
//
// A Document is not safe for concurrent use; readmark drives each document
// from a single event loop.
package doctree

import (
	"errors"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// NodeID is a handle to a node inside a Document.
type NodeID int32

// None is the zero handle; it never refers to a node.
const None NodeID = 0

// Kind is the type of a node.
type Kind uint8

const (
	KindDocument Kind = iota + 1
	KindElement
	KindText
	KindComment
	KindDoctype
)

var (
	// ErrInvalidNode is returned when a handle is None, out of range or deleted.
	ErrInvalidNode = errors.New("doctree: invalid node")
	// ErrHierarchy is returned when an edit would create a cycle or attach
	// a node that already has a parent.
	ErrHierarchy = errors.New("doctree: hierarchy violation")
	// ErrOffset is returned for a boundary offset outside its node.
	ErrOffset = errors.New("doctree: offset out of range")
	// ErrReversed is returned for a range whose end precedes its start.
	ErrReversed = errors.New("doctree: range end precedes start")
)

type node struct {
	kind  Kind
	tag   string
	atom  atom.Atom
	attrs []html.Attribute
	data  string

	parent, first, last, prev, next NodeID

	dead bool
}

// Document owns every node of one document.
type Document struct {
	nodes []node
	root  NodeID
}

// New returns an empty document containing only the document node.
func New() *Document {
	d := &Document{nodes: make([]node, 1, 256)}
	d.root = d.alloc(node{kind: KindDocument})
	return d
}

func (d *Document) alloc(n node) NodeID {
	d.nodes = append(d.nodes, n)
	return NodeID(len(d.nodes) - 1)
}

// Root returns the document node.
func (d *Document) Root() NodeID { return d.root }

// Len returns the number of live nodes.
func (d *Document) Len() int {
	n := 0
	for i := 1; i < len(d.nodes); i++ {
		if !d.nodes[i].dead {
			n++
		}
	}
	return n
}

// Valid reports whether id refers to a live node.
func (d *Document) Valid(id NodeID) bool {
	return id > None && int(id) < len(d.nodes) && !d.nodes[id].dead
}

// Attached reports whether id is live and reachable from the document root.
func (d *Document) Attached(id NodeID) bool {
	for d.Valid(id) {
		if id == d.root {
			return true
		}
		id = d.nodes[id].parent
	}
	return false
}

func (d *Document) get(id NodeID) *node {
	if !d.Valid(id) {
		return nil
	}
	return &d.nodes[id]
}

// Kind returns the node kind, or 0 for an invalid handle.
func (d *Document) Kind(id NodeID) Kind {
	if n := d.get(id); n != nil {
		return n.kind
	}
	return 0
}

// IsText reports whether id is a text node.
func (d *Document) IsText(id NodeID) bool { return d.Kind(id) == KindText }

// IsElement reports whether id is an element.
func (d *Document) IsElement(id NodeID) bool { return d.Kind(id) == KindElement }

// Tag returns the lower-case element name ("" for non-elements).
func (d *Document) Tag(id NodeID) string {
	if n := d.get(id); n != nil && n.kind == KindElement {
		return n.tag
	}
	return ""
}

// Atom returns the element atom, 0 for unknown tags and non-elements.
func (d *Document) Atom(id NodeID) atom.Atom {
	if n := d.get(id); n != nil && n.kind == KindElement {
		return n.atom
	}
	return 0
}

// Data returns the character data of a text, comment or doctype node.
func (d *Document) Data(id NodeID) string {
	if n := d.get(id); n != nil {
		return n.data
	}
	return ""
}

// SetData replaces the character data of a text or comment node.
func (d *Document) SetData(id NodeID, s string) error {
	n := d.get(id)
	if n == nil || (n.kind != KindText && n.kind != KindComment) {
		return ErrInvalidNode
	}
	n.data = s
	return nil
}

// Parent returns the parent handle or None.
func (d *Document) Parent(id NodeID) NodeID {
	if n := d.get(id); n != nil {
		return n.parent
	}
	return None
}

// FirstChild returns the first child or None.
func (d *Document) FirstChild(id NodeID) NodeID {
	if n := d.get(id); n != nil {
		return n.first
	}
	return None
}

// LastChild returns the last child or None.
func (d *Document) LastChild(id NodeID) NodeID {
	if n := d.get(id); n != nil {
		return n.last
	}
	return None
}

// NextSibling returns the next sibling or None.
func (d *Document) NextSibling(id NodeID) NodeID {
	if n := d.get(id); n != nil {
		return n.next
	}
	return None
}

// PrevSibling returns the previous sibling or None.
func (d *Document) PrevSibling(id NodeID) NodeID {
	if n := d.get(id); n != nil {
		return n.prev
	}
	return None
}

// Children returns the child handles of id in order.
func (d *Document) Children(id NodeID) []NodeID {
	var out []NodeID
	for c := d.FirstChild(id); c != None; c = d.nodes[c].next {
		out = append(out, c)
	}
	return out
}

// ChildCount returns the number of children of id.
func (d *Document) ChildCount(id NodeID) int {
	n := 0
	for c := d.FirstChild(id); c != None; c = d.nodes[c].next {
		n++
	}
	return n
}

// ChildAt returns the i-th child of id, or None.
func (d *Document) ChildAt(id NodeID, i int) NodeID {
	if i < 0 {
		return None
	}
	for c := d.FirstChild(id); c != None; c = d.nodes[c].next {
		if i == 0 {
			return c
		}
		i--
	}
	return None
}

// ChildIndex returns the position of id among its siblings, or -1.
func (d *Document) ChildIndex(id NodeID) int {
	n := d.get(id)
	if n == nil || n.parent == None {
		return -1
	}
	i := 0
	for c := d.nodes[n.parent].first; c != None; c = d.nodes[c].next {
		if c == id {
			return i
		}
		i++
	}
	return -1
}

// Contains reports whether anc is id or one of its ancestors.
func (d *Document) Contains(anc, id NodeID) bool {
	for d.Valid(id) {
		if id == anc {
			return true
		}
		id = d.nodes[id].parent
	}
	return false
}

// Attr returns the value of attribute key on an element.
func (d *Document) Attr(id NodeID, key string) (string, bool) {
	n := d.get(id)
	if n == nil {
		return "", false
	}
	for _, a := range n.attrs {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// Attrs returns a copy of the attributes of an element.
func (d *Document) Attrs(id NodeID) []html.Attribute {
	n := d.get(id)
	if n == nil || len(n.attrs) == 0 {
		return nil
	}
	out := make([]html.Attribute, len(n.attrs))
	copy(out, n.attrs)
	return out
}

// SetAttr sets or replaces attribute key on an element.
func (d *Document) SetAttr(id NodeID, key, val string) error {
	n := d.get(id)
	if n == nil || n.kind != KindElement {
		return ErrInvalidNode
	}
	for i := range n.attrs {
		if n.attrs[i].Namespace == "" && n.attrs[i].Key == key {
			n.attrs[i].Val = val
			return nil
		}
	}
	n.attrs = append(n.attrs, html.Attribute{Key: key, Val: val})
	return nil
}

// RemoveAttr deletes attribute key from an element. Missing keys are ignored.
func (d *Document) RemoveAttr(id NodeID, key string) {
	n := d.get(id)
	if n == nil {
		return
	}
	out := n.attrs[:0]
	for _, a := range n.attrs {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		out = append(out, a)
	}
	n.attrs = out
}

// HasClass reports whether the element's class list contains class.
func (d *Document) HasClass(id NodeID, class string) bool {
	v, ok := d.Attr(id, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

// AddClass appends class to the element's class list if missing.
func (d *Document) AddClass(id NodeID, class string) error {
	if d.HasClass(id, class) {
		return nil
	}
	v, _ := d.Attr(id, "class")
	v = strings.TrimSpace(v + " " + class)
	return d.SetAttr(id, "class", v)
}

// Walk visits the subtree rooted at id in document order. Returning false
// from fn skips the children of the visited node.
func (d *Document) Walk(id NodeID, fn func(NodeID) bool) {
	if !d.Valid(id) {
		return
	}
	var visit func(NodeID)
	visit = func(n NodeID) {
		if !fn(n) {
			return
		}
		for c := d.nodes[n].first; c != None; {
			next := d.nodes[c].next
			visit(c)
			c = next
		}
	}
	visit(id)
}

// Find returns the first node under id (inclusive) matching pred, or None.
func (d *Document) Find(id NodeID, pred func(NodeID) bool) NodeID {
	found := None
	d.Walk(id, func(n NodeID) bool {
		if found != None {
			return false
		}
		if pred(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// FindAll returns every node under id (inclusive) matching pred.
func (d *Document) FindAll(id NodeID, pred func(NodeID) bool) []NodeID {
	var out []NodeID
	d.Walk(id, func(n NodeID) bool {
		if pred(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// ElementByTag returns the first element with the given atom under the root.
func (d *Document) ElementByTag(a atom.Atom) NodeID {
	return d.Find(d.root, func(n NodeID) bool { return d.Atom(n) == a })
}

// ElementByID returns the first element whose id attribute equals id.
func (d *Document) ElementByID(id string) NodeID {
	return d.Find(d.root, func(n NodeID) bool {
		v, ok := d.Attr(n, "id")
		return ok && v == id && d.IsElement(n)
	})
}

// HTMLElement returns the <html> element.
func (d *Document) HTMLElement() NodeID { return d.ElementByTag(atom.Html) }

// Head returns the <head> element.
func (d *Document) Head() NodeID { return d.ElementByTag(atom.Head) }

// Body returns the <body> element.
func (d *Document) Body() NodeID { return d.ElementByTag(atom.Body) }

// TextContent concatenates the text nodes under id, skipping raw-text
// elements such as script and style.
func (d *Document) TextContent(id NodeID) string {
	var sb strings.Builder
	d.Walk(id, func(n NodeID) bool {
		switch d.nodes[n].kind {
		case KindText:
			sb.WriteString(d.nodes[n].data)
		case KindElement:
			return !IsRawText(d.nodes[n].atom)
		}
		return true
	})
	return sb.String()
}
