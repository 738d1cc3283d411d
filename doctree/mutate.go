package doctree

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// CreateElement allocates a detached element.
func (d *Document) CreateElement(tag string, attrs ...html.Attribute) NodeID {
	tag = strings.ToLower(tag)
	var cp []html.Attribute
	if len(attrs) > 0 {
		cp = make([]html.Attribute, len(attrs))
		copy(cp, attrs)
	}
	return d.alloc(node{
		kind:  KindElement,
		tag:   tag,
		atom:  atom.Lookup([]byte(tag)),
		attrs: cp,
	})
}

// CreateText allocates a detached text node.
func (d *Document) CreateText(s string) NodeID {
	return d.alloc(node{kind: KindText, data: s})
}

// CreateComment allocates a detached comment node.
func (d *Document) CreateComment(s string) NodeID {
	return d.alloc(node{kind: KindComment, data: s})
}

// AppendChild attaches a detached child as the last child of parent.
func (d *Document) AppendChild(parent, child NodeID) error {
	return d.InsertBefore(parent, child, None)
}

// InsertBefore attaches a detached child to parent before ref. A None ref
// appends.
func (d *Document) InsertBefore(parent, child, ref NodeID) error {
	p, c := d.get(parent), d.get(child)
	if p == nil || c == nil {
		return ErrInvalidNode
	}
	if p.kind != KindElement && p.kind != KindDocument {
		return ErrHierarchy
	}
	if c.parent != None || c.kind == KindDocument || d.Contains(child, parent) {
		return ErrHierarchy
	}
	if ref != None {
		r := d.get(ref)
		if r == nil || r.parent != parent {
			return ErrHierarchy
		}
	}

	c.parent = parent
	if ref == None {
		c.prev = p.last
		c.next = None
		if p.last != None {
			d.nodes[p.last].next = child
		} else {
			p.first = child
		}
		p.last = child
		return nil
	}
	r := &d.nodes[ref]
	c.prev = r.prev
	c.next = ref
	if r.prev != None {
		d.nodes[r.prev].next = child
	} else {
		p.first = child
	}
	r.prev = child
	return nil
}

// Detach unlinks id from its parent. The node and its subtree stay alive and
// may be re-attached.
func (d *Document) Detach(id NodeID) {
	n := d.get(id)
	if n == nil || n.parent == None {
		return
	}
	p := &d.nodes[n.parent]
	if n.prev != None {
		d.nodes[n.prev].next = n.next
	} else {
		p.first = n.next
	}
	if n.next != None {
		d.nodes[n.next].prev = n.prev
	} else {
		p.last = n.prev
	}
	n.parent, n.prev, n.next = None, None, None
}

// Delete detaches id and invalidates every handle in its subtree.
func (d *Document) Delete(id NodeID) {
	if !d.Valid(id) || id == d.root {
		return
	}
	d.Detach(id)
	var kill func(NodeID)
	kill = func(n NodeID) {
		for c := d.nodes[n].first; c != None; c = d.nodes[c].next {
			kill(c)
		}
		d.nodes[n].dead = true
	}
	kill(id)
}

// MoveBefore detaches child and re-inserts it under parent before ref.
func (d *Document) MoveBefore(parent, child, ref NodeID) error {
	if child == ref {
		return ErrHierarchy
	}
	if !d.Valid(child) {
		return ErrInvalidNode
	}
	if d.Contains(child, parent) {
		return ErrHierarchy
	}
	d.Detach(child)
	return d.InsertBefore(parent, child, ref)
}

// SplitText splits a text node at byte offset off, keeping data[:off] in id
// and moving data[off:] into a new text node inserted right after it. off
// must lie strictly inside the text and on a UTF-8 boundary.
func (d *Document) SplitText(id NodeID, off int) (NodeID, error) {
	n := d.get(id)
	if n == nil || n.kind != KindText {
		return None, ErrInvalidNode
	}
	if off <= 0 || off >= len(n.data) || !runeStart(n.data, off) {
		return None, ErrOffset
	}
	tail := d.CreateText(n.data[off:])
	n = &d.nodes[id] // alloc may have grown the arena
	n.data = n.data[:off]
	if n.parent == None {
		return tail, nil
	}
	if err := d.InsertBefore(n.parent, tail, n.next); err != nil {
		return None, err
	}
	return tail, nil
}

// Normalize merges adjacent text children of parent and drops empty text
// children. Handles of merged-away nodes become invalid.
func (d *Document) Normalize(parent NodeID) {
	if !d.Valid(parent) {
		return
	}
	c := d.nodes[parent].first
	for c != None {
		next := d.nodes[c].next
		if d.nodes[c].kind != KindText {
			c = next
			continue
		}
		for next != None && d.nodes[next].kind == KindText {
			d.nodes[c].data += d.nodes[next].data
			after := d.nodes[next].next
			d.Delete(next)
			next = after
		}
		if d.nodes[c].data == "" {
			d.Delete(c)
		}
		c = next
	}
}

func runeStart(s string, i int) bool {
	return i == len(s) || s[i]&0xC0 != 0x80
}
