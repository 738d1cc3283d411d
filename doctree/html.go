package doctree

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Parse reads an HTML document. The parser always synthesises html, head
// and body elements.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("doctree: parse: %w", err)
	}
	d := New()
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		d.importNode(d.root, c)
	}
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// SetInnerHTML replaces the children of an element with the parsed fragment.
func (d *Document) SetInnerHTML(id NodeID, fragment string) error {
	if !d.IsElement(id) {
		return ErrInvalidNode
	}
	n := d.nodes[id]
	ctx := &html.Node{Type: html.ElementNode, Data: n.tag, DataAtom: n.atom}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return fmt.Errorf("doctree: parse fragment: %w", err)
	}
	for c := d.nodes[id].first; c != None; {
		next := d.nodes[c].next
		d.Delete(c)
		c = next
	}
	for _, hn := range nodes {
		d.importNode(id, hn)
	}
	return nil
}

func (d *Document) importNode(parent NodeID, hn *html.Node) {
	var id NodeID
	switch hn.Type {
	case html.ElementNode:
		id = d.alloc(node{
			kind:  KindElement,
			tag:   hn.Data,
			atom:  hn.DataAtom,
			attrs: append([]html.Attribute(nil), hn.Attr...),
		})
	case html.TextNode:
		id = d.CreateText(hn.Data)
	case html.CommentNode:
		id = d.CreateComment(hn.Data)
	case html.DoctypeNode:
		id = d.alloc(node{kind: KindDoctype, data: hn.Data, attrs: append([]html.Attribute(nil), hn.Attr...)})
	default:
		return
	}
	_ = d.AppendChild(parent, id)
	for c := hn.FirstChild; c != nil; c = c.NextSibling {
		d.importNode(id, c)
	}
}

// Export converts the subtree at id to an *html.Node tree.
func (d *Document) Export(id NodeID) *html.Node {
	n := d.get(id)
	if n == nil {
		return nil
	}
	hn := &html.Node{}
	switch n.kind {
	case KindDocument:
		hn.Type = html.DocumentNode
	case KindElement:
		hn.Type = html.ElementNode
		hn.Data = n.tag
		hn.DataAtom = n.atom
		hn.Attr = append([]html.Attribute(nil), n.attrs...)
	case KindText:
		hn.Type = html.TextNode
		hn.Data = n.data
	case KindComment:
		hn.Type = html.CommentNode
		hn.Data = n.data
	case KindDoctype:
		hn.Type = html.DoctypeNode
		hn.Data = n.data
		hn.Attr = append([]html.Attribute(nil), n.attrs...)
	}
	for c := n.first; c != None; c = d.nodes[c].next {
		hn.AppendChild(d.Export(c))
	}
	return hn
}

// Render writes the whole document as HTML.
func (d *Document) Render(w io.Writer) error {
	return d.RenderNode(w, d.root)
}

// RenderNode writes the subtree at id as HTML.
func (d *Document) RenderNode(w io.Writer, id NodeID) error {
	hn := d.Export(id)
	if hn == nil {
		return ErrInvalidNode
	}
	return html.Render(w, hn)
}

// String renders the whole document.
func (d *Document) String() string {
	var buf bytes.Buffer
	_ = d.Render(&buf)
	return buf.String()
}

// OuterHTML renders the node itself.
func (d *Document) OuterHTML(id NodeID) string {
	var buf bytes.Buffer
	if err := d.RenderNode(&buf, id); err != nil {
		return ""
	}
	return buf.String()
}

// InnerHTML renders the children of id.
func (d *Document) InnerHTML(id NodeID) string {
	var buf bytes.Buffer
	for c := d.FirstChild(id); c != None; c = d.nodes[c].next {
		_ = d.RenderNode(&buf, c)
	}
	return buf.String()
}
