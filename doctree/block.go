package doctree

import "golang.org/x/net/html/atom"

var blockAtoms = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Body: true, atom.Caption: true, atom.Dd: true, atom.Details: true,
	atom.Dialog: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true, atom.Footer: true,
	atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Head: true,
	atom.Header: true, atom.Hgroup: true, atom.Hr: true, atom.Html: true,
	atom.Li: true, atom.Main: true, atom.Nav: true, atom.Ol: true,
	atom.P: true, atom.Pre: true, atom.Section: true, atom.Summary: true,
	atom.Table: true, atom.Tbody: true, atom.Td: true, atom.Tfoot: true,
	atom.Th: true, atom.Thead: true, atom.Tr: true, atom.Ul: true,
	atom.Colgroup: true, atom.Col: true, atom.Menu: true, atom.Legend: true,
	atom.Optgroup: true, atom.Option: true, atom.Select: true,
}

var rawTextAtoms = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Template: true, atom.Textarea: true,
	atom.Title: true, atom.Noscript: true, atom.Iframe: true, atom.Xmp: true,
	atom.Noembed: true, atom.Noframes: true, atom.Plaintext: true,
}

// Elements whose content model forbids text children.
var noPhrasingAtoms = map[atom.Atom]bool{
	atom.Html: true, atom.Head: true, atom.Table: true, atom.Tbody: true,
	atom.Thead: true, atom.Tfoot: true, atom.Tr: true, atom.Ul: true,
	atom.Ol: true, atom.Dl: true, atom.Colgroup: true, atom.Select: true,
	atom.Optgroup: true, atom.Menu: true,
}

// IsBlock reports whether a renders as a block-level box by default.
func IsBlock(a atom.Atom) bool { return blockAtoms[a] }

// IsRawText reports whether the content of a is not rendered as document text.
func IsRawText(a atom.Atom) bool { return rawTextAtoms[a] }

// IsBlock reports whether id is a block-level element.
func (d *Document) IsBlock(id NodeID) bool {
	return d.IsElement(id) && IsBlock(d.nodes[id].atom)
}

// IsRawText reports whether id is a raw-text element.
func (d *Document) IsRawText(id NodeID) bool {
	return d.IsElement(id) && IsRawText(d.nodes[id].atom)
}

// AcceptsPhrasing reports whether inline content may be placed directly
// inside id.
func (d *Document) AcceptsPhrasing(id NodeID) bool {
	if !d.IsElement(id) {
		return false
	}
	a := d.nodes[id].atom
	return !noPhrasingAtoms[a] && !rawTextAtoms[a]
}

// ContainsBlockOrRaw reports whether id or a descendant is a block-level or
// raw-text element.
func (d *Document) ContainsBlockOrRaw(id NodeID) bool {
	return d.Find(id, func(n NodeID) bool {
		return d.IsBlock(n) || d.IsRawText(n)
	}) != None
}
