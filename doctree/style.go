package doctree

import "strings"

// Style returns the value of one inline style property on an element.
func (d *Document) Style(id NodeID, prop string) (string, bool) {
	v, _ := d.Attr(id, "style")
	for _, decl := range strings.Split(v, ";") {
		k, val, ok := strings.Cut(decl, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), prop) {
			return strings.TrimSpace(val), true
		}
	}
	return "", false
}

// SetStyle sets one inline style property, keeping the others in order. An
// empty value removes the property.
func (d *Document) SetStyle(id NodeID, prop, val string) error {
	if !d.IsElement(id) {
		return ErrInvalidNode
	}
	cur, _ := d.Attr(id, "style")
	var decls []string
	found := false
	for _, decl := range strings.Split(cur, ";") {
		k, _, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(k), prop) {
			found = true
			if val != "" {
				decls = append(decls, prop+": "+val)
			}
			continue
		}
		decls = append(decls, strings.TrimSpace(decl))
	}
	if !found && val != "" {
		decls = append(decls, prop+": "+val)
	}
	if len(decls) == 0 {
		d.RemoveAttr(id, "style")
		return nil
	}
	return d.SetAttr(id, "style", strings.Join(decls, "; "))
}
