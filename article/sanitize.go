package article

import (
	"fmt"
	"html"
	"sync"

	"github.com/hazyhaar/readmark/doctree"
	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// articlePolicy is the user-generated-content policy plus the attributes
// the reading view relies on. Inline styles, style sheets and scripts are
// stripped.
func articlePolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowAttrs("class", "id").Globally()
		p.AllowDataAttributes()
		p.AllowAttrs("srcset", "sizes", "loading").OnElements("img")
		p.AllowElements("figure", "figcaption", "picture", "mark", "section", "article", "main")
		policy = p
	})
	return policy
}

// Sanitize cleans an HTML body fragment and wraps it in a minimal document
// titled title.
func Sanitize(title, body string) (*doctree.Document, error) {
	clean := articlePolicy().Sanitize(body)
	src := "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>" +
		html.EscapeString(title) + "</title></head><body>" + clean + "</body></html>"
	doc, err := doctree.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("article: sanitize: %w", err)
	}
	return doc, nil
}
