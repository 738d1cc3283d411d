package article

import (
	"net/url"
	"strings"

	"github.com/hazyhaar/readmark/doctree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// ScrollID is the id of the element wrapping the whole body.
	ScrollID = "scrollable-content"
	// ContentClass marks the element holding the article text.
	ContentClass = "article-content"

	// Placeholder stands in for every image until RevealImages runs.
	Placeholder = "data:image/svg+xml;charset=utf-8,%3Csvg xmlns%3D%22http%3A%2F%2Fwww.w3.org%2F2000%2Fsvg%22 viewBox%3D%220 0 1 1%22%2F%3E"
)

// PrepareOptions parameterise Prepare.
type PrepareOptions struct {
	// BaseURL prefixes relative image paths.
	BaseURL string
	// Dark picks the placeholder background.
	Dark bool
}

// PrepareStats reports what Prepare changed.
type PrepareStats struct {
	HeadingRemoved bool `json:"headingRemoved"`
	Images         int  `json:"images"`
	FixedPaths     int  `json:"fixedPaths"`
}

// Prepare shapes a sanitised document for the reading view: the first h1
// is dropped (the host shows the title), the body is wrapped in the scroll
// container, the article container is marked and images are swapped for
// placeholders.
func Prepare(doc *doctree.Document, opts PrepareOptions) PrepareStats {
	var st PrepareStats
	body := doc.Body()
	if body == doctree.None {
		return st
	}

	if h1 := doc.Find(body, func(n doctree.NodeID) bool { return doc.Atom(n) == atom.H1 }); h1 != doctree.None {
		doc.Delete(h1)
		st.HeadingRemoved = true
	}

	wrapContent(doc, body)

	bg := "#f0f0f0"
	if opts.Dark {
		bg = "#333"
	}
	for _, img := range doc.FindAll(body, func(n doctree.NodeID) bool { return doc.Atom(n) == atom.Img }) {
		src, _ := doc.Attr(img, "src")
		if src == "" || strings.HasPrefix(src, "data:") {
			continue
		}
		st.Images++
		_ = doc.SetAttr(img, "data-src", src)
		fixed, changed := fixPath(src, opts.BaseURL)
		if changed {
			st.FixedPaths++
		}
		_ = doc.SetAttr(img, "data-fixed-src", fixed)
		_, hasW := doc.Attr(img, "width")
		_, hasH := doc.Attr(img, "height")
		if !hasW && !hasH {
			_ = doc.SetStyle(img, "aspect-ratio", "16/9")
		}
		_ = doc.SetAttr(img, "src", Placeholder)
		_ = doc.SetStyle(img, "background-color", bg)
	}
	return st
}

// wrapContent moves the body children into div#scrollable-content and marks
// the article container, adding one when none exists.
func wrapContent(doc *doctree.Document, body doctree.NodeID) {
	if doc.ElementByID(ScrollID) != doctree.None {
		return
	}
	scroll := doc.CreateElement("div", html.Attribute{Key: "id", Val: ScrollID})
	kids := doc.Children(body)

	container := doc.Find(body, func(n doctree.NodeID) bool {
		switch doc.Atom(n) {
		case atom.Article, atom.Section, atom.Main:
			return true
		}
		return doc.IsElement(n) && doc.HasClass(n, "content")
	})
	target := scroll
	if container != doctree.None {
		_ = doc.AddClass(container, ContentClass)
	} else {
		target = doc.CreateElement("div", html.Attribute{Key: "class", Val: ContentClass})
		_ = doc.AppendChild(scroll, target)
	}
	for _, k := range kids {
		_ = doc.MoveBefore(target, k, doctree.None)
	}
	_ = doc.AppendChild(body, scroll)
}

// fixPath resolves a relative image path against base. Absolute, protocol
// relative and data URLs pass through.
func fixPath(src, base string) (string, bool) {
	if base == "" || strings.HasPrefix(src, "http") || strings.HasPrefix(src, "//") {
		return src, false
	}
	if u, err := url.Parse(src); err == nil && u.Scheme != "" {
		return src, false
	}
	base = strings.TrimRight(base, "/")
	if strings.HasPrefix(src, "/") {
		return base + src, true
	}
	return base + "/" + src, true
}

// RevealImages swaps the resolved path of every placeholder image into src.
// It returns how many images were revealed.
func RevealImages(doc *doctree.Document) int {
	n := 0
	for _, img := range doc.FindAll(doc.Root(), func(id doctree.NodeID) bool { return doc.Atom(id) == atom.Img }) {
		fixed, ok := doc.Attr(img, "data-fixed-src")
		if !ok || fixed == "" {
			continue
		}
		_ = doc.SetAttr(img, "src", fixed)
		doc.RemoveAttr(img, "data-fixed-src")
		_ = doc.SetStyle(img, "background-color", "transparent")
		n++
	}
	return n
}
