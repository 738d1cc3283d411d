package article

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/hazyhaar/readmark/annotate"
	"github.com/hazyhaar/readmark/doctree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// MarkdownOptions parameterise Markdown.
type MarkdownOptions struct {
	// Title becomes a level-one heading.
	Title string
	// Domain resolves relative links.
	Domain string
	// Highlights are listed as quotes after the article, in order.
	Highlights []string
}

// Markdown converts the body of doc. Highlight markers become <mark>
// elements and placeholder images get their resolved path back.
func Markdown(doc *doctree.Document, opts MarkdownOptions) (string, error) {
	body := doc.Body()
	if body == doctree.None {
		body = doc.Root()
	}
	hn := doc.Export(body)
	if hn == nil {
		return "", fmt.Errorf("article: markdown: %w", doctree.ErrInvalidNode)
	}
	exportable(hn)

	var buf bytes.Buffer
	if err := html.Render(&buf, hn); err != nil {
		return "", fmt.Errorf("article: markdown: render: %w", err)
	}
	md, err := mdConverter.ConvertString(buf.String(), converter.WithDomain(opts.Domain))
	if err != nil {
		return "", fmt.Errorf("article: markdown: convert: %w", err)
	}

	var sb strings.Builder
	if opts.Title != "" {
		sb.WriteString("# " + opts.Title + "\n\n")
	}
	sb.WriteString(strings.TrimSpace(md))
	sb.WriteString("\n")
	if len(opts.Highlights) > 0 {
		sb.WriteString("\n## Highlights\n")
		for _, h := range opts.Highlights {
			sb.WriteString("\n")
			for _, line := range strings.Split(strings.TrimSpace(h), "\n") {
				sb.WriteString("> " + line + "\n")
			}
		}
	}
	return sb.String(), nil
}

func exportable(n *html.Node) {
	if n.Type == html.ElementNode {
		switch {
		case n.DataAtom == atom.Span && hasClass(n, annotate.MarkerClass):
			n.Data, n.DataAtom, n.Attr = "mark", atom.Mark, nil
		case n.DataAtom == atom.Img:
			restoreSrc(n)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		exportable(c)
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func restoreSrc(n *html.Node) {
	var real string
	for _, a := range n.Attr {
		if a.Key == "data-fixed-src" || (a.Key == "data-src" && real == "") {
			real = a.Val
		}
	}
	if real == "" {
		return
	}
	for i := range n.Attr {
		if n.Attr[i].Key == "src" {
			n.Attr[i].Val = real
		}
	}
}
