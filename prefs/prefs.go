// Package prefs applies the host's reading preferences (theme, font size,
// vocabulary visibility) to a document tree. The stylesheet keys off the
// attributes set here on the root <html> element.
package prefs

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/hazyhaar/readmark/doctree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Font size bounds in CSS pixels.
const (
	MinFontSize     = 10
	MaxFontSize     = 40
	DefaultFontSize = 18
)

// Theme colours for the theme-color meta tag.
const (
	DarkColor  = "#121212"
	LightColor = "#ffffff"
)

// ErrFontSize is returned for a font size outside [MinFontSize, MaxFontSize].
var ErrFontSize = errors.New("prefs: font size out of range")

// Prefs are the host-owned reading preferences.
type Prefs struct {
	Dark           bool `json:"dark" yaml:"dark"`
	FontSize       int  `json:"fontSize" yaml:"font_size"`
	ShowVocabulary bool `json:"showVocabulary" yaml:"show_vocabulary"`
}

// Default returns light theme, 18px, vocabulary shown.
func Default() Prefs {
	return Prefs{FontSize: DefaultFontSize, ShowVocabulary: true}
}

// Validate checks the font size. Zero means default and is accepted.
func (p Prefs) Validate() error {
	if p.FontSize == 0 {
		return nil
	}
	if p.FontSize < MinFontSize || p.FontSize > MaxFontSize {
		return fmt.Errorf("%w: %d", ErrFontSize, p.FontSize)
	}
	return nil
}

// Patch is a partial update. Nil fields are left alone.
type Patch struct {
	Dark           *bool `json:"dark,omitempty"`
	FontSize       *int  `json:"fontSize,omitempty"`
	ShowVocabulary *bool `json:"showVocabulary,omitempty"`
}

// Merge returns p with the fields set in patch applied.
func (p Prefs) Merge(patch Patch) Prefs {
	if patch.Dark != nil {
		p.Dark = *patch.Dark
	}
	if patch.FontSize != nil {
		p.FontSize = *patch.FontSize
	}
	if patch.ShowVocabulary != nil {
		p.ShowVocabulary = *patch.ShowVocabulary
	}
	return p
}

// Apply writes every preference onto doc.
func Apply(doc *doctree.Document, p Prefs) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.FontSize == 0 {
		p.FontSize = DefaultFontSize
	}
	if err := SetTheme(doc, p.Dark); err != nil {
		return err
	}
	if err := SetFontSize(doc, p.FontSize); err != nil {
		return err
	}
	return SetVocabulary(doc, p.ShowVocabulary)
}

// SetTheme sets data-theme and the color-scheme and theme-color meta tags.
func SetTheme(doc *doctree.Document, dark bool) error {
	root, err := rootElement(doc)
	if err != nil {
		return err
	}
	theme, scheme, color := "light", "light", LightColor
	if dark {
		theme, scheme, color = "dark", "dark", DarkColor
	}
	_ = doc.SetAttr(root, "data-theme", theme)
	_ = doc.SetStyle(root, "color-scheme", scheme)
	if err := setMeta(doc, "color-scheme", scheme); err != nil {
		return err
	}
	return setMeta(doc, "theme-color", color)
}

// SetFontSize sets data-font-size and the --font-size-base variable.
func SetFontSize(doc *doctree.Document, px int) error {
	if err := (Prefs{FontSize: px}).Validate(); err != nil {
		return err
	}
	root, err := rootElement(doc)
	if err != nil {
		return err
	}
	_ = doc.SetAttr(root, "data-font-size", strconv.Itoa(px))
	return doc.SetStyle(root, "--font-size-base", strconv.Itoa(px)+"px")
}

// SetVocabulary sets data-show-vocabulary.
func SetVocabulary(doc *doctree.Document, show bool) error {
	root, err := rootElement(doc)
	if err != nil {
		return err
	}
	return doc.SetAttr(root, "data-show-vocabulary", strconv.FormatBool(show))
}

// Read recovers the preferences last applied to doc.
func Read(doc *doctree.Document) Prefs {
	p := Default()
	root := doc.HTMLElement()
	if root == doctree.None {
		return p
	}
	if v, ok := doc.Attr(root, "data-theme"); ok {
		p.Dark = v == "dark"
	}
	if v, ok := doc.Attr(root, "data-font-size"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			p.FontSize = n
		}
	}
	if v, ok := doc.Attr(root, "data-show-vocabulary"); ok {
		p.ShowVocabulary = v == "true"
	}
	return p
}

func rootElement(doc *doctree.Document) (doctree.NodeID, error) {
	root := doc.HTMLElement()
	if root == doctree.None {
		return doctree.None, fmt.Errorf("prefs: no html element: %w", doctree.ErrInvalidNode)
	}
	return root, nil
}

// setMeta creates or updates <meta name=name content=content> in head.
func setMeta(doc *doctree.Document, name, content string) error {
	head := doc.Head()
	if head == doctree.None {
		return fmt.Errorf("prefs: no head element: %w", doctree.ErrInvalidNode)
	}
	meta := doc.Find(head, func(n doctree.NodeID) bool {
		v, _ := doc.Attr(n, "name")
		return doc.Atom(n) == atom.Meta && v == name
	})
	if meta == doctree.None {
		meta = doc.CreateElement("meta", html.Attribute{Key: "name", Val: name})
		if err := doc.AppendChild(head, meta); err != nil {
			return fmt.Errorf("prefs: meta %s: %w", name, err)
		}
	}
	return doc.SetAttr(meta, "content", content)
}
