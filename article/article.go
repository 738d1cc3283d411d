// Package article acquires a reader-mode article and prepares it for
// annotation.
//
// Load fetches over HTTP and escalates to a headless browser when the body
// looks like a script shell. The result is sanitised before it becomes a
// doctree.Document; Prepare then shapes the document for the reading view
// and Markdown exports it with its highlights.
package article

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/readmark/article/internal/browser"
	"github.com/hazyhaar/readmark/article/internal/fetcher"
	"github.com/hazyhaar/readmark/doctree"
	"golang.org/x/net/html/atom"
)

// Source says how an article was acquired.
type Source string

const (
	SourceHTTP    Source = "http"
	SourceBrowser Source = "browser"
	SourceInline  Source = "inline"
)

// Article is a sanitised document ready for preparation.
type Article struct {
	URL    string
	Title  string
	Source Source
	Doc    *doctree.Document
}

// Renderer turns a URL into the HTML of its rendered document.
type Renderer interface {
	Render(ctx context.Context, pageURL string) ([]byte, error)
}

// BrowserConfig is the "article.browser" configuration section.
type BrowserConfig struct {
	Enabled bool   `yaml:"enabled"`
	Remote  string `yaml:"remote"`
	Stealth bool   `yaml:"stealth"`
}

// Config is the "article" configuration section.
type Config struct {
	// BaseURL resolves relative image paths. Empty keeps them relative to
	// the article URL.
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
	Browser   BrowserConfig `yaml:"browser"`

	Logger *slog.Logger `yaml:"-"`
}

// ErrEmpty is returned when an article has no readable body.
var ErrEmpty = errors.New("article: empty document")

// Loader acquires articles.
type Loader struct {
	cfg    Config
	fetch  *fetcher.Fetcher
	render Renderer
	owned  *browser.Renderer
	logger *slog.Logger
}

// Option configures a Loader.
type Option func(*loaderOpts)

type loaderOpts struct {
	client *http.Client
	render Renderer
}

// WithHTTPClient replaces the HTTP client used for plain fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(o *loaderOpts) { o.client = c }
}

// WithRenderer replaces the headless browser used for escalation.
func WithRenderer(r Renderer) Option {
	return func(o *loaderOpts) { o.render = r }
}

// NewLoader creates a Loader. A headless browser is attached when
// cfg.Browser.Enabled is set and no renderer is given.
func NewLoader(cfg Config, opts ...Option) *Loader {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var o loaderOpts
	for _, fn := range opts {
		fn(&o)
	}

	fopts := []fetcher.Option{
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithTimeout(cfg.Timeout),
		fetcher.WithLogger(cfg.Logger),
	}
	if o.client != nil {
		fopts = append(fopts, fetcher.WithClient(o.client))
	}

	l := &Loader{
		cfg:    cfg,
		fetch:  fetcher.New(fopts...),
		render: o.render,
		logger: cfg.Logger,
	}
	if l.render == nil && cfg.Browser.Enabled {
		l.owned = browser.New(browser.Config{
			RemoteURL:  cfg.Browser.Remote,
			Stealth:    cfg.Browser.Stealth,
			NavTimeout: cfg.Timeout,
			Logger:     cfg.Logger,
		})
		l.render = l.owned
	}
	return l
}

// Load fetches pageURL. Bodies that fail the sufficiency check are rendered
// in the browser when one is configured; a browser failure falls back to the
// HTTP body.
func (l *Loader) Load(ctx context.Context, pageURL string) (*Article, error) {
	res, err := l.fetch.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("article: load: %w", err)
	}
	body, src := res.HTML, SourceHTTP
	if !res.Sufficient && l.render != nil {
		l.logger.Info("article: escalating to browser", "url", pageURL)
		rendered, rerr := l.render.Render(ctx, res.URL)
		if rerr != nil {
			l.logger.Warn("article: browser render failed, using http body", "url", pageURL, "error", rerr)
		} else {
			body, src = rendered, SourceBrowser
		}
	}
	return l.build(res.URL, body, src)
}

// FromHTML builds an article from HTML supplied by the host.
func (l *Loader) FromHTML(pageURL string, raw []byte) (*Article, error) {
	return l.build(pageURL, raw, SourceInline)
}

// Close releases the owned browser, if any.
func (l *Loader) Close() error {
	if l.owned != nil {
		return l.owned.Close()
	}
	return nil
}

func (l *Loader) build(pageURL string, raw []byte, src Source) (*Article, error) {
	orig, err := doctree.ParseString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("article: parse: %w", err)
	}
	title := strings.TrimSpace(orig.TextContent(orig.ElementByTag(atom.Title)))
	if title == "" {
		if h1 := orig.ElementByTag(atom.H1); h1 != doctree.None {
			title = strings.Join(strings.Fields(orig.TextContent(h1)), " ")
		}
	}
	body := orig.InnerHTML(orig.Body())

	doc, err := Sanitize(title, body)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.TextContent(doc.Body())) == "" {
		return nil, fmt.Errorf("article: %s: %w", pageURL, ErrEmpty)
	}
	l.logger.Debug("article: built", "url", pageURL, "source", src, "title", title)
	return &Article{URL: pageURL, Title: title, Source: src, Doc: doc}, nil
}
