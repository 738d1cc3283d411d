// Package reader hosts annotated article pages.
//
// A Service owns the open pages. Each Page runs its own event loop: view
// input, host calls and timer expiries are posted to that loop, so the
// annotation engine behind it is only ever touched by one goroutine.
// Notifications leave the loop through a buffered bridge and fan out to
// the service-wide sinks plus any per-page subscriber such as a websocket.
package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"

	"github.com/hazyhaar/readmark/annotate"
	"github.com/hazyhaar/readmark/audit"
	"github.com/hazyhaar/readmark/article"
	"github.com/hazyhaar/readmark/bridge"
	"github.com/hazyhaar/readmark/hoststore"
	"github.com/hazyhaar/readmark/idgen"
	"github.com/hazyhaar/readmark/prefs"
)

var (
	ErrPageNotFound = errors.New("reader: page not found")
	ErrPageClosed   = errors.New("reader: page closed")
	ErrBadRequest   = errors.New("reader: bad request")
	ErrFetch        = errors.New("reader: fetch failed")
)

// Config tunes a Service.
type Config struct {
	Engine annotate.Config
	// BaseURL resolves relative image paths during preparation.
	BaseURL string
	// Prefs apply to pages opened without their own preferences.
	Prefs prefs.Prefs
	// QueueSize bounds each page's notification buffer. Default: 256.
	QueueSize int
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Prefs == (prefs.Prefs{}) {
		c.Prefs = prefs.Default()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Option configures a Service.
type Option func(*Service)

// WithLoader sets the article loader. Default: a plain HTTP loader.
func WithLoader(l *article.Loader) Option {
	return func(s *Service) { s.loader = l }
}

// WithStore persists highlights and registers opened pages.
func WithStore(st *hoststore.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithSink adds a sink receiving the notifications of every page. The
// service closes it on Close.
func WithSink(sink bridge.Sink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sink) }
}

// WithAudit records every host call in trail.
func WithAudit(trail *audit.Logger) Option {
	return func(s *Service) { s.audit = trail }
}

// WithPageIDs sets the page id generator. Default: UUIDv7.
func WithPageIDs(gen idgen.Generator) Option {
	return func(s *Service) { s.ids = gen }
}

// Service manages open pages.
type Service struct {
	cfg    Config
	loader *article.Loader
	store  *hoststore.Store
	audit  *audit.Logger
	sinks  []bridge.Sink
	ids    idgen.Generator
	logger *slog.Logger

	mu     sync.RWMutex
	pages  map[string]*Page
	closed bool
}

// NewService creates a Service.
func NewService(cfg Config, opts ...Option) *Service {
	cfg.defaults()
	s := &Service{
		cfg:    cfg,
		ids:    idgen.UUIDv7(),
		logger: cfg.Logger,
		pages:  make(map[string]*Page),
	}
	for _, o := range opts {
		o(s)
	}
	if s.loader == nil {
		s.loader = article.NewLoader(article.Config{BaseURL: cfg.BaseURL, Logger: cfg.Logger})
	}
	return s
}

// OpenRequest opens a page from a URL, or from inline HTML when HTML is set.
type OpenRequest struct {
	URL   string       `json:"url"`
	HTML  string       `json:"html,omitempty"`
	Prefs *prefs.Prefs `json:"prefs,omitempty"`
}

func (r OpenRequest) validate() error {
	if r.HTML == "" {
		if r.URL == "" {
			return fmt.Errorf("%w: url or html required", ErrBadRequest)
		}
		u, err := url.Parse(r.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: url must be absolute http(s): %q", ErrBadRequest, r.URL)
		}
	}
	if r.Prefs != nil {
		if err := r.Prefs.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
	}
	return nil
}

// Open loads an article, prepares it and starts its page.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*Page, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("reader: open: %w", ErrPageClosed)
	}

	var (
		art *article.Article
		err error
	)
	if req.HTML != "" {
		art, err = s.loader.FromHTML(req.URL, []byte(req.HTML))
	} else {
		art, err = s.loader.Load(ctx, req.URL)
		if err != nil && !errors.Is(err, article.ErrEmpty) {
			err = fmt.Errorf("%w: %w", ErrFetch, err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("reader: open %q: %w", req.URL, err)
	}

	p := s.cfg.Prefs
	if req.Prefs != nil {
		p = *req.Prefs
		if p.FontSize == 0 {
			p.FontSize = prefs.DefaultFontSize
		}
	}

	id := s.ids()
	sinks := make([]bridge.Sink, 0, len(s.sinks)+1)
	for _, sink := range s.sinks {
		sinks = append(sinks, keepOpen{sink})
	}
	if s.store != nil {
		if err := s.store.RegisterPage(ctx, id, art.URL, art.Title); err != nil {
			return nil, fmt.Errorf("reader: open: %w", err)
		}
		sinks = append(sinks, keepOpen{s.store.Sink()})
	}

	page, err := newPage(pageConfig{
		id:      id,
		article: art,
		engine:  s.cfg.Engine,
		prefs:   p,
		baseURL: s.cfg.BaseURL,
		sinks:   sinks,
		queue:   s.cfg.QueueSize,
		logger:  s.logger.With("page", id),
	})
	if err != nil {
		return nil, fmt.Errorf("reader: open: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		page.Close()
		return nil, fmt.Errorf("reader: open: %w", ErrPageClosed)
	}
	s.pages[id] = page
	s.mu.Unlock()

	s.logger.Info("reader: page opened", "page", id, "url", art.URL, "source", art.Source)
	return page, nil
}

// Page returns an open page.
func (s *Service) Page(id string) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[id]
	if !ok {
		return nil, fmt.Errorf("reader: page %q: %w", id, ErrPageNotFound)
	}
	return p, nil
}

// Pages returns the open pages, oldest first.
func (s *Service) Pages() []*Page {
	s.mu.RLock()
	out := make([]*Page, 0, len(s.pages))
	for _, p := range s.pages {
		out = append(out, p)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Page) int { return a.opened.Compare(b.opened) })
	return out
}

// ClosePage stops a page and drops it.
func (s *Service) ClosePage(id string) error {
	s.mu.Lock()
	p, ok := s.pages[id]
	delete(s.pages, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("reader: close %q: %w", id, ErrPageNotFound)
	}
	p.Close()
	s.logger.Info("reader: page closed", "page", id)
	return nil
}

// Stored returns the persisted highlights for the URL of page id.
func (s *Service) Stored(ctx context.Context, id string) ([]hoststore.Record, error) {
	p, err := s.Page(id)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return []hoststore.Record{}, nil
	}
	return s.store.Highlights(ctx, p.url)
}

// Audit returns recorded host calls. It returns an empty list when no
// trail is configured.
func (s *Service) Audit(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	if s.audit == nil {
		return []audit.Entry{}, nil
	}
	return s.audit.Query(ctx, f)
}

// Close stops every page, then closes the shared sinks and the loader.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pages := s.pages
	s.pages = make(map[string]*Page)
	s.mu.Unlock()

	for _, p := range pages {
		p.Close()
	}
	var errs []error
	for _, sink := range s.sinks {
		errs = append(errs, sink.Close())
	}
	errs = append(errs, s.loader.Close())
	return errors.Join(errs...)
}

// keepOpen shields a shared sink from the Close of a page router.
type keepOpen struct{ bridge.Sink }

func (keepOpen) Close() error { return nil }
