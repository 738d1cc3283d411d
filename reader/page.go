package reader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/readmark/annotate"
	"github.com/hazyhaar/readmark/article"
	"github.com/hazyhaar/readmark/bridge"
	"github.com/hazyhaar/readmark/prefs"
)

// PageInfo describes an open page.
type PageInfo struct {
	ID         string               `json:"id"`
	URL        string               `json:"url"`
	Title      string               `json:"title"`
	Source     article.Source       `json:"source"`
	OpenedAt   time.Time            `json:"openedAt"`
	Highlights int                  `json:"highlights"`
	Busy       bool                 `json:"busy"`
	Selection  string               `json:"selection"`
	Menu       annotate.MenuState   `json:"menu"`
	Prefs      prefs.Prefs          `json:"prefs"`
	Prepared   article.PrepareStats `json:"prepared"`
}

type pageConfig struct {
	id      string
	article *article.Article
	engine  annotate.Config
	prefs   prefs.Prefs
	baseURL string
	sinks   []bridge.Sink
	queue   int
	logger  *slog.Logger
}

// Page is one annotated article. All engine access goes through the page
// loop; the exported methods are safe for concurrent use.
type Page struct {
	id     string
	url    string
	title  string
	source article.Source
	opened time.Time
	stats  article.PrepareStats
	logger *slog.Logger

	tasks     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	router *bridge.Router
	async  *bridge.Async

	// Owned by the loop.
	engine *annotate.Engine
	prefs  prefs.Prefs
}

func newPage(pc pageConfig) (*Page, error) {
	doc := pc.article.Doc
	if err := prefs.Apply(doc, pc.prefs); err != nil {
		return nil, err
	}
	stats := article.Prepare(doc, article.PrepareOptions{BaseURL: pc.baseURL, Dark: pc.prefs.Dark})

	p := &Page{
		id:     pc.id,
		url:    pc.article.URL,
		title:  pc.article.Title,
		source: pc.article.Source,
		opened: time.Now().UTC(),
		stats:  stats,
		logger: pc.logger,
		tasks:  make(chan func(), 64),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		prefs:  pc.prefs,
	}
	p.router = bridge.NewRouter(pc.logger, pc.sinks...)
	p.async = bridge.NewAsync(p.router, pc.queue, pc.logger)
	emitter := bridge.NewEmitter(p.async, bridge.WithPage(pc.id), bridge.WithEmitterLogger(pc.logger))

	ecfg := pc.engine
	ecfg.Scheduler = annotate.NewLoopScheduler(p.post)
	ecfg.Logger = pc.logger
	p.engine = annotate.New(doc, emitter, ecfg)
	p.engine.ContentRendered()

	go p.run()
	return p, nil
}

// ID returns the page id.
func (p *Page) ID() string { return p.id }

// URL returns the article URL.
func (p *Page) URL() string { return p.url }

func (p *Page) run() {
	defer close(p.done)
	for {
		select {
		case f := <-p.tasks:
			f()
		case <-p.quit:
			p.engine.Close()
			return
		}
	}
}

// post queues f on the loop without waiting. Timer callbacks use it.
func (p *Page) post(f func()) {
	select {
	case p.tasks <- f:
	case <-p.quit:
	}
}

// do runs fn on the loop and waits for it.
func (p *Page) do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	task := func() {
		defer close(ran)
		fn()
	}
	select {
	case p.tasks <- task:
	case <-p.quit:
		return fmt.Errorf("reader: page %s: %w", p.id, ErrPageClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
	// Once queued the task is short; waiting for it keeps fn's captures
	// owned by one goroutine at a time.
	select {
	case <-ran:
		return nil
	case <-p.done:
		select {
		case <-ran:
			return nil
		default:
			return fmt.Errorf("reader: page %s: %w", p.id, ErrPageClosed)
		}
	}
}

// Close stops the loop and flushes pending notifications.
func (p *Page) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
		<-p.done
		if err := p.async.Close(); err != nil {
			p.logger.Warn("reader: closing sinks", "error", err)
		}
	})
}

// Subscribe attaches a sink for this page's notifications. The sink is
// closed when the page closes unless detached first.
func (p *Page) Subscribe(s bridge.Sink) (detach func()) {
	return p.router.Attach(s)
}

// Info returns a snapshot of the page.
func (p *Page) Info(ctx context.Context) (PageInfo, error) {
	var info PageInfo
	err := p.do(ctx, func() {
		info = PageInfo{
			ID:         p.id,
			URL:        p.url,
			Title:      p.title,
			Source:     p.source,
			OpenedAt:   p.opened,
			Highlights: len(p.engine.ListHighlights()),
			Busy:       p.engine.Host().Busy,
			Selection:  p.engine.LiveText(),
			Menu:       p.engine.MenuState(),
			Prefs:      p.prefs,
			Prepared:   p.stats,
		}
	})
	return info, err
}

// HTML renders the current document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var out string
	err := p.do(ctx, func() { out = p.engine.Document().String() })
	return out, err
}

// SetBusy records whether the host is showing modal UI.
func (p *Page) SetBusy(ctx context.Context, busy bool) error {
	return p.do(ctx, func() { p.engine.SetHostBusy(busy) })
}

// CreateHighlight promotes the live selection.
func (p *Page) CreateHighlight(ctx context.Context) (annotate.Highlight, error) {
	var (
		h    annotate.Highlight
		herr error
	)
	if err := p.do(ctx, func() { h, herr = p.engine.CreateHighlightFromCurrentSelection(ctx) }); err != nil {
		return annotate.Highlight{}, err
	}
	return h, herr
}

// RemoveHighlight removes one highlight. It reports false for an unknown id.
func (p *Page) RemoveHighlight(ctx context.Context, id string) (bool, error) {
	var removed bool
	err := p.do(ctx, func() { removed = p.engine.RemoveHighlight(ctx, id) })
	return removed, err
}

// RemoveAllHighlights removes every highlight and returns how many there were.
func (p *Page) RemoveAllHighlights(ctx context.Context) (int, error) {
	var n int
	err := p.do(ctx, func() { n = p.engine.RemoveAllHighlights(ctx) })
	return n, err
}

// Highlights lists the live highlights in creation order.
func (p *Page) Highlights(ctx context.Context) ([]annotate.Highlight, error) {
	var hs []annotate.Highlight
	err := p.do(ctx, func() { hs = p.engine.ListHighlights() })
	if hs == nil {
		hs = []annotate.Highlight{}
	}
	return hs, err
}

// SetPrefs merges patch into the page preferences and applies the result.
func (p *Page) SetPrefs(ctx context.Context, patch prefs.Patch) (prefs.Prefs, error) {
	var (
		out  prefs.Prefs
		perr error
	)
	err := p.do(ctx, func() {
		next := p.prefs.Merge(patch)
		if next.FontSize == 0 {
			next.FontSize = prefs.DefaultFontSize
		}
		if perr = next.Validate(); perr != nil {
			return
		}
		if perr = prefs.Apply(p.engine.Document(), next); perr != nil {
			return
		}
		p.prefs = next
		out = next
		p.logger.Debug("reader: preferences applied", "dark", next.Dark, "font_size", next.FontSize)
	})
	if err != nil {
		return prefs.Prefs{}, err
	}
	if perr != nil {
		return prefs.Prefs{}, fmt.Errorf("%w: %w", ErrBadRequest, perr)
	}
	return out, nil
}

// Markdown exports the article with its highlights.
func (p *Page) Markdown(ctx context.Context) (string, error) {
	var (
		md   string
		merr error
	)
	err := p.do(ctx, func() {
		hs := p.engine.ListHighlights()
		quotes := make([]string, len(hs))
		for i, h := range hs {
			quotes[i] = h.Text
		}
		md, merr = article.Markdown(p.engine.Document(), article.MarkdownOptions{
			Title:      p.title,
			Domain:     p.url,
			Highlights: quotes,
		})
	})
	if err != nil {
		return "", err
	}
	return md, merr
}

// RevealImages swaps the real image sources in after first paint.
func (p *Page) RevealImages(ctx context.Context) (int, error) {
	var n int
	err := p.do(ctx, func() { n = article.RevealImages(p.engine.Document()) })
	return n, err
}

// Select reports a selection over rune offsets of the article text.
func (p *Page) Select(ctx context.Context, start, end int, rects []annotate.Rect, vp annotate.Viewport) error {
	var serr error
	if err := p.do(ctx, func() { serr = p.engine.SelectOffsets(start, end, rects, vp) }); err != nil {
		return err
	}
	return serr
}

// ClearSelection collapses the live selection.
func (p *Page) ClearSelection(ctx context.Context) error {
	return p.do(ctx, p.engine.ClearSelection)
}

// Scroll reports one scroll tick.
func (p *Page) Scroll(ctx context.Context) error {
	return p.do(ctx, p.engine.Scrolled)
}

// PointerDown reports a pointer press.
func (p *Page) PointerDown(ctx context.Context, insideMenu bool) error {
	return p.do(ctx, func() { p.engine.PointerDown(insideMenu) })
}

// DoubleClick reports a double click on the live selection.
func (p *Page) DoubleClick(ctx context.Context) error {
	return p.do(ctx, p.engine.DoubleClicked)
}

// Click reports a click on the character at offset.
func (p *Page) Click(ctx context.Context, offset int) error {
	return p.do(ctx, func() { p.engine.ClickedAt(offset) })
}

// MenuAction runs a menu button.
func (p *Page) MenuAction(ctx context.Context, a annotate.Action) error {
	var merr error
	if err := p.do(ctx, func() { merr = p.engine.MenuAction(ctx, a) }); err != nil {
		return err
	}
	return merr
}
