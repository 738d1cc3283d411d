package reader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/readmark/annotate"
	"github.com/hazyhaar/readmark/article"
	"github.com/hazyhaar/readmark/bridge"
	"github.com/hazyhaar/readmark/dbopen"
	"github.com/hazyhaar/readmark/hoststore"
	"github.com/hazyhaar/readmark/idgen"
	"github.com/hazyhaar/readmark/prefs"
)

const testArticle = `<html><head><title>Reading</title></head><body>
<h1>Reading</h1>
<article><p>hello world from the reader</p><p>second paragraph</p>
<img src="/img/a.png"></article>
</body></html>`

// recorder is a sink collecting every message.
type recorder struct {
	mu   sync.Mutex
	msgs []bridge.Message
}

func (r *recorder) Send(_ context.Context, msg bridge.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) kinds() []bridge.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bridge.Kind, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Type
	}
	return out
}

// wait polls until a message of kind arrives.
func (r *recorder) wait(t *testing.T, kind bridge.Kind) bridge.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for _, m := range r.msgs {
			if m.Type == kind {
				r.mu.Unlock()
				return m
			}
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s message, got %v", kind, r.kinds())
	return bridge.Message{}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{WithSink(rec), WithPageIDs(idgen.Sequence("pg_"))}, opts...)
	svc := NewService(Config{
		Engine:  annotate.Config{Debounce: 20 * time.Millisecond, IDs: idgen.Sequence("hl_")},
		BaseURL: "https://cdn.example.com",
	}, opts...)
	t.Cleanup(func() { svc.Close() })
	return svc, rec
}

func openInline(t *testing.T, svc *Service) *Page {
	t.Helper()
	p, err := svc.Open(context.Background(), OpenRequest{URL: "https://example.com/post", HTML: testArticle})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return p
}

// selectText selects the first occurrence of needle in the article text.
func selectText(t *testing.T, p *Page, needle string) {
	t.Helper()
	ctx := context.Background()
	var text string
	if err := p.do(ctx, func() { text = p.engine.Document().TextContent(p.engine.Root()) }); err != nil {
		t.Fatal(err)
	}
	i := strings.Index(text, needle)
	if i < 0 {
		t.Fatalf("%q not in article text %q", needle, text)
	}
	start := utf8.RuneCountInString(text[:i])
	end := start + utf8.RuneCountInString(needle)
	rects := []annotate.Rect{annotate.NewRect(20, 120, 90, 18)}
	if err := p.Select(ctx, start, end, rects, annotate.Viewport{Width: 390, Height: 844}); err != nil {
		t.Fatalf("Select: %v", err)
	}
}

func TestOpen_PreparesDocument(t *testing.T) {
	svc, rec := newTestService(t)
	p := openInline(t, svc)
	ctx := context.Background()

	if p.ID() != "pg_1" {
		t.Errorf("id: got %q, want pg_1", p.ID())
	}
	info, err := p.Info(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.Title != "Reading" || info.Source != article.SourceInline {
		t.Errorf("info: got %+v", info)
	}
	if !info.Prepared.HeadingRemoved || info.Prepared.Images != 1 {
		t.Errorf("prepared: got %+v", info.Prepared)
	}
	if info.Prefs != prefs.Default() {
		t.Errorf("prefs: got %+v, want defaults", info.Prefs)
	}

	out, err := p.HTML(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`id="scrollable-content"`, `article-content`, `data-theme="light"`, `data-fixed-src="https://cdn.example.com/img/a.png"`} {
		if !strings.Contains(out, want) {
			t.Errorf("html missing %s", want)
		}
	}
	if strings.Contains(out, "<h1>") {
		t.Error("first heading should be removed")
	}
	msg := rec.wait(t, bridge.KindContentRendered)
	if msg.Page != "pg_1" {
		t.Errorf("page: got %q, want pg_1", msg.Page)
	}
}

func TestPage_CreateAndRemove(t *testing.T) {
	svc, rec := newTestService(t)
	p := openInline(t, svc)
	ctx := context.Background()

	selectText(t, p, "hello world")
	h, err := p.CreateHighlight(ctx)
	if err != nil {
		t.Fatalf("CreateHighlight: %v", err)
	}
	if h.ID != "hl_1" || h.Text != "hello world" {
		t.Errorf("highlight: got %+v", h)
	}
	out, _ := p.HTML(ctx)
	if !strings.Contains(out, `data-highlight-id="hl_1"`) {
		t.Errorf("marker missing from %s", out)
	}
	msg := rec.wait(t, bridge.KindHighlightCreated)
	if data, ok := msg.Data.(bridge.HighlightCreated); !ok || data.ID != "hl_1" {
		t.Errorf("created payload: got %#v", msg.Data)
	}

	hs, err := p.Highlights(ctx)
	if err != nil || len(hs) != 1 {
		t.Fatalf("Highlights: got %v, %v", hs, err)
	}

	ok, err := p.RemoveHighlight(ctx, "hl_1")
	if err != nil || !ok {
		t.Fatalf("RemoveHighlight: got %v, %v", ok, err)
	}
	ok, _ = p.RemoveHighlight(ctx, "hl_1")
	if ok {
		t.Error("second remove should report false")
	}
	rec.wait(t, bridge.KindHighlightRemoved)

	out, _ = p.HTML(ctx)
	if strings.Contains(out, annotate.MarkerClass) {
		t.Errorf("marker left behind: %s", out)
	}
	var inv error
	if err := p.do(ctx, func() { inv = p.engine.CheckInvariant() }); err != nil {
		t.Fatal(err)
	}
	if inv != nil {
		t.Error(inv)
	}
}

func TestPage_CreateWithoutSelection(t *testing.T) {
	svc, rec := newTestService(t)
	p := openInline(t, svc)

	_, err := p.CreateHighlight(context.Background())
	if !errors.Is(err, annotate.ErrNoSelection) {
		t.Fatalf("got %v, want ErrNoSelection", err)
	}
	msg := rec.wait(t, bridge.KindOperationFailed)
	if data, ok := msg.Data.(bridge.OperationFailed); !ok || data.Code != "no_selection" {
		t.Errorf("operationFailed payload: got %#v", msg.Data)
	}
}

func TestPage_BusySuppressesGesture(t *testing.T) {
	svc, _ := newTestService(t)
	p := openInline(t, svc)
	ctx := context.Background()

	selectText(t, p, "second paragraph")
	if err := p.SetBusy(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := p.MenuAction(ctx, annotate.ActionHighlight); err != nil {
		t.Fatalf("gesture while busy: %v", err)
	}
	hs, _ := p.Highlights(ctx)
	if len(hs) != 0 {
		t.Errorf("got %d highlights, want 0", len(hs))
	}
	info, _ := p.Info(ctx)
	if !info.Busy || info.Menu.Visible {
		t.Errorf("info: busy=%v menu=%+v", info.Busy, info.Menu)
	}
}

func TestPage_RemoveAll(t *testing.T) {
	svc, rec := newTestService(t)
	p := openInline(t, svc)
	ctx := context.Background()

	selectText(t, p, "hello")
	if _, err := p.CreateHighlight(ctx); err != nil {
		t.Fatal(err)
	}
	selectText(t, p, "second")
	if _, err := p.CreateHighlight(ctx); err != nil {
		t.Fatal(err)
	}
	n, err := p.RemoveAllHighlights(ctx)
	if err != nil || n != 2 {
		t.Fatalf("RemoveAllHighlights: got %d, %v", n, err)
	}
	msg := rec.wait(t, bridge.KindAllHighlightsRemoved)
	if data, ok := msg.Data.(bridge.AllHighlightsRemoved); !ok || data.Count != 2 {
		t.Errorf("payload: got %#v", msg.Data)
	}
}

func TestPage_SetPrefs(t *testing.T) {
	svc, _ := newTestService(t)
	p := openInline(t, svc)
	ctx := context.Background()

	dark, size := true, 22
	got, err := p.SetPrefs(ctx, prefs.Patch{Dark: &dark, FontSize: &size})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Dark || got.FontSize != 22 || !got.ShowVocabulary {
		t.Errorf("prefs: got %+v", got)
	}
	out, _ := p.HTML(ctx)
	if !strings.Contains(out, `data-theme="dark"`) || !strings.Contains(out, `data-font-size="22"`) {
		t.Errorf("prefs not applied: %s", out)
	}

	bad := 99
	if _, err := p.SetPrefs(ctx, prefs.Patch{FontSize: &bad}); !errors.Is(err, ErrBadRequest) {
		t.Errorf("got %v, want ErrBadRequest", err)
	}
	info, _ := p.Info(ctx)
	if info.Prefs.FontSize != 22 {
		t.Errorf("rejected patch changed prefs: %+v", info.Prefs)
	}
}

func TestPage_MarkdownAndImages(t *testing.T) {
	svc, _ := newTestService(t)
	p := openInline(t, svc)
	ctx := context.Background()

	selectText(t, p, "hello world")
	if _, err := p.CreateHighlight(ctx); err != nil {
		t.Fatal(err)
	}
	md, err := p.Markdown(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"# Reading", "second paragraph", "## Highlights", "> hello world"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	n, err := p.RevealImages(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RevealImages: got %d, %v", n, err)
	}
	out, _ := p.HTML(ctx)
	if !strings.Contains(out, `src="https://cdn.example.com/img/a.png"`) {
		t.Errorf("image not revealed: %s", out)
	}
}

func TestPage_WordSelection(t *testing.T) {
	svc, rec := newTestService(t)
	p, err := svc.Open(context.Background(), OpenRequest{
		URL:  "https://example.com/vocab",
		HTML: `<html><body><p>a <span class="vocabulary-word" data-word="serendipity">serendipitous</span> find</p></body></html>`,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	var text string
	_ = p.do(ctx, func() { text = p.engine.Document().TextContent(p.engine.Root()) })
	off := utf8.RuneCountInString(text[:strings.Index(text, "serendipitous")]) + 2
	if err := p.Click(ctx, off); err != nil {
		t.Fatal(err)
	}
	msg := rec.wait(t, bridge.KindWordSelected)
	if data, ok := msg.Data.(bridge.WordSelected); !ok || data.Word != "serendipity" {
		t.Errorf("wordSelected: got %#v", msg.Data)
	}
}

func TestService_ClosePage(t *testing.T) {
	svc, _ := newTestService(t)
	p := openInline(t, svc)
	ctx := context.Background()

	if got := len(svc.Pages()); got != 1 {
		t.Fatalf("pages: got %d, want 1", got)
	}
	if err := svc.ClosePage(p.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Page(p.ID()); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("Page after close: got %v, want ErrPageNotFound", err)
	}
	if err := svc.ClosePage(p.ID()); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("second close: got %v, want ErrPageNotFound", err)
	}
	if _, err := p.Highlights(ctx); !errors.Is(err, ErrPageClosed) {
		t.Errorf("call on closed page: got %v, want ErrPageClosed", err)
	}
}

func TestService_OpenValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for name, req := range map[string]OpenRequest{
		"empty":     {},
		"scheme":    {URL: "ftp://example.com/a"},
		"relative":  {URL: "/a"},
		"font size": {HTML: "<p>x</p>", Prefs: &prefs.Prefs{FontSize: 5}},
	} {
		if _, err := svc.Open(ctx, req); !errors.Is(err, ErrBadRequest) {
			t.Errorf("%s: got %v, want ErrBadRequest", name, err)
		}
	}
}

func TestService_OpenURL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>Fetched</title></head><body><article><p>" +
			strings.Repeat("Plenty of readable article text here. ", 20) + "</p></article></body></html>"))
	}))
	defer ts.Close()

	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Open(ctx, OpenRequest{URL: ts.URL + "/post"})
	if err != nil {
		t.Fatal(err)
	}
	info, _ := p.Info(ctx)
	if info.Source != article.SourceHTTP || info.Title != "Fetched" {
		t.Errorf("info: got %+v", info)
	}

	if _, err := svc.Open(ctx, OpenRequest{URL: ts.URL + "/missing"}); !errors.Is(err, ErrFetch) {
		t.Errorf("missing: got %v, want ErrFetch", err)
	}
}

func TestService_PersistsToStore(t *testing.T) {
	store := hoststore.New(dbopen.OpenMemory(t, dbopen.WithSchema(hoststore.Schema)))
	svc, _ := newTestService(t, WithStore(store))
	p := openInline(t, svc)
	ctx := context.Background()

	selectText(t, p, "hello world")
	if _, err := p.CreateHighlight(ctx); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var recs []hoststore.Record
	for time.Now().Before(deadline) {
		var err error
		if recs, err = svc.Stored(ctx, p.ID()); err != nil {
			t.Fatal(err)
		}
		if len(recs) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(recs) != 1 || recs[0].Text != "hello world" || recs[0].URL != "https://example.com/post" {
		t.Fatalf("stored: got %+v", recs)
	}
}

func TestService_CloseKeepsSharedSinksUntilEnd(t *testing.T) {
	closed := 0
	sink := bridge.Func(func(context.Context, bridge.Message) error { return nil })
	counting := closeCounter{Sink: sink, n: &closed}
	svc := NewService(Config{}, WithSink(counting), WithPageIDs(idgen.Sequence("pg_")))

	p := openInline(t, svc)
	if err := svc.ClosePage(p.ID()); err != nil {
		t.Fatal(err)
	}
	if closed != 0 {
		t.Fatalf("page close closed the shared sink")
	}
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}
	if closed != 1 {
		t.Errorf("service close: got %d closes, want 1", closed)
	}
}

type closeCounter struct {
	bridge.Sink
	n *int
}

func (c closeCounter) Close() error {
	*c.n++
	return nil
}
