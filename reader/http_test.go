package reader

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/readmark/audit"
	"github.com/hazyhaar/readmark/dbopen"
)

func newTestServer(t *testing.T) (*httptest.Server, *Service) {
	t.Helper()
	svc, _ := newTestService(t)
	ts := httptest.NewServer(NewHandler(svc, HandlerConfig{MCP: true}))
	t.Cleanup(ts.Close)
	return ts, svc
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func openViaHTTP(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, "POST", ts.URL+"/api/pages", map[string]any{
		"url":  "https://example.com/post",
		"html": testArticle,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open: got %d %v, want 201", resp.StatusCode, body)
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("open: no id in %v", body)
	}
	return id
}

func TestHTTP_Healthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := doJSON(t, "GET", ts.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz: got %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Trace-ID") == "" {
		t.Error("missing X-Trace-ID")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
}

func TestHTTP_PageLifecycle(t *testing.T) {
	ts, svc := newTestServer(t)
	id := openViaHTTP(t, ts)
	base := ts.URL + "/api/pages/" + id

	resp, body := doJSON(t, "GET", base, nil)
	if resp.StatusCode != http.StatusOK || body["title"] != "Reading" {
		t.Fatalf("info: got %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, "POST", base+"/highlights", nil)
	if resp.StatusCode != http.StatusConflict || body["code"] != "no_selection" {
		t.Errorf("create without selection: got %d %v, want 409 no_selection", resp.StatusCode, body)
	}

	p, err := svc.Page(id)
	if err != nil {
		t.Fatal(err)
	}
	selectText(t, p, "hello world")
	resp, body = doJSON(t, "POST", base+"/highlights", nil)
	if resp.StatusCode != http.StatusCreated || body["text"] != "hello world" {
		t.Fatalf("create: got %d %v", resp.StatusCode, body)
	}
	hid, _ := body["id"].(string)

	resp, body = doJSON(t, "GET", base+"/highlights", nil)
	if hs, _ := body["highlights"].([]any); resp.StatusCode != http.StatusOK || len(hs) != 1 {
		t.Errorf("list: got %d %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, "DELETE", base+"/highlights/"+hid, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("remove: got %d, want 200", resp.StatusCode)
	}
	resp, body = doJSON(t, "DELETE", base+"/highlights/"+hid, nil)
	if resp.StatusCode != http.StatusNotFound || body["code"] != "not_found" {
		t.Errorf("remove again: got %d %v, want 404 not_found", resp.StatusCode, body)
	}

	resp, body = doJSON(t, "DELETE", base+"/highlights", nil)
	if resp.StatusCode != http.StatusOK || body["count"] != float64(0) {
		t.Errorf("remove all: got %d %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, "DELETE", base, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("close: got %d, want 204", resp.StatusCode)
	}
	resp, body = doJSON(t, "GET", base, nil)
	if resp.StatusCode != http.StatusNotFound || body["code"] != "page_not_found" {
		t.Errorf("closed page: got %d %v", resp.StatusCode, body)
	}
}

func TestHTTP_BusyAndPrefs(t *testing.T) {
	ts, _ := newTestServer(t)
	base := ts.URL + "/api/pages/" + openViaHTTP(t, ts)

	resp, body := doJSON(t, "PUT", base+"/busy", map[string]any{"busy": true})
	if resp.StatusCode != http.StatusOK || body["busy"] != true {
		t.Errorf("busy: got %d %v", resp.StatusCode, body)
	}
	resp, body = doJSON(t, "GET", base, nil)
	if body["busy"] != true {
		t.Errorf("info busy: got %v", body)
	}

	resp, body = doJSON(t, "PUT", base+"/prefs", map[string]any{"dark": true})
	if resp.StatusCode != http.StatusOK || body["dark"] != true || body["fontSize"] != float64(18) {
		t.Errorf("prefs: got %d %v", resp.StatusCode, body)
	}
	resp, body = doJSON(t, "PUT", base+"/prefs", map[string]any{"fontSize": 99})
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "bad_request" {
		t.Errorf("bad prefs: got %d %v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, "PUT", base+"/busy", map[string]any{"busy": true, "extra": 1})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown field: got %d, want 400", resp.StatusCode)
	}
}

func TestHTTP_HTMLMarkdownImages(t *testing.T) {
	ts, _ := newTestServer(t)
	base := ts.URL + "/api/pages/" + openViaHTTP(t, ts)

	resp, err := http.Get(base + "/html")
	if err != nil {
		t.Fatal(err)
	}
	page, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") || !strings.Contains(string(page), "scrollable-content") {
		t.Errorf("html: got %q %s", resp.Header.Get("Content-Type"), page)
	}

	resp, err = http.Get(base + "/markdown?format=raw")
	if err != nil {
		t.Fatal(err)
	}
	md, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/markdown") || !strings.HasPrefix(string(md), "# Reading") {
		t.Errorf("markdown: got %q %s", resp.Header.Get("Content-Type"), md)
	}

	_, body := doJSON(t, "GET", base+"/markdown", nil)
	if s, _ := body["markdown"].(string); !strings.Contains(s, "hello world") {
		t.Errorf("markdown json: got %v", body)
	}

	_, body = doJSON(t, "POST", base+"/images", nil)
	if body["revealed"] != float64(1) {
		t.Errorf("images: got %v", body)
	}

	_, body = doJSON(t, "GET", base+"/stored", nil)
	if hs, ok := body["highlights"].([]any); !ok || len(hs) != 0 {
		t.Errorf("stored without store: got %v", body)
	}
}

func TestHTTP_OpenErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := doJSON(t, "POST", ts.URL+"/api/pages", map[string]any{"url": "not a url"})
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "bad_request" {
		t.Errorf("bad url: got %d %v", resp.StatusCode, body)
	}
	resp, body = doJSON(t, "POST", ts.URL+"/api/pages", map[string]any{"html": "<html><body></body></html>"})
	if resp.StatusCode != http.StatusUnprocessableEntity || body["code"] != "empty_article" {
		t.Errorf("empty article: got %d %v", resp.StatusCode, body)
	}
}

func TestHTTP_ListPages(t *testing.T) {
	ts, _ := newTestServer(t)
	first := openViaHTTP(t, ts)
	openViaHTTP(t, ts)

	_, body := doJSON(t, "GET", ts.URL+"/api/pages", nil)
	pages, _ := body["pages"].([]any)
	if len(pages) != 2 {
		t.Fatalf("pages: got %v", body)
	}
	if p0, _ := pages[0].(map[string]any); p0["id"] != first {
		t.Errorf("order: got %v first, want %s", p0["id"], first)
	}
}

func TestOriginMatches(t *testing.T) {
	tests := []struct {
		pattern, origin string
		want            bool
	}{
		{"http://localhost:*", "http://localhost:5173", true},
		{"http://localhost:*", "http://evil.com", false},
		{"https://app.example.com", "https://app.example.com", true},
		{"https://*.example.com", "https://a.example.com", true},
		{"https://*.example.com", "https://example.org", false},
	}
	for _, tt := range tests {
		if got := originMatches(tt.pattern, tt.origin); got != tt.want {
			t.Errorf("originMatches(%q, %q): got %v, want %v", tt.pattern, tt.origin, got, tt.want)
		}
	}
}

func TestHTTP_AuditTrail(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(audit.Schema))
	trail := audit.New(db, 0, audit.WithFlushInterval(10*time.Millisecond))
	t.Cleanup(func() { trail.Close() })
	svc, _ := newTestService(t, WithAudit(trail))
	ts := httptest.NewServer(NewHandler(svc, HandlerConfig{}))
	t.Cleanup(ts.Close)

	id := openViaHTTP(t, ts)
	doJSON(t, "POST", ts.URL+"/api/pages/"+id+"/highlights", nil)

	var entries []any
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, body := doJSON(t, "GET", ts.URL+"/api/audit?page="+id+"&op=create_highlight", nil)
		if entries, _ = body["entries"].([]any); len(entries) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries: got %v", entries)
	}
	e, _ := entries[0].(map[string]any)
	if e["status"] != "error" || e["errorCode"] != "no_selection" || e["transport"] != "http" {
		t.Errorf("entry: got %v", e)
	}

	resp, _ := doJSON(t, "GET", ts.URL+"/api/audit?limit=x", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit: got %d, want 400", resp.StatusCode)
	}
}
