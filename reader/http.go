package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/readmark/annotate"
	"github.com/hazyhaar/readmark/article"
	"github.com/hazyhaar/readmark/audit"
	"github.com/hazyhaar/readmark/kit"
	"github.com/hazyhaar/readmark/prefs"
	"github.com/hazyhaar/readmark/shield"
)

// Version is reported by the MCP server and /healthz.
const Version = "0.3.0"

// HandlerConfig configures the HTTP surface.
type HandlerConfig struct {
	// CORSOrigins allowed to call the API and open the view channel.
	// Default: http://localhost:*, http://127.0.0.1:*.
	CORSOrigins []string
	// MaxBody caps request bodies. Default: 4 MiB.
	MaxBody int64
	// MCP mounts the streamable MCP endpoint at /mcp.
	MCP bool
	// WSWriteTimeout bounds each websocket frame. Default: 5s.
	WSWriteTimeout time.Duration
	Logger         *slog.Logger
}

func (c *HandlerConfig) defaults() {
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	if c.MaxBody <= 0 {
		c.MaxBody = 4 << 20
	}
	if c.WSWriteTimeout <= 0 {
		c.WSWriteTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type handler struct {
	svc      *Service
	cfg      HandlerConfig
	eps      endpoints
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler returns the HTTP API of svc.
func NewHandler(svc *Service, cfg HandlerConfig) http.Handler {
	cfg.defaults()
	h := &handler{
		svc:    svc,
		cfg:    cfg,
		eps:    newEndpoints(svc, cfg.Logger),
		logger: cfg.Logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range shield.Stack(cfg.MaxBody) {
		r.Use(mw)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Trace-ID"},
		ExposedHeaders:   []string{"X-Trace-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"version": Version,
			"pages":   len(svc.Pages()),
		})
	})

	r.Get("/api/audit", h.audit)

	r.Route("/api/pages", func(r chi.Router) {
		r.Post("/", h.serve(h.eps.open, decodeOpen, http.StatusCreated))
		r.Get("/", h.listPages)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.serve(h.eps.info, decodeNone, http.StatusOK))
			r.Delete("/", h.closePage)
			r.Get("/html", h.html)
			r.Put("/busy", h.serve(h.eps.setBusy, decodeBusy, http.StatusOK))
			r.Get("/highlights", h.serve(h.eps.list, decodeNone, http.StatusOK))
			r.Post("/highlights", h.serve(h.eps.create, decodeNone, http.StatusCreated))
			r.Delete("/highlights", h.serve(h.eps.removeAll, decodeNone, http.StatusOK))
			r.Delete("/highlights/{hid}", h.removeHighlight)
			r.Put("/prefs", h.serve(h.eps.setPrefs, decodePrefs, http.StatusOK))
			r.Get("/markdown", h.markdown)
			r.Post("/images", h.serve(h.eps.reveal, decodeNone, http.StatusOK))
			r.Get("/stored", h.stored)
			r.Get("/ws", h.ws)
		})
	})

	if cfg.MCP {
		srv := mcp.NewServer(&mcp.Implementation{Name: "readmark", Version: Version}, nil)
		svc.RegisterMCP(srv)
		mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
		r.Handle("/mcp", mcpHandler)
		r.Handle("/mcp/*", mcpHandler)
	}
	return r
}

type decodeFunc func(*http.Request) (any, error)

// serve adapts an endpoint to HTTP. The {id} URL parameter names the page.
func (h *handler) serve(ep kit.Endpoint, decode decodeFunc, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := kit.WithTransport(r.Context(), "http")
		if id := chi.URLParam(r, "id"); id != "" {
			ctx = kit.WithPageID(ctx, id)
		}
		resp, err := ep(ctx, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, status, resp)
	}
}

func decodeNone(*http.Request) (any, error) { return &pageReq{}, nil }

func decodeOpen(r *http.Request) (any, error) {
	var req OpenRequest
	return &req, decodeBody(r, &req)
}

func decodeBusy(r *http.Request) (any, error) {
	var req busyReq
	return &req, decodeBody(r, &req)
}

func decodePrefs(r *http.Request) (any, error) {
	var req prefsReq
	return &req, decodeBody(r, &req)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", ErrBadRequest, err)
	}
	return nil
}

func (h *handler) listPages(w http.ResponseWriter, r *http.Request) {
	pages := h.svc.Pages()
	out := make([]PageInfo, 0, len(pages))
	for _, p := range pages {
		info, err := p.Info(r.Context())
		if err != nil {
			// Closed between listing and asking.
			continue
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": out})
}

func (h *handler) closePage(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClosePage(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) html(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Page(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := p.HTML(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

// removeHighlight answers 404 for an unknown id; the engine call itself
// stays a no-op.
func (h *handler) removeHighlight(w http.ResponseWriter, r *http.Request) {
	ctx := kit.WithPageID(kit.WithTransport(r.Context(), "http"), chi.URLParam(r, "id"))
	resp, err := h.eps.remove(ctx, &removeReq{ID: chi.URLParam(r, "hid")})
	if err != nil {
		writeError(w, err)
		return
	}
	if rr := resp.(removeResp); !rr.Removed {
		writeError(w, fmt.Errorf("reader: highlight %q: %w", rr.ID, annotate.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// markdown answers JSON, or raw Markdown with ?format=raw.
func (h *handler) markdown(w http.ResponseWriter, r *http.Request) {
	ctx := kit.WithPageID(kit.WithTransport(r.Context(), "http"), chi.URLParam(r, "id"))
	resp, err := h.eps.markdown(ctx, &pageReq{})
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "raw" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(resp.(markdownResp).Markdown))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) stored(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.Stored(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"highlights": recs})
}

// audit lists recorded host calls, filtered by ?page=, ?op= and ?limit=.
func (h *handler) audit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{PageID: q.Get("page"), Op: q.Get("op")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, fmt.Errorf("%w: limit %q", ErrBadRequest, v))
			return
		}
		f.Limit = n
	}
	entries, err := h.svc.Audit(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	return slices.ContainsFunc(h.cfg.CORSOrigins, func(allowed string) bool {
		return allowed == "*" || originMatches(allowed, origin)
	})
}

// originMatches supports a single "*" wildcard, as go-chi/cors does.
func originMatches(pattern, origin string) bool {
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '*' {
			prefix, suffix := pattern[:i], pattern[i+1:]
			return len(origin) >= len(prefix)+len(suffix) &&
				origin[:len(prefix)] == prefix &&
				origin[len(origin)-len(suffix):] == suffix
		}
	}
	return pattern == origin
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusOf maps an error to an HTTP status and a stable code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, prefs.ErrFontSize):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrPageNotFound):
		return http.StatusNotFound, "page_not_found"
	case errors.Is(err, annotate.ErrNotFound):
		return http.StatusNotFound, annotate.ErrorCode(err)
	case errors.Is(err, annotate.ErrNoSelection):
		return http.StatusConflict, annotate.ErrorCode(err)
	case errors.Is(err, annotate.ErrInvalidRange):
		return http.StatusUnprocessableEntity, annotate.ErrorCode(err)
	case errors.Is(err, article.ErrEmpty):
		return http.StatusUnprocessableEntity, "empty_article"
	case errors.Is(err, ErrFetch):
		return http.StatusBadGateway, "fetch_failed"
	case errors.Is(err, ErrPageClosed):
		return http.StatusGone, "page_closed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, annotate.ErrorCode(err)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
