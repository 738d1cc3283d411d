package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hazyhaar/readmark/annotate"
	"github.com/hazyhaar/readmark/bridge"
	"github.com/hazyhaar/readmark/kit"
)

// viewEvent is one inbound frame on the view channel. Offsets are rune
// offsets into the article text.
type viewEvent struct {
	Type       string            `json:"type"`
	Start      int               `json:"start"`
	End        int               `json:"end"`
	Rects      []annotate.Rect   `json:"rects"`
	Viewport   annotate.Viewport `json:"viewport"`
	InsideMenu bool              `json:"insideMenu"`
	Offset     int               `json:"offset"`
	Action     annotate.Action   `json:"action"`
}

// viewError is sent back on the channel when an event is rejected.
type viewError struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ws upgrades to the view channel. Every bridge message of the page is
// pushed to the client; inbound frames are view events.
func (h *handler) ws(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.svc.Page(id)
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("reader: websocket upgrade failed", "page", id, "error", err)
		return
	}
	sink := bridge.NewWebSocket(conn, h.cfg.WSWriteTimeout)
	detach := p.Subscribe(sink)
	defer func() {
		detach()
		_ = sink.Close()
	}()
	h.logger.Debug("reader: view connected", "page", id, "remote", r.RemoteAddr)

	ctx := kit.WithTransport(kit.WithPageID(r.Context(), id), "ws")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("reader: view channel closed", "page", id, "error", err)
			}
			return
		}
		var ev viewEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			_ = sink.WriteJSON(viewError{Type: "error", Error: "malformed event", Code: "bad_request"})
			continue
		}
		if err := dispatch(ctx, p, ev); err != nil {
			if errors.Is(err, ErrPageClosed) {
				return
			}
			h.logger.Debug("reader: view event rejected", "page", id, "event", ev.Type, "error", err)
			_, code := statusOf(err)
			_ = sink.WriteJSON(viewError{Type: "error", Event: ev.Type, Error: err.Error(), Code: code})
		}
	}
}

func dispatch(ctx context.Context, p *Page, ev viewEvent) error {
	switch ev.Type {
	case "select":
		rects := make([]annotate.Rect, len(ev.Rects))
		for i, rc := range ev.Rects {
			rects[i] = annotate.NewRect(rc.Left, rc.Top, rc.Width, rc.Height)
		}
		return p.Select(ctx, ev.Start, ev.End, rects, ev.Viewport)
	case "clear":
		return p.ClearSelection(ctx)
	case "scroll":
		return p.Scroll(ctx)
	case "pointerdown":
		return p.PointerDown(ctx, ev.InsideMenu)
	case "dblclick":
		return p.DoubleClick(ctx)
	case "click":
		return p.Click(ctx, ev.Offset)
	case "menu":
		if !ev.Action.Valid() {
			return fmt.Errorf("%w: unknown menu action %q", ErrBadRequest, ev.Action)
		}
		return p.MenuAction(ctx, ev.Action)
	}
	return fmt.Errorf("%w: unknown view event %q", ErrBadRequest, ev.Type)
}
