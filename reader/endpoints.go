package reader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/readmark/annotate"
	"github.com/hazyhaar/readmark/kit"
	"github.com/hazyhaar/readmark/prefs"
)

type pageReq struct {
	Page string `json:"page"`
}

type busyReq struct {
	Page string `json:"page"`
	Busy bool   `json:"busy"`
}

type removeReq struct {
	Page string `json:"page"`
	ID   string `json:"id"`
}

type prefsReq struct {
	Page string `json:"page"`
	prefs.Patch
}

type busyResp struct {
	Busy bool `json:"busy"`
}

type listResp struct {
	Highlights []annotate.Highlight `json:"highlights"`
}

type removeResp struct {
	ID      string `json:"id"`
	Removed bool   `json:"removed"`
}

type removeAllResp struct {
	Count int `json:"count"`
}

type markdownResp struct {
	Markdown string `json:"markdown"`
}

type revealResp struct {
	Revealed int `json:"revealed"`
}

// endpoints are the host operations shared by the HTTP and MCP transports.
type endpoints struct {
	open, info, setBusy, create, remove, removeAll, list, setPrefs, markdown, reveal kit.Endpoint
}

func newEndpoints(svc *Service, logger *slog.Logger) endpoints {
	wrap := func(op string, ep kit.Endpoint) kit.Endpoint {
		mws := []kit.Middleware{kit.Logging(logger, op)}
		if svc.audit != nil {
			mws = append(mws, svc.audit.Middleware(op))
		}
		next := kit.Chain(mws...)(ep)
		return func(ctx context.Context, req any) (any, error) {
			if id := pageOf(req); id != "" {
				ctx = kit.WithPageID(ctx, id)
			}
			return next(ctx, req)
		}
	}
	return endpoints{
		open: wrap("open_page", func(ctx context.Context, req any) (any, error) {
			p, err := svc.Open(ctx, *req.(*OpenRequest))
			if err != nil {
				return nil, err
			}
			return p.Info(ctx)
		}),
		info: wrap("page_info", withPage(svc, func(ctx context.Context, p *Page, _ any) (any, error) {
			return p.Info(ctx)
		})),
		setBusy: wrap("set_busy", withPage(svc, func(ctx context.Context, p *Page, req any) (any, error) {
			r := req.(*busyReq)
			if err := p.SetBusy(ctx, r.Busy); err != nil {
				return nil, err
			}
			return busyResp{Busy: r.Busy}, nil
		})),
		create: wrap("create_highlight", withPage(svc, func(ctx context.Context, p *Page, _ any) (any, error) {
			return p.CreateHighlight(ctx)
		})),
		remove: wrap("remove_highlight", withPage(svc, func(ctx context.Context, p *Page, req any) (any, error) {
			r := req.(*removeReq)
			if r.ID == "" {
				return nil, fmt.Errorf("%w: highlight id required", ErrBadRequest)
			}
			ok, err := p.RemoveHighlight(ctx, r.ID)
			if err != nil {
				return nil, err
			}
			return removeResp{ID: r.ID, Removed: ok}, nil
		})),
		removeAll: wrap("remove_all_highlights", withPage(svc, func(ctx context.Context, p *Page, _ any) (any, error) {
			n, err := p.RemoveAllHighlights(ctx)
			if err != nil {
				return nil, err
			}
			return removeAllResp{Count: n}, nil
		})),
		list: wrap("list_highlights", withPage(svc, func(ctx context.Context, p *Page, _ any) (any, error) {
			hs, err := p.Highlights(ctx)
			if err != nil {
				return nil, err
			}
			return listResp{Highlights: hs}, nil
		})),
		setPrefs: wrap("set_preferences", withPage(svc, func(ctx context.Context, p *Page, req any) (any, error) {
			return p.SetPrefs(ctx, req.(*prefsReq).Patch)
		})),
		markdown: wrap("export_markdown", withPage(svc, func(ctx context.Context, p *Page, _ any) (any, error) {
			md, err := p.Markdown(ctx)
			if err != nil {
				return nil, err
			}
			return markdownResp{Markdown: md}, nil
		})),
		reveal: wrap("reveal_images", withPage(svc, func(ctx context.Context, p *Page, _ any) (any, error) {
			n, err := p.RevealImages(ctx)
			if err != nil {
				return nil, err
			}
			return revealResp{Revealed: n}, nil
		})),
	}
}

// withPage resolves the page named by the request before calling fn.
func withPage(svc *Service, fn func(context.Context, *Page, any) (any, error)) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		id := pageOf(req)
		if id == "" {
			id = kit.GetPageID(ctx)
		}
		if id == "" {
			return nil, fmt.Errorf("%w: page id required", ErrBadRequest)
		}
		p, err := svc.Page(id)
		if err != nil {
			return nil, err
		}
		return fn(kit.WithPageID(ctx, id), p, req)
	}
}

func pageOf(req any) string {
	switch r := req.(type) {
	case *pageReq:
		return r.Page
	case *busyReq:
		return r.Page
	case *removeReq:
		return r.Page
	case *prefsReq:
		return r.Page
	}
	return ""
}
