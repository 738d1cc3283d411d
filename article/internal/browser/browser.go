// Package browser renders script-built articles in headless Chrome through
// Rod. Chrome is launched (or a remote instance dialled) on first use and
// kept for the life of the Renderer; every render gets its own tab.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures a Renderer.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local headless Chrome.
	RemoteURL string
	// Stealth patches each tab against automation detection.
	Stealth bool
	// ResourceBlocking lists resource types never fetched (images, fonts,
	// media, stylesheets). Default: all four.
	ResourceBlocking []string
	// NavTimeout bounds navigation plus load. Default: 30s.
	NavTimeout time.Duration
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.ResourceBlocking == nil {
		c.ResourceBlocking = []string{"images", "fonts", "media", "stylesheets"}
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Renderer owns one Chrome.
type Renderer struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// New creates a Renderer. Chrome starts on the first Render.
func New(cfg Config) *Renderer {
	cfg.defaults()
	return &Renderer{cfg: cfg}
}

// Render navigates a fresh tab to pageURL, waits for load and returns the
// serialised document.
func (r *Renderer) Render(ctx context.Context, pageURL string) ([]byte, error) {
	b, err := r.ensure()
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if r.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	defer page.Close()

	if len(r.cfg.ResourceBlocking) > 0 {
		stop := blockResources(page, r.cfg.ResourceBlocking)
		defer stop()
	}

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		r.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	res, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: get DOM: %w", err)
	}
	html := res.Value.Str()
	r.cfg.Logger.Debug("browser: rendered", "url", pageURL, "size", len(html))
	return []byte(html), nil
}

// Close shuts Chrome down. Render fails afterwards.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.lnch != nil {
		r.lnch.Cleanup()
		r.lnch = nil
	}
	return err
}

func (r *Renderer) ensure() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("browser: renderer is closed")
	}
	if r.browser != nil {
		return r.browser, nil
	}

	log := r.cfg.Logger
	wsURL := r.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		r.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "stealth", r.cfg.Stealth)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if r.lnch != nil {
			r.lnch.Cleanup()
			r.lnch = nil
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	r.browser = b
	return b, nil
}
