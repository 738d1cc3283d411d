// Package menu holds the floating annotation menu state.
package menu

import (
	"log/slog"
	"time"

	"github.com/hazyhaar/readmark/annotate/internal/geometry"
	"github.com/hazyhaar/readmark/annotate/internal/sched"
	"github.com/hazyhaar/readmark/annotate/internal/selection"
)

// Action is a menu button.
type Action string

const (
	ActionCopy      Action = "copy"
	ActionTranslate Action = "translate"
	ActionHighlight Action = "highlight"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCopy, ActionTranslate, ActionHighlight:
		return true
	}
	return false
}

// State is the menu as the view should render it.
type State struct {
	Visible bool    `json:"visible"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Cooling bool    `json:"cooling"`
}

// Config parameterises a Menu.
type Config struct {
	// Width and Height of the rendered menu. Defaults: 180x44.
	Width  float64
	Height float64
	// Gap between the selection and the menu. Default: 8.
	Gap float64
	// Cooldown disables translate after a tap. Default: 500ms.
	Cooldown  time.Duration
	Scheduler sched.Scheduler
	// OnChange receives every state transition.
	OnChange func(State)
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.Width <= 0 {
		c.Width = 180
	}
	if c.Height <= 0 {
		c.Height = 44
	}
	if c.Gap <= 0 {
		c.Gap = 8
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 500 * time.Millisecond
	}
	if c.Scheduler == nil {
		c.Scheduler = sched.NewLoop(func(f func()) { f() })
	}
	if c.OnChange == nil {
		c.OnChange = func(State) {}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Menu tracks visibility, position and the translate cool-down.
type Menu struct {
	cfg   Config
	state State
	cool  sched.Timer
}

// New returns a hidden menu.
func New(cfg Config) *Menu {
	cfg.defaults()
	return &Menu{cfg: cfg}
}

// State returns the current state.
func (m *Menu) State() State { return m.state }

// Position computes where the menu goes for an anchor.
func (m *Menu) Position(anchor geometry.Rect, vp geometry.Viewport) (x, y float64) {
	x = geometry.ClampHorizontalCenter(anchor.CenterX(), m.cfg.Width, vp.Width)
	y = geometry.PlaceBelowOrAbove(anchor, m.cfg.Height, vp.Height, m.cfg.Gap)
	return x, y
}

// Show displays the menu for ev. It does nothing while the host is busy or
// when ev is collapsed, and reports whether the menu is now shown.
func (m *Menu) Show(host selection.HostState, ev selection.Event) bool {
	if host.Busy || ev.Collapsed {
		return false
	}
	x, y := m.Position(ev.AnchorRect, ev.Viewport)
	m.state.Visible, m.state.X, m.state.Y = true, x, y
	m.cfg.OnChange(m.state)
	return true
}

// Hide hides the menu. Hiding a hidden menu is a no-op.
func (m *Menu) Hide() {
	if !m.state.Visible {
		return
	}
	m.state.Visible = false
	m.cfg.OnChange(m.state)
}

// PointerDown hides the menu when the pointer lands outside it.
func (m *Menu) PointerDown(insideMenu bool) {
	if !insideMenu {
		m.Hide()
	}
}

// Copy completes the copy action.
func (m *Menu) Copy() {
	m.Hide()
}

// Translate starts the cool-down. It reports false when the tap is dropped
// because a cool-down is already running. When the cool-down ends the menu
// hides and translate is re-enabled.
func (m *Menu) Translate() bool {
	if m.state.Cooling {
		m.cfg.Logger.Debug("menu: translate dropped during cool-down")
		return false
	}
	m.state.Cooling = true
	m.cfg.OnChange(m.state)
	m.cool = m.cfg.Scheduler.AfterFunc(m.cfg.Cooldown, m.cooled)
	return true
}

func (m *Menu) cooled() {
	if !m.state.Cooling {
		return
	}
	m.cool = nil
	m.state.Cooling = false
	m.state.Visible = false
	m.cfg.OnChange(m.state)
}

// Close cancels a running cool-down.
func (m *Menu) Close() {
	if m.cool != nil {
		m.cool.Stop()
		m.cool = nil
	}
	m.state = State{}
}
