// Package selection turns raw selection and scroll signals into debounced
// selection events.
//
// The Observer is an explicit state machine (Idle, Pending, Reported). Every
// reaction receives the host state as a value; timer expiries read it through
// Config.Host at the moment they fire. Timers carry a generation token so a
// callback that lost a race with a newer change is ignored.
package selection

import (
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/readmark/annotate/internal/geometry"
	"github.com/hazyhaar/readmark/annotate/internal/sched"
)

// Reason says why an event was emitted. It is diagnostic only.
type Reason string

const (
	ReasonChange   Reason = "change"
	ReasonCollapse Reason = "collapse"
	ReasonBusy     Reason = "busy"
	ReasonScroll   Reason = "scroll"
	ReasonReset    Reason = "reset"
)

// State of the observer.
type State int

const (
	Idle State = iota
	Pending
	Reported
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Reported:
		return "reported"
	}
	return "unknown"
}

// HostState is what the host has told the view about itself.
type HostState struct {
	Busy bool `json:"busy"`
}

// Snapshot is one raw selection reading from the view.
type Snapshot struct {
	Collapsed bool
	Text      string
	Rects     []geometry.Rect
	Viewport  geometry.Viewport
}

// Event is a debounced selection report.
type Event struct {
	Collapsed  bool              `json:"collapsed"`
	Text       string            `json:"text"`
	AnchorRect geometry.Rect     `json:"anchorRect"`
	Viewport   geometry.Viewport `json:"viewport"`
	Reason     Reason            `json:"reason"`
}

// Config parameterises an Observer.
type Config struct {
	// Window is the debounce delay. Default: 300ms.
	Window time.Duration
	// ScrollSettle re-enables selection this long after the last scroll
	// tick. Default: 300ms.
	ScrollSettle time.Duration
	// Scheduler arms timers. Default: wall clock calling back directly.
	Scheduler sched.Scheduler
	// Host reports the host state when a timer fires.
	Host func() HostState
	// Emit receives every event.
	Emit func(Event)
	// Selectable is told when scrolling disables and re-enables selection.
	Selectable func(enabled bool)
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.Window <= 0 {
		c.Window = 300 * time.Millisecond
	}
	if c.ScrollSettle <= 0 {
		c.ScrollSettle = 300 * time.Millisecond
	}
	if c.Scheduler == nil {
		c.Scheduler = sched.NewLoop(func(f func()) { f() })
	}
	if c.Host == nil {
		c.Host = func() HostState { return HostState{} }
	}
	if c.Emit == nil {
		c.Emit = func(Event) {}
	}
	if c.Selectable == nil {
		c.Selectable = func(bool) {}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Observer derives selection events. It is not safe for concurrent use.
type Observer struct {
	cfg Config

	state   State
	gen     uint64
	timer   sched.Timer
	last    Snapshot
	current Event
	cleared bool

	scrolling   bool
	scrollGen   uint64
	scrollTimer sched.Timer
}

// New creates an Observer in the Idle state.
func New(cfg Config) *Observer {
	cfg.defaults()
	return &Observer{cfg: cfg, cleared: true}
}

// State returns the current state.
func (o *Observer) State() State { return o.state }

// Scrolling reports whether a scroll burst is in progress.
func (o *Observer) Scrolling() bool { return o.scrolling }

// Current returns the last reported event, valid in the Reported state.
func (o *Observer) Current() Event { return o.current }

// Changed reacts to a selection change.
func (o *Observer) Changed(host HostState, snap Snapshot) {
	switch {
	case host.Busy:
		o.collapse(ReasonBusy)
	case o.scrolling:
		o.cfg.Logger.Debug("selection: change ignored while scrolling")
	case snap.Collapsed || strings.TrimSpace(snap.Text) == "":
		o.collapse(ReasonCollapse)
	case o.state == Reported && o.sameAsReported(snap):
	default:
		o.cancel()
		o.last = snap
		o.state = Pending
		o.gen++
		gen := o.gen
		o.timer = o.cfg.Scheduler.AfterFunc(o.cfg.Window, func() {
			o.Elapsed(o.cfg.Host(), gen)
		})
	}
}

// Elapsed handles the debounce deadline armed with generation gen.
func (o *Observer) Elapsed(host HostState, gen uint64) {
	if gen != o.gen || o.state != Pending {
		o.cfg.Logger.Debug("selection: stale deadline", "gen", gen, "current", o.gen)
		return
	}
	o.timer = nil
	if host.Busy {
		o.collapse(ReasonBusy)
		return
	}
	o.current = Event{
		Text:       o.last.Text,
		AnchorRect: geometry.BoundingRect(o.last.Rects),
		Viewport:   o.last.Viewport,
		Reason:     ReasonChange,
	}
	o.state = Reported
	o.cleared = false
	o.cfg.Emit(o.current)
}

// Scrolled reacts to one scroll tick.
func (o *Observer) Scrolled(host HostState) {
	if !o.scrolling {
		o.scrolling = true
		o.cancel()
		o.state = Idle
		o.cleared = true
		o.cfg.Emit(Event{Collapsed: true, Reason: ReasonScroll})
		o.cfg.Selectable(false)
	}
	if o.scrollTimer != nil {
		o.scrollTimer.Stop()
	}
	o.scrollGen++
	gen := o.scrollGen
	o.scrollTimer = o.cfg.Scheduler.AfterFunc(o.cfg.ScrollSettle, func() {
		o.Settled(gen)
	})
}

// Settled ends a scroll burst armed with generation gen.
func (o *Observer) Settled(gen uint64) {
	if gen != o.scrollGen || !o.scrolling {
		return
	}
	o.scrolling = false
	o.scrollTimer = nil
	o.cfg.Selectable(true)
}

// Reset cancels any pending report and returns to Idle.
func (o *Observer) Reset(host HostState) {
	reason := ReasonReset
	if host.Busy {
		reason = ReasonBusy
	}
	o.collapse(reason)
}

// Stop cancels every timer without emitting.
func (o *Observer) Stop() {
	o.cancel()
	o.state = Idle
	if o.scrollTimer != nil {
		o.scrollTimer.Stop()
		o.scrollTimer = nil
	}
	o.scrollGen++
	o.scrolling = false
}

func (o *Observer) collapse(reason Reason) {
	quiet := o.state == Idle && o.cleared
	o.cancel()
	o.state = Idle
	if quiet {
		return
	}
	o.cleared = true
	o.current = Event{}
	o.cfg.Emit(Event{Collapsed: true, Reason: reason})
}

func (o *Observer) cancel() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.gen++
}

func (o *Observer) sameAsReported(s Snapshot) bool {
	return s.Text == o.current.Text &&
		s.Viewport == o.current.Viewport &&
		geometry.BoundingRect(s.Rects) == o.current.AnchorRect
}
