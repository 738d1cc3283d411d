package annotate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/hazyhaar/readmark/annotate/internal/menu"
	"github.com/hazyhaar/readmark/annotate/internal/registry"
	"github.com/hazyhaar/readmark/annotate/internal/selection"
	"github.com/hazyhaar/readmark/annotate/internal/span"
	"github.com/hazyhaar/readmark/bridge"
	"github.com/hazyhaar/readmark/doctree"
)

// Engine orchestrates selection observation, the action menu and highlight
// mutations over one document.
type Engine struct {
	cfg    Config
	doc    *doctree.Document
	root   doctree.NodeID
	reg    *registry.Registry
	spans  *span.Mutator
	obs    *selection.Observer
	menu   *menu.Menu
	notify Notifier
	logger *slog.Logger

	host     HostState
	live     NativeSelection
	mutating bool
	deferred []func()
}

// New creates an Engine over doc. A nil notify drops notifications.
func New(doc *doctree.Document, notify Notifier, cfg Config) *Engine {
	cfg.ApplyDefaults()
	if notify == nil {
		notify = NotifierFunc(func(bridge.Kind, any) {})
	}
	e := &Engine{
		cfg:    cfg,
		doc:    doc,
		reg:    registry.New(),
		spans:  span.New(doc),
		notify: notify,
		logger: cfg.Logger,
	}
	e.root = doc.Body()
	if e.root == doctree.None {
		e.root = doc.Root()
	}
	e.obs = selection.New(selection.Config{
		Window:       cfg.Debounce,
		ScrollSettle: cfg.ScrollSettle,
		Scheduler:    cfg.Scheduler,
		Host:         func() HostState { return e.host },
		Emit:         e.onSelection,
		Selectable:   e.onSelectable,
		Logger:       cfg.Logger,
	})
	e.menu = menu.New(menu.Config{
		Width:     cfg.MenuWidth,
		Height:    cfg.MenuHeight,
		Gap:       cfg.MenuGap,
		Cooldown:  cfg.TranslateCooldown,
		Scheduler: cfg.Scheduler,
		OnChange:  e.onMenu,
		Logger:    cfg.Logger,
	})
	return e
}

// Document returns the annotated document.
func (e *Engine) Document() *doctree.Document { return e.doc }

// Root returns the node whose text defines selection offsets.
func (e *Engine) Root() doctree.NodeID { return e.root }

// Host returns the current host state.
func (e *Engine) Host() HostState { return e.host }

// MenuState returns the in-view menu state.
func (e *Engine) MenuState() MenuState { return e.menu.State() }

// SelectionState returns the observer state name.
func (e *Engine) SelectionState() string { return e.obs.State().String() }

// ListHighlights returns the live highlights in creation order.
func (e *Engine) ListHighlights() []Highlight { return e.reg.List() }

// Highlight returns one live highlight.
func (e *Engine) Highlight(id string) (Highlight, bool) {
	en, ok := e.reg.Lookup(id)
	return en.Highlight, ok
}

// Close stops pending timers.
func (e *Engine) Close() {
	e.obs.Stop()
	e.menu.Close()
}

// SetHostBusy records whether the host is showing modal UI. Turning busy
// cancels any pending selection report and hides the menu; existing
// highlights are untouched.
func (e *Engine) SetHostBusy(busy bool) {
	if e.host.Busy == busy {
		return
	}
	e.host.Busy = busy
	e.logger.Debug("annotate: host state changed", "busy", busy)
	if busy {
		e.obs.Reset(e.host)
		e.menu.Hide()
	}
}

// ContentRendered tells the host the document is ready.
func (e *Engine) ContentRendered() {
	e.emit(bridge.KindContentRendered, nil)
}

// CreateHighlightFromCurrentSelection wraps the live selection in a new
// highlight. Failures are returned and reported to the host as
// operationFailed.
func (e *Engine) CreateHighlightFromCurrentSelection(ctx context.Context) (Highlight, error) {
	h, err := e.create(ctx)
	if err != nil {
		e.fail("createHighlightFromCurrentSelection", err)
	}
	return h, err
}

func (e *Engine) create(ctx context.Context) (h Highlight, err error) {
	if err := ctx.Err(); err != nil {
		return Highlight{}, err
	}
	e.mutate(func() {
		h, err = e.promote()
	})
	return h, err
}

func (e *Engine) promote() (Highlight, error) {
	if e.live.Range.IsZero() {
		return Highlight{}, fmt.Errorf("annotate: create: %w", ErrNoSelection)
	}
	raw, err := e.doc.RangeText(e.live.Range)
	text := strings.TrimSpace(raw)
	if err != nil || text == "" {
		return Highlight{}, fmt.Errorf("annotate: create: %w", ErrNoSelection)
	}

	id := e.cfg.IDs()
	if e.reg.Has(id) {
		e.logger.Error("annotate: generated id already registered", "id", id)
		return Highlight{}, fmt.Errorf("annotate: create %q: %w", id, ErrDuplicateID)
	}
	marker, err := e.spans.Wrap(e.live.Range, id, text)
	if err != nil {
		return Highlight{}, fmt.Errorf("annotate: create: %w", err)
	}
	h := Highlight{ID: id, Text: text, CreatedAt: e.cfg.Now().UTC()}
	if err := e.reg.Add(h, marker); err != nil {
		if uerr := e.spans.Unwrap(marker); uerr != nil {
			e.logger.Error("annotate: rollback failed", "id", id, "error", uerr)
		}
		e.logger.Error("annotate: register highlight", "id", id, "error", err)
		return Highlight{}, fmt.Errorf("annotate: create: %w", err)
	}

	e.clearLive()
	e.menu.Hide()
	e.emit(bridge.KindHighlightCreated, bridge.HighlightCreated{
		ID:        h.ID,
		Text:      h.Text,
		Timestamp: h.CreatedAt.UnixMilli(),
	})
	e.logger.Info("annotate: highlight created", "id", h.ID, "chars", len(h.Text))
	return h, nil
}

// RemoveHighlight removes a highlight and its marker. It returns false when
// id is unknown.
func (e *Engine) RemoveHighlight(ctx context.Context, id string) bool {
	if ctx.Err() != nil {
		return false
	}
	var removed bool
	e.mutate(func() {
		en, ok := e.reg.Lookup(id)
		if !ok {
			e.logger.Debug("annotate: remove unknown highlight", "id", id)
			return
		}
		healed := e.unwrapEntry(en)
		if _, err := e.reg.Remove(id); err != nil {
			e.logger.Error("annotate: registry remove", "id", id, "error", err)
		}
		if healed {
			e.heal()
		}
		e.revalidateLive()
		e.emit(bridge.KindHighlightRemoved, bridge.HighlightRemoved{ID: id})
		e.logger.Info("annotate: highlight removed", "id", id)
		removed = true
	})
	return removed
}

// RemoveAllHighlights removes every highlight and sweeps stray markers. It
// returns how many registered highlights were removed.
func (e *Engine) RemoveAllHighlights(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	var count int
	e.mutate(func() {
		entries := e.reg.Entries()
		count = len(entries)
		for _, en := range entries {
			e.unwrapEntry(en)
		}
		if swept := e.spans.SweepOrphans(func(string) bool { return false }); swept > 0 {
			e.logger.Warn("annotate: swept orphan markers", "count", swept)
		}
		e.reg.Clear()
		e.revalidateLive()
		e.emit(bridge.KindAllHighlightsRemoved, bridge.AllHighlightsRemoved{Count: count})
		e.logger.Info("annotate: all highlights removed", "count", count)
	})
	return count
}

// unwrapEntry removes the marker of en. It reports whether the registry and
// the document had diverged.
func (e *Engine) unwrapEntry(en registry.Entry) bool {
	if err := e.spans.Unwrap(en.Marker); err == nil {
		return false
	}
	e.logger.Error("annotate: invariant violation: marker missing for highlight", "id", en.ID)
	if mk := e.spans.MarkerByID(en.ID); mk != doctree.None {
		_ = e.spans.Unwrap(mk)
	}
	return true
}

// heal brings registry and document back in line: markers without an entry
// are unwrapped and entries without a marker are dropped.
func (e *Engine) heal() {
	swept := e.spans.SweepOrphans(e.reg.Has)
	var dropped []string
	for _, en := range e.reg.Entries() {
		if e.doc.Attached(en.Marker) && e.spans.MarkerID(en.Marker) == en.ID {
			continue
		}
		_, _ = e.reg.Remove(en.ID)
		dropped = append(dropped, en.ID)
	}
	if swept > 0 || len(dropped) > 0 {
		e.logger.Warn("annotate: healed divergence", "swept", swept, "dropped", dropped)
	}
}

// CheckInvariant verifies that the registry ids equal the marker ids in the
// document and that every entry points at its own marker.
func (e *Engine) CheckInvariant() error {
	reg := e.reg.IDs()
	marks := e.spans.MarkerIDs()
	slices.Sort(reg)
	slices.Sort(marks)
	if !slices.Equal(reg, marks) {
		return fmt.Errorf("annotate: registry %v and document markers %v diverge", reg, marks)
	}
	for _, en := range e.reg.Entries() {
		if !e.doc.Attached(en.Marker) || e.spans.MarkerID(en.Marker) != en.ID {
			return fmt.Errorf("annotate: highlight %q has a stale marker handle", en.ID)
		}
	}
	return nil
}

func (e *Engine) mutate(fn func()) {
	e.mutating = true
	fn()
	e.mutating = false
	for len(e.deferred) > 0 {
		queue := e.deferred
		e.deferred = nil
		for _, f := range queue {
			f()
		}
	}
}

// input runs a view reaction now, or after the running mutation.
func (e *Engine) input(fn func()) {
	if e.mutating {
		e.deferred = append(e.deferred, fn)
		return
	}
	fn()
}

func (e *Engine) emit(kind bridge.Kind, data any) {
	e.notify.Emit(kind, data)
}

func (e *Engine) fail(op string, err error) {
	e.logger.Debug("annotate: operation failed", "op", op, "error", err)
	e.emit(bridge.KindOperationFailed, bridge.OperationFailed{
		Op:      op,
		Code:    ErrorCode(err),
		Message: err.Error(),
	})
}
