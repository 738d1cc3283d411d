package annotate

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/hazyhaar/readmark/annotate/internal/selection"
	"github.com/hazyhaar/readmark/bridge"
	"github.com/hazyhaar/readmark/doctree"
)

// SelectionChanged records the live selection reported by the view.
func (e *Engine) SelectionChanged(sel NativeSelection) {
	e.input(func() {
		e.live = sel
		e.obs.Changed(e.host, e.snapshot(sel))
	})
}

// SelectOffsets reports a selection given as rune offsets into the text of
// the document body. start == end is a collapsed selection.
func (e *Engine) SelectOffsets(start, end int, rects []Rect, vp Viewport) error {
	if start == end {
		e.SelectionChanged(NativeSelection{Viewport: vp})
		return nil
	}
	if end < start {
		start, end = end, start
	}
	r, err := e.doc.RangeAt(e.root, start, end)
	if err != nil {
		return fmt.Errorf("annotate: select [%d,%d): %w", start, end, err)
	}
	e.SelectionChanged(NativeSelection{Range: r, Rects: rects, Viewport: vp})
	return nil
}

// ClearSelection collapses the live selection.
func (e *Engine) ClearSelection() {
	e.SelectionChanged(NativeSelection{Viewport: e.live.Viewport})
}

// LiveText returns the trimmed text of the live selection.
func (e *Engine) LiveText() string {
	if e.live.Range.IsZero() {
		return ""
	}
	txt, err := e.doc.RangeText(e.live.Range)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(txt)
}

// Scrolled reports one scroll tick.
func (e *Engine) Scrolled() {
	e.input(func() { e.obs.Scrolled(e.host) })
}

// PointerDown reports a pointer press, inside the menu or not.
func (e *Engine) PointerDown(insideMenu bool) {
	e.input(func() { e.menu.PointerDown(insideMenu) })
}

// DoubleClicked reports a double click. A single-word selection is sent to
// the host as wordSelected.
func (e *Engine) DoubleClicked() {
	e.input(func() {
		w := e.LiveText()
		if w == "" || strings.IndexFunc(w, unicode.IsSpace) >= 0 {
			return
		}
		e.emit(bridge.KindWordSelected, bridge.WordSelected{Word: w})
	})
}

// Clicked reports a click on node. Clicks inside a vocabulary word are sent
// to the host as wordSelected.
func (e *Engine) Clicked(node doctree.NodeID) {
	e.input(func() {
		for n := node; n != doctree.None; n = e.doc.Parent(n) {
			if !e.doc.HasClass(n, VocabularyClass) {
				continue
			}
			w, ok := e.doc.Attr(n, "data-word")
			if !ok {
				w = e.doc.TextContent(n)
			}
			if w = strings.TrimSpace(w); w != "" {
				e.emit(bridge.KindWordSelected, bridge.WordSelected{Word: w})
			}
			return
		}
	})
}

// ClickedAt reports a click on the character at a rune offset.
func (e *Engine) ClickedAt(offset int) {
	e.Clicked(e.doc.NodeAt(e.root, offset))
}

// MenuAction runs a menu button. Copy sends the live selection text, translate
// asks the host to translate its cached text and starts the cool-down,
// highlight promotes the live selection.
func (e *Engine) MenuAction(ctx context.Context, a Action) error {
	if !a.Valid() {
		return fmt.Errorf("annotate: unknown menu action %q", a)
	}
	var err error
	e.input(func() { err = e.menuAction(ctx, a) })
	return err
}

func (e *Engine) menuAction(ctx context.Context, a Action) error {
	switch a {
	case ActionCopy:
		if txt := e.LiveText(); txt != "" {
			e.emit(bridge.KindCopyText, bridge.CopyText{Text: txt})
		}
		e.menu.Copy()
	case ActionTranslate:
		if e.menu.Translate() {
			e.emit(bridge.KindTranslateText, bridge.TranslateText{UseCached: true})
		}
	case ActionHighlight:
		if e.host.Busy {
			e.logger.Debug("annotate: highlight gesture ignored while host busy")
			return nil
		}
		if _, err := e.create(ctx); err != nil {
			e.logger.Debug("annotate: highlight gesture failed", "error", err)
			return err
		}
	}
	return nil
}

func (e *Engine) snapshot(sel NativeSelection) selection.Snapshot {
	snap := selection.Snapshot{Rects: sel.Rects, Viewport: sel.Viewport, Collapsed: true}
	if sel.Range.IsZero() {
		return snap
	}
	txt, err := e.doc.RangeText(sel.Range)
	if err != nil {
		e.logger.Debug("annotate: unreadable selection", "error", err)
		return snap
	}
	snap.Text = strings.TrimSpace(txt)
	snap.Collapsed = snap.Text == ""
	return snap
}

func (e *Engine) clearLive() {
	e.live = NativeSelection{Viewport: e.live.Viewport}
	e.obs.Changed(e.host, selection.Snapshot{Collapsed: true, Viewport: e.live.Viewport})
}

// revalidateLive drops a live selection whose boundary nodes were merged
// away by an unwrap.
func (e *Engine) revalidateLive() {
	r := e.live.Range
	if r.IsZero() || (e.doc.ValidPoint(r.Start) && e.doc.ValidPoint(r.End)) {
		return
	}
	e.logger.Debug("annotate: live selection invalidated by mutation")
	e.clearLive()
}

func (e *Engine) onSelection(ev SelectionEvent) {
	if ev.Collapsed {
		e.menu.Hide()
		e.emit(bridge.KindSelectionCleared, nil)
		return
	}
	e.menu.Show(e.host, ev)
	a := ev.AnchorRect
	e.emit(bridge.KindSelectionCoordinates, bridge.SelectionCoordinates{
		Text:           ev.Text,
		X:              a.X,
		Y:              a.Y,
		Top:            a.Top,
		Left:           a.Left,
		Width:          a.Width,
		Height:         a.Height,
		ViewportWidth:  ev.Viewport.Width,
		ViewportHeight: ev.Viewport.Height,
	})
}

func (e *Engine) onMenu(st MenuState) {
	e.emit(bridge.KindMenuState, bridge.MenuState(st))
}

func (e *Engine) onSelectable(enabled bool) {
	e.emit(bridge.KindSelectable, bridge.Selectable{Enabled: enabled})
}
