// Package annotate is the selection and highlight engine of a reader view.
//
// An Engine owns one document. It turns raw selection, pointer and scroll
// signals from the view into debounced selection events, drives the floating
// action menu, and converts selections into highlight markers that can later
// be removed without leaving a trace in the document. The host is notified of
// everything through a Notifier.
//
// The Engine is single-threaded: all calls must come from one goroutine, and
// its Scheduler must deliver timer callbacks on that same goroutine
// (see NewLoopScheduler).
package annotate

import (
	"github.com/hazyhaar/readmark/annotate/internal/fault"
	"github.com/hazyhaar/readmark/annotate/internal/geometry"
	"github.com/hazyhaar/readmark/annotate/internal/menu"
	"github.com/hazyhaar/readmark/annotate/internal/registry"
	"github.com/hazyhaar/readmark/annotate/internal/sched"
	"github.com/hazyhaar/readmark/annotate/internal/selection"
	"github.com/hazyhaar/readmark/annotate/internal/span"
	"github.com/hazyhaar/readmark/bridge"
	"github.com/hazyhaar/readmark/doctree"
)

var (
	ErrNoSelection  = fault.ErrNoSelection
	ErrInvalidRange = fault.ErrInvalidRange
	ErrNotFound     = fault.ErrNotFound
	ErrDuplicateID  = fault.ErrDuplicateID
)

// ErrorCode maps an error to its stable wire code.
func ErrorCode(err error) string { return fault.Code(err) }

type (
	Highlight      = registry.Highlight
	SelectionEvent = selection.Event
	HostState      = selection.HostState
	Reason         = selection.Reason
	MenuState      = menu.State
	Action         = menu.Action
	Rect           = geometry.Rect
	Viewport       = geometry.Viewport
	Scheduler      = sched.Scheduler
	Timer          = sched.Timer
	ManualClock    = sched.Manual
)

const (
	ActionCopy      = menu.ActionCopy
	ActionTranslate = menu.ActionTranslate
	ActionHighlight = menu.ActionHighlight
)

// Marker attribute names as rendered in the document.
const (
	MarkerClass    = span.Class
	MarkerAttrID   = span.AttrID
	MarkerAttrText = span.AttrText
)

// VocabularyClass marks words the host wants clickable.
const VocabularyClass = "vocabulary-word"

// NewRect builds a Rect from its origin and size.
func NewRect(left, top, width, height float64) Rect {
	return geometry.NewRect(left, top, width, height)
}

// NewLoopScheduler returns a wall-clock scheduler that hands expired
// callbacks to post, typically the page event loop.
func NewLoopScheduler(post func(func())) Scheduler {
	return sched.NewLoop(post)
}

// NewManualClock returns a virtual clock for tests.
func NewManualClock() *ManualClock { return sched.NewManual() }

// NativeSelection is the live selection as reported by the view.
type NativeSelection struct {
	Range    doctree.Range
	Rects    []Rect
	Viewport Viewport
}

// Notifier receives host notifications. bridge.Emitter implements it.
type Notifier interface {
	Emit(kind bridge.Kind, data any)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(kind bridge.Kind, data any)

func (f NotifierFunc) Emit(kind bridge.Kind, data any) { f(kind, data) }
