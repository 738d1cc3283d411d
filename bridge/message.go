// Package bridge carries view-side notifications to the host application.
//
// Every notification is a Message with a type, a per-emitter sequence
// number, a timestamp and a typed payload. Messages are delivered through a
// Sink (stdout JSON lines, webhook, in-process callback, websocket) and the
// delivery is fire-and-forget from the emitter's point of view.
package bridge

import "time"

// Kind names a message type on the wire.
type Kind string

const (
	KindSelectionCleared     Kind = "selectionCleared"
	KindSelectionCoordinates Kind = "selectionCoordinates"
	KindHighlightCreated     Kind = "highlightCreated"
	KindHighlightRemoved     Kind = "highlightRemoved"
	KindAllHighlightsRemoved Kind = "allHighlightsRemoved"
	KindWordSelected         Kind = "wordSelected"
	KindContentRendered      Kind = "contentRendered"
	KindCopyText             Kind = "copyText"
	KindTranslateText        Kind = "translateText"
	KindMenuState            Kind = "menuState"
	KindSelectable           Kind = "selectable"
	KindOperationFailed      Kind = "operationFailed"
)

// Message is one outbound notification.
type Message struct {
	Type      Kind      `json:"type"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Page      string    `json:"page,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// SelectionCoordinates lets the host position its own menu.
type SelectionCoordinates struct {
	Text           string  `json:"text"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Top            float64 `json:"top"`
	Left           float64 `json:"left"`
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	ViewportWidth  float64 `json:"viewportWidth"`
	ViewportHeight float64 `json:"viewportHeight"`
}

// HighlightCreated announces a new highlight. Timestamp is Unix milliseconds.
type HighlightCreated struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// HighlightRemoved announces a single removal.
type HighlightRemoved struct {
	ID string `json:"id"`
}

// AllHighlightsRemoved announces a bulk clear.
type AllHighlightsRemoved struct {
	Count int `json:"count"`
}

// WordSelected carries a vocabulary or double-clicked word.
type WordSelected struct {
	Word string `json:"word"`
}

// CopyText asks the host to put text on the clipboard.
type CopyText struct {
	Text string `json:"text"`
}

// TranslateText asks the host to translate. With UseCached the host uses
// the text it received in the last SelectionCoordinates.
type TranslateText struct {
	UseCached bool `json:"useCached"`
}

// MenuState mirrors the in-view menu.
type MenuState struct {
	Visible bool    `json:"visible"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Cooling bool    `json:"cooling"`
}

// Selectable tells the view whether text selection is enabled.
type Selectable struct {
	Enabled bool `json:"enabled"`
}

// OperationFailed reports a failed host call.
type OperationFailed struct {
	Op      string `json:"op"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
