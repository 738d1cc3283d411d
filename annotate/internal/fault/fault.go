// Package fault holds the error kinds shared by the annotation components.
package fault

import "errors"

var (
	// ErrNoSelection: promotion requested while the live selection is
	// collapsed or whitespace only.
	ErrNoSelection = errors.New("no selection")
	// ErrInvalidRange: the range cannot be wrapped without splitting
	// structure.
	ErrInvalidRange = errors.New("invalid range")
	// ErrNotFound: unknown highlight id or marker.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateID: a generated id already exists in the registry.
	ErrDuplicateID = errors.New("duplicate id")
)

// Code returns the stable wire code of a known error kind, "internal"
// otherwise.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNoSelection):
		return "no_selection"
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateID):
		return "duplicate_id"
	}
	return "internal"
}
