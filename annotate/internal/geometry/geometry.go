// Package geometry computes menu placement from selection rectangles.
// Everything here is pure.
package geometry

// Margin keeps a floating element this far from the bottom viewport edge.
const Margin = 10

// Rect is a client rectangle in viewport coordinates. X and Y mirror Left
// and Top.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewRect builds a Rect from its origin and size.
func NewRect(left, top, width, height float64) Rect {
	return Rect{X: left, Y: top, Top: top, Left: left, Width: width, Height: height}
}

// Right is the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.Left + r.Width }

// Bottom is the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// CenterX is the horizontal centre.
func (r Rect) CenterX() float64 { return r.Left + r.Width/2 }

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.Width <= 0 && r.Height <= 0 }

// Viewport is the visible area size.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BoundingRect returns the union of the non-empty rects. It returns the
// zero Rect when every rect is empty.
func BoundingRect(rects []Rect) Rect {
	var (
		have                     bool
		left, top, right, bottom float64
	)
	for _, r := range rects {
		if r.Empty() {
			continue
		}
		if !have {
			left, top, right, bottom = r.Left, r.Top, r.Right(), r.Bottom()
			have = true
			continue
		}
		left = min(left, r.Left)
		top = min(top, r.Top)
		right = max(right, r.Right())
		bottom = max(bottom, r.Bottom())
	}
	if !have {
		return Rect{}
	}
	return NewRect(left, top, right-left, bottom-top)
}

// ClampHorizontalCenter keeps an element of width w centred as close to
// desired as possible while fully inside a viewport of width vw. When the
// element is wider than the viewport the viewport centre is returned.
func ClampHorizontalCenter(desired, w, vw float64) float64 {
	if w > vw {
		return vw / 2
	}
	return min(max(desired, w/2), vw-w/2)
}

// PlaceBelowOrAbove returns the top coordinate of an element of height h:
// below the anchor plus gap, or above it when that would cross the bottom
// margin.
func PlaceBelowOrAbove(anchor Rect, h, vh, gap float64) float64 {
	below := anchor.Bottom() + gap
	if below+h > vh-Margin {
		return anchor.Top - h - gap
	}
	return below
}
