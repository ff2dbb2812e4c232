// Package gesture turns hand landmarks into a pointer and click events.
//
// A Tracker consumes at most one hand per frame. The cursor follows the index
// fingertip and a pinch of index and thumb acts as the mouse button. The
// pinch is measured relative to the palm size so it works at any distance
// from the camera.
package gesture

import "math"

// Point is a landmark position normalised to the frame, origin top left.
type Point struct {
	X, Y float64
}

// NumLandmarks is the number of points in a hand skeleton.
const NumLandmarks = 21

// Landmark indices used by the tracker.
const (
	Wrist      = 0
	ThumbTip   = 4
	IndexTip   = 8
	MiddleBase = 9
)

// Landmarks is one detected hand.
type Landmarks [NumLandmarks]Point

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// PinchRatio returns dist(index tip, thumb tip) / dist(wrist, middle base).
// It reports false when the palm has no extent.
func (l *Landmarks) PinchRatio() (float64, bool) {
	palm := dist(l[Wrist], l[MiddleBase])
	if palm < 1e-6 {
		return 0, false
	}
	return dist(l[IndexTip], l[ThumbTip]) / palm, true
}
