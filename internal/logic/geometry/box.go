package geometry

// Box is an axis-aligned bounding box in frame pixel coordinates,
// as produced by the target detector.
type Box struct {
	X int `json:"x"` // left edge
	Y int `json:"y"` // top edge
	W int `json:"w"` // width
	H int `json:"h"` // height
}

// CenterX returns the integer horizontal center of the box.
func (b Box) CenterX() int {
	return b.X + b.W/2
}

// CenterY returns the integer vertical center of the box.
func (b Box) CenterY() int {
	return b.Y + b.H/2
}

// Area returns the box area in square pixels.
func (b Box) Area() int {
	return b.W * b.H
}

// Largest returns the box with the biggest area. When several boxes share
// the largest area the first one wins. ok is false for an empty slice.
func Largest(boxes []Box) (best Box, ok bool) {
	for i, b := range boxes {
		if i == 0 || b.Area() > best.Area() {
			best = b
			ok = true
		}
	}
	return best, ok
}

// Frame describes the dimensions of the camera frame.
type Frame struct {
	Width  int
	Height int
}

// CenterX returns half the frame width.
func (f Frame) CenterX() int {
	return f.Width / 2
}

// Mirror flips a horizontal coordinate around the frame's vertical axis.
func (f Frame) Mirror(x int) int {
	return f.Width - 1 - x
}
