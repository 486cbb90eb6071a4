package motion

// Direction is the rotation the actuator is asked to perform.
// The zero value is Stop, which also stands for "no direction yet".
type Direction int

const (
	Stop Direction = iota
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "L"
	case Right:
		return "R"
	default:
		return "S"
	}
}

// Moving reports whether d is Left or Right.
func (d Direction) Moving() bool {
	return d == Left || d == Right
}

// Opposite returns the reverse rotation. Stop maps to Right, matching the
// firmware's habit of starting a search clockwise.
func (d Direction) Opposite() Direction {
	if d == Right {
		return Left
	}
	return Right
}

// toward returns the direction that reduces err. Frames are mirrored, so a
// target left of center (negative error) needs a Right rotation.
func toward(err int) Direction {
	if err < 0 {
		return Right
	}
	return Left
}

// Status tags a decision for diagnostics.
type Status int

const (
	StatusNoTarget Status = iota
	StatusCentered
	StatusNearCenter
	StatusRotatingLeft
	StatusRotatingRight
	StatusCoasting
	StatusSearchingOpposite
	StatusLost
)

func (s Status) String() string {
	switch s {
	case StatusCentered:
		return "centered"
	case StatusNearCenter:
		return "near-center"
	case StatusRotatingLeft:
		return "rotating-left"
	case StatusRotatingRight:
		return "rotating-right"
	case StatusCoasting:
		return "coasting"
	case StatusSearchingOpposite:
		return "searching-opposite"
	case StatusLost:
		return "lost"
	default:
		return "no-target"
	}
}

// Intensity levels reported alongside a decision. They are a diagnostics
// signal only; the serial protocol has no speed tiers.
const (
	IntensityNone   = 0
	IntensityLow    = 2
	IntensitySearch = 3
	IntensityHigh   = 4
)

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
