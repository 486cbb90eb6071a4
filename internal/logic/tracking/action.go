package tracking

import (
	"fmt"
	"strings"
)

// Action is an operator request handled between two frames.
type Action int

const (
	ActionReset    Action = iota + 1 // forget the position history
	ActionHome                       // send the head back to its origin
	ActionInfo                       // ask the head for position and limits
	ActionRecenter                   // restore the configured frame center
	ActionQuit                       // end the session

	// actionCalibrate carries a pixel setpoint and is only queued through
	// Session.Calibrate.
	actionCalibrate
)

var actionNames = map[Action]string{
	ActionReset:    "reset",
	ActionHome:     "home",
	ActionInfo:     "info",
	ActionRecenter: "recenter",
	ActionQuit:     "quit",
}

func (a Action) String() string {
	if a == actionCalibrate {
		return "calibrate"
	}
	if n, ok := actionNames[a]; ok {
		return n
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction accepts an action name or the single-key shortcut used on the
// operator console (r, h, i, c, q).
func ParseAction(s string) (Action, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "r":
		return ActionReset, nil
	case "h":
		return ActionHome, nil
	case "i":
		return ActionInfo, nil
	case "c":
		return ActionRecenter, nil
	case "q":
		return ActionQuit, nil
	}
	for a, n := range actionNames {
		if n == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

// Actions lists every action in a stable order.
func Actions() []Action {
	return []Action{ActionReset, ActionHome, ActionInfo, ActionRecenter, ActionQuit}
}
