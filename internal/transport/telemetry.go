package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a telemetry line sent by the actuator.
type Kind int

const (
	KindMove         Kind = iota + 1 // "L:<n>,P:<p>" / "R:<n>,P:<p>"
	KindInfo                         // "INFO:P:<p>,L:<lo>,R:<hi>"
	KindStopAck                      // "S:STOP"
	KindLimit                        // "L:LIMIT_REACHED" / "R:LIMIT_REACHED"
	KindHoming                       // "HOMING..."
	KindHomeComplete                 // "HOME:COMPLETE"
	KindProgress                     // "Moving L:<n> at <rpm>RPM"
	KindError                        // "ERROR:<reason>"
)

func (k Kind) String() string {
	switch k {
	case KindMove:
		return "move"
	case KindInfo:
		return "info"
	case KindStopAck:
		return "stop-ack"
	case KindLimit:
		return "limit"
	case KindHoming:
		return "homing"
	case KindHomeComplete:
		return "home-complete"
	case KindProgress:
		return "progress"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Telemetry is one parsed line. Only the fields relevant to Kind are set.
type Telemetry struct {
	Kind     Kind
	Dir      Command // CmdLeft or CmdRight for move, limit and progress lines
	Steps    int
	Position int
	MinLimit int
	MaxLimit int
	RPM      int
	Reason   string
}

// ParseTelemetry decodes one line from the actuator. ok is false for
// anything that is not a well-formed telemetry message; such lines must be
// ignored by the caller.
func ParseTelemetry(line string) (t Telemetry, ok bool) {
	line = strings.TrimSpace(line)

	switch {
	case line == "S:STOP":
		return Telemetry{Kind: KindStopAck}, true
	case line == "HOMING...":
		return Telemetry{Kind: KindHoming}, true
	case line == "HOME:COMPLETE":
		return Telemetry{Kind: KindHomeComplete}, true
	case strings.HasPrefix(line, "INFO:"):
		return parseInfo(strings.TrimPrefix(line, "INFO:"))
	case strings.HasPrefix(line, "ERROR:"):
		reason := strings.TrimPrefix(line, "ERROR:")
		if reason == "" {
			return Telemetry{}, false
		}
		return Telemetry{Kind: KindError, Reason: reason}, true
	case strings.HasPrefix(line, "Moving "):
		return parseProgress(line)
	case len(line) > 2 && (line[0] == 'L' || line[0] == 'R') && line[1] == ':':
		return parseMove(Command(line[0]), line[2:])
	}
	return Telemetry{}, false
}

// parseMove handles the part after "L:" or "R:".
func parseMove(dir Command, rest string) (Telemetry, bool) {
	if rest == "LIMIT_REACHED" {
		return Telemetry{Kind: KindLimit, Dir: dir}, true
	}
	steps, pos, found := strings.Cut(rest, ",")
	if !found {
		return Telemetry{}, false
	}
	n, err := strconv.Atoi(steps)
	if err != nil || n < 0 {
		return Telemetry{}, false
	}
	p, ok := field(pos, "P:")
	if !ok {
		return Telemetry{}, false
	}
	return Telemetry{Kind: KindMove, Dir: dir, Steps: n, Position: p}, true
}

// parseInfo handles "P:<p>,L:<lo>,R:<hi>". All three fields are required.
func parseInfo(rest string) (Telemetry, bool) {
	parts := strings.Split(rest, ",")
	if len(parts) != 3 {
		return Telemetry{}, false
	}
	p, okP := field(parts[0], "P:")
	lo, okL := field(parts[1], "L:")
	hi, okR := field(parts[2], "R:")
	if !okP || !okL || !okR || lo > hi {
		return Telemetry{}, false
	}
	return Telemetry{Kind: KindInfo, Position: p, MinLimit: lo, MaxLimit: hi}, true
}

func parseProgress(line string) (Telemetry, bool) {
	var dir rune
	var steps, rpm int
	n, err := fmt.Sscanf(line, "Moving %c:%d at %dRPM", &dir, &steps, &rpm)
	if err != nil || n != 3 || (dir != 'L' && dir != 'R') {
		return Telemetry{}, false
	}
	return Telemetry{Kind: KindProgress, Dir: Command(dir), Steps: steps, RPM: rpm}, true
}

func field(s, prefix string) (int, bool) {
	v, found := strings.CutPrefix(s, prefix)
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
