package transport

// Command is a single-character instruction understood by the actuator
// firmware. No terminator is sent.
type Command byte

const (
	CmdLeft  Command = 'L'
	CmdRight Command = 'R'
	CmdStop  Command = 'S'
	CmdHome  Command = 'H'
	CmdInfo  Command = 'I'
)

func (c Command) String() string {
	return string(rune(c))
}

// Valid reports whether c belongs to the outbound alphabet.
func (c Command) Valid() bool {
	switch c {
	case CmdLeft, CmdRight, CmdStop, CmdHome, CmdInfo:
		return true
	}
	return false
}
