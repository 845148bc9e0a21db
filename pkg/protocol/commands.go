package protocol

// Command is the one-byte command code carried at the start of every frame.
type Command uint8

// Wire command codes. These are stable protocol constants shared with every
// client implementation; never reorder or renumber them.
const (
	CmdMessage    Command = 0x00
	CmdHelloWorld Command = 0x01
	CmdWelcome    Command = 0x02
	CmdGoodBye    Command = 0x03
	CmdConnNb     Command = 0x04
	CmdAddReact   Command = 0x05
	CmdRmReact    Command = 0x06
	CmdLastID     Command = 0x07
)

// Valid reports whether c is one of the defined command codes.
func (c Command) Valid() bool {
	return c <= CmdLastID
}

// String returns the protocol name of the command, for logs and metric labels.
func (c Command) String() string {
	switch c {
	case CmdMessage:
		return "MESSAGE"
	case CmdHelloWorld:
		return "HELLO_WORLD"
	case CmdWelcome:
		return "WELCOME"
	case CmdGoodBye:
		return "GOOD_BYE"
	case CmdConnNb:
		return "CONN_NB"
	case CmdAddReact:
		return "ADD_REACT"
	case CmdRmReact:
		return "RM_REACT"
	case CmdLastID:
		return "LAST_ID"
	default:
		return "UNKNOWN"
	}
}
