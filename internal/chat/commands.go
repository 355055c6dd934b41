package chat

import "strings"

type CommandKind int

const (
	CmdSend CommandKind = iota
	CmdKick
	CmdBan
	CmdListUsers
)

// Command is the parsed form of a message body. Plain text parses to
// CmdSend with the body untouched.
type Command struct {
	Kind   CommandKind
	Target string
	Body   string
}

// ParseCommand turns a slash prefix into a closed command variant so
// the dispatcher never string-matches inline.
func ParseCommand(text string) Command {
	if !strings.HasPrefix(text, "/") {
		return Command{Kind: CmdSend, Body: text}
	}

	head, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)

	switch head {
	case "/kick":
		return Command{Kind: CmdKick, Target: rest}
	case "/ban":
		return Command{Kind: CmdBan, Target: rest}
	case "/list":
		return Command{Kind: CmdListUsers}
	}

	// Unknown slash prefixes travel as ordinary text.
	return Command{Kind: CmdSend, Body: text}
}
