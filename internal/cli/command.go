package cli

import (
	"strings"

	"github.com/aretw0/consult/pkg/domain"
)

// CommandKind is what a line typed at the prompt asks for.
type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdAnswer
	CmdBack
	CmdRestart
	CmdTrace
	CmdHelp
	CmdQuit
)

// Command is a parsed prompt line.
type Command struct {
	Kind   CommandKind
	Answer domain.Answer
}

// ParseCommand interprets a prompt line. Answers accept every form
// domain.ParseAnswer does.
func ParseCommand(line string) Command {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "b", "back", "戻る":
		return Command{Kind: CmdBack}
	case "r", "restart":
		return Command{Kind: CmdRestart}
	case "t", "trace":
		return Command{Kind: CmdTrace}
	case "h", "help":
		return Command{Kind: CmdHelp}
	case "q", "quit", "exit":
		return Command{Kind: CmdQuit}
	}
	if a, err := domain.ParseAnswer(line); err == nil {
		return Command{Kind: CmdAnswer, Answer: a}
	}
	return Command{Kind: CmdUnknown}
}
