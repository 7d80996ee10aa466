package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chandler767/live-debate-arena/pkg/debate"
	"github.com/chandler767/live-debate-arena/pkg/face"
	"github.com/rivo/tview"
)

const helpText = "Type a topic (or start <topic>) to begin, random for a generated topic, stop to end, quit to leave."

// Command names.
const (
	CmdStart  = "start"
	CmdStop   = "stop"
	CmdRandom = "random"
	CmdHelp   = "help"
	CmdQuit   = "quit"
)

// Command is a parsed input line.
type Command struct {
	Name string
	Arg  string
}

var errEmptyCommand = errors.New("empty command")

// ParseCommand parses an input line. A line that is not a command is a
// topic to start.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, errEmptyCommand
	}
	word, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name := strings.ToLower(word); name {
	case CmdStart:
		if rest == "" {
			return Command{}, fmt.Errorf("usage: start <topic>")
		}
		return Command{Name: CmdStart, Arg: rest}, nil
	case CmdStop, CmdRandom, CmdHelp, CmdQuit, "exit":
		if name == "exit" {
			name = CmdQuit
		}
		return Command{Name: name}, nil
	default:
		return Command{Name: CmdStart, Arg: line}, nil
	}
}

// RenderHeader renders the topic, phase and status line.
func RenderHeader(st debate.State, status string) string {
	var sb strings.Builder
	topic := st.Topic
	if topic == "" {
		topic = "(none)"
	}
	fmt.Fprintf(&sb, "[yellow]Topic:[white] %s\n", tview.Escape(topic))
	fmt.Fprintf(&sb, "[yellow]Phase:[white] %s  [yellow]Stage:[white] %s  [yellow]Turns:[white] %d", st.Phase, st.Stage, st.Turns)
	if st.Phase == debate.PhaseEnded {
		switch st.EndReason {
		case debate.EndFailed:
			msg := "unknown error"
			if st.Err != nil {
				msg = st.Err.Error()
			}
			fmt.Fprintf(&sb, "  [red]Failed: %s[white]", tview.Escape(msg))
		case debate.EndCompleted:
			sb.WriteString("  [green]Completed[white]")
		case debate.EndStopped:
			sb.WriteString("  Stopped")
		}
	}
	fmt.Fprintf(&sb, "\n%s", status)
	return sb.String()
}

// RenderSide renders one debater: face, session state and caption.
func RenderSide(ss debate.SideState, speaking bool, frame int) string {
	color := ss.Profile.Color
	if color == "" {
		color = "white"
	}
	p := face.Compute(frame, ss.Volume, color)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s]", color)
	sb.WriteString("   .-------.\n")
	fmt.Fprintf(&sb, "   |  %s %s  |\n", eye(p.EyeScale), eye(p.EyeScale))
	fmt.Fprintf(&sb, "   |   %s   |\n", mouth(p.MouthScale))
	sb.WriteString("   '-------'[white]\n\n")

	marker := ""
	if speaking {
		marker = "  [green]speaking[white]"
	}
	fmt.Fprintf(&sb, "[gray]%s[white]%s\n\n", ss.Session, marker)
	sb.WriteString(tview.Escape(ss.Subtitle()))
	return sb.String()
}

func eye(scale float64) string {
	switch {
	case scale < 0.3:
		return "-"
	case scale < 0.8:
		return "o"
	default:
		return "O"
	}
}

func mouth(scale float64) string {
	switch {
	case scale < 0.1:
		return "___"
	case scale < 0.5:
		return "\\_/"
	default:
		return "(O)"
	}
}
