package debate

import (
	"strings"
	"time"

	"github.com/chandler767/live-debate-arena/pkg/session"
	"github.com/chandler767/live-debate-arena/pkg/transcript"
	"github.com/chandler767/live-debate-arena/pkg/types"
)

// Side identifies one of the two debaters. Left opens the debate.
type Side int

const (
	Left Side = iota
	Right
)

// Other returns the opposing side.
func (s Side) Other() Side {
	if s == Left {
		return Right
	}
	return Left
}

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Phase is the coarse debate state shown to the UI.
type Phase int

const (
	PhaseSetup Phase = iota
	PhaseActive
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "setup"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Stage is the turn orchestrator's state.
type Stage int

const (
	// StageSetup: no connections.
	StageSetup Stage = iota
	// StageConnecting: both sessions are being connected.
	StageConnecting
	// StageOpening: both connected, opening prompt not yet sent.
	StageOpening
	// StageInTurn: State.Speaker is producing a turn.
	StageInTurn
	// StageHandoff: State.Speaker finished a turn that is being forwarded.
	StageHandoff
	StageEnded
)

func (s Stage) String() string {
	switch s {
	case StageSetup:
		return "setup"
	case StageConnecting:
		return "connecting"
	case StageOpening:
		return "opening"
	case StageInTurn:
		return "in-turn"
	case StageHandoff:
		return "handoff"
	case StageEnded:
		return "ended"
	default:
		return "unknown"
	}
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Phase maps the stage to its phase.
func (s Stage) Phase() Phase {
	switch s {
	case StageOpening, StageInTurn, StageHandoff:
		return PhaseActive
	case StageEnded:
		return PhaseEnded
	default:
		return PhaseSetup
	}
}

// EndReason tells a user stop apart from a forced end.
type EndReason int

const (
	EndNone EndReason = iota
	// EndStopped: Stop was called.
	EndStopped
	// EndFailed: a connection or transport error ended the debate.
	EndFailed
	// EndCompleted: the turn limit was reached.
	EndCompleted
)

func (r EndReason) String() string {
	switch r {
	case EndNone:
		return "none"
	case EndStopped:
		return "stopped"
	case EndFailed:
		return "failed"
	case EndCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

func (r EndReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// SideState is the observable state of one debater.
type SideState struct {
	Profile types.AgentProfile
	Session session.State
	// Transcript holds the committed turns, one per line.
	Transcript string
	// Caption is the turn in progress.
	Caption string
	Volume  float64
	Turns   int
}

// Subtitle is the tail of everything the side has said, including the turn
// in progress, as shown under its face.
func (ss SideState) Subtitle() string {
	text := ss.Transcript
	if ss.Caption != "" {
		text = strings.TrimSpace(text + " " + ss.Caption)
	}
	return transcript.Tail(strings.ReplaceAll(text, "\n", " "), transcript.CaptionLength)
}

// State is a snapshot of the debate. It is a value; watchers may keep it.
type State struct {
	Phase     Phase
	Stage     Stage
	Speaker   Side
	Topic     string
	DebateID  string
	EndReason EndReason
	Err       error
	// Turns counts committed turns.
	Turns     int
	StartedAt time.Time
	EndedAt   time.Time

	Left  SideState
	Right SideState
}

// Side returns the state of side s.
func (st State) Side(s Side) SideState {
	if s == Left {
		return st.Left
	}
	return st.Right
}

func (st *State) side(s Side) *SideState {
	if s == Left {
		return &st.Left
	}
	return &st.Right
}

// Running reports whether a debate is in progress.
func (st State) Running() bool {
	return st.Stage != StageSetup && st.Stage != StageEnded
}
