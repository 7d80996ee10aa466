package debate

import (
	"github.com/chandler767/live-debate-arena/pkg/audio"
	"github.com/chandler767/live-debate-arena/pkg/types"
)

// Recorder observes the debate's durable events. Methods are called on the
// event loop and must not block.
type Recorder interface {
	// DebateStarted is called once both sides are connected, with the topic.
	DebateStarted(msg types.DebateMessage)
	// TurnCommitted is called for every forwarded turn.
	TurnCommitted(msg types.DebateMessage)
	// DebateEnded is called once per debate.
	DebateEnded(summary types.DebateSummary)
}

// Recorders fans events out to several recorders in order.
type Recorders []Recorder

func (rs Recorders) DebateStarted(msg types.DebateMessage) {
	for _, r := range rs {
		r.DebateStarted(msg)
	}
}

func (rs Recorders) TurnCommitted(msg types.DebateMessage) {
	for _, r := range rs {
		r.TurnCommitted(msg)
	}
}

func (rs Recorders) DebateEnded(summary types.DebateSummary) {
	for _, r := range rs {
		r.DebateEnded(summary)
	}
}

// AudioSink receives one side's audio frames. WriteFrame is called from the
// session's receive goroutine.
type AudioSink interface {
	WriteFrame(f audio.Frame) error
	Close() error
}

// AudioSinkFactory opens a sink for one side of a new debate. A nil sink
// with a nil error disables recording for that side.
type AudioSinkFactory func(debateID string, side Side, profile types.AgentProfile) (AudioSink, error)
