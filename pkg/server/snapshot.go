package server

import (
	"github.com/chandler767/live-debate-arena/pkg/debate"
	"github.com/chandler767/live-debate-arena/pkg/face"
)

// Snapshot is the JSON form of the debate state sent to renderers.
type Snapshot struct {
	Phase     string       `json:"phase"`
	Stage     string       `json:"stage"`
	Speaker   string       `json:"speaker,omitempty"`
	Topic     string       `json:"topic,omitempty"`
	DebateID  string       `json:"debate_id,omitempty"`
	EndReason string       `json:"end_reason,omitempty"`
	Error     string       `json:"error,omitempty"`
	Turns     int          `json:"turns"`
	Left      SideSnapshot `json:"left"`
	Right     SideSnapshot `json:"right"`
}

// SideSnapshot is one debater as seen by a renderer.
type SideSnapshot struct {
	Name       string      `json:"name"`
	Color      string      `json:"color"`
	Session    string      `json:"session"`
	Transcript string      `json:"transcript"`
	Caption    string      `json:"caption"`
	Volume     float64     `json:"volume"`
	Face       face.Params `json:"face"`
}

// NewSnapshot converts st for animation frame.
func NewSnapshot(st debate.State, frame int) Snapshot {
	s := Snapshot{
		Phase: st.Phase.String(),
		Stage: st.Stage.String(),
		Topic: st.Topic,
		Turns: st.Turns,
		Left:  newSideSnapshot(st.Left, frame),
		Right: newSideSnapshot(st.Right, frame),
	}
	s.DebateID = st.DebateID
	if st.Stage == debate.StageInTurn || st.Stage == debate.StageHandoff {
		s.Speaker = st.Speaker.String()
	}
	if st.EndReason != debate.EndNone {
		s.EndReason = st.EndReason.String()
	}
	if st.Err != nil {
		s.Error = st.Err.Error()
	}
	return s
}

func newSideSnapshot(ss debate.SideState, frame int) SideSnapshot {
	return SideSnapshot{
		Name:       ss.Profile.DisplayName,
		Color:      ss.Profile.Color,
		Session:    ss.Session.String(),
		Transcript: ss.Transcript,
		Caption:    ss.Subtitle(),
		Volume:     ss.Volume,
		Face:       face.Compute(frame, ss.Volume, ss.Profile.Color),
	}
}
