package types

import (
	"strings"
	"time"
)

// AgentProfile is the static descriptor of a debater. It is created at
// debate setup and never mutated.
type AgentProfile struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"display_name"`
	VoiceID     string      `json:"voice_id"`
	PersonaText string      `json:"persona_text"`
	Color       string      `json:"color"`
	Style       DebateStyle `json:"style,omitempty"`
}

// MessageKind distinguishes debate records published to sinks.
type MessageKind string

const (
	KindTopic MessageKind = "topic"
	KindTurn  MessageKind = "turn"
	KindEnd   MessageKind = "end"
)

// DebateMessage represents a message in the debate
type DebateMessage struct {
	DebateID  string      `json:"debate_id"`
	Kind      MessageKind `json:"kind"`
	AgentID   string      `json:"agent_id"`
	Side      string      `json:"side,omitempty"`
	Content   string      `json:"content"`
	Turn      int         `json:"turn,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// DebateSummary is the final record of a finished debate.
type DebateSummary struct {
	DebateID        string    `json:"debate_id"`
	Topic           string    `json:"topic"`
	Left            string    `json:"left"`
	Right           string    `json:"right"`
	Outcome         string    `json:"outcome"`
	Error           string    `json:"error,omitempty"`
	LeftTranscript  string    `json:"left_transcript"`
	RightTranscript string    `json:"right_transcript"`
	Turns           int       `json:"turns"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
}

// DebateStyle represents a debate style
type DebateStyle string

const (
	// Debate styles
	Socratic      DebateStyle = "socratic"
	Adversarial   DebateStyle = "adversarial"
	Collaborative DebateStyle = "collaborative"
	Analytical    DebateStyle = "analytical"
	Philosophical DebateStyle = "philosophical"
	Humorous      DebateStyle = "humorous"
	Devil         DebateStyle = "devil's advocate"
	Pragmatic     DebateStyle = "pragmatic"
)

// AllDebateStyles returns all available debate styles
func AllDebateStyles() []DebateStyle {
	return []DebateStyle{
		Socratic,
		Adversarial,
		Collaborative,
		Analytical,
		Philosophical,
		Humorous,
		Devil,
		Pragmatic,
	}
}

// ParseDebateStyle returns the style matching s, case-insensitively.
func ParseDebateStyle(s string) (DebateStyle, bool) {
	for _, style := range AllDebateStyles() {
		if strings.EqualFold(string(style), strings.TrimSpace(s)) {
			return style, true
		}
	}
	return "", false
}
