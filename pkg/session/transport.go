package session

import (
	"context"

	"github.com/chandler767/live-debate-arena/pkg/audio"
)

// Transport dials streaming connections to an agent backend.
type Transport interface {
	// Dial opens a connection configured with cfg and returns once the
	// backend reports it is ready to accept input.
	Dial(ctx context.Context, cfg Config) (Conn, error)
}

// Conn is one established connection.
type Conn interface {
	// Events yields events in arrival order. The channel is closed when the
	// connection ends.
	Events() <-chan Event

	// Send delivers a complete user text turn.
	Send(ctx context.Context, text string) error

	// Close tears the connection down. It is safe to call more than once.
	Close() error

	// Err returns the error that ended the connection, or nil after a clean
	// close. It is only meaningful once Events is closed.
	Err() error
}

// EventKind identifies a transport event.
type EventKind int

const (
	EventTranscription EventKind = iota
	EventTurnComplete
	EventAudio
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventTranscription:
		return "transcription"
	case EventTurnComplete:
		return "turncomplete"
	case EventAudio:
		return "audio"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single transport event. Only the field matching Kind is set.
type Event struct {
	Kind  EventKind
	Text  string
	Audio audio.Frame
	Err   error
}
