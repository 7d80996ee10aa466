// Package fake provides an in-memory session.Transport. Tests drive each
// connection by hand; the arena's demo mode uses a Responder to script
// replies.
package fake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/chandler767/live-debate-arena/pkg/audio"
	"github.com/chandler767/live-debate-arena/pkg/session"
)

// ErrClosed is returned by Send on a closed connection.
var ErrClosed = errors.New("fake: connection closed")

// Responder produces the reply an agent speaks after receiving prompt.
type Responder func(cfg session.Config, prompt string) string

// Transport is a fake transport. The zero value dials immediately and
// succeeds.
type Transport struct {
	// DialErr, when set, is returned by every Dial.
	DialErr error
	// Gate, when set, blocks Dial until it is closed or ctx is done.
	Gate chan struct{}
	// Responder, when set, makes every connection answer each Send with a
	// scripted turn: transcription fragments, audio and a turn boundary.
	Responder Responder
	// WordDelay is the pause between scripted fragments.
	WordDelay time.Duration

	mu    sync.Mutex
	conns []*Conn
	dials int
}

// New returns a fake transport that dials immediately.
func New() *Transport {
	return &Transport{}
}

// Dial implements session.Transport.
func (t *Transport) Dial(ctx context.Context, cfg session.Config) (session.Conn, error) {
	t.mu.Lock()
	t.dials++
	gate, dialErr := t.Gate, t.DialErr
	t.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if dialErr != nil {
		return nil, dialErr
	}

	c := &Conn{
		Config: cfg,
		events: make(chan session.Event, 256),
		sent:   make(chan string, 64),
	}
	if t.Responder != nil {
		c.responder = t.Responder
		c.wordDelay = t.WordDelay
	}

	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	return c, nil
}

// Dials returns the number of Dial calls.
func (t *Transport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

// Conns returns every connection dialed so far.
func (t *Transport) Conns() []*Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Conn, len(t.conns))
	copy(out, t.conns)
	return out
}

// Last returns the most recent connection, or nil.
func (t *Transport) Last() *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

// ConnFor returns the most recent connection dialed with voice, or nil.
func (t *Transport) ConnFor(voice string) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.conns) - 1; i >= 0; i-- {
		if t.conns[i].Config.Voice == voice {
			return t.conns[i]
		}
	}
	return nil
}

// Conn is a fake connection.
type Conn struct {
	Config session.Config

	responder Responder
	wordDelay time.Duration

	mu       sync.Mutex
	events   chan session.Event
	messages []string
	sent     chan string
	closed   bool
	err      error
}

// Events implements session.Conn.
func (c *Conn) Events() <-chan session.Event {
	return c.events
}

// Send implements session.Conn.
func (c *Conn) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.messages = append(c.messages, text)
	c.mu.Unlock()

	select {
	case c.sent <- text:
	default:
	}
	if c.responder != nil {
		go c.respond(ctx, c.responder(c.Config, text))
	}
	return nil
}

// Close implements session.Conn.
func (c *Conn) Close() error {
	c.end(nil)
	return nil
}

// Err implements session.Conn.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Sent returns every message delivered through Send, in order.
func (c *Conn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.messages))
	copy(out, c.messages)
	return out
}

// SentCh yields messages as they are delivered.
func (c *Conn) SentCh() <-chan string {
	return c.sent
}

// Closed reports whether the connection was closed.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Transcribe delivers a transcription fragment.
func (c *Conn) Transcribe(text string) {
	c.push(session.Event{Kind: session.EventTranscription, Text: text})
}

// CompleteTurn delivers a turn boundary.
func (c *Conn) CompleteTurn() {
	c.push(session.Event{Kind: session.EventTurnComplete})
}

// Speak delivers an audio frame.
func (c *Conn) Speak(pcm []byte) {
	c.push(session.Event{Kind: session.EventAudio, Audio: audio.Frame{Data: pcm, SampleRate: audio.DefaultSampleRate}})
}

// Fail delivers an error event.
func (c *Conn) Fail(err error) {
	c.push(session.Event{Kind: session.EventError, Err: err})
}

// Drop ends the connection from the remote side with err.
func (c *Conn) Drop(err error) {
	c.end(err)
}

func (c *Conn) push(ev session.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		// nobody is draining; drop rather than wedge Close
	}
}

func (c *Conn) end(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.err = err
	close(c.events)
}

// respond streams reply word by word, with a loud frame per word, then
// completes the turn.
func (c *Conn) respond(ctx context.Context, reply string) {
	words := strings.Fields(reply)
	frame := loudFrame()
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		if c.wordDelay > 0 {
			select {
			case <-time.After(c.wordDelay):
			case <-ctx.Done():
				return
			}
		}
		c.Speak(frame)
		c.Transcribe(w)
	}
	c.Speak(make([]byte, len(frame)))
	c.CompleteTurn()
}

func loudFrame() []byte {
	out := make([]byte, 480)
	for i := 0; i < len(out); i += 4 {
		// alternating +/-8192 samples
		out[i], out[i+1] = 0x00, 0x20
		out[i+2], out[i+3] = 0x00, 0xe0
	}
	return out
}
