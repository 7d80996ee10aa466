// Package gemini implements session.Transport on top of the Gemini Live API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chandler767/live-debate-arena/pkg/audio"
	"github.com/chandler767/live-debate-arena/pkg/session"
	"google.golang.org/genai"
)

// DefaultModel is the native-audio Live model used when none is configured.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// Transport dials Gemini Live sessions.
type Transport struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// New creates a transport authenticated with apiKey.
func New(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Transport, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Transport{
		client: client,
		model:  model,
		logger: logger.With("transport", "gemini"),
	}, nil
}

// Dial opens a Live session and waits for the server's setup acknowledgement.
// A setup the server rejects, including an unsupported transcription
// request, fails the dial.
func (t *Transport) Dial(ctx context.Context, cfg session.Config) (session.Conn, error) {
	model := cfg.Model
	if model == "" {
		model = t.model
	}

	live, err := t.client.Live.Connect(ctx, model, LiveConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("gemini: connect %s: %w", model, err)
	}

	c := &Conn{
		live:   live,
		events: make(chan session.Event, 256),
		done:   make(chan struct{}),
		logger: t.logger.With("model", model),
	}
	ready := make(chan error, 1)
	go c.readLoop(ready)

	select {
	case err := <-ready:
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		return c, nil
	case <-ctx.Done():
		_ = c.Close()
		return nil, ctx.Err()
	}
}

// LiveConfig maps a session configuration onto the Live API setup message.
func LiveConfig(cfg session.Config) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.Modality(cfg.ResponseModality)},
	}
	if cfg.Voice != "" {
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemInstructionText != "" {
		lc.SystemInstruction = genai.NewContentFromText(cfg.SystemInstructionText, genai.RoleUser)
	}
	if cfg.RequestTranscription {
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return lc
}

// Conn is one Live session.
type Conn struct {
	live   *genai.Session
	events chan session.Event
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
	closing   atomic.Bool

	errMu sync.Mutex
	err   error
}

// Events implements session.Conn.
func (c *Conn) Events() <-chan session.Event {
	return c.events
}

// Send delivers text as a complete user turn.
func (c *Conn) Send(ctx context.Context, text string) error {
	if c.closing.Load() {
		return errors.New("gemini: session is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.live.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
	})
}

// Close implements session.Conn.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.done)
		err = c.live.Close()
	})
	return err
}

// Err implements session.Conn.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Conn) readLoop(ready chan<- error) {
	defer close(c.events)

	setup := false
	for {
		msg, err := c.live.Receive()
		if err != nil {
			if c.closing.Load() {
				return
			}
			if !setup {
				ready <- fmt.Errorf("gemini: setup: %w", err)
				return
			}
			c.setErr(err)
			return
		}

		if msg.SetupComplete != nil && !setup {
			setup = true
			ready <- nil
			continue
		}
		if msg.GoAway != nil {
			c.logger.Warn("server going away", "time_left", msg.GoAway.TimeLeft)
		}
		if msg.ServerContent != nil && msg.ServerContent.Interrupted {
			c.logger.Debug("generation interrupted")
		}

		for _, ev := range Translate(msg) {
			select {
			case c.events <- ev:
			case <-c.done:
				return
			}
		}
	}
}

// Translate converts one server message into session events, in the order
// audio, transcription, turn boundary.
func Translate(msg *genai.LiveServerMessage) []session.Event {
	if msg == nil || msg.ServerContent == nil {
		return nil
	}
	sc := msg.ServerContent

	var out []session.Event
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil {
				continue
			}
			if blob := part.InlineData; blob != nil && strings.HasPrefix(blob.MIMEType, "audio/pcm") {
				out = append(out, session.Event{
					Kind:  session.EventAudio,
					Audio: audio.Frame{Data: blob.Data, SampleRate: sampleRate(blob.MIMEType)},
				})
				continue
			}
			// Text parts only carry the reply in TEXT modality.
			if part.Text != "" && !part.Thought {
				out = append(out, session.Event{Kind: session.EventTranscription, Text: part.Text})
			}
		}
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		out = append(out, session.Event{Kind: session.EventTranscription, Text: sc.OutputTranscription.Text})
	}
	if sc.TurnComplete {
		out = append(out, session.Event{Kind: session.EventTurnComplete})
	}
	return out
}

// sampleRate reads the rate parameter of an "audio/pcm;rate=N" MIME type.
func sampleRate(mime string) int {
	for _, param := range strings.Split(mime, ";")[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && k == "rate" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return n
			}
		}
	}
	return audio.DefaultSampleRate
}
