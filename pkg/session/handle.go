package session

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/chandler767/live-debate-arena/pkg/audio"
	"github.com/chandler767/live-debate-arena/pkg/types"
)

// outboxSize bounds the number of queued outgoing messages per connection.
const outboxSize = 16

// Handle owns one agent's streaming connection.
type Handle struct {
	profile   types.AgentProfile
	transport Transport
	logger    *slog.Logger

	mu         sync.Mutex
	state      State
	cfg        Config
	configured bool
	gen        uint64
	conn       Conn
	cancel     context.CancelFunc
	attempt    *attempt
	outbox     chan string

	volume atomic.Uint64

	transcription observers[string]
	turnComplete  observers[struct{}]
	volumeLevel   observers[float64]
	faults        observers[error]
	audioFrames   observers[audio.Frame]
}

// attempt is a connection attempt shared by concurrent Connect callers.
type attempt struct {
	done chan struct{}
	err  error
}

// NewHandle returns an unconnected handle for profile.
func NewHandle(profile types.AgentProfile, transport Transport, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{
		profile:   profile,
		transport: transport,
		logger:    logger.With("agent", profile.DisplayName),
		state:     StateIdle,
	}
}

// Profile returns the agent this handle speaks for.
func (h *Handle) Profile() types.AgentProfile {
	return h.profile
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Config returns the stored configuration.
func (h *Handle) Config() Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg
}

// Volume returns the level of the most recent audio frame, 0 when silent or
// not connected.
func (h *Handle) Volume() float64 {
	return math.Float64frombits(h.volume.Load())
}

func (h *Handle) setVolume(v float64) {
	h.volume.Store(math.Float64bits(v))
}

// Configure stores cfg for the next connection. It fails with an
// InvalidStateError unless the handle is Idle.
func (h *Handle) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateIdle {
		return &InvalidStateError{Op: "configure", State: h.state}
	}
	h.cfg = cfg
	h.configured = true
	return nil
}

// Connect dials the transport and returns once the connection is ready.
//
// A call while Connecting waits for the attempt in flight and returns its
// result; a call while Connected returns nil. On failure the handle is left
// Failed and a *ConnectionError is returned.
func (h *Handle) Connect(ctx context.Context) error {
	h.mu.Lock()
	switch h.state {
	case StateConnected:
		h.mu.Unlock()
		return nil
	case StateConnecting:
		a := h.attempt
		h.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return &ConnectionError{Agent: h.profile.DisplayName, Err: ctx.Err()}
		}
	case StateIdle:
	default:
		state := h.state
		h.mu.Unlock()
		return &InvalidStateError{Op: "connect", State: state}
	}
	if !h.configured {
		h.mu.Unlock()
		return &InvalidStateError{Op: "connect before configure", State: StateIdle}
	}

	h.state = StateConnecting
	h.gen++
	gen := h.gen
	connCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	a := &attempt{done: make(chan struct{})}
	h.attempt = a
	cfg := h.cfg
	h.mu.Unlock()

	h.logger.Info("connecting", "model", cfg.Model, "voice", cfg.Voice)

	dialCtx, stopDial := context.WithCancel(ctx)
	stop := context.AfterFunc(connCtx, stopDial)
	conn, err := h.transport.Dial(dialCtx, cfg)
	stop()
	stopDial()

	h.mu.Lock()
	if gen != h.gen {
		// Disconnect won the race; the handle is already Idle.
		h.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		a.err = &ConnectionError{Agent: h.profile.DisplayName, Err: ErrDisconnected}
		close(a.done)
		return a.err
	}
	if err != nil {
		h.state = StateFailed
		h.cancel = nil
		h.attempt = nil
		h.mu.Unlock()
		cancel()

		a.err = &ConnectionError{Agent: h.profile.DisplayName, Err: err}
		close(a.done)
		h.logger.Error("connect failed", "error", err)
		return a.err
	}

	h.state = StateConnected
	h.conn = conn
	h.attempt = nil
	h.outbox = make(chan string, outboxSize)
	outbox := h.outbox
	h.mu.Unlock()

	go h.pump(gen, conn)
	go h.write(connCtx, gen, conn, outbox)

	close(a.done)
	h.logger.Info("connected")
	return nil
}

// Disconnect returns the handle to Idle from any state. It cancels a
// pending connect, drops queued messages and closes the transport.
func (h *Handle) Disconnect() {
	h.mu.Lock()
	if h.state == StateIdle {
		h.mu.Unlock()
		return
	}
	prev := h.state
	h.state = StateDisconnecting
	h.gen++
	conn, cancel := h.conn, h.cancel
	h.conn, h.cancel, h.outbox, h.attempt = nil, nil, nil, nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			h.logger.Debug("close transport", "error", err)
		}
	}
	h.setVolume(0)

	h.mu.Lock()
	h.state = StateIdle
	h.mu.Unlock()

	h.logger.Info("disconnected", "from", prev)
}

// Send queues text for delivery. It is only valid while Connected; otherwise
// the message is logged and dropped. It reports whether the message was
// queued.
func (h *Handle) Send(text string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateConnected {
		h.logger.Warn("dropping message", "error", ErrSendOnDisconnected, "state", h.state)
		return false
	}
	select {
	case h.outbox <- text:
		return true
	default:
		h.logger.Warn("dropping message, outbox full", "queued", len(h.outbox))
		return false
	}
}

// OnTranscription registers fn for every transcription fragment.
func (h *Handle) OnTranscription(fn func(text string)) *Subscription {
	return h.transcription.add(fn)
}

// OnTurnComplete registers fn for the end of every agent turn.
func (h *Handle) OnTurnComplete(fn func()) *Subscription {
	return h.turnComplete.add(func(struct{}) { fn() })
}

// OnVolume registers fn for the level of every audio frame.
func (h *Handle) OnVolume(fn func(level float64)) *Subscription {
	return h.volumeLevel.add(fn)
}

// OnError registers fn for unrecoverable transport faults.
func (h *Handle) OnError(fn func(err error)) *Subscription {
	return h.faults.add(fn)
}

// OnAudio registers fn for every raw audio frame.
func (h *Handle) OnAudio(fn func(f audio.Frame)) *Subscription {
	return h.audioFrames.add(fn)
}

// Observers returns the number of registered observers across all events.
func (h *Handle) Observers() int {
	return h.transcription.len() + h.turnComplete.len() + h.volumeLevel.len() + h.faults.len() + h.audioFrames.len()
}

func (h *Handle) current(gen uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gen == gen && h.state == StateConnected
}

// pump re-emits transport events until the connection ends or is replaced.
func (h *Handle) pump(gen uint64, conn Conn) {
	for ev := range conn.Events() {
		if !h.current(gen) {
			return
		}
		switch ev.Kind {
		case EventTranscription:
			h.transcription.emit(ev.Text)
		case EventTurnComplete:
			h.turnComplete.emit(struct{}{})
		case EventAudio:
			level := audio.Volume(ev.Audio.Data)
			h.setVolume(level)
			h.volumeLevel.emit(level)
			h.audioFrames.emit(ev.Audio)
		case EventError:
			h.fail(gen, ev.Err)
			return
		}
	}

	err := conn.Err()
	if err == nil {
		err = ErrConnectionClosed
	}
	h.fail(gen, err)
}

// write drains the outbox into the transport.
func (h *Handle) write(ctx context.Context, gen uint64, conn Conn, outbox <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-outbox:
			if !h.current(gen) {
				h.logger.Warn("dropping message", "error", ErrSendOnDisconnected)
				return
			}
			if err := conn.Send(ctx, text); err != nil {
				if ctx.Err() != nil {
					return
				}
				h.fail(gen, err)
				return
			}
			h.logger.Debug("sent message", "chars", len(text))
		}
	}
}

// fail moves a live connection to Failed and notifies error observers. It
// is a no-op if the connection was already replaced or torn down.
func (h *Handle) fail(gen uint64, cause error) {
	h.mu.Lock()
	if gen != h.gen || h.state != StateConnected {
		h.mu.Unlock()
		return
	}
	h.state = StateFailed
	h.gen++
	conn, cancel := h.conn, h.cancel
	h.conn, h.cancel, h.outbox = nil, nil, nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	h.setVolume(0)

	fault := &TransportFault{Agent: h.profile.DisplayName, Err: cause}
	h.logger.Error("transport fault", "error", cause)
	h.faults.emit(fault)
}
