package debate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chandler767/live-debate-arena/pkg/audio"
	"github.com/chandler767/live-debate-arena/pkg/session"
	"github.com/chandler767/live-debate-arena/pkg/transcript"
	"github.com/chandler767/live-debate-arena/pkg/types"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var sides = [2]Side{Left, Right}

// orchestrator is one debate instance: two sessions, two transcript buffers
// and the turn state machine. Apart from connect, its methods run on the
// controller's event loop.
type orchestrator struct {
	c      *Controller
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	handles [2]*session.Handle
	buffers [2]*transcript.Buffer
	sinks   [2]AudioSink
	subs    session.Subscriptions

	state State
	ended bool
}

func newOrchestrator(c *Controller, topic string) (*orchestrator, error) {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	o := &orchestrator{
		c:      c,
		logger: c.logger.With("debate_id", id),
		ctx:    ctx,
		cancel: cancel,
		state: State{
			Phase:     PhaseSetup,
			Stage:     StageConnecting,
			Topic:     topic,
			DebateID:  id,
			StartedAt: time.Now(),
			Left:      SideState{Profile: c.cfg.Left},
			Right:     SideState{Profile: c.cfg.Right},
		},
	}

	for _, side := range sides {
		self, opponent := o.profile(side), o.profile(side.Other())
		h := session.NewHandle(self, c.cfg.Transport, o.logger.With("side", side))
		if err := h.Configure(SessionConfig(c.cfg.Model, side, self, opponent)); err != nil {
			cancel()
			return nil, fmt.Errorf("configure %s session: %w", side, err)
		}
		o.handles[side] = h
		o.buffers[side] = transcript.New()

		if c.cfg.AudioSinks != nil {
			sink, err := c.cfg.AudioSinks(id, side, self)
			if err != nil {
				o.logger.Warn("audio recording disabled", "side", side, "error", err)
			} else {
				o.sinks[side] = sink
			}
		}
	}
	o.subscribe()
	return o, nil
}

// subscribe forwards every session event onto the event loop.
func (o *orchestrator) subscribe() {
	post := o.c.post
	for _, side := range sides {
		h := o.handles[side]
		o.subs = append(o.subs,
			h.OnTranscription(func(text string) { post(func() { o.onTranscription(side, text) }) }),
			h.OnTurnComplete(func() { post(func() { o.onTurnComplete(side) }) }),
			h.OnVolume(func(level float64) { post(func() { o.onVolume(side, level) }) }),
			h.OnError(func(err error) { post(func() { o.onError(side, err) }) }),
		)
		if sink := o.sinks[side]; sink != nil {
			o.subs = append(o.subs, h.OnAudio(func(f audio.Frame) {
				if err := sink.WriteFrame(f); err != nil {
					o.logger.Debug("dropping audio frame", "side", side, "error", err)
				}
			}))
		}
	}
}

func (o *orchestrator) profile(side Side) types.AgentProfile {
	if side == Left {
		return o.c.cfg.Left
	}
	return o.c.cfg.Right
}

// connect connects both sessions concurrently. It runs on the caller of
// Start, not on the loop, and is aborted when the debate ends.
func (o *orchestrator) connect(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(o.ctx, cancel)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range o.handles {
		g.Go(func() error { return h.Connect(gctx) })
	}
	return g.Wait()
}

// connected moves Connecting to Opening once both sides are up.
func (o *orchestrator) connected(err error) error {
	if o.ended {
		return o.endErr()
	}
	if err != nil {
		o.end(EndFailed, err)
		return err
	}
	for _, side := range sides {
		if st := o.handles[side].State(); st != session.StateConnected {
			err := &session.ConnectionError{
				Agent: o.profile(side).DisplayName,
				Err:   &session.InvalidStateError{Op: "open debate", State: st},
			}
			o.end(EndFailed, err)
			return err
		}
	}

	o.state.Stage = StageOpening
	o.publish()
	o.logger.Info("debate connected", "topic", o.state.Topic)
	o.c.cfg.Recorder.DebateStarted(types.DebateMessage{
		DebateID:  o.state.DebateID,
		Kind:      types.KindTopic,
		Content:   o.state.Topic,
		Timestamp: time.Now(),
	})
	return nil
}

// open sends the opening prompt to the left side.
func (o *orchestrator) open() error {
	if o.ended {
		return o.endErr()
	}
	o.handles[Left].Send(OpeningPrompt(o.state.Topic))
	o.state.Stage = StageInTurn
	o.state.Speaker = Left
	o.publish()
	return nil
}

func (o *orchestrator) onTranscription(side Side, text string) {
	if o.ended {
		return
	}
	buf := o.buffers[side]
	buf.Append(text)

	o.state.Stage = StageInTurn
	o.state.Speaker = side
	o.state.side(side).Caption = buf.Pending()
	o.publish()
}

func (o *orchestrator) onTurnComplete(side Side) {
	if o.ended {
		return
	}
	buf := o.buffers[side]
	text := buf.Flush()

	ss := o.state.side(side)
	ss.Caption = ""
	ss.Transcript = buf.Committed()
	ss.Turns = buf.Turns()
	o.state.Speaker = side

	if strings.TrimSpace(text) == "" {
		// Nothing to forward; keep waiting on the same side.
		o.logger.Debug("empty turn", "side", side)
		o.state.Stage = StageInTurn
		o.publish()
		return
	}

	o.state.Stage = StageHandoff
	o.state.Turns++
	o.publish()

	speaker := o.profile(side)
	o.c.cfg.Recorder.TurnCommitted(types.DebateMessage{
		DebateID:  o.state.DebateID,
		Kind:      types.KindTurn,
		AgentID:   speaker.ID,
		Side:      side.String(),
		Content:   text,
		Turn:      o.state.Turns,
		Timestamp: time.Now(),
	})

	if limit := o.c.cfg.MaxTurns; limit > 0 && o.state.Turns >= limit {
		o.end(EndCompleted, nil)
		return
	}

	other := side.Other()
	o.handles[other].Send(RebuttalPrompt(speaker.DisplayName, text))
	o.state.Stage = StageInTurn
	o.state.Speaker = other
	o.publish()
}

func (o *orchestrator) onVolume(side Side, level float64) {
	if o.ended {
		return
	}
	o.state.side(side).Volume = level
	o.publish()
}

func (o *orchestrator) onError(side Side, err error) {
	if o.ended {
		return
	}
	o.logger.Error("session failed", "side", side, "error", err)
	o.end(EndFailed, err)
}

// end tears the debate down: both sessions are disconnected in the same
// call, buffers are cleared and later events are ignored.
func (o *orchestrator) end(reason EndReason, err error) {
	if o.ended {
		return
	}
	o.ended = true
	o.cancel()
	o.subs.Cancel()
	for _, h := range o.handles {
		h.Disconnect()
	}
	for _, side := range sides {
		if sink := o.sinks[side]; sink != nil {
			if cerr := sink.Close(); cerr != nil {
				o.logger.Warn("close audio recording", "side", side, "error", cerr)
			}
		}
	}

	now := time.Now()
	for _, side := range sides {
		ss := o.state.side(side)
		ss.Transcript = o.buffers[side].Committed()
		ss.Caption = ""
		ss.Volume = 0
		o.buffers[side].Reset()
	}
	o.state.Stage = StageEnded
	o.state.EndReason = reason
	o.state.Err = err
	o.state.EndedAt = now
	o.publish()

	if reason == EndFailed {
		o.logger.Error("debate failed", "error", err, "turns", o.state.Turns)
	} else {
		o.logger.Info("debate ended", "reason", reason, "turns", o.state.Turns)
	}
	o.c.cfg.Recorder.DebateEnded(o.summary())
}

// endErr is what Start reports when the debate ended underneath it.
func (o *orchestrator) endErr() error {
	if o.state.EndReason == EndFailed && o.state.Err != nil {
		return o.state.Err
	}
	return ErrDebateEnded
}

func (o *orchestrator) summary() types.DebateSummary {
	s := types.DebateSummary{
		DebateID:        o.state.DebateID,
		Topic:           o.state.Topic,
		Left:            o.profile(Left).DisplayName,
		Right:           o.profile(Right).DisplayName,
		Outcome:         o.state.EndReason.String(),
		LeftTranscript:  o.state.Left.Transcript,
		RightTranscript: o.state.Right.Transcript,
		Turns:           o.state.Turns,
		StartedAt:       o.state.StartedAt,
		EndedAt:         o.state.EndedAt,
	}
	if o.state.Err != nil {
		s.Error = o.state.Err.Error()
	}
	return s
}

// publish refreshes the session states and hands the snapshot to the
// controller.
func (o *orchestrator) publish() {
	o.state.Phase = o.state.Stage.Phase()
	o.state.Left.Session = o.handles[Left].State()
	o.state.Right.Session = o.handles[Right].State()
	o.c.publish(o.state)
}
