package debate_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chandler767/live-debate-arena/pkg/agent"
	"github.com/chandler767/live-debate-arena/pkg/audio"
	"github.com/chandler767/live-debate-arena/pkg/debate"
	"github.com/chandler767/live-debate-arena/pkg/session"
	"github.com/chandler767/live-debate-arena/pkg/session/fake"
	"github.com/chandler767/live-debate-arena/pkg/types"
	"github.com/matryer/is"
)

type memRecorder struct {
	mu          sync.Mutex
	started     []types.DebateMessage
	turns       []types.DebateMessage
	ended       []types.DebateSummary
	panicOnTurn bool
}

func (r *memRecorder) DebateStarted(msg types.DebateMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, msg)
}

func (r *memRecorder) TurnCommitted(msg types.DebateMessage) {
	r.mu.Lock()
	r.turns = append(r.turns, msg)
	r.mu.Unlock()
	if r.panicOnTurn {
		panic("recorder exploded")
	}
}

func (r *memRecorder) DebateEnded(s types.DebateSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, s)
}

func (r *memRecorder) summaries() []types.DebateSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.DebateSummary(nil), r.ended...)
}

type arena struct {
	c   *debate.Controller
	tr  *fake.Transport
	rec *memRecorder
}

func newArena(t *testing.T, tweak func(*debate.Config)) *arena {
	t.Helper()
	a := &arena{tr: fake.New(), rec: &memRecorder{}}
	cfg := debate.Config{
		Transport: a.tr,
		Left:      agent.Paul,
		Right:     agent.Charlotte,
		Recorder:  a.rec,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if tweak != nil {
		tweak(&cfg)
	}
	c, err := debate.NewController(cfg)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	t.Cleanup(c.Close)
	a.c = c
	return a
}

func (a *arena) left() *fake.Conn  { return a.tr.ConnFor(agent.Paul.VoiceID) }
func (a *arena) right() *fake.Conn { return a.tr.ConnFor(agent.Charlotte.VoiceID) }

func (a *arena) start(t *testing.T, topic string) {
	t.Helper()
	if err := a.c.Start(context.Background(), topic); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

// startAsync runs Start in the background and returns its result channel.
func (a *arena) startAsync(topic string) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- a.c.Start(context.Background(), topic) }()
	return errc
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitStage(t *testing.T, c *debate.Controller, stage debate.Stage) debate.State {
	t.Helper()
	waitFor(t, "stage "+stage.String(), func() bool { return c.State().Stage == stage })
	return c.State()
}

func receive(t *testing.T, conn *fake.Conn) string {
	t.Helper()
	select {
	case msg := <-conn.SentCh():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
		return ""
	}
}

func assertBothDisconnected(t *testing.T, st debate.State) {
	t.Helper()
	is := is.NewRelaxed(t)
	is.Equal(st.Phase, debate.PhaseEnded)
	is.Equal(st.Left.Session, session.StateIdle)  // left session disconnected
	is.Equal(st.Right.Session, session.StateIdle) // right session disconnected
}

func TestStart_EmptyTopic(t *testing.T) {
	is := is.New(t)
	a := newArena(t, nil)

	is.Equal(a.c.Start(context.Background(), "   "), debate.ErrEmptyTopic)
	is.Equal(a.tr.Dials(), 0) // nothing connected
	is.Equal(a.c.State().Phase, debate.PhaseSetup)
}

func TestStart_OpeningPromptGoesToLeftOnly(t *testing.T) {
	is := is.New(t)
	a := newArena(t, nil)

	a.start(t, "Pineapple on pizza")

	st := a.c.State()
	is.Equal(st.Phase, debate.PhaseActive)
	is.Equal(st.Stage, debate.StageInTurn)
	is.Equal(st.Speaker, debate.Left)
	is.Equal(st.Left.Session, session.StateConnected)
	is.Equal(st.Right.Session, session.StateConnected)
	is.True(st.DebateID != "")

	msg := receive(t, a.left())
	is.Equal(msg, `Start a heated debate about: "Pineapple on pizza". You are in favor of it. State your opening argument now.`)
	is.Equal(len(a.right().Sent()), 0) // right never receives the opening

	is.Equal(a.left().Config.Voice, agent.Paul.VoiceID)
	is.True(a.left().Config.RequestTranscription)
	is.True(strings.Contains(a.left().Config.SystemInstructionText, "DEBATING against Chic Charlotte"))
	is.True(strings.Contains(a.right().Config.SystemInstructionText, "DEBATING against Proper Paul"))

	a.rec.mu.Lock()
	is.Equal(len(a.rec.started), 1)
	is.Equal(a.rec.started[0].Content, "Pineapple on pizza")
	a.rec.mu.Unlock()
}

func TestStart_WhileRunning(t *testing.T) {
	is := is.New(t)
	a := newArena(t, nil)
	a.start(t, "Cats versus dogs")

	is.Equal(a.c.Start(context.Background(), "Tea versus coffee"), debate.ErrDebateRunning)
	is.Equal(a.c.State().Topic, "Cats versus dogs")
}

func TestHandoff_ForwardsAssembledTurn(t *testing.T) {
	is := is.New(t)
	a := newArena(t, nil)
	a.start(t, "Pineapple on pizza")
	receive(t, a.left())

	a.left().Transcribe("Pine")
	a.left().Transcribe("apple belongs.")
	waitFor(t, "caption", func() bool { return a.c.State().Left.Caption == "Pineapple belongs." })
	a.left().CompleteTurn()

	msg := receive(t, a.right())
	is.True(strings.Contains(msg, `Your opponent Proper Paul said: "`))
	is.True(strings.Contains(msg, "Pineapple belongs."))
	is.True(strings.HasSuffix(msg, "Rebut this!"))

	st := a.c.State()
	is.Equal(st.Stage, debate.StageInTurn)
	is.Equal(st.Speaker, debate.Right)
	is.Equal(st.Turns, 1)
	is.Equal(st.Left.Transcript, "Pineapple belongs.")
	is.Equal(st.Left.Caption, "")
	is.Equal(len(a.right().Sent()), 1) // exactly one forwarded message
	is.Equal(len(a.left().Sent()), 1)  // only the opening prompt

	// and back again
	a.right().Transcribe("Absolutely not.")
	a.right().CompleteTurn()
	msg = receive(t, a.left())
	is.Equal(msg, `Your opponent Chic Charlotte said: "Absolutely not.". Rebut this!`)

	a.rec.mu.Lock()
	defer a.rec.mu.Unlock()
	is.Equal(len(a.rec.turns), 2)
	is.Equal(a.rec.turns[0].Side, "left")
	is.Equal(a.rec.turns[0].AgentID, agent.Paul.ID)
	is.Equal(a.rec.turns[1].Turn, 2)
}

func TestHandoff_EmptyTurnIsNotForwarded(t *testing.T) {
	is := is.New(t)
	a := newArena(t, nil)
	a.start(t, "Pineapple on pizza")
	receive(t, a.left())

	a.left().CompleteTurn()
	a.left().Transcribe("  ")
	a.left().CompleteTurn()
	a.left().Transcribe("Real argument.")
	a.left().CompleteTurn()

	msg := receive(t, a.right())
	is.True(strings.Contains(msg, "Real argument."))
	waitFor(t, "right turn", func() bool { return a.c.State().Speaker == debate.Right })
	is.Equal(len(a.right().Sent()), 1) // the empty turns sent nothing
	is.Equal(a.c.State().Turns, 1)
	is.Equal(a.c.State().Left.Transcript, "Real argument.")
}

func TestHandoff_SameTickOrder(t *testing.T) {
	is := is.New(t)
	a := newArena(t, nil)
	a.start(t, "Pineapple on pizza")
	receive(t, a.left())

	a.left().Transcribe("Left point.")
	a.right().Transcribe("Right point.")
	a.left().CompleteTurn()
	a.right().CompleteTurn()

	is.True(strings.Contains(receive(t, a.right()), "Left point."))
	is.True(strings.Contains(receive(t, a.left()), "Right point."))
	waitFor(t, "two turns", func() bool { return a.c.State().Turns == 2 })
}

func TestStop_FromEveryState(t *testing.T) {
	tests := []struct {
		name  string
		tweak func(*debate.Config)
		setup func(t *testing.T, a *arena) <-chan error
		// startErr is what a pending Start returns after Stop.
		startErr error
	}{
		{
			name:  "before start",
			setup: func(t *testing.T, a *arena) <-chan error { return nil },
		},
		{
			name: "connecting",
			setup: func(t *testing.T, a *arena) <-chan error {
				a.tr.Gate = make(chan struct{})
				errc := a.startAsync("Pineapple on pizza")
				waitFor(t, "both dials", func() bool { return a.tr.Dials() == 2 })
				waitStage(t, a.c, debate.StageConnecting)
				return errc
			},
			startErr: debate.ErrDebateEnded,
		},
		{
			name:  "opening",
			tweak: func(cfg *debate.Config) { cfg.OpeningDelay = time.Hour },
			setup: func(t *testing.T, a *arena) <-chan error {
				errc := a.startAsync("Pineapple on pizza")
				waitStage(t, a.c, debate.StageOpening)
				return errc
			},
			startErr: debate.ErrDebateEnded,
		},
		{
			name: "in turn",
			setup: func(t *testing.T, a *arena) <-chan error {
				a.start(t, "Pineapple on pizza")
				receive(t, a.left())
				a.left().Transcribe("Half a thou")
				waitFor(t, "caption", func() bool { return a.c.State().Left.Caption != "" })
				return nil
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			a := newArena(t, tt.tweak)
			errc := tt.setup(t, a)

			a.c.Stop()

			st := a.c.State()
			assertBothDisconnected(t, st)
			is.Equal(st.Stage, debate.StageEnded)
			is.Equal(st.EndReason, debate.EndStopped)
			is.NoErr(st.Err)
			for _, conn := range a.tr.Conns() {
				is.True(conn.Closed()) // every transport is closed
			}
			if errc != nil {
				select {
				case err := <-errc:
					is.True(errors.Is(err, tt.startErr))
				case <-time.After(2 * time.Second):
					t.Fatal("Start did not return after Stop")
				}
			}
			if r := a.right(); r != nil {
				is.Equal(len(r.Sent()), 0) // right side never spoke to
			}

			a.c.Stop() // stopping twice is harmless
			is.Equal(a.c.State().Phase, debate.PhaseEnded)
		})
	}
}

func TestTransportError_EndsDebate(t *testing.T) {
	is := is.New(t)
	a := newArena(t, nil)
	a.start(t, "Pineapple on pizza")
	receive(t, a.left())
	a.left().Transcribe("Pineapple")
	a.left().CompleteTurn()
	receive(t, a.right())

	boom := errors.New("stream reset")
	a.right().Fail(boom)

	st := waitStage(t, a.c, debate.StageEnded)
	assertBothDisconnected(t, st)
	is.Equal(st.EndReason, debate.EndFailed)
	is.True(errors.Is(st.Err, boom))
	var fault *session.TransportFault
	is.True(errors.As(st.Err, &fault))
	is.Equal(fault.Agent, agent.Charlotte.DisplayName)
	is.True(a.left().Closed())                // surviving side is torn down too
	is.Equal(st.Left.Transcript, "Pineapple") // final transcript kept for display

	ended := a.rec.summaries()
	is.Equal(len(ended), 1)
	is.Equal(ended[0].Outcome, "failed")
	is.Equal(ended[0].LeftTranscript, "Pineapple")
	is.Equal(ended[0].Error, st.Err.Error())
}

func TestRemoteClose_EndsDebate(t *testing.T) {
	is := is.New(t)
	a := newArena(t, nil)
	a.start(t, "Pineapple on pizza")
	receive(t, a.left()) // opening prompt delivered, outbox empty

	a.left().Drop(nil)

	st := waitStage(t, a.c, debate.StageEnded)
	is.Equal(st.EndReason, debate.EndFailed)
	var fault *session.TransportFault
	is.True(errors.As(st.Err, &fault))
	is.Equal(fault.Agent, agent.Paul.DisplayName)
	is.True(errors.Is(st.Err, session.ErrConnectionClosed))
	is.True(a.right().Closed())
}

func TestConnect_Timeout(t *testing.T) {
	is := is.New(t)
	a := newArena(t, func(cfg *debate.Config) { cfg.ConnectTimeout = 50 * time.Millisecond })
	a.tr.Gate = make(chan struct{}) // never opens

	err := a.c.Start(context.Background(), "Pineapple on pizza")
	is.True(errors.Is(err, context.DeadlineExceeded))
	var connErr *session.ConnectionError
	is.True(errors.As(err, &connErr))

	st := a.c.State()
	assertBothDisconnected(t, st)
	is.Equal(st.EndReason, debate.EndFailed)
	is.Equal(len(a.tr.Conns()), 0) // no turn traffic possible
}

func TestConnect_Failure(t *testing.T) {
	is := is.New(t)
	a := newArena(t, nil)
	a.tr.DialErr = errors.New("handshake rejected: transcription unavailable")

	err := a.c.Start(context.Background(), "Pineapple on pizza")
	var connErr *session.ConnectionError
	is.True(errors.As(err, &connErr))
	is.Equal(a.c.State().EndReason, debate.EndFailed)

	// a failed debate can be followed by a new one
	a.tr.DialErr = nil
	a.start(t, "Second try")
	is.Equal(a.c.State().Phase, debate.PhaseActive)
	is.Equal(a.c.State().Left.Transcript, "") // buffers reset
}

func TestMaxTurns_CompletesDebate(t *testing.T) {
	is := is.New(t)
	a := newArena(t, func(cfg *debate.Config) { cfg.MaxTurns = 1 })
	a.start(t, "Pineapple on pizza")
	receive(t, a.left())

	a.left().Transcribe("Final word.")
	a.left().CompleteTurn()

	st := waitStage(t, a.c, debate.StageEnded)
	is.Equal(st.EndReason, debate.EndCompleted)
	is.Equal(st.Turns, 1)
	is.Equal(len(a.right().Sent()), 0) // the last turn is not forwarded
}

func TestHandlerPanic_FailsDebate(t *testing.T) {
	is := is.New(t)
	a := newArena(t, nil)
	a.rec.panicOnTurn = true
	a.start(t, "Pineapple on pizza")
	receive(t, a.left())

	a.left().Transcribe("Boom.")
	a.left().CompleteTurn()

	st := waitStage(t, a.c, debate.StageEnded)
	assertBothDisconnected(t, st)
	is.Equal(st.EndReason, debate.EndFailed)
	is.True(strings.Contains(st.Err.Error(), "recorder exploded"))

	// the loop survives the panic
	a.rec.panicOnTurn = false
	a.start(t, "After the panic")
	is.Equal(a.c.State().Phase, debate.PhaseActive)
}

func TestWatch(t *testing.T) {
	is := is.New(t)
	a := newArena(t, nil)

	var (
		mu     sync.Mutex
		stages []debate.Stage
	)
	cancel := a.c.Watch(func(st debate.State) {
		mu.Lock()
		defer mu.Unlock()
		if len(stages) == 0 || stages[len(stages)-1] != st.Stage {
			stages = append(stages, st.Stage)
		}
	})

	a.start(t, "Pineapple on pizza")
	a.c.Stop()
	cancel()
	a.start(t, "Unobserved")

	mu.Lock()
	defer mu.Unlock()
	is.Equal(stages, []debate.Stage{
		debate.StageSetup,
		debate.StageConnecting,
		debate.StageOpening,
		debate.StageInTurn,
		debate.StageEnded,
	})
}

type memSink struct {
	mu     sync.Mutex
	frames int
	closed bool
}

func (s *memSink) WriteFrame(audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	return nil
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestAudioSinksAndVolume(t *testing.T) {
	is := is.New(t)
	sinks := map[debate.Side]*memSink{}
	var mu sync.Mutex
	a := newArena(t, func(cfg *debate.Config) {
		cfg.AudioSinks = func(id string, side debate.Side, p types.AgentProfile) (debate.AudioSink, error) {
			mu.Lock()
			defer mu.Unlock()
			s := &memSink{}
			sinks[side] = s
			return s, nil
		}
	})
	a.start(t, "Pineapple on pizza")

	loud := make([]byte, 480)
	for i := 0; i < len(loud); i += 2 {
		loud[i+1] = 0x20
	}
	a.left().Speak(loud)
	waitFor(t, "left volume", func() bool { return a.c.State().Left.Volume > 0 })
	is.Equal(a.c.State().Right.Volume, 0.0)
	waitFor(t, "recorded frame", func() bool {
		mu.Lock()
		s := sinks[debate.Left]
		mu.Unlock()
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.frames == 1
	})

	a.c.Stop()
	mu.Lock()
	defer mu.Unlock()
	is.True(sinks[debate.Left].closed)
	is.True(sinks[debate.Right].closed)
	is.Equal(a.c.State().Left.Volume, 0.0) // volume resets on end
}

func TestFakeResponder_RunsFullDebate(t *testing.T) {
	is := is.New(t)
	a := newArena(t, func(cfg *debate.Config) { cfg.MaxTurns = 4 })
	a.tr.Responder = func(cfg session.Config, prompt string) string {
		return "Says " + cfg.Voice + "."
	}

	a.start(t, "Pineapple on pizza")
	st := waitStage(t, a.c, debate.StageEnded)
	is.Equal(st.EndReason, debate.EndCompleted)
	is.Equal(st.Turns, 4)
	is.Equal(st.Left.Transcript, "Says Fenrir.\nSays Fenrir.")
	is.Equal(st.Right.Transcript, "Says Aoede.\nSays Aoede.")
}
