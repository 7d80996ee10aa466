package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/chandler767/live-debate-arena/pkg/session"
	"github.com/chandler767/live-debate-arena/pkg/session/fake"
	"github.com/chandler767/live-debate-arena/pkg/types"
	"github.com/matryer/is"
)

var testProfile = types.AgentProfile{ID: "paul", DisplayName: "Paul", VoiceID: "Puck", Color: "#d946ef"}

var audioConfig = session.Config{
	ResponseModality:     session.ModalityAudio,
	Voice:                "Puck",
	RequestTranscription: true,
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHandle(t *testing.T, tr *fake.Transport) *session.Handle {
	t.Helper()
	h := session.NewHandle(testProfile, tr, quietLogger())
	if err := h.Configure(audioConfig); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	t.Cleanup(h.Disconnect)
	return h
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

func TestHandle_ConnectLifecycle(t *testing.T) {
	is := is.New(t)
	tr := fake.New()
	h := newHandle(t, tr)

	is.Equal(h.State(), session.StateIdle)
	is.NoErr(h.Connect(context.Background()))
	is.Equal(h.State(), session.StateConnected)
	is.NoErr(h.Connect(context.Background())) // connect while connected is a no-op
	is.Equal(tr.Dials(), 1)
	is.Equal(tr.Last().Config, audioConfig) // transport receives the stored config

	h.Disconnect()
	is.Equal(h.State(), session.StateIdle)
	is.True(tr.Last().Closed()) // disconnect closes the transport
	h.Disconnect()              // second disconnect is harmless
	is.Equal(h.State(), session.StateIdle)
}

func TestHandle_ConfigureWhileConnected(t *testing.T) {
	is := is.New(t)
	h := newHandle(t, fake.New())
	is.NoErr(h.Connect(context.Background()))

	err := h.Configure(audioConfig)
	is.True(errors.Is(err, session.ErrInvalidState))

	var stateErr *session.InvalidStateError
	is.True(errors.As(err, &stateErr))
	is.Equal(stateErr.State, session.StateConnected)
}

func TestHandle_ConfigureRejectsMissingModality(t *testing.T) {
	is := is.New(t)
	h := session.NewHandle(testProfile, fake.New(), quietLogger())
	is.True(h.Configure(session.Config{}) != nil)
}

func TestHandle_ConnectBeforeConfigure(t *testing.T) {
	is := is.New(t)
	h := session.NewHandle(testProfile, fake.New(), quietLogger())
	err := h.Connect(context.Background())
	is.True(errors.Is(err, session.ErrInvalidState))
	is.Equal(h.State(), session.StateIdle)
}

func TestHandle_ConcurrentConnectSharesAttempt(t *testing.T) {
	is := is.New(t)
	tr := fake.New()
	tr.Gate = make(chan struct{})
	h := newHandle(t, tr)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.Connect(context.Background())
		}(i)
	}

	waitFor(t, "connecting state", func() bool { return h.State() == session.StateConnecting })
	close(tr.Gate)
	wg.Wait()

	for _, err := range errs {
		is.NoErr(err)
	}
	is.Equal(tr.Dials(), 1) // only one dial for concurrent callers
	is.Equal(h.State(), session.StateConnected)
}

func TestHandle_ConnectFailure(t *testing.T) {
	is := is.New(t)
	tr := fake.New()
	tr.DialErr = errors.New("handshake rejected")
	h := newHandle(t, tr)

	err := h.Connect(context.Background())
	var connErr *session.ConnectionError
	is.True(errors.As(err, &connErr))
	is.Equal(connErr.Agent, "Paul")
	is.Equal(h.State(), session.StateFailed)

	h.Disconnect()
	is.Equal(h.State(), session.StateIdle)

	tr.DialErr = nil
	is.NoErr(h.Connect(context.Background())) // recovers after disconnect
}

func TestHandle_ConnectTimeout(t *testing.T) {
	is := is.New(t)
	tr := fake.New()
	tr.Gate = make(chan struct{})
	h := newHandle(t, tr)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := h.Connect(ctx)
	var connErr *session.ConnectionError
	is.True(errors.As(err, &connErr))
	is.True(errors.Is(err, context.DeadlineExceeded))
	is.Equal(h.State(), session.StateFailed)
}

func TestHandle_DisconnectDuringConnect(t *testing.T) {
	is := is.New(t)
	tr := fake.New()
	tr.Gate = make(chan struct{})
	h := newHandle(t, tr)

	errc := make(chan error, 1)
	go func() { errc <- h.Connect(context.Background()) }()
	waitFor(t, "connecting state", func() bool { return h.State() == session.StateConnecting })

	h.Disconnect()
	err := <-errc

	is.True(errors.Is(err, session.ErrDisconnected))
	is.Equal(h.State(), session.StateIdle)
}

func TestHandle_SendRequiresConnected(t *testing.T) {
	is := is.New(t)
	tr := fake.New()
	h := newHandle(t, tr)

	is.True(!h.Send("too early")) // dropped while idle

	is.NoErr(h.Connect(context.Background()))
	is.True(h.Send("hello"))

	select {
	case got := <-tr.Last().SentCh():
		is.Equal(got, "hello")
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}

	h.Disconnect()
	is.True(!h.Send("too late")) // dropped after disconnect
	is.Equal(tr.Last().Sent(), []string{"hello"})
}

func TestHandle_ReEmitsEventsInOrder(t *testing.T) {
	is := is.New(t)
	tr := fake.New()
	h := newHandle(t, tr)

	var mu sync.Mutex
	var got []string
	record := func(s string) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	}
	subs := session.Subscriptions{
		h.OnTranscription(func(text string) { record("t:" + text) }),
		h.OnTurnComplete(func() { record("done") }),
		h.OnVolume(func(level float64) {
			if level > 0 {
				record("loud")
			}
		}),
	}
	defer subs.Cancel()

	is.NoErr(h.Connect(context.Background()))
	conn := tr.Last()
	conn.Transcribe("Pine")
	conn.Speak([]byte{0x00, 0x40, 0x00, 0xc0})
	conn.Transcribe("apple belongs.")
	conn.CompleteTurn()

	waitFor(t, "turn complete", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	})
	is.Equal(got, []string{"t:Pine", "loud", "t:apple belongs.", "done"})
	is.True(h.Volume() > 0)
}

func TestHandle_ErrorEventFailsHandle(t *testing.T) {
	is := is.New(t)
	tr := fake.New()
	h := newHandle(t, tr)

	faults := make(chan error, 1)
	sub := h.OnError(func(err error) { faults <- err })
	defer sub.Cancel()

	is.NoErr(h.Connect(context.Background()))
	conn := tr.Last()
	conn.Fail(errors.New("socket reset"))

	select {
	case err := <-faults:
		var fault *session.TransportFault
		is.True(errors.As(err, &fault))
		is.Equal(fault.Agent, "Paul")
	case <-time.After(2 * time.Second):
		t.Fatal("no fault reported")
	}
	is.Equal(h.State(), session.StateFailed)
	is.True(conn.Closed())
	is.True(!h.Send("after fault"))
}

func TestHandle_RemoteCloseIsFault(t *testing.T) {
	is := is.New(t)
	tr := fake.New()
	h := newHandle(t, tr)

	faults := make(chan error, 1)
	defer h.OnError(func(err error) { faults <- err }).Cancel()

	is.NoErr(h.Connect(context.Background()))
	tr.Last().Drop(nil)

	select {
	case err := <-faults:
		is.True(errors.Is(err, session.ErrConnectionClosed))
	case <-time.After(2 * time.Second):
		t.Fatal("no fault reported")
	}
}

func TestHandle_SubscriptionCancel(t *testing.T) {
	is := is.New(t)
	h := newHandle(t, fake.New())

	sub := h.OnTranscription(func(string) {})
	other := h.OnTurnComplete(func() {})
	is.Equal(h.Observers(), 2)

	sub.Cancel()
	sub.Cancel()
	is.Equal(h.Observers(), 1)

	other.Cancel()
	is.Equal(h.Observers(), 0)
}
