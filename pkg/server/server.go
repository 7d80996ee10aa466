// Package server streams debate state to browser renderers over WebSocket
// and accepts start and stop actions from them.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chandler767/live-debate-arena/pkg/debate"
	"github.com/chandler767/live-debate-arena/pkg/store"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 20 * time.Second
	readLimit    = 4096
	// frameRate is the animation frame rate faces are computed for.
	frameRate = 60
)

// Controller is the debate surface the server drives.
type Controller interface {
	Start(ctx context.Context, topic string) error
	Stop()
	State() debate.State
	Watch(fn func(debate.State)) (cancel func())
}

// TopicSource generates debate topics.
type TopicSource interface {
	Generate(ctx context.Context) (string, error)
}

// History reads archived debates.
type History interface {
	ListDebates(ctx context.Context, limit int) ([]store.Debate, error)
	GetDebate(ctx context.Context, id string) (*store.Debate, []store.Turn, error)
}

// Options configures optional server features.
type Options struct {
	Topics  TopicSource
	History History
	Logger  *slog.Logger
	// StartTimeout bounds a start action, including connecting both sides.
	StartTimeout time.Duration
}

// Server serves the arena's HTTP and WebSocket endpoints.
type Server struct {
	ctrl     Controller
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader
	epoch    time.Time
}

// New returns a server driving ctrl.
func New(ctrl Controller, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = time.Minute
	}
	return &Server{
		ctrl:   ctrl,
		opts:   opts,
		logger: opts.Logger.With("component", "server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		epoch: time.Now(),
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, NewSnapshot(s.ctrl.State(), s.frame()))
	})
	mux.HandleFunc("GET /debates", s.handleDebates)
	mux.HandleFunc("GET /debates/{id}", s.handleDebate)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

func (s *Server) frame() int {
	return int(time.Since(s.epoch) * frameRate / time.Second)
}

func (s *Server) handleDebates(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "archive not configured"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	debates, err := s.opts.History.ListDebates(r.Context(), limit)
	if err != nil {
		s.logger.Error("list debates", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list debates"})
		return
	}
	if debates == nil {
		debates = []store.Debate{}
	}
	writeJSON(w, http.StatusOK, debates)
}

// DebateRecord is an archived debate with its turns.
type DebateRecord struct {
	*store.Debate
	Transcript []store.Turn `json:"transcript"`
}

func (s *Server) handleDebate(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "archive not configured"})
		return
	}
	d, turns, err := s.opts.History.GetDebate(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "debate not found"})
		return
	}
	if err != nil {
		s.logger.Error("get debate", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get debate"})
		return
	}
	if turns == nil {
		turns = []store.Turn{}
	}
	writeJSON(w, http.StatusOK, DebateRecord{Debate: d, Transcript: turns})
}

// Command is a client action.
type Command struct {
	Action string `json:"action"`
	Topic  string `json:"topic,omitempty"`
}

// Actions accepted from clients.
const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionRandom = "random"
)

// Event is a server message. Type is "state" or "error".
type Event struct {
	Type  string    `json:"type"`
	State *Snapshot `json:"state,omitempty"`
	Error string    `json:"error,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{
		notify: make(chan struct{}, 1),
		errs:   make(chan string, 8),
	}
	unwatch := s.ctrl.Watch(c.offer)
	defer unwatch()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		if err := s.writeLoop(ctx, conn, c); err != nil {
			s.logger.Debug("websocket write ended", "error", err)
		}
	}()

	s.readLoop(ctx, conn, c)
	cancel()
	wg.Wait()
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
		case ActionStart:
			go s.start(ctx, c, func(context.Context) (string, error) { return cmd.Topic, nil })
		case ActionRandom:
			if s.opts.Topics == nil {
				c.fail("topic generation is not configured")
				continue
			}
			go s.start(ctx, c, s.opts.Topics.Generate)
		case ActionStop:
			s.ctrl.Stop()
		default:
			c.fail("unknown action " + strconv.Quote(cmd.Action))
		}
	}
}

// start runs a start action. It is bounded by StartTimeout only and
// outlives the requesting connection.
func (s *Server) start(ctx context.Context, c *client, topic func(context.Context) (string, error)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StartTimeout)
	defer cancel()

	t, err := topic(ctx)
	if err != nil {
		s.logger.Error("generate topic", "error", err)
		c.fail("failed to generate a topic")
		return
	}
	if err := s.ctrl.Start(ctx, t); err != nil && !errors.Is(err, debate.ErrDebateEnded) {
		c.fail(err.Error())
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) error {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(writeTimeout)
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return nil
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return err
			}
		case msg := <-c.errs:
			if err := write(conn, Event{Type: "error", Error: msg}); err != nil {
				return err
			}
		case <-c.notify:
			snap := NewSnapshot(c.latest(), s.frame())
			if err := write(conn, Event{Type: "state", State: &snap}); err != nil {
				return err
			}
		}
	}
}

func write(conn *websocket.Conn, ev Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(ev)
}

// client coalesces state updates so a slow socket never blocks the debate
// loop; only the newest state is sent.
type client struct {
	mu     sync.Mutex
	state  debate.State
	notify chan struct{}
	errs   chan string
}

func (c *client) offer(st debate.State) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *client) latest() debate.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *client) fail(msg string) {
	select {
	case c.errs <- msg:
	default:
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
