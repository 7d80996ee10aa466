// Package debate runs a spoken debate between two live agent sessions.
//
// A Controller owns a single event loop goroutine. Every transport callback
// and every Start/Stop action is turned into a function posted to that loop,
// so the turn orchestrator's state, both transcript buffers and the
// published State are only ever touched by one goroutine.
package debate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/chandler767/live-debate-arena/pkg/session"
	"github.com/chandler767/live-debate-arena/pkg/types"
)

var (
	ErrEmptyTopic    = errors.New("debate: topic is empty")
	ErrDebateRunning = errors.New("debate: a debate is already running")
	// ErrDebateEnded is returned by Start when the debate was stopped
	// before the opening prompt went out.
	ErrDebateEnded = errors.New("debate: debate ended")
	ErrClosed      = errors.New("debate: controller closed")
)

const (
	DefaultConnectTimeout = 15 * time.Second
	DefaultOpeningDelay   = time.Second
	inboxSize             = 64
)

// Config configures a Controller.
type Config struct {
	// Transport dials both sessions.
	Transport session.Transport
	Model     string
	Left      types.AgentProfile
	Right     types.AgentProfile

	// ConnectTimeout bounds connecting both sides. Zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// OpeningDelay is the pause between both sides connecting and the
	// opening prompt.
	OpeningDelay time.Duration
	// MaxTurns ends the debate after that many committed turns. Zero means
	// no limit.
	MaxTurns int

	Recorder   Recorder
	AudioSinks AudioSinkFactory
	Logger     *slog.Logger
}

// Controller starts and stops debates and publishes their State.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	inbox     chan func()
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	mu    sync.RWMutex
	state State

	wmu      sync.Mutex
	nextID   uint64
	watchers []watcher

	// cur is owned by the loop.
	cur *orchestrator
}

type watcher struct {
	id uint64
	fn func(State)
}

// NewController returns a controller with its event loop running. Call
// Close to stop it.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("debate: transport is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Recorder == nil {
		cfg.Recorder = Recorders(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Controller{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "debate"),
		inbox:    make(chan func(), inboxSize),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		state: State{
			Stage: StageSetup,
			Left:  SideState{Profile: cfg.Left},
			Right: SideState{Profile: cfg.Right},
		},
	}
	go c.run()
	return c, nil
}

// Start validates topic, connects both sides and sends the opening prompt
// to the left side. It returns once the opening prompt is queued or the
// debate has ended. A connection failure ends the debate and is returned.
func (c *Controller) Start(ctx context.Context, topic string) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ErrEmptyTopic
	}

	var (
		o   *orchestrator
		err error
	)
	if cerr := c.call(func() { o, err = c.begin(topic) }); cerr != nil {
		return cerr
	}
	if err != nil {
		return err
	}

	connErr := o.connect(ctx, c.cfg.ConnectTimeout)
	if cerr := c.call(func() { err = o.connected(connErr) }); cerr != nil {
		return cerr
	}
	if err != nil {
		return err
	}

	if d := c.cfg.OpeningDelay; d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-o.ctx.Done():
		case <-ctx.Done():
			_ = c.call(func() { o.end(EndStopped, nil) })
			return ctx.Err()
		}
	}

	if cerr := c.call(func() { err = o.open() }); cerr != nil {
		return cerr
	}
	return err
}

// Stop ends the current debate, disconnecting both sides. It is safe to
// call in any state and returns once the debate is Ended.
func (c *Controller) Stop() {
	_ = c.call(func() {
		if c.cur != nil {
			c.cur.end(EndStopped, nil)
			return
		}
		st := c.State()
		st.Stage, st.Phase, st.EndReason = StageEnded, PhaseEnded, EndStopped
		c.publish(st)
	})
}

// State returns the latest snapshot.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Watch calls fn with the current state and then with every new one. fn
// runs on the event loop: it must not block and must not call Start, Stop or
// Watch.
func (c *Controller) Watch(fn func(State)) (cancel func()) {
	c.wmu.Lock()
	c.nextID++
	id := c.nextID
	c.wmu.Unlock()

	_ = c.call(func() {
		c.wmu.Lock()
		c.watchers = append(c.watchers, watcher{id: id, fn: fn})
		c.wmu.Unlock()
		fn(c.State())
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.wmu.Lock()
			defer c.wmu.Unlock()
			for i, w := range c.watchers {
				if w.id == id {
					c.watchers = append(c.watchers[:i:i], c.watchers[i+1:]...)
					return
				}
			}
		})
	}
}

// Close stops any running debate and the event loop.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
	<-c.loopDone
}

func (c *Controller) run() {
	defer close(c.loopDone)
	for {
		select {
		case fn := <-c.inbox:
			c.dispatch(fn)
		case <-c.quit:
			c.dispatch(func() {
				if c.cur != nil {
					c.cur.end(EndStopped, nil)
				}
			})
			return
		}
	}
}

// dispatch runs fn, turning a panic into a failed end of the current debate.
func (c *Controller) dispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in debate event handler", "panic", r, "stack", string(debug.Stack()))
			c.abort(fmt.Errorf("debate: internal error: %v", r))
		}
	}()
	fn()
}

func (c *Controller) abort(err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while aborting debate", "panic", r)
		}
	}()
	if c.cur != nil && !c.cur.ended {
		c.cur.end(EndFailed, err)
	}
}

// post queues fn on the loop. It reports false once the controller is
// closed.
func (c *Controller) post(fn func()) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-c.quit:
		return false
	}
}

// call runs fn on the loop and waits for it to finish.
func (c *Controller) call(fn func()) error {
	done := make(chan struct{})
	if !c.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-c.loopDone:
		return ErrClosed
	}
}

// begin creates the orchestrator for a new debate. Runs on the loop.
func (c *Controller) begin(topic string) (*orchestrator, error) {
	if c.cur != nil && !c.cur.ended {
		return nil, ErrDebateRunning
	}
	o, err := newOrchestrator(c, topic)
	if err != nil {
		return nil, err
	}
	c.cur = o
	o.publish()
	return o, nil
}

// publish stores st and notifies watchers. Runs on the loop.
func (c *Controller) publish(st State) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()

	c.wmu.Lock()
	list := make([]watcher, len(c.watchers))
	copy(list, c.watchers)
	c.wmu.Unlock()

	for _, w := range list {
		w.fn(st)
	}
}
