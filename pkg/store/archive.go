package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chandler767/live-debate-arena/pkg/types"
)

const (
	archiveQueueSize = 128
	writeTimeout     = 5 * time.Second
)

// Writer is the subset of Store the archive writes through.
type Writer interface {
	CreateDebate(ctx context.Context, id, topic string, startedAt time.Time) error
	AddTurn(ctx context.Context, msg types.DebateMessage) error
	FinishDebate(ctx context.Context, sum types.DebateSummary) error
}

// Archive records debates without blocking the caller. Writes run in order
// on one goroutine so a debate row exists before its turns.
type Archive struct {
	w      Writer
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan func(context.Context) error
	done   chan struct{}
}

// NewArchive starts an archive writing through w.
func NewArchive(w Writer, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Archive{
		w:      w,
		logger: logger.With("component", "archive"),
		queue:  make(chan func(context.Context) error, archiveQueueSize),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Archive) DebateStarted(msg types.DebateMessage) {
	a.enqueue(func(ctx context.Context) error {
		return a.w.CreateDebate(ctx, msg.DebateID, msg.Content, msg.Timestamp)
	})
}

func (a *Archive) TurnCommitted(msg types.DebateMessage) {
	a.enqueue(func(ctx context.Context) error { return a.w.AddTurn(ctx, msg) })
}

func (a *Archive) DebateEnded(sum types.DebateSummary) {
	a.enqueue(func(ctx context.Context) error { return a.w.FinishDebate(ctx, sum) })
}

func (a *Archive) enqueue(fn func(context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- fn:
	default:
		a.logger.Warn("archive queue full, dropping write")
	}
}

func (a *Archive) run() {
	defer close(a.done)
	for fn := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := fn(ctx); err != nil {
			a.logger.Error("archive write failed", "error", err)
		}
		cancel()
	}
}

// Close waits for queued writes or for ctx to be done.
func (a *Archive) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
