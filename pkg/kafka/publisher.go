package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chandler767/live-debate-arena/pkg/types"
)

const (
	publishQueueSize = 256
	publishTimeout   = 10 * time.Second
)

// Producer sends one message. *Client implements it.
type Producer interface {
	Produce(ctx context.Context, msg Message) error
}

// Publisher publishes debate records to a topic. Its recorder methods only
// enqueue, so they never block the debate loop; a full queue drops records.
type Publisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan Message
	done   chan struct{}
}

// NewPublisher starts a publisher writing to topic.
func NewPublisher(p Producer, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	pub := &Publisher{
		producer: p,
		topic:    topic,
		logger:   logger.With("component", "kafka-publisher", "topic", topic),
		queue:    make(chan Message, publishQueueSize),
		done:     make(chan struct{}),
	}
	go pub.run()
	return pub
}

// DebateStarted publishes the topic record.
func (p *Publisher) DebateStarted(msg types.DebateMessage) {
	p.enqueueMessage(msg)
}

// TurnCommitted publishes a turn record.
func (p *Publisher) TurnCommitted(msg types.DebateMessage) {
	p.enqueueMessage(msg)
}

// DebateEnded publishes the summary record.
func (p *Publisher) DebateEnded(summary types.DebateSummary) {
	msg, err := EncodeSummary(p.topic, summary)
	if err != nil {
		p.logger.Error("encode summary", "error", err)
		return
	}
	p.enqueue(msg)
}

func (p *Publisher) enqueueMessage(m types.DebateMessage) {
	msg, err := EncodeMessage(p.topic, m)
	if err != nil {
		p.logger.Error("encode message", "error", err)
		return
	}
	p.enqueue(msg)
}

func (p *Publisher) enqueue(msg Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Warn("publisher closed, dropping record", "key", msg.Key)
		return
	}
	select {
	case p.queue <- msg:
	default:
		p.logger.Warn("publish queue full, dropping record", "key", msg.Key, "kind", msg.Headers[HeaderKind])
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.producer.Produce(ctx, msg); err != nil {
			p.logger.Error("failed to publish record", "key", msg.Key, "error", err)
		}
		cancel()
	}
}

// Close stops accepting records and waits for queued ones to be sent or
// for ctx to be done.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
