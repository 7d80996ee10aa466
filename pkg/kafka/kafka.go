package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chandler767/live-debate-arena/pkg/config"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/scram"
)

// Client represents a Kafka client
type Client struct {
	client  *kgo.Client
	config  *config.KafkaConfig
	consume bool
	logger  *slog.Logger
}

// Message represents a Kafka message
type Message struct {
	Topic   string
	Key     string
	Value   string
	Headers map[string]string
}

// Options builds the franz-go options for cfg. Consumers join the
// configured group and subscribe to every configured topic.
func Options(cfg *config.KafkaConfig, consume bool) ([]kgo.Opt, error) {
	if len(cfg.SeedBrokers) == 0 {
		return nil, fmt.Errorf("no seed brokers configured")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.SeedBrokers...),
		// Add connection resilience options
		kgo.RetryTimeout(time.Minute * 2),
		kgo.RetryBackoffFn(func(attempt int) time.Duration {
			return time.Second * time.Duration(attempt)
		}),
	}
	if consume {
		opts = append(opts, kgo.ConsumeTopics(cfg.Topics...))
		if cfg.ConsumerGroup != "" {
			opts = append(opts, kgo.ConsumerGroup(cfg.ConsumerGroup), kgo.DisableAutoCommit())
		} else {
			opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
		}
	}

	// Add SASL if configured
	if cfg.SASL.Mechanism != "" {
		auth := func(ctx context.Context) (scram.Auth, error) {
			return scram.Auth{
				User: cfg.SASL.Username,
				Pass: cfg.SASL.Password,
			}, nil
		}
		var mechanism sasl.Mechanism
		switch cfg.SASL.Mechanism {
		case "SCRAM-SHA-256":
			mechanism = scram.Sha256(auth)
		case "SCRAM-SHA-512":
			mechanism = scram.Sha512(auth)
		default:
			return nil, fmt.Errorf("unsupported SASL mechanism: %s", cfg.SASL.Mechanism)
		}
		opts = append(opts, kgo.SASL(mechanism))
	}

	// Add TLS if enabled
	if cfg.TLS.Enabled {
		opts = append(opts, kgo.DialTLS())
	}
	return opts, nil
}

// NewClient creates a new Kafka client. A consuming client subscribes to
// cfg.Topics; a producing client only publishes.
func NewClient(cfg *config.KafkaConfig, consume bool, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "kafka")
	logger.Info("creating Kafka client", "brokers", cfg.SeedBrokers, "topics", cfg.Topics, "consume", consume)

	opts, err := Options(cfg, consume)
	if err != nil {
		return nil, err
	}

	// Create client with retry logic
	var client *kgo.Client
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		client, err = kgo.NewClient(opts...)
		if err == nil {
			break
		}

		logger.Warn("failed to create Kafka client", "attempt", i+1, "max", maxRetries, "error", err)
		if i < maxRetries-1 {
			time.Sleep(time.Duration(i+1) * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client after %d attempts: %w", maxRetries, err)
	}

	logger.Info("Kafka client created")
	return &Client{
		client:  client,
		config:  cfg,
		consume: consume,
		logger:  logger,
	}, nil
}

// Consume consumes messages from Kafka until ctx is done
func (c *Client) Consume(ctx context.Context, handler func(Message) error) error {
	if !c.consume {
		return fmt.Errorf("client was not created for consuming")
	}
	c.logger.Info("starting to consume", "topics", c.config.Topics)
	grouped := c.config.ConsumerGroup != ""

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context canceled, stopping Kafka consumer")
			return ctx.Err()
		default:
			fetches := c.client.PollFetches(ctx)
			if fetches.IsClientClosed() {
				return nil
			}
			if errs := fetches.Errors(); len(errs) > 0 {
				// Log errors but continue consuming
				for _, err := range errs {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					c.logger.Error("error consuming from Kafka", "topic", err.Topic, "partition", err.Partition, "error", err.Err)
				}
				continue
			}

			fetches.EachRecord(func(record *kgo.Record) {
				if err := handler(fromRecord(record)); err != nil {
					c.logger.Error("error handling message", "error", err)
				}
				if grouped {
					c.client.MarkCommitRecords(record)
				}
			})

			if grouped {
				if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
					c.logger.Warn("error committing offsets", "error", err)
				}
			}

			// If no records were fetched, sleep briefly to avoid CPU spinning
			if fetches.NumRecords() == 0 {
				time.Sleep(100 * time.Millisecond)
			}
		}
	}
}

// Produce produces a message to Kafka
func (c *Client) Produce(ctx context.Context, msg Message) error {
	record := toRecord(msg)

	// Produce the record with retry logic
	maxRetries := 3
	var err error
	for i := 0; i < maxRetries; i++ {
		err = c.client.ProduceSync(ctx, record).FirstErr()
		if err == nil {
			c.logger.Debug("message produced", "topic", msg.Topic, "key", msg.Key)
			return nil
		}

		c.logger.Warn("failed to produce message", "attempt", i+1, "max", maxRetries, "error", err)
		if i < maxRetries-1 {
			select {
			case <-time.After(time.Duration(i+1) * 500 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("failed to produce message after %d attempts: %w", maxRetries, err)
}

// Close closes the Kafka client
func (c *Client) Close() {
	c.logger.Info("closing Kafka client")
	c.client.Close()
}

func toRecord(msg Message) *kgo.Record {
	record := &kgo.Record{
		Topic: msg.Topic,
		Key:   []byte(msg.Key),
		Value: []byte(msg.Value),
	}
	for k, v := range msg.Headers {
		record.Headers = append(record.Headers, kgo.RecordHeader{
			Key:   k,
			Value: []byte(v),
		})
	}
	return record
}

func fromRecord(record *kgo.Record) Message {
	headers := make(map[string]string, len(record.Headers))
	for _, header := range record.Headers {
		headers[header.Key] = string(header.Value)
	}
	return Message{
		Topic:   record.Topic,
		Key:     string(record.Key),
		Value:   string(record.Value),
		Headers: headers,
	}
}
