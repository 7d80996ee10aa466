package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chandler767/live-debate-arena/pkg/config"
	"github.com/chandler767/live-debate-arena/pkg/types"
	"github.com/matryer/is"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestOptions(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.KafkaConfig
		consume bool
		wantErr bool
	}{
		{name: "no brokers", cfg: config.KafkaConfig{}, wantErr: true},
		{name: "producer", cfg: config.KafkaConfig{SeedBrokers: []string{"localhost:9092"}}},
		{
			name:    "grouped consumer",
			cfg:     config.KafkaConfig{SeedBrokers: []string{"localhost:9092"}, Topics: []string{"debates"}, ConsumerGroup: "arena"},
			consume: true,
		},
		{
			name: "scram",
			cfg: config.KafkaConfig{
				SeedBrokers: []string{"localhost:9092"},
				SASL:        config.SASLConfig{Mechanism: "SCRAM-SHA-512", Username: "u", Password: "p"},
				TLS:         config.TLSConfig{Enabled: true},
			},
		},
		{
			name: "unsupported sasl",
			cfg: config.KafkaConfig{
				SeedBrokers: []string{"localhost:9092"},
				SASL:        config.SASLConfig{Mechanism: "PLAIN"},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			opts, err := Options(&tt.cfg, tt.consume)
			if tt.wantErr {
				is.True(err != nil)
				return
			}
			is.NoErr(err)
			is.True(len(opts) > 0)
		})
	}
}

func TestRecordConversion(t *testing.T) {
	is := is.New(t)
	msg := Message{Topic: "debates", Key: "d1", Value: "{}", Headers: map[string]string{HeaderKind: "turn"}}

	got := fromRecord(toRecord(msg))
	is.Equal(got, msg)
	is.Equal(fromRecord(&kgo.Record{Topic: "t"}).Headers, map[string]string{})
}

func TestEncodeDecode(t *testing.T) {
	is := is.New(t)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	turn := types.DebateMessage{
		DebateID: "d1", Kind: types.KindTurn, AgentID: "proper-paul", Side: "left",
		Content: "Pineapple belongs.", Turn: 1, Timestamp: now,
	}
	msg, err := EncodeMessage("debates", turn)
	is.NoErr(err)
	is.Equal(msg.Key, "d1") // keyed by debate for ordering
	is.Equal(msg.Headers[HeaderKind], "turn")
	is.Equal(msg.Headers[HeaderAgent], "proper-paul")

	rec, err := Decode(msg)
	is.NoErr(err)
	is.Equal(rec.Kind, types.KindTurn)
	is.Equal(*rec.Message, turn)
	is.True(rec.Summary == nil)

	summary := types.DebateSummary{DebateID: "d1", Topic: "Pineapple on pizza", Outcome: "stopped", Turns: 3, StartedAt: now, EndedAt: now}
	msg, err = EncodeSummary("debates", summary)
	is.NoErr(err)
	rec, err = Decode(msg)
	is.NoErr(err)
	is.Equal(*rec.Summary, summary)

	_, err = Decode(Message{Value: "{}", Headers: map[string]string{}})
	is.True(err != nil) // missing kind
	_, err = Decode(Message{Value: "not json", Headers: map[string]string{HeaderKind: "turn"}})
	is.True(err != nil)
}

type memProducer struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (p *memProducer) Produce(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func TestPublisher_PublishesInOrder(t *testing.T) {
	is := is.New(t)
	prod := &memProducer{}
	pub := NewPublisher(prod, "debates", nil)

	pub.DebateStarted(types.DebateMessage{DebateID: "d1", Kind: types.KindTopic, Content: "Pineapple on pizza"})
	pub.TurnCommitted(types.DebateMessage{DebateID: "d1", Kind: types.KindTurn, AgentID: "proper-paul", Turn: 1})
	pub.DebateEnded(types.DebateSummary{DebateID: "d1", Outcome: "completed"})

	is.NoErr(pub.Close(context.Background()))

	prod.mu.Lock()
	defer prod.mu.Unlock()
	is.Equal(len(prod.msgs), 3)
	is.Equal(prod.msgs[0].Headers[HeaderKind], "topic")
	is.Equal(prod.msgs[1].Headers[HeaderKind], "turn")
	is.Equal(prod.msgs[2].Headers[HeaderKind], "end")
	for _, m := range prod.msgs {
		is.Equal(m.Topic, "debates")
	}

	pub.TurnCommitted(types.DebateMessage{DebateID: "d1"}) // after close: dropped, no panic
}

func TestPublisher_ProduceErrorsAreLogged(t *testing.T) {
	is := is.New(t)
	prod := &memProducer{err: errors.New("broker down")}
	pub := NewPublisher(prod, "debates", nil)

	pub.TurnCommitted(types.DebateMessage{DebateID: "d1", Kind: types.KindTurn})
	pub.TurnCommitted(types.DebateMessage{DebateID: "d1", Kind: types.KindTurn})
	is.NoErr(pub.Close(context.Background()))

	prod.mu.Lock()
	defer prod.mu.Unlock()
	is.Equal(len(prod.msgs), 2) // a failed record does not stop the queue
}
