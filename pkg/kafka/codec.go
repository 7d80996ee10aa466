package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/chandler767/live-debate-arena/pkg/types"
)

// Header keys set on every published record.
const (
	HeaderKind  = "kind"
	HeaderAgent = "agent"
)

// Record is a decoded debate record. Exactly one of Message and Summary is
// set.
type Record struct {
	Kind    types.MessageKind
	Message *types.DebateMessage
	Summary *types.DebateSummary
}

// EncodeMessage turns a debate message into a Kafka message keyed by debate
// id, so a debate's records stay ordered on one partition.
func EncodeMessage(topic string, msg types.DebateMessage) (Message, error) {
	value, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	headers := map[string]string{HeaderKind: string(msg.Kind)}
	if msg.AgentID != "" {
		headers[HeaderAgent] = msg.AgentID
	}
	return Message{
		Topic:   topic,
		Key:     msg.DebateID,
		Value:   string(value),
		Headers: headers,
	}, nil
}

// EncodeSummary turns a debate summary into a Kafka message.
func EncodeSummary(topic string, summary types.DebateSummary) (Message, error) {
	value, err := json.Marshal(summary)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal summary: %w", err)
	}
	return Message{
		Topic:   topic,
		Key:     summary.DebateID,
		Value:   string(value),
		Headers: map[string]string{HeaderKind: string(types.KindEnd)},
	}, nil
}

// Decode parses a message produced by EncodeMessage or EncodeSummary.
func Decode(msg Message) (Record, error) {
	kind := types.MessageKind(msg.Headers[HeaderKind])
	switch kind {
	case types.KindEnd:
		var s types.DebateSummary
		if err := json.Unmarshal([]byte(msg.Value), &s); err != nil {
			return Record{}, fmt.Errorf("failed to unmarshal summary: %w", err)
		}
		return Record{Kind: kind, Summary: &s}, nil
	case types.KindTopic, types.KindTurn:
		var m types.DebateMessage
		if err := json.Unmarshal([]byte(msg.Value), &m); err != nil {
			return Record{}, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		return Record{Kind: kind, Message: &m}, nil
	default:
		return Record{}, fmt.Errorf("unknown record kind %q", kind)
	}
}
