package chattypes

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RelayEnvelope is what the relay reads from a frame: the kind, and for
// kind=message the message object kept opaque. Field values are never checked.
type RelayEnvelope struct {
	Kind    Kind            `json:"kind"`
	Message json.RawMessage `json:"message,omitempty"`
}

// relayMessage carries the re-serialised fields exactly as they arrived.
// Reactions and any field not listed here are dropped.
type relayMessage struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Sender    json.RawMessage `json:"sender,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Status    json.RawMessage `json:"status,omitempty"`
	Edited    json.RawMessage `json:"edited,omitempty"`
}

// DecodeRelayEnvelope parses raw far enough to dispatch on kind.
func DecodeRelayEnvelope(raw []byte) (RelayEnvelope, error) {
	var env RelayEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return RelayEnvelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Kind == "" {
		return RelayEnvelope{}, ErrMissingKind
	}
	if env.Kind == KindMessage && (len(env.Message) == 0 || bytes.Equal(env.Message, []byte("null"))) {
		return RelayEnvelope{}, ErrMissingMessage
	}
	return env, nil
}

// MessageFrame encodes the message envelope to fan out.
func (e RelayEnvelope) MessageFrame() ([]byte, error) {
	var msg relayMessage
	if err := json.Unmarshal(e.Message, &msg); err != nil {
		return nil, fmt.Errorf("%w: message is not an object: %v", ErrMalformedEnvelope, err)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode relayed message: %w", err)
	}
	return json.Marshal(RelayEnvelope{Kind: KindMessage, Message: body})
}
