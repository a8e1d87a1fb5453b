package chattypes

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind tags an Envelope. Unknown kinds are carried through, not rejected.
type Kind string

const (
	KindMessage  Kind = "message"
	KindReaction Kind = "reaction"
)

// Known reports whether k is one of the kinds this build understands.
func (k Kind) Known() bool {
	switch k {
	case KindMessage, KindReaction:
		return true
	default:
		return false
	}
}

var (
	// ErrMalformedEnvelope 表示帧不是 JSON 对象。
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrMissingKind 表示缺少 kind 字段。
	ErrMissingKind = errors.New("envelope has no kind")
	// ErrMissingMessage 表示 kind=message 但没有 message 字段。
	ErrMissingMessage = errors.New("message envelope has no message")
	// ErrMissingTarget 表示 kind=reaction 但缺少 messageId 或 emoji。
	ErrMissingTarget = errors.New("reaction envelope has no target")
)

// Envelope is the top-level JSON object exchanged over the socket.
//
// kind=message carries Message. kind=reaction carries MessageID and Emoji, and
// optionally the reacting UserID.
type Envelope struct {
	Kind      Kind         `json:"kind"`
	Message   *ChatMessage `json:"message,omitempty"`
	MessageID string       `json:"messageId,omitempty"`
	Emoji     string       `json:"emoji,omitempty"`
	UserID    string       `json:"userId,omitempty"`
}

// NewMessageEnvelope wraps msg in a message envelope.
func NewMessageEnvelope(msg ChatMessage) Envelope {
	return Envelope{Kind: KindMessage, Message: &msg}
}

// NewReactionEnvelope builds a reaction envelope for messageID.
func NewReactionEnvelope(messageID, emoji, userID string) Envelope {
	return Envelope{Kind: KindReaction, MessageID: messageID, Emoji: emoji, UserID: userID}
}

// DecodeEnvelope parses raw and checks the fields its kind requires.
// An unknown kind is not an error.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Validate checks the per-kind required fields.
func (e Envelope) Validate() error {
	switch e.Kind {
	case "":
		return ErrMissingKind
	case KindMessage:
		if e.Message == nil {
			return ErrMissingMessage
		}
	case KindReaction:
		if e.MessageID == "" || e.Emoji == "" {
			return ErrMissingTarget
		}
	}
	return nil
}

// Encode marshals the envelope to a single JSON frame.
func (e Envelope) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", e.Kind, err)
	}
	return b, nil
}
