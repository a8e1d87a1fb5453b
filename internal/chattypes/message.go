package chattypes

import (
	"strconv"
	"time"
)

// MessageStatus is set by the authoring client; the relay never mutates it.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Sender is the identity asserted by the authoring client. The relay trusts it.
type Sender struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Reaction groups the users that reacted to a message with one emoji.
type Reaction struct {
	Emoji string   `json:"emoji"`
	Users []string `json:"users"`
}

// ChatMessage is the unit a UI renders.
type ChatMessage struct {
	ID        string        `json:"id"`      // 客户端生成，基于时间戳
	Content   string        `json:"content"` // 不限制长度
	Sender    Sender        `json:"sender"`
	Timestamp Timestamp     `json:"timestamp"` // 客户端时钟，原样转发
	Status    MessageStatus `json:"status"`
	Edited    bool          `json:"edited"`
	Reactions []Reaction    `json:"reactions,omitempty"`
}

// NewMessageID derives a session-unique id from the authoring time.
// Collisions under clock skew are possible and not defended against.
func NewMessageID(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

// NewMessage builds a locally authored message with status "sent".
func NewMessage(sender Sender, content string, now time.Time) ChatMessage {
	return ChatMessage{
		ID:        NewMessageID(now),
		Content:   content,
		Sender:    sender,
		Timestamp: TimestampOf(now),
		Status:    StatusSent,
	}
}

// Clone returns a copy that shares no slices with m.
func (m ChatMessage) Clone() ChatMessage {
	m.Timestamp = m.Timestamp.clone()
	if len(m.Reactions) == 0 {
		m.Reactions = nil
		return m
	}
	reactions := make([]Reaction, len(m.Reactions))
	for i, r := range m.Reactions {
		reactions[i] = Reaction{Emoji: r.Emoji, Users: append([]string(nil), r.Users...)}
	}
	m.Reactions = reactions
	return m
}
