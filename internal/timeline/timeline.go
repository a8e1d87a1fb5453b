// Package timeline keeps the ordered list of chat messages a client renders.
package timeline

import (
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"timebank-chat/internal/chattypes"
)

// Timeline is an append-only, insertion-ordered list of messages, deduplicated
// by message id. Messages are never re-sorted by timestamp.
type Timeline struct {
	mu       sync.Mutex
	messages []chattypes.ChatMessage
	index    map[string]int // message id -> position in messages
	onAppend func(chattypes.ChatMessage)
}

func New() *Timeline {
	return &Timeline{index: make(map[string]int)}
}

// SetOnAppend sets a hook called with a copy of every appended message.
func (t *Timeline) SetOnAppend(fn func(chattypes.ChatMessage)) {
	t.mu.Lock()
	t.onAppend = fn
	t.mu.Unlock()
}

// AppendLocal appends a message authored locally before its echo arrives.
// It returns false if a message with the same id is already present.
func (t *Timeline) AppendLocal(msg chattypes.ChatMessage) bool {
	return t.append(msg)
}

// HandleEnvelope applies an inbound envelope. Message echoes whose id is already
// present are discarded, so a locally appended message is shown once.
func (t *Timeline) HandleEnvelope(env chattypes.Envelope) {
	switch env.Kind {
	case chattypes.KindMessage:
		if env.Message == nil {
			return
		}
		if !t.append(*env.Message) {
			log.Debug().Str("messageId", env.Message.ID).Msg("重复消息，已忽略")
		}
	case chattypes.KindReaction:
		if !t.React(env.MessageID, env.Emoji, env.UserID) {
			log.Debug().Str("messageId", env.MessageID).Msg("未找到 reaction 的目标消息")
		}
	default:
		log.Debug().Str("kind", string(env.Kind)).Msg("未知的消息类型，已忽略")
	}
}

func (t *Timeline) append(msg chattypes.ChatMessage) bool {
	t.mu.Lock()
	if _, ok := t.index[msg.ID]; ok {
		t.mu.Unlock()
		return false
	}
	msg = msg.Clone()
	t.index[msg.ID] = len(t.messages)
	t.messages = append(t.messages, msg)
	fn := t.onAppend
	t.mu.Unlock()

	if fn != nil {
		fn(msg.Clone())
	}
	return true
}

// React records that userID reacted with emoji on the message. Reactions are
// ordered by first use and a user is counted once per emoji. It returns false
// if the message is unknown.
func (t *Timeline) React(messageID, emoji, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[messageID]
	if !ok {
		return false
	}
	msg := &t.messages[i]
	for j := range msg.Reactions {
		r := &msg.Reactions[j]
		if r.Emoji != emoji {
			continue
		}
		if !slices.Contains(r.Users, userID) {
			r.Users = append(r.Users, userID)
		}
		return true
	}
	msg.Reactions = append(msg.Reactions, chattypes.Reaction{Emoji: emoji, Users: []string{userID}})
	return true
}

// Edit replaces the content of a message and marks it edited.
func (t *Timeline) Edit(id, content string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[id]
	if !ok {
		return false
	}
	t.messages[i].Content = content
	t.messages[i].Edited = true
	return true
}

// Get returns a copy of the message with the given id.
func (t *Timeline) Get(id string) (chattypes.ChatMessage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[id]
	if !ok {
		return chattypes.ChatMessage{}, false
	}
	return t.messages[i].Clone(), true
}

// Messages returns a snapshot of the timeline in insertion order.
func (t *Timeline) Messages() []chattypes.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]chattypes.ChatMessage, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.Clone()
	}
	return out
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}
