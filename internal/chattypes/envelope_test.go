package chattypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelopeMessage(t *testing.T) {
	raw := []byte(`{"kind":"message","message":{"id":"1","content":"hi","sender":{"id":"u1","name":"Alice"},"timestamp":"2026-10-18T09:00:00Z","status":"sent","edited":false}}`)

	env, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	require.Equal(t, KindMessage, env.Kind)
	require.NotNil(t, env.Message)
	assert.Equal(t, "hi", env.Message.Content)
	assert.Equal(t, "u1", env.Message.Sender.ID)
	assert.Equal(t, StatusSent, env.Message.Status)
	ts, ok := env.Message.Timestamp.Time()
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC), ts.UTC())
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `hello`, ErrMalformedEnvelope},
		{"array", `[1,2]`, ErrMalformedEnvelope},
		{"no kind", `{"not":"valid"}`, ErrMissingKind},
		{"null", `null`, ErrMissingKind},
		{"message without body", `{"kind":"message"}`, ErrMissingMessage},
		{"reaction without target", `{"kind":"reaction","emoji":"👍"}`, ErrMissingTarget},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tc.raw))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDecodeEnvelopeUnknownKind(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"kind":"typing","user":"u1"}`))
	require.NoError(t, err)
	assert.Equal(t, Kind("typing"), env.Kind)
	assert.False(t, env.Kind.Known())
	assert.True(t, KindReaction.Known())
}

func TestReactionEnvelopeWireFormat(t *testing.T) {
	b, err := NewReactionEnvelope("m1", "🎉", "").Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"reaction","messageId":"m1","emoji":"🎉"}`, string(b))
}

func TestCloneDoesNotShareReactions(t *testing.T) {
	orig := ChatMessage{ID: "m1", Reactions: []Reaction{{Emoji: "👍", Users: []string{"u1"}}}}
	cp := orig.Clone()
	cp.Reactions[0].Users[0] = "u9"
	assert.Equal(t, "u1", orig.Reactions[0].Users[0])
}

func TestNewMessage(t *testing.T) {
	now := time.Unix(0, 1234567)
	msg := NewMessage(Sender{ID: "u1", Name: "Alice"}, "hi", now)
	assert.Equal(t, "1234567", msg.ID)
	ts, ok := msg.Timestamp.Time()
	require.True(t, ok)
	assert.True(t, now.Equal(ts))
	assert.Equal(t, StatusSent, msg.Status)
	assert.False(t, msg.Edited)
}
