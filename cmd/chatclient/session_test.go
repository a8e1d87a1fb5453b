package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timebank-chat/internal/chattypes"
	"timebank-chat/internal/timeline"
)

type fakeSender struct {
	open bool
	sent []chattypes.Envelope
}

func (f *fakeSender) Send(env chattypes.Envelope) bool {
	if !f.open {
		return false
	}
	f.sent = append(f.sent, env)
	return true
}

func newTestSession(t *testing.T, open bool) (*session, *fakeSender, *timeline.Timeline, *bytes.Buffer) {
	t.Helper()
	conn := &fakeSender{open: open}
	tl := timeline.New()
	out := &bytes.Buffer{}
	s, err := newSession(chattypes.Sender{ID: "u1", Name: "Alice"}, conn, tl, out)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) }
	return s, conn, tl, out
}

func TestSessionRequiresIdentity(t *testing.T) {
	_, err := newSession(chattypes.Sender{Name: "nobody"}, &fakeSender{}, timeline.New(), &bytes.Buffer{})
	assert.ErrorIs(t, err, errNoIdentity)
}

func TestSayAppendsThenSends(t *testing.T) {
	s, conn, tl, _ := newTestSession(t, true)

	assert.False(t, s.handleLine("hello there"))

	require.Equal(t, 1, tl.Len())
	require.Len(t, conn.sent, 1)
	msg := tl.Messages()[0]
	assert.Equal(t, "hello there", msg.Content)
	assert.Equal(t, "u1", msg.Sender.ID)
	assert.Equal(t, chattypes.StatusSent, msg.Status)
	assert.Equal(t, msg.ID, conn.sent[0].Message.ID)

	// 中继回显不会产生重复
	tl.HandleEnvelope(conn.sent[0])
	assert.Equal(t, 1, tl.Len())
}

func TestSayWhileOfflineStaysLocal(t *testing.T) {
	s, conn, tl, out := newTestSession(t, false)

	s.handleLine("anyone?")
	assert.Equal(t, 1, tl.Len())
	assert.Empty(t, conn.sent)
	assert.Contains(t, out.String(), "offline")
}

func TestReactCommand(t *testing.T) {
	s, conn, tl, out := newTestSession(t, true)
	s.handleLine("hi")
	id := tl.Messages()[0].ID

	s.handleLine("/react " + id + " 👍")
	require.Len(t, conn.sent, 2)
	assert.Equal(t, chattypes.KindReaction, conn.sent[1].Kind)
	assert.Equal(t, id, conn.sent[1].MessageID)

	got, _ := tl.Get(id)
	assert.Equal(t, []chattypes.Reaction{{Emoji: "👍", Users: []string{"u1"}}}, got.Reactions)

	s.handleLine("/react missing 👍")
	assert.Contains(t, out.String(), "no message missing")
	s.handleLine("/react")
	assert.Contains(t, out.String(), "usage: /react")
}

func TestEditCommand(t *testing.T) {
	s, conn, tl, out := newTestSession(t, true)
	s.handleLine("teh")
	id := tl.Messages()[0].ID

	s.handleLine("/edit " + id + " the fixed text")
	got, _ := tl.Get(id)
	assert.Equal(t, "the fixed text", got.Content)
	assert.True(t, got.Edited)
	// 编辑只在本地生效
	assert.Len(t, conn.sent, 1)
	assert.Contains(t, out.String(), "edited locally")
}

func TestPrintMessageWithNumericTimestamp(t *testing.T) {
	s, _, _, out := newTestSession(t, true)
	env, err := chattypes.DecodeEnvelope([]byte(`{"kind":"message","message":{"id":"7","content":"from js","sender":{"id":"u2","name":"Bob"},"timestamp":1760778000000,"status":"sent","edited":false}}`))
	require.NoError(t, err)

	s.printMessage(*env.Message)
	assert.Contains(t, out.String(), "Bob: from js")
	assert.NotContains(t, out.String(), "--:--:--")
}

func TestRunStopsOnQuitOrEOF(t *testing.T) {
	s, conn, _, _ := newTestSession(t, true)

	err := s.run(context.Background(), strings.NewReader("one\n/quit\ntwo\n"))
	require.NoError(t, err)
	assert.Len(t, conn.sent, 1)

	err = s.run(context.Background(), strings.NewReader("three\n"))
	require.NoError(t, err)
	assert.Len(t, conn.sent, 2)
}

func TestUnknownCommand(t *testing.T) {
	s, conn, _, out := newTestSession(t, true)
	assert.False(t, s.handleLine("/dance"))
	assert.Empty(t, conn.sent)
	assert.Contains(t, out.String(), "unknown command /dance")
}
