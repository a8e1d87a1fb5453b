package chattypes

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageFrameKeepsFieldsVerbatim(t *testing.T) {
	cases := map[string]string{
		"epoch millis":      `1760778000000`,
		"fractional zulu":   `"2026-10-18T09:00:00.000Z"`,
		"zoneless iso":      `"2026-10-18T09:00:00"`,
		"numeric sender id": `{"id":42,"name":"Bob"}`,
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			field := "timestamp"
			if name == "numeric sender id" {
				field = "sender"
			}
			msg := map[string]json.RawMessage{
				"id":        json.RawMessage(`"m1"`),
				"content":   json.RawMessage(`"hi"`),
				"status":    json.RawMessage(`"sent"`),
				"reactions": json.RawMessage(`[{"emoji":"👍","users":["u2"]}]`),
				"draft":     json.RawMessage(`true`),
			}
			msg[field] = json.RawMessage(value)
			body, err := json.Marshal(msg)
			require.NoError(t, err)

			env, err := DecodeRelayEnvelope([]byte(`{"kind":"message","message":` + string(body) + `}`))
			require.NoError(t, err)
			out, err := env.MessageFrame()
			require.NoError(t, err)

			var got struct {
				Kind    Kind                       `json:"kind"`
				Message map[string]json.RawMessage `json:"message"`
			}
			require.NoError(t, json.Unmarshal(out, &got))
			assert.Equal(t, KindMessage, got.Kind)
			assert.Equal(t, value, string(got.Message[field]))
			assert.NotContains(t, got.Message, "reactions")
			assert.NotContains(t, got.Message, "draft")
		})
	}
}

func TestDecodeRelayEnvelopeErrors(t *testing.T) {
	_, err := DecodeRelayEnvelope([]byte(`{`))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = DecodeRelayEnvelope([]byte(`{"not":"valid"}`))
	assert.ErrorIs(t, err, ErrMissingKind)

	_, err = DecodeRelayEnvelope([]byte(`{"kind":"message","message":null}`))
	assert.ErrorIs(t, err, ErrMissingMessage)

	env, err := DecodeRelayEnvelope([]byte(`{"kind":"message","message":"text"}`))
	require.NoError(t, err)
	_, err = env.MessageFrame()
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestTimestampTime(t *testing.T) {
	want := time.Date(2025, 10, 18, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		raw string
		ok  bool
	}{
		{`"2025-10-18T09:00:00Z"`, true},
		{`"2025-10-18T11:00:00+02:00"`, true},
		{`"2025-10-18T09:00:00.000Z"`, true},
		{`"2025-10-18T09:00:00"`, true},
		{`1760778000000`, true},
		{`"yesterday"`, false},
		{`null`, false},
		{`{}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &ts))
			got, ok := ts.Time()
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.True(t, want.Equal(got), "got %v", got)
			}
		})
	}
}

func TestTimestampRoundTripsWireText(t *testing.T) {
	raw := []byte(`{"id":"m1","content":"hi","sender":{"id":"u1","name":"A"},"timestamp":1760778000000,"status":"sent","edited":false}`)
	var msg ChatMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "1760778000000", msg.Timestamp.String())

	out, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))

	var empty ChatMessage
	assert.True(t, empty.Timestamp.IsZero())
	out, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"timestamp":null`)
}
