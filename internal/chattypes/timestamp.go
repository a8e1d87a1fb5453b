package chattypes

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Timestamp is the authoring client's clock exactly as it appeared on the wire.
// Browsers send RFC3339 strings or Date.now() milliseconds; both are kept
// verbatim and re-encoded byte for byte.
type Timestamp struct {
	raw json.RawMessage
}

// zoneless layouts are read as UTC.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// TimestampOf encodes t as an RFC3339 string with nanoseconds.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp{raw: json.RawMessage(strconv.Quote(t.Format(time.RFC3339Nano)))}
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if len(ts.raw) == 0 {
		return []byte("null"), nil
	}
	return ts.raw, nil
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	ts.raw = append(json.RawMessage(nil), b...)
	return nil
}

// IsZero reports whether no timestamp was set or the wire value was null.
func (ts Timestamp) IsZero() bool {
	return len(ts.raw) == 0 || bytes.Equal(ts.raw, []byte("null"))
}

// Time interprets the wire value. Strings are RFC3339 (a missing zone means UTC),
// numbers are Unix milliseconds. ok is false for anything else.
func (ts Timestamp) Time() (t time.Time, ok bool) {
	if ts.IsZero() {
		return time.Time{}, false
	}
	if ts.raw[0] == '"' {
		var s string
		if err := json.Unmarshal(ts.raw, &s); err != nil {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, true
		}
		for _, layout := range zonelessLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	}
	ms, err := strconv.ParseFloat(string(ts.raw), 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}

// String returns the wire text.
func (ts Timestamp) String() string {
	return string(ts.raw)
}

func (ts Timestamp) clone() Timestamp {
	if ts.raw == nil {
		return ts
	}
	return Timestamp{raw: append(json.RawMessage(nil), ts.raw...)}
}
