package websocket

import (
	"errors"
	"io"

	"github.com/gorilla/websocket"
)

// ErrFrameTooLarge is returned by ReadFrame for a message over the limit. The
// message has been consumed and the connection is still usable.
var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// ReadFrame reads the next message, buffering at most limit bytes. Unlike
// Conn.SetReadLimit, an oversized message is discarded instead of failing the
// connection with 1009. limit <= 0 means unbounded.
func ReadFrame(conn *websocket.Conn, limit int64) (int, []byte, error) {
	messageType, r, err := conn.NextReader()
	if err != nil {
		return messageType, nil, err
	}
	if limit <= 0 {
		data, err := io.ReadAll(r)
		return messageType, data, err
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return messageType, nil, err
	}
	if int64(len(data)) > limit {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return messageType, nil, err
		}
		return messageType, nil, ErrFrameTooLarge
	}
	return messageType, data, nil
}
