package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write; a stalled client must not hold
	// the session goroutine.
	writeWait = 10 * time.Second

	// readWait is the idle limit between frames. The exam client pings on a
	// keepalive interval well inside this, so an expired deadline means the
	// student is genuinely gone and the socket can close.
	readWait = 5 * time.Minute
)

// DecodeJSON decodes a raw frame into v. The stream reads each frame once
// as raw bytes, peeks the action envelope and then decodes the same bytes
// into the concrete request type.
func DecodeJSON(raw []byte, v interface{}) error {
	return json.Unmarshal(raw, v)
}

// WriteTyped sends one typed response frame under the write deadline.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends an error event frame.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadRaw reads one raw frame under the idle deadline. The caller decodes
// it with DecodeJSON once the action is known.
func ReadRaw(conn *websocket.Conn) ([]byte, error) {
	conn.SetReadDeadline(time.Now().Add(readWait))
	_, raw, err := conn.ReadMessage()
	return raw, err
}
