package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// readWait bounds the silence between client frames, pongs included.
	readWait     = 5 * time.Minute
	maxFrameSize = 4 << 10
)

// Prepare limits inbound frames and extends the read deadline whenever the
// peer answers a control ping.
func Prepare(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})
}

// WriteEvent sends one proctor event.
func WriteEvent(conn *websocket.Conn, ev ProctorEvent) error {
	return writeJSON(conn, ev)
}

// WritePong answers an application-level ping.
func WritePong(conn *websocket.Conn) error {
	return writeJSON(conn, PongResponse{Event: EventPong})
}

// WriteError tells the proctor why the feed is ending.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return writeJSON(conn, ErrorResponse{Event: EventError, Error: errMsg})
}

// WriteAction sends a client action such as ActionPing.
func WriteAction(conn *websocket.Conn, a Action) error {
	return writeJSON(conn, RequestEnvelope{Action: a})
}

// ReadAction blocks for the next client action.
func ReadAction(conn *websocket.Conn) (Action, error) {
	var env RequestEnvelope
	conn.SetReadDeadline(time.Now().Add(readWait))
	if err := conn.ReadJSON(&env); err != nil {
		return "", err
	}
	return env.Action, nil
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
