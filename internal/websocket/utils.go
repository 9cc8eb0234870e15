package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Deadlines for the autosave channel. Reads stay generous because a
// taker thinking about a question may not touch an answer for minutes.
const (
	writeWait = 8 * time.Second
	readWait  = 4 * time.Minute
)

// WriteTyped pushes one typed event frame to the client.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError reports a per-message failure without closing the channel.
func WriteError(conn *websocket.Conn, msg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: msg,
	})
}

// ExtendReadDeadline resets the idle cutoff. Call it before each read so
// an active connection never trips the deadline.
func ExtendReadDeadline(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(readWait))
}
