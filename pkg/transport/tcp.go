package transport

import (
	"net"
	"time"
)

// DialTCP connects to a TCP MAVLink proxy (SITL, mavlink-router, a radio
// bridge) and wraps the connection in a BufStream, the TCP counterpart to
// OpenSerial. Unlike the teacher's transport.StartListener this performs a
// single dial with no reconnect loop: a Connection from mavlink.Open owns exactly one
// Stream for its lifetime, per spec.md §5, so reconnection is the caller's
// responsibility (open a new Stream and a new Connection).
func DialTCP(addr string, readerBuf int) (*BufStream, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, &Error{Op: "dial " + addr, Cause: err}
	}
	return NewBufStream(conn, readerBuf), nil
}
