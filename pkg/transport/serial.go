package transport

import (
	goserial "go.bug.st/serial.v1"
)

// OpenSerial opens a real serial port and wraps it in a BufStream, the
// concrete Stream implementation a caller reaches for when the vehicle is
// attached over USB/UART rather than a TCP proxy. Mirrors the teacher's own
// serial.Open(portName, mode) shape in internal/serial/drx_parser.go.
func OpenSerial(portName string, baudRate int, readerBuf int) (*BufStream, error) {
	mode := &goserial.Mode{BaudRate: baudRate}
	port, err := goserial.Open(portName, mode)
	if err != nil {
		return nil, &Error{Op: "open " + portName, Cause: err}
	}
	return NewBufStream(port, readerBuf), nil
}
