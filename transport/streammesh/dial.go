package streammesh

import (
	"fmt"
	"net"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is used when OpenSerial is given a non-positive baud rate.
const DefaultBaudRate = 115200

// DialTCP opens an outbound TCP connection suitable for AddLink.
func DialTCP(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("streammesh: dialing %s: %w", addr, err)
	}
	return conn, nil
}

// ListenTCP opens a listener for inbound neighbor connections. The caller
// is responsible for identifying which neighbor each accepted connection
// belongs to (e.g. by comparing RemoteAddr against the names config) and
// calling AddLink.
func ListenTCP(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("streammesh: listening on %s: %w", addr, err)
	}
	return ln, nil
}

// OpenSerial opens a serial port suitable for AddLink. baud defaults to
// DefaultBaudRate when zero.
func OpenSerial(port string, baud int) (serial.Port, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("streammesh: opening serial port %s: %w", port, err)
	}
	return p, nil
}
