// internal/device/device.go
package device

import (
	"errors"
	"io"
	"time"
)

// Port is a raw byte channel to the controller. Read returns an error
// once the transport's read timeout elapses with no byte available.
type Port interface {
	io.ReadWriteCloser
}

// OpenFunc opens the transport for one exchange.
// Production wiring uses serialport.Opener; tests substitute fakes.
type OpenFunc func(address string, baud int) (Port, error)

// State is the connection lifecycle of one exchange.
type State int32

const (
	Disconnected State = iota
	AwaitingHandshake
	Connected
	Streaming
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case AwaitingHandshake:
		return "awaiting-handshake"
	case Connected:
		return "connected"
	case Streaming:
		return "streaming"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrPortUnavailable means the serial device could not be opened.
	ErrPortUnavailable = errors.New("device: port unavailable")

	// ErrHandshakeTimeout means the controller never announced readiness.
	ErrHandshakeTimeout = errors.New("device: handshake timeout")

	// ErrPortBusy means another run currently owns the port.
	ErrPortBusy = errors.New("device: port busy")
)

// Protocol bytes. The controller spams readyByte until it sees the
// command frame, sends readyByte as keep-alive while working, and ends
// every exchange with endByte.
const (
	readyByte = 'A'
	endByte   = 'Z'
)

// Config is the transport config for one Link.
type Config struct {
	Address string
	Baud    int

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	Settle           time.Duration

	MaxPulseWidth uint8
}
