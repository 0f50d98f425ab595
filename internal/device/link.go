// internal/device/link.go
package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crslab/memtest/internal/program"
)

// Link owns the serial connection to the controller.
//
// Each Exchange is a full session: open, handshake, settle, transmit,
// stream, close. The controller resets when the port opens, so sessions
// never outlive one request. The port is exclusively owned: a second
// Exchange while one is in flight fails with ErrPortBusy instead of
// interleaving bytes.
type Link struct {
	cfg  Config
	open OpenFunc
	log  *logrus.Entry

	mu    sync.Mutex
	state atomic.Int32
}

// NewLink creates a link. open must not be nil.
func NewLink(cfg Config, open OpenFunc, log *logrus.Entry) (*Link, error) {
	if open == nil {
		return nil, fmt.Errorf("device: open func required")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("device: address required")
	}
	if cfg.MaxPulseWidth == 0 {
		cfg.MaxPulseWidth = program.DefaultMaxPulseWidth
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Link{cfg: cfg, open: open, log: log}, nil
}

// State reports the lifecycle stage of the exchange in flight.
func (l *Link) State() State {
	return State(l.state.Load())
}

func (l *Link) setState(s State) {
	l.state.Store(int32(s))
}

// Exchange transmits one request and returns the raw response payload
// with keep-alive and terminator bytes stripped.
func (l *Link) Exchange(ctx context.Context, req program.Request) ([]byte, error) {
	if err := req.CheckPulseWidths(l.cfg.MaxPulseWidth); err != nil {
		return nil, err
	}

	if !l.mu.TryLock() {
		return nil, ErrPortBusy
	}
	defer l.mu.Unlock()

	baud := req.Baud
	if baud == 0 {
		baud = l.cfg.Baud
	}

	l.setState(Disconnected)
	port, err := l.open(l.cfg.Address, baud)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPortUnavailable, l.cfg.Address, err)
	}
	defer func() {
		_ = port.Close()
		l.setState(Closed)
	}()

	if err := l.handshake(ctx, port); err != nil {
		return nil, err
	}

	// Let the controller finish its own setup before the frame.
	if err := sleepCtx(ctx, l.cfg.Settle); err != nil {
		return nil, err
	}

	frame := req.Frame()
	if _, err := port.Write(frame); err != nil {
		return nil, fmt.Errorf("device: write frame: %w", err)
	}
	l.log.WithFields(logrus.Fields{
		"program": req.Kind.String(),
		"wl":      req.Wordline,
		"bl":      req.Bitline,
	}).Debug("frame sent")

	return l.stream(ctx, port)
}

// handshake reads single bytes until the controller emits the ready byte.
func (l *Link) handshake(ctx context.Context, port Port) error {
	l.setState(AwaitingHandshake)

	deadline := time.Now().Add(l.cfg.HandshakeTimeout)
	buf := make([]byte, 1)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.cfg.HandshakeTimeout > 0 && time.Now().After(deadline) {
			return fmt.Errorf("%w after %s", ErrHandshakeTimeout, l.cfg.HandshakeTimeout)
		}

		n, err := port.Read(buf)
		if err != nil || n == 0 {
			// Per-read timeout; keep polling until the deadline.
			continue
		}
		if buf[0] == readyByte {
			l.setState(Connected)
			return nil
		}
		// Stale bytes from a previous session; discard.
	}
}

// stream collects response payload until the terminator or a read timeout.
func (l *Link) stream(ctx context.Context, port Port) ([]byte, error) {
	l.setState(Streaming)

	var out []byte
	buf := make([]byte, 1)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := port.Read(buf)
		if err != nil || n == 0 {
			l.log.WithField("collected", len(out)).Warn("read timed out before terminator, ending exchange")
			return out, nil
		}

		switch buf[0] {
		case readyByte:
			// keep-alive
		case endByte:
			return out, nil
		default:
			out = append(out, buf[0])
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
