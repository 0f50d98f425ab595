// internal/run/gate.go
package run

import (
	"context"
	"sync"
)

// Gate is the pause point for operator-performed voltage changes.
//
// One Gate belongs to one run; it is never shared across runs, so a
// resume aimed at one run can never release another. The gate arms
// BEFORE the prompt is published, so a Resume racing the start of the
// wait is observed, never lost. Resume and Cancel are idempotent and
// no-ops while the gate is not armed.
type Gate struct {
	mu        sync.Mutex
	awaiting  bool
	cancelled bool
	resumeCh  chan struct{}
	cancelCh  chan struct{}
}

func NewGate() *Gate {
	return &Gate{cancelCh: make(chan struct{})}
}

// arm marks the gate as awaiting. Must precede publishing the prompt.
func (g *Gate) arm() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelled {
		return ErrCancelled
	}
	if !g.awaiting {
		g.awaiting = true
		g.resumeCh = make(chan struct{})
	}
	return nil
}

// wait blocks until the armed gate is resumed or cancelled.
func (g *Gate) wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.resumeCh
	g.mu.Unlock()

	if ch == nil {
		// Resumed (or never armed) before the wait began.
		if g.Cancelled() {
			return ErrCancelled
		}
		return nil
	}

	defer func() {
		g.mu.Lock()
		g.awaiting = false
		g.resumeCh = nil
		g.mu.Unlock()
	}()

	select {
	case <-ch:
		return nil
	case <-g.cancelCh:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks the worker until the operator resumes or cancels.
func (g *Gate) Wait(ctx context.Context) error {
	if err := g.arm(); err != nil {
		return err
	}
	return g.wait(ctx)
}

// Resume releases the armed gate. No-op when the gate is not armed.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.awaiting || g.resumeCh == nil {
		return
	}
	g.awaiting = false
	close(g.resumeCh)
	g.resumeCh = nil
}

// Cancel aborts the run at its next safe point. Idempotent.
func (g *Gate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelled {
		return
	}
	g.cancelled = true
	close(g.cancelCh)
}

// Awaiting reports whether the gate is armed.
func (g *Gate) Awaiting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.awaiting
}

// Cancelled reports whether the gate has been cancelled.
func (g *Gate) Cancelled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelled
}
