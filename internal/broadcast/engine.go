// ABOUTME: Broadcast engine pumping capture blocks to every registered client
// ABOUTME: Per-client failures remove that client only and never stall the loop
package broadcast

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/utkarsh-deployes/AirCast/internal/capture"
)

// Engine runs the capture-to-fan-out loop: read one block, snapshot the
// registry, best-effort deliver to every client, repeat. The engine owns
// the capture session and closes it when Run returns.
type Engine struct {
	session  capture.Session
	registry *Registry

	blocks    atomic.Uint64
	overflows atomic.Uint64
}

// NewEngine creates an engine over an open capture session.
func NewEngine(session capture.Session, registry *Registry) *Engine {
	return &Engine{session: session, registry: registry}
}

// Run loops until ctx is cancelled or the capture session fails.
// Cancellation is observed within one block period and returns nil; a
// device read failure is fatal and returned. The session is closed on
// both paths. Blocks are read even with no clients registered so the
// device never overflows waiting on us.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		if err := e.session.Close(); err != nil {
			log.Printf("[AUDIO] Closing capture session: %v", err)
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		block, err := e.session.ReadBlock()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("capture read failed: %w", err)
		}

		if block.Overflow {
			e.overflows.Add(1)
			log.Printf("[AUDIO] Buffer overflow, frames dropped by the device")
		}
		e.blocks.Add(1)

		for _, c := range e.registry.Snapshot() {
			if err := c.Send(block.Data); err != nil {
				e.registry.Remove(c)
				c.Close()
				log.Printf("[WS] Dropping client %s: %v", c.RemoteAddr, err)
			}
		}
	}
}

// BlocksBroadcast returns how many blocks the engine has read so far.
func (e *Engine) BlocksBroadcast() uint64 {
	return e.blocks.Load()
}

// Overflows returns how many device overflows were observed.
func (e *Engine) Overflows() uint64 {
	return e.overflows.Load()
}
