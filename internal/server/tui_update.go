// ABOUTME: TUI update helpers for the server
// ABOUTME: Builds status snapshots from the registry and engine counters
package server

import (
	"context"
	"time"
)

// initialStatus is what the TUI shows before the first update.
func (s *Server) initialStatus() Status {
	return Status{
		Name:   s.config.Name,
		Device: s.config.DeviceName,
		Format: s.config.Format,
	}
}

// updateTUI pushes the current server state to the TUI, if one is running.
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}

	snapshot := s.registry.Snapshot()
	clients := make([]string, 0, len(snapshot))
	for _, c := range snapshot {
		clients = append(clients, c.RemoteAddr)
	}

	s.tui.Update(Status{
		Name:      s.config.Name,
		Device:    s.config.DeviceName,
		Format:    s.config.Format,
		Blocks:    s.engine.BlocksBroadcast(),
		Overflows: s.engine.Overflows(),
		Clients:   clients,
	})
}

// startStatusUpdates refreshes the TUI once a second so the block and
// overflow counters stay live between connect/disconnect events.
func (s *Server) startStatusUpdates(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.updateTUI()
			}
		}
	}()
}
