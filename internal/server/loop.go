package server

import (
	"context"
	"time"

	"github.com/project-flowstate/flowstate/internal/metrics"
	"github.com/project-flowstate/flowstate/internal/protocol"
)

// Event is a deferred mutation of the match, handed over from the I/O
// layer. Events execute on the loop goroutine, so the match is never
// touched concurrently; queue drainage order is preserved.
type Event func(*Match)

// Broadcaster fans the shared snapshot bytes out to every session.
type Broadcaster func(snapshot []byte)

// Run pumps the match in real time: drain pending events, step, broadcast,
// poll end conditions. The deterministic core never reads the clock; all
// pacing lives here.
func Run(ctx context.Context, m *Match, inbox <-chan Event, broadcast Broadcaster) (*protocol.ReplayArtifact, error) {
	ticker := time.NewTicker(time.Second / time.Duration(m.cfg.TickRateHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return m.Finalize(protocol.EndReasonAborted)

		case ev := <-inbox:
			ev(m)

		case <-ticker.C:
			// Apply everything that arrived during the tick interval before
			// stepping, in arrival order.
			for drained := false; !drained; {
				select {
				case ev := <-inbox:
					ev(m)
				default:
					drained = true
				}
			}

			start := time.Now()
			snapshot, err := m.Step()
			if err != nil {
				return nil, err
			}
			metrics.TickDuration.Observe(time.Since(start).Seconds())

			if broadcast != nil {
				broadcast(snapshot)
			}

			switch m.ShouldEndMatch() {
			case EndComplete:
				return m.Finalize(protocol.EndReasonComplete)
			case EndDisconnect:
				return m.Finalize(protocol.EndReasonDisconnect)
			}
		}
	}
}
