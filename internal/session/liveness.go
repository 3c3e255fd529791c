package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pairpad/internal/metrics"
)

// Monitor evicts connections that stop pinging. It is a fail-safe against
// half-open network connections; the server never initiates pings, it only
// answers them. A stale connection gets the same treatment as a client
// disconnect, producing exactly one user-left broadcast.
type Monitor struct {
	hub      *Hub
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

func NewMonitor(hub *Hub, registry *Registry, interval, timeout time.Duration, log *zap.Logger) *Monitor {
	return &Monitor{
		hub:      hub,
		registry: registry,
		interval: interval,
		timeout:  timeout,
		log:      log,
	}
}

// Run sweeps at the configured interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// Sweep force-closes every connection silent past the timeout.
func (m *Monitor) Sweep(now time.Time) {
	for sessionID, clients := range m.registry.stale(m.timeout, now) {
		for _, c := range clients {
			m.log.Info("evicting stale connection",
				zap.String("sessionId", sessionID),
				zap.String("participantId", c.ParticipantID()),
				zap.Time("lastPing", c.LastPing()))
			metrics.StaleEvictions.Inc()
			m.hub.Disconnect(sessionID, c)
			c.Close()
		}
	}
}
