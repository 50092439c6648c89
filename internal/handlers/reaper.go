// internal/handlers/reaper.go
package handlers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Reaper periodically evicts lobbies whose owner has stopped heartbeating
// and republishes the lobby catalog to every connection. Each sweep runs
// under the GameServer mutex, so a reap can never race an owner-initiated
// delete or a join for the same lobby.
type Reaper struct {
	server    *GameServer
	logger    *logrus.Logger
	interval  time.Duration
	threshold time.Duration
}

// NewReaper builds a reaper sweeping every interval, evicting lobbies whose
// owner has been silent longer than threshold.
func NewReaper(server *GameServer, logger *logrus.Logger, interval, threshold time.Duration) *Reaper {
	return &Reaper{
		server:    server,
		logger:    logger,
		interval:  interval,
		threshold: threshold,
	}
}

// Run ticks until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.WithFields(logrus.Fields{
		"interval":  r.interval,
		"threshold": r.threshold,
	}).Info("reaper started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			if evicted := r.server.ReapInactive(r.threshold); len(evicted) > 0 {
				r.logger.WithField("evicted", evicted).Info("reaped inactive lobbies")
			}
		}
	}
}
