// internal/handlers/game_server.go
package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tombala-live/tombala-server/internal/game"
	"github.com/tombala-live/tombala-server/internal/history"
	"github.com/tombala-live/tombala-server/internal/lobby"
	"github.com/tombala-live/tombala-server/internal/models"
	"github.com/tombala-live/tombala-server/internal/ws"
)

// GameServer owns all shared lobby state: the lobby table, the per-lobby
// draw and readiness state, and the connection registry.
//
// Every mutation of game state, inbound event handling and the reaper sweep
// alike, runs under the single mu, so no two operations on the same lobby can
// interleave. The registry is the one exception: its sends are
// non-blocking channel pushes, so broadcasts never stall the critical
// section and a dead peer cannot hold up the rest of a lobby.
type GameServer struct {
	mu     sync.Mutex
	logger *logrus.Logger

	Lobbies  *lobby.Store
	Draws    *game.DrawEngine
	Ready    *game.ReadyTracker
	Registry *ws.Registry
}

func NewGameServer(logger *logrus.Logger) *GameServer {
	return &GameServer{
		logger:   logger,
		Lobbies:  lobby.NewStore(),
		Draws:    game.NewDrawEngine(),
		Ready:    game.NewReadyTracker(),
		Registry: ws.NewRegistry(),
	}
}

// ReapInactive evicts every lobby whose owner has been silent longer than
// threshold, discards its draw and readiness state in the same critical
// section, and pushes the refreshed catalog to every connection. The catalog
// broadcast goes out on every tick whether or not anything was evicted; it
// is the only way clients learn of server-initiated deletions.
func (s *GameServer) ReapInactive(threshold time.Duration) []string {
	s.mu.Lock()
	evicted := s.Lobbies.SweepInactiveOwners(time.Now(), threshold)
	for _, id := range evicted {
		s.Draws.Discard(id)
		s.Ready.Discard(id)
		s.logger.WithField("lobby", id).Info("owner inactive, lobby reaped")
	}
	catalog := s.catalogPayload()
	s.mu.Unlock()

	s.Registry.BroadcastToAll(catalog)
	for _, id := range evicted {
		s.record(id, models.EventLobbyReaped, nil, nil)
	}
	return evicted
}

// ListLobbies snapshots the live lobby catalog. The returned lobbies are deep
// copies; callers may serialize them without holding mu.
func (s *GameServer) ListLobbies() []*models.Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLobbies()
}

// snapshotLobbies deep-copies the catalog. Callers hold mu.
func (s *GameServer) snapshotLobbies() []*models.Lobby {
	live := s.Lobbies.List()
	out := make([]*models.Lobby, len(live))
	for i, lob := range live {
		out[i] = lob.Snapshot()
	}
	return out
}

// catalogPayload builds the allLobbies event from snapshots. Callers hold mu.
func (s *GameServer) catalogPayload() map[string]interface{} {
	return map[string]interface{}{
		"type":    models.EventAllLobbies,
		"lobbies": s.snapshotLobbies(),
	}
}

// record archives an event to the history queue, best-effort and off the
// event-handling path. The actor is cloned before the publishing goroutine
// starts, so the marshal never reads a live identity. Archiving failures are
// logged and never surfaced.
func (s *GameServer) record(lobbyID, eventType string, actor *models.User, payload map[string]interface{}) {
	if !history.Enabled() {
		return
	}
	actor = actor.Clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		err := history.Publish(ctx, history.Record{
			LobbyID:   lobbyID,
			EventType: eventType,
			Actor:     actor,
			Payload:   payload,
		})
		if err != nil {
			s.logger.WithError(err).WithField("lobby", lobbyID).Warn("failed to publish history record")
		}
	}()
}
