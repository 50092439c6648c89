// internal/handlers/router.go
package handlers

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/tombala-live/tombala-server/internal/game"
	"github.com/tombala-live/tombala-server/internal/lobby"
	"github.com/tombala-live/tombala-server/internal/models"
	"github.com/tombala-live/tombala-server/internal/ws"
)

// HandleMessage validates one decoded inbound event against current lobby
// state, applies it, and emits the resulting events. All state access runs
// under the GameServer mutex; outbound sends are fire-and-forget.
//
// Precondition failures answer the originating connection with a unicast
// error event and mutate nothing. Unknown event types are logged and
// dropped without closing the connection.
func (s *GameServer) HandleMessage(conn *ws.Conn, msg *models.Inbound) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Bind the caller's identity to the channel on the first identifying
	// event. drawNumber carries no user field, so owner checks rely on this.
	if msg.User != nil {
		conn.User = msg.User
	}

	switch msg.Type {
	case models.EventPing:
		s.handlePing(conn, msg)
	case models.EventCreateLobby:
		s.handleCreateLobby(conn, msg)
	case models.EventJoin:
		s.handleJoin(conn, msg)
	case models.EventDeleteLobby:
		s.handleDeleteLobby(conn, msg)
	case models.EventPlayerReady:
		s.handlePlayerReady(conn, msg)
	case models.EventPlayerUnready:
		s.handlePlayerUnready(msg)
	case models.EventDrawNumber:
		s.handleDrawNumber(conn, msg)
	case models.EventAnnounceWin:
		s.handleAnnounceWin(conn, msg)
	default:
		s.logger.WithFields(logrus.Fields{
			"lobby": conn.LobbyID,
			"event": msg.Type,
		}).Warn("unknown event type, dropping")
	}
}

// handlePing refreshes the owner heartbeat. A ping from anyone but the
// owner, or for a lobby that no longer exists, is a silent no-op.
func (s *GameServer) handlePing(conn *ws.Conn, msg *models.Inbound) {
	if msg.User == nil {
		return
	}
	s.Lobbies.TouchOwnerHeartbeat(conn.LobbyID, msg.User.ID)
}

// handleCreateLobby creates a lobby under the connection's binding path
// segment, so a caller can never claim an id for a channel they did not
// open.
func (s *GameServer) handleCreateLobby(conn *ws.Conn, msg *models.Inbound) {
	if msg.User == nil {
		conn.WriteError("createLobby requires a user")
		return
	}

	lob, err := s.Lobbies.Create(conn.LobbyID, msg.User, lobby.Config{
		Type:      msg.LobbyType,
		IsPrivate: msg.IsPrivate,
		Password:  msg.Password,
		StartDate: msg.EventStartDate,
		EndDate:   msg.EventEndDate,
		GameID:    msg.GameID,
	})
	if err != nil {
		conn.WriteError(err.Error())
		return
	}
	s.Draws.Init(lob.ID)

	s.logger.WithFields(logrus.Fields{
		"lobby": lob.ID,
		"owner": lob.Owner.ID,
	}).Info("lobby created")

	conn.Write(map[string]interface{}{
		"type":  models.EventLobbyCreated,
		"lobby": lob.Snapshot(),
	})
	s.Registry.BroadcastToAll(s.catalogPayload())
	s.record(lob.ID, models.EventLobbyCreated, lob.Owner, map[string]interface{}{"gameId": lob.GameID})
}

func (s *GameServer) handleJoin(conn *ws.Conn, msg *models.Inbound) {
	if msg.User == nil {
		conn.WriteError("join requires a user")
		return
	}

	lob, err := s.Lobbies.Join(msg.LobbyID, msg.User, msg.Password)
	switch {
	case errors.Is(err, lobby.ErrNotFound):
		conn.WriteError("lobby not found")
		return
	case errors.Is(err, lobby.ErrBadPassword):
		conn.WriteError("wrong password")
		return
	case err != nil:
		conn.WriteError(err.Error())
		return
	}

	conn.Write(map[string]interface{}{
		"type":  models.EventLobbyJoinConfirmed,
		"lobby": lob.Snapshot(),
	})
	s.record(lob.ID, models.EventJoin, msg.User, nil)
}

func (s *GameServer) handleDeleteLobby(conn *ws.Conn, msg *models.Inbound) {
	if msg.User == nil {
		conn.WriteError("deleteLobby requires a user")
		return
	}

	err := s.Lobbies.Delete(msg.LobbyID, msg.User.ID)
	switch {
	case errors.Is(err, lobby.ErrNotFound):
		conn.WriteError("lobby not found")
		return
	case errors.Is(err, lobby.ErrForbidden):
		conn.WriteError("only the lobby owner can delete it")
		return
	case err != nil:
		conn.WriteError(err.Error())
		return
	}

	// Draw and readiness state go with the lobby, inside the same critical
	// section, so a queued drawNumber for this id can only see NotFound.
	s.Draws.Discard(msg.LobbyID)
	s.Ready.Discard(msg.LobbyID)

	s.logger.WithField("lobby", msg.LobbyID).Info("lobby deleted by owner")
	s.Registry.BroadcastToAll(s.catalogPayload())
	s.record(msg.LobbyID, models.EventLobbyDeleted, msg.User, nil)
}

// handlePlayerReady marks the player ready and, exactly on the transition to
// full readiness, broadcasts start_game to the lobby. Repeated ready events
// after quorum never re-trigger the broadcast; a late join resets the
// transition edge because quorum is recomputed from the current member list.
func (s *GameServer) handlePlayerReady(conn *ws.Conn, msg *models.Inbound) {
	if msg.User == nil {
		conn.WriteError("playerReady requires a user")
		return
	}
	lob, ok := s.Lobbies.Get(msg.LobbyID)
	if !ok {
		conn.WriteError("lobby not found")
		return
	}

	wasReached := s.Ready.QuorumReached(lob)
	s.Ready.MarkReady(lob.ID, msg.User.ID)
	if !wasReached && s.Ready.QuorumReached(lob) {
		s.logger.WithField("lobby", lob.ID).Info("all players ready, starting game")
		s.Registry.BroadcastToLobby(lob.ID, map[string]interface{}{
			"type":    models.EventStartGame,
			"lobbyId": lob.ID,
			"gameId":  lob.GameID,
		})
	}
}

func (s *GameServer) handlePlayerUnready(msg *models.Inbound) {
	if msg.User == nil {
		return
	}
	s.Ready.MarkUnready(msg.LobbyID, msg.User.ID)
}

// handleDrawNumber draws the next number for the lobby. Only the owner may
// draw; the requester's identity is the one bound to the connection, since
// the event itself carries no user. An exhausted pool is a quiet terminal
// state: no broadcast, no error.
func (s *GameServer) handleDrawNumber(conn *ws.Conn, msg *models.Inbound) {
	lob, ok := s.Lobbies.Get(msg.LobbyID)
	if !ok {
		conn.WriteError("lobby not found")
		return
	}
	if conn.User == nil || conn.User.ID != lob.Owner.ID {
		conn.WriteError("only the lobby owner can draw numbers")
		return
	}

	number, err := s.Draws.DrawNext(lob.ID)
	switch {
	case errors.Is(err, game.ErrExhausted):
		s.logger.WithField("lobby", lob.ID).Debug("draw pool exhausted")
		return
	case errors.Is(err, game.ErrUnknownLobby):
		conn.WriteError("lobby not found")
		return
	case err != nil:
		conn.WriteError(err.Error())
		return
	}

	s.Registry.BroadcastToLobby(lob.ID, map[string]interface{}{
		"type":    models.EventNewNumber,
		"number":  number,
		"lobbyId": lob.ID,
	})
	s.record(lob.ID, models.EventNewNumber, conn.User, map[string]interface{}{"number": number})
}

// handleAnnounceWin relays a win claim to the lobby. The server does not
// verify boards; announcements are informational. A tombala ends the game,
// cinko1/cinko2 are intermediate milestones.
func (s *GameServer) handleAnnounceWin(conn *ws.Conn, msg *models.Inbound) {
	if msg.User == nil {
		return
	}

	switch msg.Step {
	case models.StepTombala:
		s.Registry.BroadcastToLobby(msg.LobbyID, map[string]interface{}{
			"type":    models.EventGameOver,
			"lobbyId": msg.LobbyID,
			"winner":  msg.User.Clone(),
		})
		s.record(msg.LobbyID, models.EventGameOver, msg.User, nil)
	case models.StepCinko1, models.StepCinko2:
		s.Registry.BroadcastToLobby(msg.LobbyID, map[string]interface{}{
			"type": models.EventPlayerAnnouncement,
			"step": msg.Step,
			"user": msg.User.Clone(),
		})
		s.record(msg.LobbyID, models.EventPlayerAnnouncement, msg.User, map[string]interface{}{"step": msg.Step})
	default:
		s.logger.WithFields(logrus.Fields{
			"lobby": msg.LobbyID,
			"step":  msg.Step,
		}).Warn("unknown win step, dropping")
	}
}
