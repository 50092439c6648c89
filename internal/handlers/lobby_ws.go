// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tombala-live/tombala-server/internal/middleware"
	"github.com/tombala-live/tombala-server/internal/models"
	"github.com/tombala-live/tombala-server/internal/ws"
)

// LobbyWSHandler upgrades a connection request on /lobby/{lobbyId}, binds the
// resulting channel to that lobby id for its lifetime, and runs the read and
// write pumps. Requests whose path does not resolve to a lobby id are
// rejected at handshake time.
func LobbyWSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		lobbyID := strings.TrimPrefix(r.URL.Path, "/lobby/")
		if lobbyID == "" || lobbyID == r.URL.Path || strings.Contains(lobbyID, "/") {
			http.Error(w, "missing lobby id", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		conn := ws.NewConn(lobbyID, logger)
		gs.Registry.Register(lobbyID, conn)
		middleware.LogWebSocketConnect(logger, remoteAddr, lobbyID)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go writePump(ctx, c, conn, logger)

		readErr := readPump(ctx, c, gs, conn, logger)

		// The registry drops its reference no matter how the channel went
		// away: remote close, error, or timeout.
		conn.Close()
		gs.Registry.Unregister(lobbyID, conn)
		middleware.LogWebSocketDisconnect(logger, remoteAddr, lobbyID, readErr)
	}
}

// readPump decodes each inbound frame and feeds it through the router.
// Malformed JSON is logged and dropped without closing the connection.
func readPump(ctx context.Context, c *websocket.Conn, gs *GameServer, conn *ws.Conn, logger *logrus.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		typ, data, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			return err
		}

		if typ != websocket.MessageText {
			logger.WithField("lobby", conn.LobbyID).Warnf("non-text message type %d, ignoring", typ)
			continue
		}

		var msg models.Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.WithFields(logrus.Fields{
				"lobby": conn.LobbyID,
				"conn":  conn.ID,
			}).Warnf("invalid json, dropping message: %v", err)
			continue
		}

		gs.HandleMessage(conn, &msg)
	}
}

// writePump drains the connection's outbound queue onto the websocket and
// keeps the peer alive with periodic pings. A failed write or ping means the
// peer is gone; the pump exits and leaves cleanup to the handler.
func writePump(ctx context.Context, c *websocket.Conn, conn *ws.Conn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case msg := <-conn.Out():
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("failed to marshal outgoing msg for conn %v: %v", conn.ID, err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("failed to write to websocket for conn %v: %v", conn.ID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("failed to ping conn %v: %v, assuming disconnect", conn.ID, err)
				return
			}
		}
	}
}
