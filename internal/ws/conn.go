// internal/ws/conn.go
package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tombala-live/tombala-server/internal/models"
)

// Conn is the core's non-owning view of one live duplex channel. The
// transport handler owns the underlying websocket; the registry only holds
// this handle and drops it when the channel closes.
//
// A connection is bound to exactly one lobby id for its lifetime. User is
// associated lazily, once the first identifying event arrives, and is only
// ever written by the router inside the GameServer critical section.
type Conn struct {
	ID      uuid.UUID
	LobbyID string
	User    *models.User

	out       chan map[string]interface{}
	done      chan struct{}
	closeOnce sync.Once
	logger    *logrus.Logger
}

// NewConn returns a connection handle bound to lobbyID with a buffered
// outbound queue.
func NewConn(lobbyID string, logger *logrus.Logger) *Conn {
	return &Conn{
		ID:      uuid.New(),
		LobbyID: lobbyID,
		out:     make(chan map[string]interface{}, 16),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// Write queues msg for delivery without ever blocking. Sends to a closed
// connection are skipped; a full queue drops the message with a warning, so
// one slow peer cannot stall a broadcast to the rest of the lobby.
func (c *Conn) Write(msg map[string]interface{}) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.out <- msg:
	default:
		msgType, _ := msg["type"].(string)
		c.logger.WithFields(logrus.Fields{
			"conn":  c.ID,
			"lobby": c.LobbyID,
			"event": msgType,
		}).Warn("outbound queue full, dropping event")
	}
}

// WriteError queues a unicast error event with a human-readable reason.
func (c *Conn) WriteError(message string) {
	c.Write(map[string]interface{}{
		"type":    models.EventError,
		"message": message,
	})
}

// Out exposes the outbound queue to the transport write pump.
func (c *Conn) Out() <-chan map[string]interface{} {
	return c.out
}

// Close marks the connection's send-state closed. Idempotent; queued events
// not yet flushed by the write pump are discarded.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the connection is no longer writable.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Closed reports whether the connection's send-state is closed.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
