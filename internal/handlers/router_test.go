// internal/handlers/router_test.go
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombala-live/tombala-server/internal/models"
	"github.com/tombala-live/tombala-server/internal/ws"
)

func testServer() *GameServer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewGameServer(logger)
}

// connect simulates the transport handing the core a channel bound to a
// lobby id.
func connect(gs *GameServer, lobbyID string) *ws.Conn {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	conn := ws.NewConn(lobbyID, logger)
	gs.Registry.Register(lobbyID, conn)
	return conn
}

func drain(c *ws.Conn) []map[string]interface{} {
	var out []map[string]interface{}
	for {
		select {
		case msg := <-c.Out():
			out = append(out, msg)
		default:
			return out
		}
	}
}

func eventsOfType(events []map[string]interface{}, typ string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, ev := range events {
		if ev["type"] == typ {
			out = append(out, ev)
		}
	}
	return out
}

func userA() *models.User {
	return &models.User{ID: "user-a", Email: "a@example.com", Username: "A"}
}

func userB() *models.User {
	return &models.User{ID: "user-b", Email: "b@example.com", Username: "B"}
}

func createLobby(gs *GameServer, conn *ws.Conn, u *models.User, gameID string) {
	gs.HandleMessage(conn, &models.Inbound{
		Type:   models.EventCreateLobby,
		User:   u,
		GameID: gameID,
	})
}

func TestCreateLobbyBroadcastsCatalog(t *testing.T) {
	gs := testServer()
	connA := connect(gs, "L1")
	watcher := connect(gs, "other")

	createLobby(gs, connA, userA(), "tombala-classic")

	events := drain(connA)
	created := eventsOfType(events, models.EventLobbyCreated)
	require.Len(t, created, 1)
	lob := created[0]["lobby"].(*models.Lobby)
	assert.Equal(t, "L1", lob.ID)
	require.Len(t, lob.Members, 1)
	assert.Equal(t, "user-a", lob.Members[0].ID)

	// The catalog update reaches every connection, not just the lobby.
	require.Len(t, eventsOfType(events, models.EventAllLobbies), 1)
	watcherEvents := drain(watcher)
	all := eventsOfType(watcherEvents, models.EventAllLobbies)
	require.Len(t, all, 1)
	lobbies := all[0]["lobbies"].([]*models.Lobby)
	require.Len(t, lobbies, 1)
	assert.Equal(t, "L1", lobbies[0].ID)
}

func TestCreateLobbyTwiceBySameOwnerFails(t *testing.T) {
	gs := testServer()
	connA := connect(gs, "L1")
	createLobby(gs, connA, userA(), "g")
	drain(connA)

	connA2 := connect(gs, "L2")
	createLobby(gs, connA2, userA(), "g")

	events := drain(connA2)
	require.Len(t, eventsOfType(events, models.EventError), 1)
	assert.Empty(t, eventsOfType(events, models.EventLobbyCreated))
	_, ok := gs.Lobbies.Get("L2")
	assert.False(t, ok)
}

func TestJoinConfirmedPerCaller(t *testing.T) {
	gs := testServer()
	connA := connect(gs, "L1")
	connB := connect(gs, "L1")
	createLobby(gs, connA, userA(), "g")
	drain(connA)
	drain(connB)

	gs.HandleMessage(connB, &models.Inbound{Type: models.EventJoin, LobbyID: "L1", User: userB()})
	gs.HandleMessage(connA, &models.Inbound{Type: models.EventJoin, LobbyID: "L1", User: userA()})

	// Each joiner gets their own confirmation.
	confB := eventsOfType(drain(connB), models.EventLobbyJoinConfirmed)
	require.Len(t, confB, 1)
	confA := eventsOfType(drain(connA), models.EventLobbyJoinConfirmed)
	require.Len(t, confA, 1)

	lob, _ := gs.Lobbies.Get("L1")
	require.Len(t, lob.Members, 2)
	assert.Equal(t, "user-a", lob.Members[0].ID)
	assert.Equal(t, "user-b", lob.Members[1].ID)
}

func TestJoinWrongPassword(t *testing.T) {
	gs := testServer()
	connA := connect(gs, "P1")
	gs.HandleMessage(connA, &models.Inbound{
		Type:      models.EventCreateLobby,
		User:      userA(),
		IsPrivate: true,
		Password:  "sekrit",
	})
	drain(connA)

	connB := connect(gs, "P1")
	gs.HandleMessage(connB, &models.Inbound{Type: models.EventJoin, LobbyID: "P1", User: userB(), Password: "nope"})

	events := drain(connB)
	require.Len(t, eventsOfType(events, models.EventError), 1)
	assert.Empty(t, eventsOfType(events, models.EventLobbyJoinConfirmed))
	lob, _ := gs.Lobbies.Get("P1")
	assert.Len(t, lob.Members, 1)
}

func TestQuorumTriggersStartGameExactlyOnce(t *testing.T) {
	gs := testServer()
	connA := connect(gs, "L1")
	connB := connect(gs, "L1")
	createLobby(gs, connA, userA(), "tombala-classic")
	gs.HandleMessage(connB, &models.Inbound{Type: models.EventJoin, LobbyID: "L1", User: userB()})
	drain(connA)
	drain(connB)

	gs.HandleMessage(connA, &models.Inbound{Type: models.EventPlayerReady, LobbyID: "L1", User: userA()})
	assert.Empty(t, eventsOfType(drain(connA), models.EventStartGame))

	gs.HandleMessage(connB, &models.Inbound{Type: models.EventPlayerReady, LobbyID: "L1", User: userB()})

	startA := eventsOfType(drain(connA), models.EventStartGame)
	startB := eventsOfType(drain(connB), models.EventStartGame)
	require.Len(t, startA, 1)
	require.Len(t, startB, 1)
	assert.Equal(t, "L1", startA[0]["lobbyId"])
	assert.Equal(t, "tombala-classic", startA[0]["gameId"])

	// A repeated ready after quorum never re-triggers the broadcast.
	gs.HandleMessage(connA, &models.Inbound{Type: models.EventPlayerReady, LobbyID: "L1", User: userA()})
	assert.Empty(t, eventsOfType(drain(connA), models.EventStartGame))
	assert.Empty(t, eventsOfType(drain(connB), models.EventStartGame))
}

func TestLateJoinRearmsQuorum(t *testing.T) {
	gs := testServer()
	connA := connect(gs, "L1")
	connB := connect(gs, "L1")
	createLobby(gs, connA, userA(), "g")
	gs.HandleMessage(connB, &models.Inbound{Type: models.EventJoin, LobbyID: "L1", User: userB()})
	gs.HandleMessage(connA, &models.Inbound{Type: models.EventPlayerReady, LobbyID: "L1", User: userA()})
	gs.HandleMessage(connB, &models.Inbound{Type: models.EventPlayerReady, LobbyID: "L1", User: userB()})
	drain(connA)
	drain(connB)

	connC := connect(gs, "L1")
	c := &models.User{ID: "user-c", Email: "c@example.com"}
	gs.HandleMessage(connC, &models.Inbound{Type: models.EventJoin, LobbyID: "L1", User: c})
	drain(connC)

	// Quorum transitions again once the newcomer is ready.
	gs.HandleMessage(connC, &models.Inbound{Type: models.EventPlayerReady, LobbyID: "L1", User: c})
	require.Len(t, eventsOfType(drain(connA), models.EventStartGame), 1)
	require.Len(t, eventsOfType(drain(connC), models.EventStartGame), 1)
}

func TestDrawNumberOwnerOnly(t *testing.T) {
	gs := testServer()
	connA := connect(gs, "L1")
	connB := connect(gs, "L1")
	createLobby(gs, connA, userA(), "g")
	gs.HandleMessage(connB, &models.Inbound{Type: models.EventJoin, LobbyID: "L1", User: userB()})
	drain(connA)
	drain(connB)

	// Non-owner identity bound to connB.
	gs.HandleMessage(connB, &models.Inbound{Type: models.EventDrawNumber, LobbyID: "L1"})
	require.Len(t, eventsOfType(drain(connB), models.EventError), 1)

	// A connection that never identified itself cannot draw either.
	anon := connect(gs, "L1")
	gs.HandleMessage(anon, &models.Inbound{Type: models.EventDrawNumber, LobbyID: "L1"})
	require.Len(t, eventsOfType(drain(anon), models.EventError), 1)

	gs.HandleMessage(connA, &models.Inbound{Type: models.EventDrawNumber, LobbyID: "L1"})
	newNumsA := eventsOfType(drain(connA), models.EventNewNumber)
	newNumsB := eventsOfType(drain(connB), models.EventNewNumber)
	require.Len(t, newNumsA, 1)
	require.Len(t, newNumsB, 1)
	n := newNumsA[0]["number"].(int)
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, 90)
}

func TestExhaustedDrawIsSilent(t *testing.T) {
	gs := testServer()
	connA := connect(gs, "L1")
	createLobby(gs, connA, userA(), "g")
	drain(connA)

	seen := make(map[int]bool)
	for i := 0; i < 90; i++ {
		gs.HandleMessage(connA, &models.Inbound{Type: models.EventDrawNumber, LobbyID: "L1"})
		nums := eventsOfType(drain(connA), models.EventNewNumber)
		require.Len(t, nums, 1)
		seen[nums[0]["number"].(int)] = true
	}
	assert.Len(t, seen, 90)

	// The 91st draw produces neither a broadcast nor an error.
	gs.HandleMessage(connA, &models.Inbound{Type: models.EventDrawNumber, LobbyID: "L1"})
	assert.Empty(t, drain(connA))
}

func TestDeleteLobbyAuthorization(t *testing.T) {
	gs := testServer()
	connA := connect(gs, "L1")
	connB := connect(gs, "L1")
	createLobby(gs, connA, userA(), "g")
	gs.HandleMessage(connB, &models.Inbound{Type: models.EventJoin, LobbyID: "L1", User: userB()})
	drain(connA)
	drain(connB)

	gs.HandleMessage(connB, &models.Inbound{Type: models.EventDeleteLobby, LobbyID: "L1", User: userB()})
	require.Len(t, eventsOfType(drain(connB), models.EventError), 1)
	_, ok := gs.Lobbies.Get("L1")
	assert.True(t, ok)

	gs.HandleMessage(connA, &models.Inbound{Type: models.EventDeleteLobby, LobbyID: "L1", User: userA()})
	all := eventsOfType(drain(connA), models.EventAllLobbies)
	require.Len(t, all, 1)
	assert.Empty(t, all[0]["lobbies"].([]*models.Lobby))

	// Draw and readiness state went with the lobby.
	gs.HandleMessage(connA, &models.Inbound{Type: models.EventDrawNumber, LobbyID: "L1"})
	errs := eventsOfType(drain(connA), models.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "lobby not found", errs[0]["message"])
}

func TestPingTouchesOwnerHeartbeatOnly(t *testing.T) {
	gs := testServer()
	connA := connect(gs, "L1")
	connB := connect(gs, "L1")
	createLobby(gs, connA, userA(), "g")
	drain(connA)
	drain(connB)

	lob, _ := gs.Lobbies.Get("L1")
	lob.OwnerLastActive = lob.OwnerLastActive.Add(-time.Minute)
	prev := lob.OwnerLastActive

	gs.HandleMessage(connB, &models.Inbound{Type: models.EventPing, User: userB()})
	assert.Equal(t, prev, lob.OwnerLastActive)
	assert.Empty(t, drain(connB))

	gs.HandleMessage(connA, &models.Inbound{Type: models.EventPing, User: userA()})
	assert.True(t, lob.OwnerLastActive.After(prev))
}

func TestAnnounceWin(t *testing.T) {
	gs := testServer()
	connA := connect(gs, "L1")
	connB := connect(gs, "L1")
	createLobby(gs, connA, userA(), "g")
	gs.HandleMessage(connB, &models.Inbound{Type: models.EventJoin, LobbyID: "L1", User: userB()})
	drain(connA)
	drain(connB)

	gs.HandleMessage(connB, &models.Inbound{Type: models.EventAnnounceWin, LobbyID: "L1", User: userB(), Step: models.StepCinko1})
	ann := eventsOfType(drain(connA), models.EventPlayerAnnouncement)
	require.Len(t, ann, 1)
	assert.Equal(t, models.StepCinko1, ann[0]["step"])

	gs.HandleMessage(connB, &models.Inbound{Type: models.EventAnnounceWin, LobbyID: "L1", User: userB(), Step: models.StepTombala})
	over := eventsOfType(drain(connA), models.EventGameOver)
	require.Len(t, over, 1)
	winner := over[0]["winner"].(*models.User)
	assert.Equal(t, "user-b", winner.ID)
}

func TestUnknownEventTypeIsDropped(t *testing.T) {
	gs := testServer()
	conn := connect(gs, "L1")
	gs.HandleMessage(conn, &models.Inbound{Type: "chat", User: userA()})
	assert.Empty(t, drain(conn))
}

func TestReapEvictsStaleLobbies(t *testing.T) {
	gs := testServer()
	connA := connect(gs, "L1")
	watcher := connect(gs, "other")
	createLobby(gs, connA, userA(), "g")
	drain(connA)
	drain(watcher)

	lob, _ := gs.Lobbies.Get("L1")
	lob.OwnerLastActive = time.Now().Add(-2 * time.Minute)

	evicted := gs.ReapInactive(time.Minute)
	assert.Equal(t, []string{"L1"}, evicted)

	// Everyone learns of the deletion through the catalog broadcast.
	all := eventsOfType(drain(watcher), models.EventAllLobbies)
	require.Len(t, all, 1)
	assert.Empty(t, all[0]["lobbies"].([]*models.Lobby))

	// Queued draws for the reaped lobby now fail cleanly.
	gs.HandleMessage(connA, &models.Inbound{Type: models.EventDrawNumber, LobbyID: "L1"})
	require.Len(t, eventsOfType(drain(connA), models.EventError), 1)
}

func TestQueuedPayloadsAreSnapshotsOfLobbyState(t *testing.T) {
	gs := testServer()
	connA := connect(gs, "L1")
	connB := connect(gs, "L1")
	watcher := connect(gs, "other")
	createLobby(gs, connA, userA(), "g")

	created := eventsOfType(drain(connA), models.EventLobbyCreated)
	require.Len(t, created, 1)
	all := eventsOfType(drain(watcher), models.EventAllLobbies)
	require.Len(t, all, 1)

	// A write pump marshals queued payloads while joins keep mutating the
	// live lobby under the server mutex.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if _, err := json.Marshal(all[0]); err != nil {
				t.Error(err)
			}
			if _, err := json.Marshal(created[0]); err != nil {
				t.Error(err)
			}
		}
	}()
	for i := 0; i < 200; i++ {
		u := &models.User{ID: fmt.Sprintf("guest-%d", i), Email: fmt.Sprintf("guest%d@example.com", i)}
		gs.HandleMessage(connB, &models.Inbound{Type: models.EventJoin, LobbyID: "L1", User: u})
	}
	<-done

	// The queued payloads froze the state at send time.
	snap := created[0]["lobby"].(*models.Lobby)
	assert.Len(t, snap.Members, 1)
	lobbies := all[0]["lobbies"].([]*models.Lobby)
	require.Len(t, lobbies, 1)
	assert.Len(t, lobbies[0].Members, 1)

	live, _ := gs.Lobbies.Get("L1")
	assert.Len(t, live.Members, 201)
}

func TestListLobbiesReturnsDetachedCopies(t *testing.T) {
	gs := testServer()
	connA := connect(gs, "L1")
	createLobby(gs, connA, userA(), "g")

	listed := gs.ListLobbies()
	require.Len(t, listed, 1)
	listed[0].Members[0].Username = "mutated"
	listed[0].Owner.Username = "mutated"

	live, _ := gs.Lobbies.Get("L1")
	assert.Equal(t, "A", live.Owner.Username)
	assert.Equal(t, "A", live.Members[0].Username)
}

func TestReapBroadcastsCatalogEvenWhenNothingEvicted(t *testing.T) {
	gs := testServer()
	watcher := connect(gs, "other")

	gs.ReapInactive(time.Minute)
	require.Len(t, eventsOfType(drain(watcher), models.EventAllLobbies), 1)
}
