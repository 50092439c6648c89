// internal/models/events.go
package models

// Inbound event types.
const (
	EventPing          = "ping"
	EventCreateLobby   = "createLobby"
	EventJoin          = "join"
	EventDeleteLobby   = "deleteLobby"
	EventPlayerReady   = "playerReady"
	EventPlayerUnready = "playerUnready"
	EventDrawNumber    = "drawNumber"
	EventAnnounceWin   = "announceWin"
)

// Outbound event types.
const (
	EventLobbyCreated       = "lobbyCreated"
	EventAllLobbies         = "allLobbies"
	EventLobbyJoinConfirmed = "lobbyJoinConfirmed"
	EventError              = "error"
	EventStartGame          = "start_game"
	EventNewNumber          = "newNumber"
	EventGameOver           = "game_over"
	EventPlayerAnnouncement = "player_announcement"
)

// Archive-only event types. Never sent to clients; written to the history
// queue and matched by the historian when finalizing lobby rows.
const (
	EventLobbyDeleted = "lobbyDeleted"
	EventLobbyReaped  = "lobbyReaped"
)

// Win announcement steps.
const (
	StepCinko1  = "cinko1"
	StepCinko2  = "cinko2"
	StepTombala = "tombala"
)

// Inbound is the envelope every client message decodes into. Only Type is
// mandatory; the remaining fields are populated per event type. Unknown
// fields are ignored.
type Inbound struct {
	Type    string `json:"type"`
	LobbyID string `json:"lobbyId,omitempty"`
	User    *User  `json:"user,omitempty"`

	// createLobby fields.
	LobbyType      string `json:"lobbyType,omitempty"`
	IsPrivate      bool   `json:"isPrivate,omitempty"`
	EventStartDate string `json:"eventStartDate,omitempty"`
	EventEndDate   string `json:"eventEndDate,omitempty"`
	GameID         string `json:"gameId,omitempty"`

	// join / createLobby.
	Password string `json:"password,omitempty"`

	// announceWin.
	Step string `json:"step,omitempty"`
}
