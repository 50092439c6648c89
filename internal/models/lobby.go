// internal/models/lobby.go
package models

import "time"

// Lobby is one room of play. It is created by the first connection on its
// path segment, owned by its creator, and lives only in memory.
type Lobby struct {
	ID    string `json:"id"`
	Owner *User  `json:"owner"`

	// Descriptive fields supplied at creation. Opaque to the server except
	// IsPrivate, which gates joining.
	Type      string `json:"type"`
	IsPrivate bool   `json:"isPrivate"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	GameID    string `json:"gameId"`

	// PasswordHash holds the argon2id hash of the join password for private
	// lobbies. Never serialized.
	PasswordHash string `json:"-"`

	// Members is ordered by join time and unique by email. The owner is
	// always the first entry.
	Members []*User `json:"members"`

	CreatedAt time.Time `json:"createdAt"`
	// LastActive is bumped on every membership-affecting event.
	LastActive time.Time `json:"lastActive"`
	// OwnerLastActive is the owner's last heartbeat; the reaper's sole input.
	OwnerLastActive time.Time `json:"ownerLastActive"`
}

// Snapshot returns a deep copy of the lobby. Outbound payloads are built from
// snapshots inside the critical section, so the write pumps marshal frozen
// state while later events keep mutating the live lobby under the lock.
func (l *Lobby) Snapshot() *Lobby {
	c := *l
	c.Owner = l.Owner.Clone()
	c.Members = make([]*User, len(l.Members))
	for i, m := range l.Members {
		c.Members[i] = m.Clone()
	}
	return &c
}

// MemberByEmail returns the member sharing the given re-identification key,
// or nil.
func (l *Lobby) MemberByEmail(email string) *User {
	for _, m := range l.Members {
		if m.Email == email {
			return m
		}
	}
	return nil
}
