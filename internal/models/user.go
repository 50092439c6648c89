// internal/models/user.go
package models

// User is a caller-supplied identity. The server trusts these claims; the
// email field doubles as the stable re-identification key when a player
// reconnects under a fresh id (see lobby.Store.Join).
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
}

// Clone returns a copy that can be handed to a write pump or an archiver
// without sharing memory with the live identity. Nil-safe.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
