// internal/lobby/store.go
package lobby

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tombala-live/tombala-server/internal/auth"
	"github.com/tombala-live/tombala-server/internal/models"
)

var (
	// ErrNotFound indicates the target lobby does not exist.
	ErrNotFound = errors.New("lobby not found")
	// ErrForbidden indicates a non-owner attempting an owner-only action.
	ErrForbidden = errors.New("only the lobby owner may do this")
	// ErrBadPassword indicates a wrong or missing password for a private lobby.
	ErrBadPassword = errors.New("wrong password")
	// ErrAlreadyOwns indicates the creator already has a live lobby.
	ErrAlreadyOwns = errors.New("you already have an active lobby")
)

// Config carries the caller-supplied descriptive fields for a new lobby.
type Config struct {
	Type      string
	IsPrivate bool
	Password  string
	StartDate string
	EndDate   string
	GameID    string
}

// Store is the authoritative table of live lobbies.
//
// The store itself carries no lock: every mutation, including the reaper
// sweep, is serialized through the GameServer mutex so that lobby state can
// never be observed mid-update (see handlers.GameServer).
type Store struct {
	lobbies map[string]*models.Lobby
}

func NewStore() *Store {
	return &Store{lobbies: make(map[string]*models.Lobby)}
}

// Create inserts a new lobby under lobbyID with owner as its sole member.
// The id comes from the connection's binding path segment, never from the
// payload. Fails with ErrAlreadyOwns if the owner already has a live lobby.
func (s *Store) Create(lobbyID string, owner *models.User, cfg Config) (*models.Lobby, error) {
	if owner.ID == "" {
		owner.ID = uuid.NewString()
	}
	if _, ok := s.GetByOwner(owner.ID); ok {
		return nil, ErrAlreadyOwns
	}
	if _, ok := s.lobbies[lobbyID]; ok {
		return nil, fmt.Errorf("lobby id %q is already taken", lobbyID)
	}

	var passwordHash string
	if cfg.IsPrivate && cfg.Password != "" {
		hash, err := auth.HashLobbyPassword(cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("hash lobby password: %w", err)
		}
		passwordHash = hash
	}

	now := time.Now()
	lob := &models.Lobby{
		ID:              lobbyID,
		Owner:           owner,
		Type:            cfg.Type,
		IsPrivate:       cfg.IsPrivate,
		PasswordHash:    passwordHash,
		StartDate:       cfg.StartDate,
		EndDate:         cfg.EndDate,
		GameID:          cfg.GameID,
		Members:         []*models.User{owner},
		CreatedAt:       now,
		LastActive:      now,
		OwnerLastActive: now,
	}
	s.lobbies[lobbyID] = lob
	return lob, nil
}

// Get returns the lobby with the given id, if any.
func (s *Store) Get(lobbyID string) (*models.Lobby, bool) {
	lob, ok := s.lobbies[lobbyID]
	return lob, ok
}

// GetByOwner scans for the lobby owned by ownerID. Used for the at-most-one-
// lobby-per-owner check at creation time.
func (s *Store) GetByOwner(ownerID string) (*models.Lobby, bool) {
	for _, lob := range s.lobbies {
		if lob.Owner.ID == ownerID {
			return lob, true
		}
	}
	return nil, false
}

// Join adds user to the lobby, gated by the password for private lobbies.
//
// Members are unique by email: when a member with the same email already
// exists, the caller's id is rewritten to the existing member's id instead of
// appending a duplicate. This is intentional reconnection support, so a
// player who reconnects under a fresh id keeps their original identity.
// Timestamps are refreshed on every join, including rejoins.
func (s *Store) Join(lobbyID string, user *models.User, password string) (*models.Lobby, error) {
	lob, ok := s.lobbies[lobbyID]
	if !ok {
		return nil, ErrNotFound
	}
	if lob.IsPrivate {
		if lob.PasswordHash == "" {
			// Private lobby created without a password: only an empty
			// password matches.
			if password != "" {
				return nil, ErrBadPassword
			}
		} else if match, err := auth.VerifyLobbyPassword(password, lob.PasswordHash); err != nil || !match {
			return nil, ErrBadPassword
		}
	}

	if existing := lob.MemberByEmail(user.Email); existing != nil {
		user.ID = existing.ID
	} else {
		if user.ID == "" {
			user.ID = uuid.NewString()
		}
		lob.Members = append(lob.Members, user)
	}

	now := time.Now()
	if user.ID == lob.Owner.ID {
		lob.OwnerLastActive = now
	}
	lob.LastActive = now
	return lob, nil
}

// Delete removes the lobby. Only its owner may delete it. The caller is
// responsible for discarding the lobby's draw and readiness state in the
// same critical section.
func (s *Store) Delete(lobbyID, requesterID string) error {
	lob, ok := s.lobbies[lobbyID]
	if !ok {
		return ErrNotFound
	}
	if lob.Owner.ID != requesterID {
		return ErrForbidden
	}
	delete(s.lobbies, lobbyID)
	return nil
}

// TouchOwnerHeartbeat refreshes OwnerLastActive iff requesterID is the
// lobby's owner. Any other caller is a silent no-op.
func (s *Store) TouchOwnerHeartbeat(lobbyID, requesterID string) {
	if lob, ok := s.lobbies[lobbyID]; ok && lob.Owner.ID == requesterID {
		lob.OwnerLastActive = time.Now()
	}
}

// SweepInactiveOwners removes every lobby whose owner has not heartbeated
// within threshold and returns the evicted ids. Runs under the same exclusion
// as event handling, so a sweep can never interleave with a delete or join.
func (s *Store) SweepInactiveOwners(now time.Time, threshold time.Duration) []string {
	var evicted []string
	for id, lob := range s.lobbies {
		if now.Sub(lob.OwnerLastActive) > threshold {
			delete(s.lobbies, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// List returns the live lobbies ordered by creation time, oldest first.
func (s *Store) List() []*models.Lobby {
	out := make([]*models.Lobby, 0, len(s.lobbies))
	for _, lob := range s.lobbies {
		out = append(out, lob)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
