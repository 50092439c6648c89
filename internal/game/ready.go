// internal/game/ready.go
package game

import "github.com/tombala-live/tombala-server/internal/models"

// ReadyTracker records which members of each lobby have signaled readiness.
// Quorum is recomputed from the lobby's current member list on every check,
// so a late join flips a previously reached quorum back to false.
//
// Like DrawEngine, the tracker relies on the GameServer mutex for exclusion.
type ReadyTracker struct {
	ready map[string]map[string]bool
}

func NewReadyTracker() *ReadyTracker {
	return &ReadyTracker{ready: make(map[string]map[string]bool)}
}

// MarkReady idempotently records memberID as ready in the lobby.
func (t *ReadyTracker) MarkReady(lobbyID, memberID string) {
	set, ok := t.ready[lobbyID]
	if !ok {
		set = make(map[string]bool)
		t.ready[lobbyID] = set
	}
	set[memberID] = true
}

// MarkUnready idempotently removes memberID from the lobby's ready set.
func (t *ReadyTracker) MarkUnready(lobbyID, memberID string) {
	if set, ok := t.ready[lobbyID]; ok {
		delete(set, memberID)
	}
}

// IsReady reports whether memberID has signaled readiness.
func (t *ReadyTracker) IsReady(lobbyID, memberID string) bool {
	return t.ready[lobbyID][memberID]
}

// QuorumReached is true iff every current member of the lobby is in its
// ready set. A lobby always has at least its owner as a member, so an empty
// ready set never satisfies quorum.
func (t *ReadyTracker) QuorumReached(lob *models.Lobby) bool {
	set := t.ready[lob.ID]
	if len(set) == 0 {
		return false
	}
	for _, m := range lob.Members {
		if !set[m.ID] {
			return false
		}
	}
	return true
}

// Discard drops all readiness state for a deleted lobby.
func (t *ReadyTracker) Discard(lobbyID string) {
	delete(t.ready, lobbyID)
}
