// internal/game/draw.go
package game

import (
	"errors"
	"math/rand"
	"time"
)

// MaxNumber is the highest number on a tombala board.
const MaxNumber = 90

// ErrExhausted signals that every number in [1, MaxNumber] has been drawn.
// It is a normal terminal condition of the draw sequence, not a fault.
var ErrExhausted = errors.New("all numbers have been drawn")

// ErrUnknownLobby signals a draw against a lobby the engine is not tracking.
var ErrUnknownLobby = errors.New("unknown lobby")

// DrawEngine tracks, per lobby, which numbers have been drawn so far and
// produces the next number without replacement.
//
// The engine is not internally synchronized: callers serialize access through
// the GameServer mutex, the same exclusion that guards the lobby store.
type DrawEngine struct {
	drawn map[string][]int
	rng   *rand.Rand
}

// NewDrawEngine returns an engine with a time-seeded random source.
func NewDrawEngine() *DrawEngine {
	return &DrawEngine{
		drawn: make(map[string][]int),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Init starts tracking a lobby with an empty drawn set. Idempotent.
func (e *DrawEngine) Init(lobbyID string) {
	if _, ok := e.drawn[lobbyID]; !ok {
		e.drawn[lobbyID] = []int{}
	}
}

// DrawNext selects uniformly at random among the numbers not yet drawn for
// the lobby, records it, and returns it. Returns ErrExhausted once all
// MaxNumber values are out, with no state change. The engine performs no
// authorization; the router checks ownership before calling.
func (e *DrawEngine) DrawNext(lobbyID string) (int, error) {
	drawn, ok := e.drawn[lobbyID]
	if !ok {
		return 0, ErrUnknownLobby
	}

	taken := make(map[int]bool, len(drawn))
	for _, n := range drawn {
		taken[n] = true
	}
	available := make([]int, 0, MaxNumber-len(drawn))
	for n := 1; n <= MaxNumber; n++ {
		if !taken[n] {
			available = append(available, n)
		}
	}
	if len(available) == 0 {
		return 0, ErrExhausted
	}

	next := available[e.rng.Intn(len(available))]
	e.drawn[lobbyID] = append(drawn, next)
	return next, nil
}

// Drawn returns the numbers drawn so far, in draw order.
func (e *DrawEngine) Drawn(lobbyID string) []int {
	out := make([]int, len(e.drawn[lobbyID]))
	copy(out, e.drawn[lobbyID])
	return out
}

// Reset clears the drawn set for a lobby that is still tracked.
func (e *DrawEngine) Reset(lobbyID string) {
	if _, ok := e.drawn[lobbyID]; ok {
		e.drawn[lobbyID] = []int{}
	}
}

// Discard stops tracking a lobby entirely. Called on lobby deletion so that
// per-lobby state cannot leak.
func (e *DrawEngine) Discard(lobbyID string) {
	delete(e.drawn, lobbyID)
}
