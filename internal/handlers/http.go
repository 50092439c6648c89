// internal/handlers/http.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tombala-live/tombala-server/internal/catalog"
)

// PingHandler is a trivial liveness probe.
func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("pong"))
}

// ListLobbiesHandler returns the live lobby catalog as JSON. Identity claims
// are trusted, so there is no auth gate here.
func ListLobbiesHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(gs.ListLobbies())
	}
}

// GamesHandler serves the aggregated game catalog assembled offline by
// cmd/gamegen. An absent catalog is served as an empty list.
func GamesHandler(games []catalog.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if games == nil {
			games = []catalog.Entry{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(games)
	}
}
