// cmd/gamegen/main.go assembles the static game catalog: it scans the
// packages directory for game.config.json files and writes the aggregated
// shared/games.json the server exposes on /games.
package main

import (
	"flag"

	"github.com/sirupsen/logrus"

	"github.com/tombala-live/tombala-server/internal/catalog"
)

func main() {
	packagesDir := flag.String("packages", "packages", "directory containing one subdirectory per game package")
	out := flag.String("out", "shared/games.json", "output path for the aggregated catalog")
	flag.Parse()

	logger := logrus.New()

	games, err := catalog.Build(*packagesDir)
	if err != nil {
		logger.Fatalf("failed to build catalog: %v", err)
	}
	if err := catalog.Write(*out, games); err != nil {
		logger.Fatalf("failed to write catalog: %v", err)
	}
	logger.Infof("wrote %d game(s) to %s", len(games), *out)
}
