// internal/catalog/catalog.go
//
// Offline assembly of the static game catalog. Each game package ships a
// game.config.json; Build aggregates every config under a packages directory
// into one games.json that the server exposes read-only. The lobby core never
// interprets these entries beyond treating gameId as an opaque string.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFileName is the per-game config file looked up inside each package
// directory.
const ConfigFileName = "game.config.json"

// coreServerDir is the one package directory that is not a game.
const coreServerDir = "core-server"

// Entry is one game definition. The payload is kept verbatim; only the id is
// inspected, to reject configs the catalog could not reference.
type Entry = json.RawMessage

// Build scans packagesDir for game packages and returns their configs in
// directory-name order. Directories without a config file are skipped;
// an unreadable or invalid config fails the whole build, since a partial
// catalog would silently hide games.
func Build(packagesDir string) ([]Entry, error) {
	dirs, err := os.ReadDir(packagesDir)
	if err != nil {
		return nil, fmt.Errorf("read packages dir: %w", err)
	}

	games := []Entry{}
	for _, dir := range dirs {
		if !dir.IsDir() || dir.Name() == coreServerDir {
			continue
		}
		configPath := filepath.Join(packagesDir, dir.Name(), ConfigFileName)
		data, err := os.ReadFile(configPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", configPath, err)
		}

		var probe struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
		}
		if probe.ID == "" {
			return nil, fmt.Errorf("config %s has no id", configPath)
		}
		games = append(games, Entry(data))
	}
	return games, nil
}

// Write serializes the catalog, pretty-printed, creating the output
// directory if needed.
func Write(path string, games []Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	data, err := json.MarshalIndent(games, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads a previously written catalog. A missing file is not an error;
// the server simply serves an empty catalog.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var games []Entry
	if err := json.Unmarshal(data, &games); err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	return games, nil
}
