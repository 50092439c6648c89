// internal/history/history.go
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tombala-live/tombala-server/internal/models"
)

// Rdb is the global Redis client. Connect it once at application startup;
// when it stays nil, history publishing is disabled and every Publish call
// is a no-op.
var Rdb *redis.Client

// DefaultQueueName is the Redis list the historian service drains.
var DefaultQueueName = "tombala_events"

// Record is one archived lobby event, shaped for the historian sink.
type Record struct {
	LobbyID   string                 `json:"lobby_id"`
	EventType string                 `json:"event_type"`
	Actor     *models.User           `json:"actor,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// Connect initializes the global Redis client from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func Connect() error {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	Rdb = client
	return nil
}

// Enabled reports whether a Redis client is connected.
func Enabled() bool {
	return Rdb != nil
}

// Terminal reports whether eventType ends a lobby's history. The historian
// closes the lobby row when it sees one of these.
func Terminal(eventType string) bool {
	switch eventType {
	case models.EventGameOver, models.EventLobbyDeleted, models.EventLobbyReaped:
		return true
	}
	return false
}

// Publish serializes the record and pushes it onto the history queue. The
// caller treats failures as log-and-continue; archiving must never affect
// protocol handling.
func Publish(ctx context.Context, record Record) error {
	if Rdb == nil {
		return nil
	}
	if record.Timestamp == 0 {
		record.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}

	queueName := getEnv("HISTORY_QUEUE_NAME", DefaultQueueName)
	if err := Rdb.RPush(ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", queueName, err)
	}
	return nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
