// cmd/historian/main.go is an asynchronous archiver that pops lobby event
// records from the Redis history queue and persists them to PostgreSQL. It
// is an offline collaborator: the lobby server never reads this data back.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/tombala-live/tombala-server/internal/database"
	"github.com/tombala-live/tombala-server/internal/history"
)

// HistorianService drains the Redis queue into Postgres in batches and
// closes lobby rows that have gone quiet.
type HistorianService struct {
	redisClient *redis.Client
	batchSize   int
	flushDelay  time.Duration
	retention   time.Duration // duration until a quiet lobby row is marked closed

	lastActivity sync.Map // map[string]time.Time, keyed by lobby id

	batchMu  sync.Mutex
	batch    []history.Record
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewHistorianService constructs the service from environment variables or
// defaults.
func NewHistorianService() *HistorianService {
	batchSize := getEnvInt("HISTORIAN_BATCH_SIZE", 20)
	flushMs := getEnvInt("HISTORIAN_FLUSH_MS", 500)
	retentionSec := getEnvInt("LOBBY_RETENTION_SEC", 600)

	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &HistorianService{
		redisClient: rdb,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		retention:   time.Duration(retentionSec) * time.Second,
		batch:       make([]history.Record, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run connects to the database and starts the read and retention loops.
func (hs *HistorianService) Run() {
	database.ConnectDB()

	go hs.readRedisLoop()
	go hs.retentionLoop()

	log.Println("tombala-historian service started.")
	<-hs.ctx.Done()
	log.Println("tombala-historian shutting down.")
}

// readRedisLoop BLPops records off the queue, accumulating a batch that is
// flushed on size or on a timer.
func (hs *HistorianService) readRedisLoop() {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	queueName := getEnv("HISTORY_QUEUE_NAME", history.DefaultQueueName)

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			hs.flushBatchToDB()

		default:
			// BLPop with a short timeout so context cancellation is handled.
			res, err := hs.redisClient.BLPop(hs.ctx, 3*time.Second, queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			var record history.Record
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid history record: %v\n", err)
				continue
			}

			hs.lastActivity.Store(record.LobbyID, time.Now())
			hs.appendToBatch(record)
		}
	}
}

func (hs *HistorianService) appendToBatch(record history.Record) {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()

	hs.batch = append(hs.batch, record)
	if len(hs.batch) >= hs.batchSize {
		hs.flushLocked()
	}
}

func (hs *HistorianService) flushBatchToDB() {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	hs.flushLocked()
}

// flushLocked writes the current batch in one transaction. Callers hold batchMu.
func (hs *HistorianService) flushLocked() {
	if len(hs.batch) == 0 {
		return
	}
	batchCopy := make([]history.Record, len(hs.batch))
	copy(batchCopy, hs.batch)
	hs.batch = hs.batch[:0]

	ctx := context.Background()
	err := beginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			if err := insertLobbyEventTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertLobbyEventTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flush batch: %v\n", err)
	} else {
		log.Printf("Flushed %d events to DB.\n", len(batchCopy))
	}
}

// retentionLoop periodically closes lobby rows that have received no events
// within the retention window.
func (hs *HistorianService) retentionLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			hs.lastActivity.Range(func(key, val interface{}) bool {
				lobbyID, ok1 := key.(string)
				last, ok2 := val.(time.Time)
				if ok1 && ok2 && now.Sub(last) > hs.retention {
					hs.closeLobbyRow(lobbyID)
					hs.lastActivity.Delete(lobbyID)
				}
				return true
			})
		}
	}
}

// closeLobbyRow marks a lobby row closed if it was still open.
func (hs *HistorianService) closeLobbyRow(lobbyID string) {
	ctx := context.Background()
	err := beginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE lobbies
			SET status = 'closed', closed_at = NOW()
			WHERE id = $1 AND status = 'open'
		`
		_, e := tx.Exec(ctx, q, lobbyID)
		return e
	})
	if err != nil {
		log.Printf("failed to close lobby row %v: %v", lobbyID, err)
	} else {
		log.Printf("Marked lobby %v closed after retention window.", lobbyID)
	}
}

// insertLobbyEventTx inserts one event row, upserting the lobby summary row.
// Terminal events finalize the lobby row.
func insertLobbyEventTx(ctx context.Context, tx pgx.Tx, rec history.Record) error {
	upsertLobbyQ := `
		INSERT INTO lobbies (id, status, first_seen)
		VALUES ($1, 'open', NOW())
		ON CONFLICT (id)
		DO UPDATE SET status = 'open'
	`
	if _, err := tx.Exec(ctx, upsertLobbyQ, rec.LobbyID); err != nil {
		return err
	}

	var actorID interface{}
	if rec.Actor != nil {
		actorID = rec.Actor.ID
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}
	eventInsertQ := `
		INSERT INTO lobby_events (
			lobby_id, event_type, actor_id, payload, occurred_at
		) VALUES ($1, $2, $3, $4, to_timestamp($5::double precision / 1000))
	`
	if _, err := tx.Exec(ctx, eventInsertQ,
		rec.LobbyID, rec.EventType, actorID, payload, rec.Timestamp,
	); err != nil {
		return err
	}

	if history.Terminal(rec.EventType) {
		finalizeQ := `
			UPDATE lobbies
			SET status = 'closed', closed_at = NOW()
			WHERE id = $1 AND status = 'open'
		`
		if _, err := tx.Exec(ctx, finalizeQ, rec.LobbyID); err != nil {
			return err
		}
	}
	return nil
}

// beginTxFunc starts a transaction, calls f, and commits or rolls back.
func beginTxFunc(ctx context.Context, pool *pgxpool.Pool, txOptions pgx.TxOptions, f func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx rollback error: %v; original error: %w", rbErr, err)
		}
		return err
	}
	return tx.Commit(ctx)
}

// Stop gracefully stops the service.
func (hs *HistorianService) Stop() {
	hs.cancelFn()
}

func main() {
	hs := NewHistorianService()
	go hs.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	<-sigChan
	hs.Stop()
	hs.flushBatchToDB()
	log.Println("Historian shutdown complete.")
}

func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
