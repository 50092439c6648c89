// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/tombala-live/tombala-server/internal/catalog"
	"github.com/tombala-live/tombala-server/internal/handlers"
	"github.com/tombala-live/tombala-server/internal/history"
	"github.com/tombala-live/tombala-server/internal/middleware"
)

func main() {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		logger.SetLevel(level)
	}

	// History archiving is optional; the server runs fine without Redis.
	if err := history.Connect(); err != nil {
		logger.WithError(err).Warn("history queue disabled")
	}

	games, err := catalog.Load(getEnv("GAMES_JSON_PATH", "shared/games.json"))
	if err != nil {
		logger.WithError(err).Warn("failed to load game catalog, serving empty list")
	}

	gs := handlers.NewGameServer(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/", handlers.PingHandler)
	mux.Handle("/lobbies", middleware.LogMiddleware(logger)(handlers.ListLobbiesHandler(gs)))
	mux.Handle("/games", middleware.LogMiddleware(logger)(handlers.GamesHandler(games)))
	mux.Handle("/lobby/", handlers.LobbyWSHandler(logger, gs))

	reaper := handlers.NewReaper(gs, logger,
		time.Duration(getEnvInt("REAPER_INTERVAL_SEC", 15))*time.Second,
		time.Duration(getEnvInt("OWNER_INACTIVE_TIMEOUT_SEC", 60))*time.Second,
	)
	reapCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go reaper.Run(reapCtx)

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	l, err := net.Listen("tcp", fmt.Sprintf(":%s", getEnv("PORT", "4000")))
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}
	logger.Infof("listening on %s", l.Addr())

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		logger.Errorf("failed to serve: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}

	stopReaper()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
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
