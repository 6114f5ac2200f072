package main

import (
	"log"
	"os"

	"github.com/kdells/postflight/internal/api"
	"github.com/kdells/postflight/internal/config"
	"github.com/kdells/postflight/internal/store"
	"github.com/kdells/postflight/internal/tasks"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("postflight: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	dispatcher := tasks.NewDispatcher(db, logger)
	srv := api.NewServer(cfg.ListenAddr, db, dispatcher, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
