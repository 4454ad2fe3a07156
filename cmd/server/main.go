package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pete-rs/tinyroom-api-sub000/internal/config"
	"github.com/pete-rs/tinyroom-api-sub000/internal/database"
	"github.com/pete-rs/tinyroom-api-sub000/internal/presence"
	"github.com/pete-rs/tinyroom-api-sub000/internal/server"
)

func main() {
	cfg := config.Load()

	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Presence is optional: without redis the server still runs, room
	// listings just cannot show who is online.
	var pres *presence.Manager
	if cfg.Redis.Addr != "" {
		pres, err = presence.NewManager(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("Presence disabled, redis unreachable: %v", err)
			pres = nil
		} else {
			defer pres.Close()
		}
	}

	srv := server.New(cfg, db, pres)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := srv.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
