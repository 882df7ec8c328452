package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/yourorg/upkeep/internal/config"
	"github.com/yourorg/upkeep/internal/db"
	"github.com/yourorg/upkeep/internal/migrate"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer pool.Close()

	log.Println("connected to database")

	applied, err := migrate.Run(ctx, pool)
	if err != nil {
		log.Fatalf("run migrations: %v", err)
	}
	for _, v := range applied {
		log.Printf("applied migration: %s", v)
	}

	log.Println("migrations complete")
}
