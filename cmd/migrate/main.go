package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"loyalpay/internal/config"
	"loyalpay/internal/infrastructure"
	"loyalpay/internal/repository"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	infrastructure.SetupLogger(cfg)

	if cfg.StoreProvider != "postgres" {
		log.Fatalf("Migrations only apply to the postgres store, LOYALPAY_STORE_PROVIDER is %q", cfg.StoreProvider)
	}

	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		fmt.Println("Error: migration command is required")
		fmt.Println("Usage: go run cmd/migrate/main.go [command] [args]")
		fmt.Println("Commands: up, down, status, redo, up-to VERSION, down-to VERSION")
		os.Exit(1)
	}

	command := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	log.Printf("Starting migration: %s", command)

	if err := repository.RunMigrations(ctx, cfg.DSN(), command, args[1:]...); err != nil {
		log.Fatalf("Migration error: %v", err)
	}

	fmt.Println("Migration finished successfully")
}
