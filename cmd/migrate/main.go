// Package main applies the sale store schema.
// Usage: migrate up
//
//	migrate down [steps]
//	migrate version
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"possync/internal/config"
	"possync/internal/infrastructure/storage/postgres/migrations"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fail("read .env", err)
	}
	cfg, err := config.NewConfig(os.Getenv("POSSYNC_CONFIG"))
	if err != nil {
		fail("load config", err)
	}
	url := cfg.Postgres.URL()

	switch os.Args[1] {
	case "up":
		if err := migrations.Up(url); err != nil {
			fail("migrate up", err)
		}
		fmt.Println("schema is up to date")
	case "down":
		steps := 1
		if len(os.Args) > 2 {
			if steps, err = strconv.Atoi(os.Args[2]); err != nil || steps < 1 {
				fmt.Printf("Invalid steps: %s\n", os.Args[2])
				os.Exit(1)
			}
		}
		if err := migrations.Down(url, steps); err != nil {
			fail("migrate down", err)
		}
		fmt.Printf("rolled back %d migration(s)\n", steps)
	case "version":
		v, dirty, err := migrations.Version(url)
		if err != nil {
			fail("read version", err)
		}
		fmt.Printf("version %d (dirty: %t)\n", v, dirty)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func fail(op string, err error) {
	fmt.Printf("Error: %s: %v\n", op, err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`possync schema migrations

Usage:
  migrate <command> [options]

Commands:
  up              Apply all pending migrations
  down [steps]    Roll back the last steps migrations (default 1)
  version         Print the current schema version

Environment Variables:
  POSSYNC_CONFIG          Path to config.yaml (optional)
  POSSYNC_POSTGRES_HOST   Database host, and the other POSSYNC_POSTGRES_* keys`)
}
