// Command migrate applies the goose SQL migrations under migrations/.
//
// Usage:
//
//	migrate up                 apply all pending migrations
//	migrate down               roll back the most recent migration
//	migrate status             list applied and pending migrations
//	migrate version            print the current schema version
//	migrate up-to <version>    migrate up to a specific version
//	migrate down-to <version>  migrate down to a specific version
//
// The target database comes from DATABASE_URL. A custom migrations
// directory can be given with -dir.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding goose SQL migrations")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}
	command, args := flag.Arg(0), flag.Args()[1:]

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("connect to database: %v", err)
	}

	if err := goose.RunContext(ctx, command, db, *dir, args...); err != nil {
		log.Fatalf("migration %s: %v", command, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [-dir migrations] <command> [args]")
	fmt.Fprintln(os.Stderr, "Commands: up, down, status, version, redo, up-to <version>, down-to <version>")
}
