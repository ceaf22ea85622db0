// Package main applies versioned schema migrations to the storefront
// database. The SQL files are embedded so the binary is self-contained.
package main

import (
	"embed"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func main() {
	databaseURL := flag.String("database-url", "", "Postgres connection URL (defaults to DATABASE_URL)")
	down := flag.Bool("down", false, "Roll back one migration instead of migrating up")
	steps := flag.Int("steps", 0, "Apply exactly this many migrations (negative rolls back)")
	flag.Parse()

	if *databaseURL == "" {
		*databaseURL = os.Getenv("DATABASE_URL")
	}
	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "no database URL: pass -database-url or set DATABASE_URL")
		os.Exit(1)
	}

	if err := run(*databaseURL, *down, *steps); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
}

func run(databaseURL string, down bool, steps int) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer m.Close()

	switch {
	case steps != 0:
		err = m.Steps(steps)
	case down:
		err = m.Steps(-1)
	default:
		err = m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("database is up to date")
		return nil
	}
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	fmt.Printf("database at version %d (dirty=%v)\n", version, dirty)
	return nil
}
