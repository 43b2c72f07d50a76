package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	appmigrations "github.com/wolfman30/listing-lead-assistant/migrations"
)

func main() {
	_ = godotenv.Load()

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("db driver: %v", err)
	}

	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		log.Fatalf("source driver: %v", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	defer func() { _, _ = m.Close() }()

	// Check for force command: /bin/migrate force <version>
	if len(os.Args) >= 3 && os.Args[1] == "force" {
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("invalid version: %v", err)
		}
		if err := m.Force(version); err != nil {
			log.Fatalf("force version: %v", err)
		}
		fmt.Printf("forced version to %d\n", version)
		return
	}

	// /bin/migrate down rolls back one step.
	if len(os.Args) >= 2 && os.Args[1] == "down" {
		if err := m.Steps(-1); err != nil {
			log.Fatalf("migrate down: %v", err)
		}
		fmt.Println("rolled back one migration")
		return
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migrate up: %v", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Fatalf("read version: %v", err)
	}
	fmt.Printf("migrations complete (version %d, dirty %t)\n", version, dirty)
}
