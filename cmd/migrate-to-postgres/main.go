// migrate-to-postgres copies stored runs from SQLite to PostgreSQL.
//
// Usage:
//
//	go run ./cmd/migrate-to-postgres \
//	    -sqlite data/roadgen.db \
//	    -pg-host localhost \
//	    -pg-port 5432 \
//	    -pg-user roadgen \
//	    -pg-password roadgen \
//	    -pg-database roadgen
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/lawnchairsociety/roadgen/internal/database"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Note: .env file not loaded: %v", err)
	}

	pg := database.DefaultPostgresConfig()
	sqlitePath := flag.String("sqlite", "data/roadgen.db", "Path to SQLite database")
	flag.StringVar(&pg.Host, "pg-host", pg.Host, "PostgreSQL host")
	flag.IntVar(&pg.Port, "pg-port", pg.Port, "PostgreSQL port")
	flag.StringVar(&pg.User, "pg-user", pg.User, "PostgreSQL user")
	flag.StringVar(&pg.Password, "pg-password", os.Getenv("ROADGEN_PG_PASSWORD"), "PostgreSQL password")
	flag.StringVar(&pg.Database, "pg-database", pg.Database, "PostgreSQL database name")
	flag.StringVar(&pg.SSLMode, "pg-sslmode", pg.SSLMode, "PostgreSQL SSL mode")
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	flag.Parse()

	log.Println("SQLite to PostgreSQL Run Migration")
	log.Println("==================================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migrate(ctx, *sqlitePath, pg, *dryRun); err != nil {
		log.Printf("Migration failed: %v", err)
		stop()
		os.Exit(1)
	}
}

func migrate(ctx context.Context, sqlitePath string, pg database.PostgresConfig, dryRun bool) (err error) {
	if _, err := os.Stat(sqlitePath); err != nil {
		return err
	}

	log.Printf("Opening SQLite database: %s", sqlitePath)
	src, err := database.Open(sqlitePath)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, src.Close()) }()

	// opening runs the schema migrations on the target
	log.Printf("Opening PostgreSQL database: %s@%s:%d/%s", pg.User, pg.Host, pg.Port, pg.Database)
	dst, err := database.OpenWithConfig(database.Config{
		Driver:   string(database.DialectPostgres),
		Postgres: pg,
	})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dst.Close()) }()

	if dryRun {
		log.Println("DRY RUN MODE - No changes will be made")
	}

	stats, err := database.CopyRuns(ctx, src, dst, dryRun)
	if err != nil {
		return err
	}

	log.Println("==================================")
	log.Printf("Migration complete! Runs copied: %d (%d cells), already present: %d",
		stats.Copied, stats.Cells, stats.Skipped)
	if dryRun {
		log.Println("(DRY RUN - No actual changes were made)")
	}
	return nil
}
