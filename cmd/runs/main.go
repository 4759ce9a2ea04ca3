// runs inspects and manages stored generation runs.
//
// Usage:
//
//	go run ./cmd/runs [flags] list [-limit n]
//	go run ./cmd/runs [flags] show <id>
//	go run ./cmd/runs [flags] export <id> <file.yaml>
//	go run ./cmd/runs [flags] find <fingerprint>
//	go run ./cmd/runs [flags] delete <id>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/lawnchairsociety/roadgen/internal/config"
	"github.com/lawnchairsociety/roadgen/internal/database"
	"github.com/lawnchairsociety/roadgen/internal/export"
	"github.com/lawnchairsociety/roadgen/internal/logger"
	"github.com/lawnchairsociety/roadgen/internal/wfc"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Note: .env file not loaded: %v", err)
	}

	configFile := flag.String("config", "data/roadgen.yaml", "Path to roadgen config YAML file")
	dbFile := flag.String("db", "", "SQLite database to use instead of the configured store")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}
	if *dbFile != "" {
		cfg.Storage.Config = database.DefaultConfig(*dbFile)
	}
	if err := cfg.Storage.Config.Validate(); err != nil {
		log.Fatalf("Invalid storage configuration: %v", err)
	}

	logConfig, err := logger.LoadConfig(cfg.LoggingConfig)
	if err != nil {
		log.Printf("Warning: %v (using defaults)", err)
	}
	if err := logger.Initialize(logConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if err := run(context.Background(), cfg, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: runs [flags] <command> [args]

Commands:
  list [-limit n]          List the most recent runs
  show <id>                Print a run as a road map
  export <id> <file>       Write a run as YAML
  find <fingerprint>       List runs with the same grid
  delete <id>              Delete a run

Flags:
`)
	flag.PrintDefaults()
}

func run(ctx context.Context, cfg *config.Config, args []string) (err error) {
	db, err := database.OpenWithConfig(cfg.Storage.Config)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	cmd, args := args[0], args[1:]
	switch cmd {
	case "list":
		return listRuns(ctx, db, args)
	case "show":
		if len(args) != 1 {
			return errors.New("show needs a run id")
		}
		doc, err := loadRun(ctx, db, args[0])
		if err != nil {
			return err
		}
		return export.WriteASCII(os.Stdout, doc, cfg.Walker.Walkable, true)
	case "export":
		if len(args) != 2 {
			return errors.New("export needs a run id and an output file")
		}
		doc, err := loadRun(ctx, db, args[0])
		if err != nil {
			return err
		}
		if err := export.WriteRunYAMLFile(args[1], doc); err != nil {
			return err
		}
		fmt.Printf("Run %s written to %s\n", doc.ID, args[1])
		return nil
	case "find":
		if len(args) != 1 {
			return errors.New("find needs a fingerprint")
		}
		ids, err := db.FindRunsByFingerprint(ctx, args[0])
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	case "delete":
		if len(args) != 1 {
			return errors.New("delete needs a run id")
		}
		if err := db.DeleteRun(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Run %s deleted\n", args[0])
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func listRuns(ctx context.Context, db *database.Database, args []string) error {
	set := flag.NewFlagSet("list", flag.ContinueOnError)
	limit := set.Int("limit", 20, "Number of runs to list, 0 for all")
	if err := set.Parse(args); err != nil {
		return err
	}

	runs, err := db.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSEED\tSIZE\tSTATUS\tSTEPS\tMASKED\tFINGERPRINT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%dx%d k=%d\t%s\t%d\t%d\t%s\n",
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Seed,
			r.Width, r.Width, r.UniqueEdgeCount,
			r.Status,
			r.Steps,
			r.MaskedContradictions,
			r.Fingerprint[:min(12, len(r.Fingerprint))])
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d runs\n", len(runs))
	return nil
}

func loadRun(ctx context.Context, db *database.Database, id string) (*export.RunYAML, error) {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	cells, err := db.GetRunCells(ctx, id)
	if err != nil {
		return nil, err
	}
	cat, err := wfc.BuildCatalog(run.UniqueEdgeCount)
	if err != nil {
		return nil, err
	}
	return export.FromRun(run, cells, cat)
}
