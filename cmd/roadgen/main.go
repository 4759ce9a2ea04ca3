// roadgen generates one road grid and writes it out.
//
// Usage:
//
//	go run ./cmd/roadgen -seed 42 -cells 100 -ascii -out data/run.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/lawnchairsociety/roadgen/internal/config"
	"github.com/lawnchairsociety/roadgen/internal/database"
	"github.com/lawnchairsociety/roadgen/internal/export"
	"github.com/lawnchairsociety/roadgen/internal/logger"
	"github.com/lawnchairsociety/roadgen/internal/telemetry"
	"github.com/lawnchairsociety/roadgen/internal/walker"
	"github.com/lawnchairsociety/roadgen/internal/wfc"
)

type options struct {
	out     string
	ascii   bool
	solve   bool
	walkers int
	ticks   int
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Note: .env file not loaded: %v", err)
	}

	configFile := flag.String("config", "data/roadgen.yaml", "Path to roadgen config YAML file")
	loggingConfig := flag.String("logging", "", "Path to logging config YAML file (default: logging_config from -config)")
	seed := flag.Int64("seed", 0, "Generation seed, 0 picks one from the clock (default: generator.seed from -config)")
	edges := flag.Int("edges", 0, "Number of distinct edge values")
	cells := flag.Int("cells", 0, "Total cell count, a perfect square")
	policy := flag.String("policy", "", "Contradiction policy: discard or abort")
	attempts := flag.Int("attempts", 0, "Attempts used with -solve")
	dbFile := flag.String("db", "", "Store the run in this SQLite database")
	var opts options
	flag.StringVar(&opts.out, "out", "", "Write the run as YAML to this file")
	flag.BoolVar(&opts.ascii, "ascii", false, "Print the grid as a road map")
	flag.BoolVar(&opts.solve, "solve", false, "Retry with derived seeds until the grid is consistent")
	flag.IntVar(&opts.walkers, "walkers", 0, "Number of walkers to run over the finished grid")
	flag.IntVar(&opts.ticks, "ticks", 1000, "Ticks to run walkers for")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}

	// flags given on the command line win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			cfg.Generator.Seed = *seed
		case "edges":
			cfg.Generator.UniqueEdgeCount = *edges
		case "cells":
			cfg.Generator.TotalCells = *cells
		case "policy":
			cfg.Generator.Policy = *policy
		case "attempts":
			cfg.Generator.MaxAttempts = *attempts
		case "db":
			cfg.Storage.Enabled = true
			cfg.Storage.Driver = string(database.DialectSQLite)
			cfg.Storage.SQLitePath = *dbFile
		}
	})
	if cfg.Generator.Seed == 0 {
		cfg.Generator.Seed = time.Now().UnixNano()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logPath := cfg.LoggingConfig
	if *loggingConfig != "" {
		logPath = *loggingConfig
	}
	logConfig, err := logger.LoadConfig(logPath)
	if err != nil {
		log.Printf("Warning: %v (using defaults)", err)
	}
	if err := logger.Initialize(logConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts); err != nil {
		logger.Error("Generation failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) (err error) {
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Warning("Telemetry setup failed, continuing without traces", "error", err)
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = multierr.Append(err, shutdown(flushCtx))
		}()
	}

	genOpts, err := cfg.Generator.Options()
	if err != nil {
		return err
	}
	gen, err := wfc.NewGenerator(genOpts)
	if err != nil {
		return err
	}

	logger.Info("Generating road grid",
		"seed", genOpts.Seed,
		"edge_values", genOpts.UniqueEdgeCount,
		"prototypes", gen.Catalog().Len(),
		"width", gen.Grid().Width,
		"policy", genOpts.Policy.String())

	var genErr error
	if opts.solve {
		genErr = gen.Solve(ctx)
	} else {
		genErr = gen.Run(ctx)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	status := database.StatusOf(gen)
	stats := gen.Stats()
	fp := gen.Grid().Fingerprint()
	logger.Always("Generation finished",
		"seed", gen.Options().Seed,
		"status", status,
		"steps", stats.Steps,
		"commits", stats.Commits,
		"masked_contradictions", stats.MaskedContradictions,
		"attempts", stats.Attempts,
		"fingerprint", fmt.Sprintf("%x", fp[:8]))

	doc, err := export.FromGenerator(gen, status)
	if err != nil {
		return err
	}
	if opts.out != "" {
		if err := export.WriteRunYAMLFile(opts.out, doc); err != nil {
			return err
		}
		logger.Info("Run written", "path", opts.out)
	}
	if opts.ascii {
		if err := export.WriteASCII(os.Stdout, doc, cfg.Walker.Walkable, true); err != nil {
			return err
		}
	}

	if opts.walkers > 0 {
		swarm, err := walker.NewSwarm(gen.Grid(), opts.walkers, cfg.Walker, wfc.NewRand(gen.Options().Seed))
		if err != nil {
			return err
		}
		entered, err := swarm.Run(ctx, opts.ticks)
		if err != nil {
			return err
		}
		idle := 0
		for _, b := range swarm.Bots() {
			if b.CellsVisited() == 0 {
				idle++
			}
		}
		logger.Info("Walkers finished", "walkers", opts.walkers, "ticks", opts.ticks, "cells_entered", entered, "never_moved", idle)
	}

	if cfg.Storage.Enabled {
		if err := store(ctx, cfg.Storage.Config, gen, status); err != nil {
			return err
		}
	}

	return genErr
}

func store(ctx context.Context, dbCfg database.Config, gen *wfc.Generator, status string) (err error) {
	db, err := database.OpenWithConfig(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	run, cells := database.NewRun(gen, status)
	if err := db.SaveRun(ctx, run, cells); err != nil {
		return err
	}
	logger.Info("Run stored", "run_id", run.ID, "driver", dbCfg.Driver)
	return nil
}
