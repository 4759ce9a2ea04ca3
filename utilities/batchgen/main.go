// batchgen writes one YAML run per seed in a range.
//
// Usage:
//
//	go run ./utilities/batchgen -seeds 1-25 -cells 64 -out data/runs
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/lawnchairsociety/roadgen/internal/config"
)

func main() {
	seeds := flag.String("seeds", "", "Seed range to generate (e.g., 1-25 or 5)")
	gen := config.DefaultConfig().Generator
	flag.IntVar(&gen.UniqueEdgeCount, "edges", gen.UniqueEdgeCount, "Number of distinct edge values")
	flag.IntVar(&gen.TotalCells, "cells", gen.TotalCells, "Total cell count, a perfect square")
	flag.StringVar(&gen.Policy, "policy", gen.Policy, "Contradiction policy: discard or abort")
	flag.IntVar(&gen.MaxAttempts, "attempts", gen.MaxAttempts, "Attempts used with -solve")
	solve := flag.Bool("solve", false, "Retry each seed until the grid is consistent")
	outDir := flag.String("out", "data/runs", "Output directory")
	flag.Parse()

	if *seeds == "" {
		fmt.Fprintln(os.Stderr, "Error: --seeds is required (e.g., --seeds=1-25 or --seeds=5)")
		flag.Usage()
		os.Exit(1)
	}

	first, last, err := parseSeedRange(*seeds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid seed range: %v\n", err)
		os.Exit(1)
	}

	opts, err := gen.Options()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	batch, err := NewBatchGenerator(opts, *solve, *outDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Generating seeds %d-%d (%d cells, %d edge values)\n", first, last, opts.TotalCells, opts.UniqueEdgeCount)
	fmt.Printf("Output directory: %s\n\n", *outDir)

	failed := 0
	for seed := first; seed <= last; seed++ {
		fmt.Printf("Generating seed %d... ", seed)
		status, err := batch.Generate(ctx, seed)
		if ctx.Err() != nil {
			fmt.Println("interrupted")
			stop()
			os.Exit(130)
		}
		if err != nil {
			failed++
			fmt.Printf("FAILED (%s): %v\n", status, err)
			continue
		}
		fmt.Println(strings.ToUpper(status))
	}

	fmt.Printf("\nGenerated %d run(s), %d failed\n", last-first+1, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// parseSeedRange parses a seed range string like "1-25" or "5".
// Only non-negative seeds can be written as a range.
func parseSeedRange(s string) (first, last int64, err error) {
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		first, err = strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid first seed: %w", err)
		}
		last, err = strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid last seed: %w", err)
		}
	} else {
		first, err = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid seed: %w", err)
		}
		last = first
	}

	if last < first {
		return 0, 0, fmt.Errorf("last seed must be >= first seed")
	}
	return first, last, nil
}
