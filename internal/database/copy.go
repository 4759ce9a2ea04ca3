package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/lawnchairsociety/roadgen/internal/logger"
)

// CopyStats counts the outcome of CopyRuns
type CopyStats struct {
	Copied  int
	Skipped int // Already present in the destination
	Cells   int
}

// CopyRuns copies every run in src to dst, oldest first, keeping ids and
// creation times. Runs already in dst are skipped. With dryRun set nothing
// is written and Copied counts the runs that would be copied.
func CopyRuns(ctx context.Context, src, dst *Database, dryRun bool) (CopyStats, error) {
	var stats CopyStats

	runs, err := src.ListRuns(ctx, 0)
	if err != nil {
		return stats, err
	}

	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]

		if _, err := dst.GetRun(ctx, run.ID); err == nil {
			stats.Skipped++
			continue
		} else if !errors.Is(err, ErrRunNotFound) {
			return stats, err
		}

		cells, err := src.GetRunCells(ctx, run.ID)
		if err != nil {
			return stats, fmt.Errorf("run %s: %w", run.ID, err)
		}

		if !dryRun {
			run.Seq = 0
			if err := dst.SaveRun(ctx, &run, cells); err != nil {
				return stats, fmt.Errorf("run %s: %w", run.ID, err)
			}
		}
		stats.Copied++
		stats.Cells += len(cells)
		logger.Debug("Run copied", "run_id", run.ID, "cells", len(cells), "dry_run", dryRun)
	}

	return stats, nil
}
