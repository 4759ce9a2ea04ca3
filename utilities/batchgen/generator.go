package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/lawnchairsociety/roadgen/internal/database"
	"github.com/lawnchairsociety/roadgen/internal/export"
	"github.com/lawnchairsociety/roadgen/internal/wfc"
)

// BatchGenerator generates one run per seed and writes each to YAML.
type BatchGenerator struct {
	Options   wfc.Options
	Solve     bool
	OutputDir string

	catalog *wfc.Catalog
}

// NewBatchGenerator builds the shared catalog once for every run in the batch.
func NewBatchGenerator(opts wfc.Options, solve bool, outputDir string) (*BatchGenerator, error) {
	cat, err := wfc.BuildCatalog(opts.UniqueEdgeCount)
	if err != nil {
		return nil, err
	}
	return &BatchGenerator{
		Options:   opts,
		Solve:     solve,
		OutputDir: outputDir,
		catalog:   cat,
	}, nil
}

// Generate runs seed to completion and writes run_<seed>.yaml.
// It returns the status recorded in the file.
func (b *BatchGenerator) Generate(ctx context.Context, seed int64) (string, error) {
	opts := b.Options
	opts.Seed = seed
	gen, err := wfc.NewGeneratorWithCatalog(b.catalog, opts)
	if err != nil {
		return "", err
	}

	if b.Solve {
		err = gen.Solve(ctx)
	} else {
		err = gen.Run(ctx)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}

	status := database.StatusOf(gen)
	doc, docErr := export.FromGenerator(gen, status)
	if docErr != nil {
		return "", fmt.Errorf("failed to convert run: %w", docErr)
	}
	if err := export.WriteRunYAMLFile(b.pathFor(seed), doc); err != nil {
		return "", fmt.Errorf("failed to write YAML: %w", err)
	}
	// an aborted run is still written so the failure can be inspected
	return status, err
}

func (b *BatchGenerator) pathFor(seed int64) string {
	return filepath.Join(b.OutputDir, fmt.Sprintf("run_%d.yaml", seed))
}
