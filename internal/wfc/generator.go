package wfc

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/lawnchairsociety/roadgen/internal/logger"
	"github.com/lawnchairsociety/roadgen/internal/telemetry"
)

// DefaultTotalCells gives a 10x10 grid
const DefaultTotalCells = 100

// Options contains parameters for a generation run
type Options struct {
	UniqueEdgeCount int                 // Edge alphabet size (prototypes = n^4)
	TotalCells      int                 // Must be a perfect square
	Seed            int64               // Seed for tie-breaks and collapse choices
	Policy          ContradictionPolicy // What propagation does on an empty intersection
	MaxAttempts     int                 // Attempts used by Solve
}

// DefaultOptions returns the reference configuration: 81 prototypes on a 10x10 grid
func DefaultOptions(seed int64) Options {
	return Options{
		UniqueEdgeCount: DefaultUniqueEdgeCount,
		TotalCells:      DefaultTotalCells,
		Seed:            seed,
		Policy:          PolicyDiscard,
		MaxAttempts:     10,
	}
}

// Stats counts the work done by a generator since its last reset
type Stats struct {
	Steps                int    // Successful select/collapse/propagate cycles
	Commits              int    // Narrowed candidate sets
	MaskedContradictions int    // Empty intersections left unapplied
	FirstContradiction   CellID // Valid when MaskedContradictions > 0
	Attempts             int    // Runs started by Solve (1 for a plain Run)
}

// StepInfo describes the most recent step
type StepInfo struct {
	Cell      CellID
	Prototype PrototypeID
	Result    Result
}

// Generator drives select -> collapse -> propagate over a grid.
// It is not safe for concurrent use.
type Generator struct {
	opts    Options
	catalog *Catalog
	grid    *Grid
	rng     *rand.Rand
	stats   Stats
	last    *StepInfo
	err     error
}

// NewGenerator builds the catalog and grid described by opts
func NewGenerator(opts Options) (*Generator, error) {
	catalog, err := BuildCatalog(opts.UniqueEdgeCount)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog: %w", err)
	}
	return NewGeneratorWithCatalog(catalog, opts)
}

// NewGeneratorWithCatalog builds a grid over an existing catalog.
// opts.UniqueEdgeCount is ignored.
func NewGeneratorWithCatalog(catalog *Catalog, opts Options) (*Generator, error) {
	if catalog == nil {
		return nil, invalidArgf("nil catalog")
	}
	width, err := GridWidthForCells(opts.TotalCells)
	if err != nil {
		return nil, err
	}
	if opts.Policy != PolicyDiscard && opts.Policy != PolicyAbort {
		return nil, invalidArgf("unknown contradiction policy %d", opts.Policy)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	opts.UniqueEdgeCount = catalog.UniqueEdgeCount

	grid, err := NewGrid(width, catalog)
	if err != nil {
		return nil, err
	}

	return &Generator{
		opts:    opts,
		catalog: catalog,
		grid:    grid,
		rng:     NewRand(opts.Seed),
		stats:   Stats{Attempts: 1},
	}, nil
}

// Grid returns the grid being generated
func (g *Generator) Grid() *Grid {
	return g.grid
}

// Catalog returns the prototype library
func (g *Generator) Catalog() *Catalog {
	return g.catalog
}

// Options returns the effective options
func (g *Generator) Options() Options {
	return g.opts
}

// Stats returns counters for the current attempt
func (g *Generator) Stats() Stats {
	return g.stats
}

// LastStep returns the most recent step, if any
func (g *Generator) LastStep() (StepInfo, bool) {
	if g.last == nil {
		return StepInfo{}, false
	}
	return *g.last, true
}

// Err returns the error that stopped Step, if any
func (g *Generator) Err() error {
	return g.err
}

// Done reports whether no cell has more than one candidate left
func (g *Generator) Done() bool {
	for i := range g.grid.cells {
		if g.grid.cells[i].candidates.Len() > 1 {
			return false
		}
	}
	return true
}

// Frame snapshots the grid for renderers
func (g *Generator) Frame() Frame {
	return g.grid.Snapshot(g.stats.Steps)
}

// Step runs one generation cycle. It returns false once no cell has more
// than one candidate, or when an aborting contradiction stopped the run
// (see Err).
func (g *Generator) Step() bool {
	if g.err != nil {
		return false
	}

	id, ok := SelectLowestEntropyCell(g.grid, g.rng)
	if !ok {
		return false
	}

	proto, err := Collapse(g.grid, id, g.rng)
	if err != nil {
		g.err = err
		return false
	}

	res, err := Propagate(g.grid, g.catalog, id, g.opts.Policy)
	if err != nil {
		g.err = err
		return false
	}

	g.stats.Steps++
	g.stats.Commits += res.Commits
	g.last = &StepInfo{Cell: id, Prototype: proto, Result: res}

	if res.Outcome == Contradiction {
		if g.stats.MaskedContradictions == 0 {
			g.stats.FirstContradiction = res.Cell
		}
		g.stats.MaskedContradictions += res.Masked
		if g.opts.Policy == PolicyAbort {
			g.err = res.Err()
			logger.Debug("Propagation aborted", "cell", res.Cell, "step", g.stats.Steps)
			return false
		}
		logger.Debug("Contradiction discarded", "cell", res.Cell, "masked", res.Masked, "step", g.stats.Steps)
	}

	return true
}

// Run steps until the grid is fully collapsed, the run is aborted, or ctx is done
func (g *Generator) Run(ctx context.Context) error {
	ctx, span := telemetry.Tracer("wfc").Start(ctx, "wfc.run")
	defer span.End()

	err := g.run(ctx)

	span.SetAttributes(
		attribute.Int("wfc.width", g.grid.Width),
		attribute.Int("wfc.prototypes", g.catalog.Len()),
		attribute.Int64("wfc.seed", g.opts.Seed),
		attribute.String("wfc.policy", g.opts.Policy.String()),
		attribute.Int("wfc.steps", g.stats.Steps),
		attribute.Int("wfc.commits", g.stats.Commits),
		attribute.Int("wfc.masked_contradictions", g.stats.MaskedContradictions),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (g *Generator) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !g.Step() {
			return g.err
		}
	}
}

// Reset clears the grid and reseeds the random source
func (g *Generator) Reset(seed int64) {
	g.grid.Reset()
	g.rng = NewRand(seed)
	g.opts.Seed = seed
	g.stats = Stats{Attempts: g.stats.Attempts}
	g.last = nil
	g.err = nil
}

// Solve runs the generator until it produces a grid that passes Verify,
// retrying with derived seeds (seed + attempt*1000) up to MaxAttempts times.
// A run that masked contradictions is accepted when the final grid is still
// locally consistent.
func (g *Generator) Solve(ctx context.Context) error {
	baseSeed := g.opts.Seed
	var lastErr error

	for attempt := 0; attempt < g.opts.MaxAttempts; attempt++ {
		if attempt > 0 || g.stats.Steps > 0 || g.err != nil {
			g.Reset(baseSeed + int64(attempt*1000))
		}
		g.stats.Attempts = attempt + 1

		err := g.Run(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err == nil {
			err = Verify(g.grid)
		}
		if err == nil {
			if attempt > 0 {
				logger.Info("Generation succeeded after retry", "attempt", attempt+1, "seed", g.opts.Seed)
			}
			return nil
		}

		lastErr = err
		logger.Debug("Generation attempt failed", "attempt", attempt+1, "seed", g.opts.Seed, "error", err)
		if !errors.Is(err, ErrContradiction) && !errors.Is(err, ErrInconsistent) {
			break
		}
	}

	return fmt.Errorf("%w: failed after %d attempts: %w", ErrNoSolution, g.stats.Attempts, lastErr)
}
