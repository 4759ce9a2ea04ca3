package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lawnchairsociety/roadgen/internal/wfc"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// ErrRunExists is returned when saving a run whose id is already stored.
var ErrRunExists = errors.New("run already exists")

// Run statuses
const (
	StatusComplete     = "complete"     // every cell collapsed and locally consistent
	StatusInconsistent = "inconsistent" // finished with masked contradictions left visible
	StatusAborted      = "aborted"      // stopped by the abort policy or cancellation
)

// StatusOf classifies a generator that has stopped stepping.
func StatusOf(gen *wfc.Generator) string {
	switch {
	case gen.Err() != nil || !gen.Done():
		return StatusAborted
	case wfc.Verify(gen.Grid()) != nil:
		return StatusInconsistent
	default:
		return StatusComplete
	}
}

// Run is the stored summary of one generation.
type Run struct {
	Seq                  int64     `json:"seq"`
	ID                   string    `json:"id"`
	Seed                 int64     `json:"seed"`
	UniqueEdgeCount      int       `json:"unique_edge_count"`
	Width                int       `json:"width"`
	Policy               string    `json:"policy"`
	Steps                int       `json:"steps"`
	Commits              int       `json:"commits"`
	MaskedContradictions int       `json:"masked_contradictions"`
	Attempts             int       `json:"attempts"`
	Status               string    `json:"status"`
	Fingerprint          string    `json:"fingerprint"`
	CreatedAt            time.Time `json:"created_at"`
}

// RunCell is one cell of a stored grid. PrototypeID is wfc.Unresolved for
// cells that never collapsed.
type RunCell struct {
	CellID      int
	PrototypeID int
	Entropy     int
}

// NewRun captures a generator's final state.
func NewRun(gen *wfc.Generator, status string) (*Run, []RunCell) {
	opts := gen.Options()
	stats := gen.Stats()
	grid := gen.Grid()
	fp := grid.Fingerprint()

	run := &Run{
		ID:                   uuid.NewString(),
		Seed:                 opts.Seed,
		UniqueEdgeCount:      opts.UniqueEdgeCount,
		Width:                grid.Width,
		Policy:               opts.Policy.String(),
		Steps:                stats.Steps,
		Commits:              stats.Commits,
		MaskedContradictions: stats.MaskedContradictions,
		Attempts:             stats.Attempts,
		Status:               status,
		Fingerprint:          hex.EncodeToString(fp[:]),
	}

	frame := gen.Frame()
	cells := make([]RunCell, len(frame.Cells))
	for i, c := range frame.Cells {
		cells[i] = RunCell{CellID: int(c.ID), PrototypeID: c.Prototype, Entropy: c.Entropy}
	}
	return run, cells
}

// SaveRun stores a run and its cells in one transaction. Empty ids are
// filled with a new UUID; Seq and a zero CreatedAt are set from the store.
func (d *Database) SaveRun(ctx context.Context, run *Run, cells []RunCell) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	} else if _, err := uuid.Parse(run.ID); err != nil {
		return fmt.Errorf("invalid run id %q: %w", run.ID, err)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := d.qb.BuildWithReturning(`INSERT INTO runs
		(id, seed, unique_edge_count, width, policy, steps, commits,
		 masked_contradictions, attempts, status, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, "seq")
	args := []any{
		run.ID, run.Seed, run.UniqueEdgeCount, run.Width, run.Policy, run.Steps, run.Commits,
		run.MaskedContradictions, run.Attempts, run.Status, run.Fingerprint, run.CreatedAt,
	}

	if d.dialect.SupportsLastInsertID() {
		res, err := tx.ExecContext(ctx, insert, args...)
		if err != nil {
			return d.insertError(err)
		}
		if run.Seq, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get run sequence: %w", err)
		}
	} else if err := tx.QueryRowContext(ctx, insert, args...).Scan(&run.Seq); err != nil {
		return d.insertError(err)
	}

	stmt, err := tx.PrepareContext(ctx, d.qb.Build(
		"INSERT INTO run_cells (run_id, cell_id, prototype_id, entropy) VALUES (?, ?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("failed to prepare cell insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range cells {
		if _, err := stmt.ExecContext(ctx, run.ID, c.CellID, c.PrototypeID, c.Entropy); err != nil {
			return fmt.Errorf("failed to save cell %d: %w", c.CellID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func (d *Database) insertError(err error) error {
	if d.dialect.IsDuplicateKeyError(err) {
		return ErrRunExists
	}
	return fmt.Errorf("failed to save run: %w", err)
}

const runColumns = `seq, id, seed, unique_edge_count, width, policy, steps, commits,
	masked_contradictions, attempts, status, fingerprint, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	err := s.Scan(&r.Seq, &r.ID, &r.Seed, &r.UniqueEdgeCount, &r.Width, &r.Policy, &r.Steps,
		&r.Commits, &r.MaskedContradictions, &r.Attempts, &r.Status, &r.Fingerprint, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRun loads a run by id.
func (d *Database) GetRun(ctx context.Context, id string) (*Run, error) {
	row := d.db.QueryRowContext(ctx, d.qb.Build("SELECT "+runColumns+" FROM runs WHERE id = ?"), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (d *Database) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY seq DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, d.qb.Build(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// FindRunsByFingerprint returns the ids of runs that produced the same grid.
func (d *Database) FindRunsByFingerprint(ctx context.Context, fingerprint string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		d.qb.Build("SELECT id FROM runs WHERE fingerprint = ? ORDER BY seq"), fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprint: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetRunCells returns a run's cells ordered by cell id.
func (d *Database) GetRunCells(ctx context.Context, id string) ([]RunCell, error) {
	if _, err := d.GetRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, d.qb.Build(
		"SELECT cell_id, prototype_id, entropy FROM run_cells WHERE run_id = ? ORDER BY cell_id"), id)
	if err != nil {
		return nil, fmt.Errorf("failed to load cells: %w", err)
	}
	defer rows.Close()

	var cells []RunCell
	for rows.Next() {
		var c RunCell
		if err := rows.Scan(&c.CellID, &c.PrototypeID, &c.Entropy); err != nil {
			return nil, fmt.Errorf("failed to scan cell: %w", err)
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// DeleteRun removes a run and its cells.
func (d *Database) DeleteRun(ctx context.Context, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// SQLite only enforces the cascade on connections that set the pragma
	if _, err := tx.ExecContext(ctx, d.qb.Build("DELETE FROM run_cells WHERE run_id = ?"), id); err != nil {
		return fmt.Errorf("failed to delete cells: %w", err)
	}
	res, err := tx.ExecContext(ctx, d.qb.Build("DELETE FROM runs WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return tx.Commit()
}
