package wfc

import (
	"fmt"
	"strings"
)

// Outcome classifies a propagation pass
type Outcome int

const (
	NoChange      Outcome = iota // No neighbour was narrowed
	Progressed                   // At least one neighbour was narrowed
	Contradiction                // Some neighbour would have lost every candidate
)

// String returns the string representation of an Outcome
func (o Outcome) String() string {
	switch o {
	case NoChange:
		return "no_change"
	case Progressed:
		return "progressed"
	case Contradiction:
		return "contradiction"
	default:
		return "unknown"
	}
}

// ContradictionPolicy decides what propagation does with an empty intersection
type ContradictionPolicy int

const (
	// PolicyDiscard keeps the neighbour's previous candidates and carries on
	PolicyDiscard ContradictionPolicy = iota
	// PolicyAbort stops propagation at the first contradiction
	PolicyAbort
)

// String returns the string representation of a ContradictionPolicy
func (p ContradictionPolicy) String() string {
	switch p {
	case PolicyDiscard:
		return "discard"
	case PolicyAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// ParsePolicy converts a config string into a ContradictionPolicy
func ParsePolicy(s string) (ContradictionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "discard":
		return PolicyDiscard, nil
	case "abort":
		return PolicyAbort, nil
	default:
		return PolicyDiscard, invalidArgf("unknown contradiction policy %q", s)
	}
}

// Result summarises a propagation pass
type Result struct {
	Outcome Outcome
	// Cell is the first neighbour that hit a contradiction; only meaningful
	// when Outcome is Contradiction
	Cell    CellID
	Commits int // narrowed candidate sets
	Masked  int // contradictions left unapplied
}

// Err returns a *ContradictionError for contradicting results, nil otherwise
func (r Result) Err() error {
	if r.Outcome != Contradiction {
		return nil
	}
	return &ContradictionError{Cell: r.Cell}
}

// Propagate narrows the neighbours of seed until a fixed point is reached.
// Each popped cell restricts every uncollapsed neighbour to the union of the
// prototypes its own candidates allow in that direction; a neighbour that
// shrinks is pushed back on the worklist.
func Propagate(g *Grid, cat *Catalog, seed CellID, policy ContradictionPolicy) (Result, error) {
	if _, err := g.cell(seed); err != nil {
		return Result{}, err
	}
	if cat != g.catalog {
		return Result{}, fmt.Errorf("%w: catalog does not belong to grid", ErrInvalidArgument)
	}

	res := Result{Outcome: NoChange}
	stack := make([]CellID, 0, 64)
	stack = append(stack, seed)
	queued := make([]bool, len(g.cells))
	queued[seed] = true

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		queued[id] = false
		cell := &g.cells[id]

		for _, d := range AllDirections() {
			nid, ok := cell.Neighbors[d].Get()
			if !ok {
				continue
			}
			neighbor := &g.cells[nid]
			current := neighbor.candidates.Len()
			if current <= 1 {
				continue
			}

			allowed := cat.allowedNeighbors(cell.candidates, d)
			reduced := neighbor.candidates.Intersect(allowed)
			size := reduced.Len()

			if size == 0 {
				if res.Outcome != Contradiction {
					res.Outcome = Contradiction
					res.Cell = nid
				}
				res.Masked++
				if policy == PolicyAbort {
					return res, nil
				}
				continue
			}
			if size == current {
				continue
			}

			neighbor.candidates = reduced
			res.Commits++
			if res.Outcome == NoChange {
				res.Outcome = Progressed
			}
			if !queued[nid] {
				queued[nid] = true
				stack = append(stack, nid)
			}
		}
	}

	return res, nil
}
