package wfc

import "fmt"

// Violation is a pair of adjacent collapsed cells whose touching edges differ
type Violation struct {
	Cell         CellID
	Neighbor     CellID
	Direction    Direction
	Edge         EdgeValue
	NeighborEdge EdgeValue
}

func (v Violation) String() string {
	return fmt.Sprintf("cell %d %s edge %d != cell %d %s edge %d",
		v.Cell, v.Direction, v.Edge, v.Neighbor, v.Direction.Opposite(), v.NeighborEdge)
}

// Validate checks every pair of adjacent collapsed cells once (east and south
// links) and returns the pairs whose touching edge values differ.
// Cells that still hold several candidates are not checked.
func Validate(g *Grid) []Violation {
	var violations []Violation
	cat := g.catalog

	for i := range g.cells {
		cell := &g.cells[i]
		if cell.candidates.Len() != 1 {
			continue
		}
		p, _ := cell.candidates.First()

		for _, d := range []Direction{East, South} {
			nid, ok := cell.Neighbors[d].Get()
			if !ok {
				continue
			}
			neighbor := &g.cells[nid]
			if neighbor.candidates.Len() != 1 {
				continue
			}
			q, _ := neighbor.candidates.First()

			edge := cat.prototypes[p].Edges[d]
			other := cat.prototypes[q].Edges[d.Opposite()]
			if edge != other {
				violations = append(violations, Violation{
					Cell:         cell.ID,
					Neighbor:     nid,
					Direction:    d,
					Edge:         edge,
					NeighborEdge: other,
				})
			}
		}
	}

	return violations
}

// Verify returns an error wrapping ErrInconsistent when Validate finds violations
func Verify(g *Grid) error {
	violations := Validate(g)
	if len(violations) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d mismatched edges, first: %s", ErrInconsistent, len(violations), violations[0])
}
