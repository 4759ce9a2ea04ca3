package wfc

import (
	"math"

	"golang.org/x/crypto/blake2b"
)

// CellID indexes a cell in row-major order (y*width + x)
type CellID int

// NeighborRef is an optional reference to an adjacent cell.
// The zero value is "no neighbour" (grid boundary).
type NeighborRef struct {
	id      CellID
	present bool
}

// SomeNeighbor returns a reference to id
func SomeNeighbor(id CellID) NeighborRef {
	return NeighborRef{id: id, present: true}
}

// Get returns the referenced cell and whether it exists
func (r NeighborRef) Get() (CellID, bool) {
	return r.id, r.present
}

// Present reports whether the reference points at a cell
func (r NeighborRef) Present() bool {
	return r.present
}

// Cell is one position of the generation grid
type Cell struct {
	ID        CellID
	X, Y      int
	Neighbors [NumDirections]NeighborRef

	candidates CandidateSet
}

// Entropy returns the number of remaining candidates
func (c *Cell) Entropy() int {
	return c.candidates.Len()
}

// Grid is a square lattice of cells. The grid exclusively owns its cells;
// callers refer to them by CellID.
type Grid struct {
	Width   int
	catalog *Catalog
	cells   []Cell
}

// GridWidthForCells derives the side length from a total cell count
func GridWidthForCells(totalCells int) (int, error) {
	if totalCells <= 0 {
		return 0, invalidArgf("total cells must be positive, got %d", totalCells)
	}
	w := int(math.Round(math.Sqrt(float64(totalCells))))
	if w*w != totalCells {
		return 0, invalidArgf("total cells %d is not a perfect square", totalCells)
	}
	return w, nil
}

// NewGrid creates a width×width grid where every cell may hold any prototype
func NewGrid(width int, catalog *Catalog) (*Grid, error) {
	if width <= 0 {
		return nil, invalidArgf("grid width must be positive, got %d", width)
	}
	if catalog == nil || catalog.Len() == 0 {
		return nil, invalidArgf("grid requires a non-empty catalog")
	}

	g := &Grid{
		Width:   width,
		catalog: catalog,
		cells:   make([]Cell, width*width),
	}
	for y := 0; y < width; y++ {
		for x := 0; x < width; x++ {
			id := CellID(y*width + x)
			cell := &g.cells[id]
			cell.ID = id
			cell.X = x
			cell.Y = y
			for _, d := range AllDirections() {
				dx, dy := d.Offset()
				nx, ny := x+dx, y+dy
				if nx < 0 || nx >= width || ny < 0 || ny >= width {
					continue
				}
				cell.Neighbors[d] = SomeNeighbor(CellID(ny*width + nx))
			}
		}
	}
	g.Reset()
	return g, nil
}

// Reset restores every cell's candidates to the full prototype universe
func (g *Grid) Reset() {
	for i := range g.cells {
		g.cells[i].candidates = g.catalog.Universe()
	}
}

// Catalog returns the prototype library backing the grid
func (g *Grid) Catalog() *Catalog {
	return g.catalog
}

// Len returns the number of cells
func (g *Grid) Len() int {
	return len(g.cells)
}

func (g *Grid) cell(id CellID) (*Cell, error) {
	if int(id) < 0 || int(id) >= len(g.cells) {
		return nil, invalidArgf("cell %d out of range [0, %d)", id, len(g.cells))
	}
	return &g.cells[id], nil
}

// Cell returns a copy of the cell's topology and position.
// The candidate set is not included; use Candidates.
func (g *Grid) Cell(id CellID) (Cell, error) {
	c, err := g.cell(id)
	if err != nil {
		return Cell{}, err
	}
	return Cell{ID: c.ID, X: c.X, Y: c.Y, Neighbors: c.Neighbors}, nil
}

// CellAt returns the id of the cell at (x, y)
func (g *Grid) CellAt(x, y int) (CellID, error) {
	if x < 0 || x >= g.Width || y < 0 || y >= g.Width {
		return 0, invalidArgf("position (%d, %d) outside %dx%d grid", x, y, g.Width, g.Width)
	}
	return CellID(y*g.Width + x), nil
}

// Neighbor returns the adjacent cell in direction d, if any
func (g *Grid) Neighbor(id CellID, d Direction) (CellID, bool, error) {
	c, err := g.cell(id)
	if err != nil {
		return 0, false, err
	}
	if !d.Valid() {
		return 0, false, invalidArgf("direction %d", d)
	}
	n, ok := c.Neighbors[d].Get()
	return n, ok, nil
}

// Entropy returns the number of candidates left in a cell
func (g *Grid) Entropy(id CellID) (int, error) {
	c, err := g.cell(id)
	if err != nil {
		return 0, err
	}
	return c.Entropy(), nil
}

// IsCollapsed reports whether the cell has exactly one candidate
func (g *Grid) IsCollapsed(id CellID) (bool, error) {
	e, err := g.Entropy(id)
	if err != nil {
		return false, err
	}
	return e == 1, nil
}

// Candidates returns a copy of the cell's candidate set
func (g *Grid) Candidates(id CellID) (CandidateSet, error) {
	c, err := g.cell(id)
	if err != nil {
		return CandidateSet{}, err
	}
	return c.candidates.Clone(), nil
}

// SetCandidates narrows a cell's candidates. The new set must be non-empty
// and a subset of the current one.
func (g *Grid) SetCandidates(id CellID, set CandidateSet) error {
	c, err := g.cell(id)
	if err != nil {
		return err
	}
	if set.Universe() != g.catalog.Len() {
		return invalidArgf("candidate set universe %d does not match catalog size %d", set.Universe(), g.catalog.Len())
	}
	if set.Empty() {
		return invalidArgf("cell %d: empty candidate set", id)
	}
	if !set.SubsetOf(c.candidates) {
		return invalidArgf("cell %d: candidate sets may only shrink", id)
	}
	c.candidates = set.Clone()
	return nil
}

// Prototype returns the prototype a collapsed cell holds
func (g *Grid) Prototype(id CellID) (PrototypeID, bool, error) {
	c, err := g.cell(id)
	if err != nil {
		return 0, false, err
	}
	if c.candidates.Len() != 1 {
		return 0, false, nil
	}
	p, _ := c.candidates.First()
	return p, true, nil
}

// CollapsedCount returns how many cells hold a single candidate
func (g *Grid) CollapsedCount() int {
	n := 0
	for i := range g.cells {
		if g.cells[i].candidates.Len() == 1 {
			n++
		}
	}
	return n
}

// TotalEntropy sums the candidate counts of every cell
func (g *Grid) TotalEntropy() int {
	n := 0
	for i := range g.cells {
		n += g.cells[i].candidates.Len()
	}
	return n
}

// Fingerprint hashes the candidate sets of every cell with BLAKE2b-256
func (g *Grid) Fingerprint() [32]byte {
	buf := make([]byte, 0, len(g.cells)*len(g.cells[0].candidates.words)*8+8)
	w := uint64(g.Width)
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(w>>(8*i)))
	}
	for i := range g.cells {
		buf = g.cells[i].candidates.appendBytes(buf)
	}
	return blake2b.Sum256(buf)
}
