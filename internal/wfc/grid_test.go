package wfc

import (
	"errors"
	"testing"
)

func TestGridWidthForCells(t *testing.T) {
	tests := []struct {
		cells   int
		want    int
		wantErr bool
	}{
		{1, 1, false},
		{4, 2, false},
		{100, 10, false},
		{10000, 100, false},
		{0, 0, true},
		{-4, 0, true},
		{99, 0, true},
		{101, 0, true},
	}
	for _, tc := range tests {
		got, err := GridWidthForCells(tc.cells)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("GridWidthForCells(%d) error = %v, want ErrInvalidArgument", tc.cells, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("GridWidthForCells(%d) = %d, %v; want %d", tc.cells, got, err, tc.want)
		}
	}
}

func TestNewGridInitialState(t *testing.T) {
	cat, _ := BuildCatalog(3)
	g, err := NewGrid(10, cat)
	if err != nil {
		t.Fatalf("NewGrid() error = %v", err)
	}
	if g.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", g.Len())
	}
	for id := CellID(0); id < 100; id++ {
		e, _ := g.Entropy(id)
		if e != 81 {
			t.Fatalf("cell %d entropy = %d, want 81", id, e)
		}
	}
	if g.CollapsedCount() != 0 {
		t.Errorf("CollapsedCount() = %d, want 0", g.CollapsedCount())
	}
	if g.TotalEntropy() != 8100 {
		t.Errorf("TotalEntropy() = %d, want 8100", g.TotalEntropy())
	}
}

func TestNewGridInvalid(t *testing.T) {
	cat, _ := BuildCatalog(2)
	if _, err := NewGrid(0, cat); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NewGrid(0) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := NewGrid(3, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NewGrid(nil catalog) error = %v, want ErrInvalidArgument", err)
	}
}

func TestGridNeighbors(t *testing.T) {
	cat, _ := BuildCatalog(1)
	g, err := NewGrid(3, cat)
	if err != nil {
		t.Fatalf("NewGrid() error = %v", err)
	}

	// 0 1 2
	// 3 4 5
	// 6 7 8
	tests := []struct {
		id   CellID
		want [NumDirections]int // -1 means no neighbour
	}{
		{0, [4]int{-1, 1, 3, -1}},
		{2, [4]int{-1, -1, 5, 1}},
		{3, [4]int{0, 4, 6, -1}},
		{4, [4]int{1, 5, 7, 3}},
		{5, [4]int{2, -1, 8, 4}},
		{8, [4]int{5, -1, -1, 7}},
	}
	for _, tc := range tests {
		for _, d := range AllDirections() {
			nid, ok, err := g.Neighbor(tc.id, d)
			if err != nil {
				t.Fatalf("Neighbor(%d, %s) error = %v", tc.id, d, err)
			}
			if tc.want[d] < 0 {
				if ok {
					t.Errorf("cell %d %s neighbour = %d, want none", tc.id, d, nid)
				}
				continue
			}
			if !ok || int(nid) != tc.want[d] {
				t.Errorf("cell %d %s neighbour = %d (%v), want %d", tc.id, d, nid, ok, tc.want[d])
			}
		}
	}
}

func TestGridNeighborsAreMutual(t *testing.T) {
	cat, _ := BuildCatalog(1)
	g, _ := NewGrid(7, cat)
	for id := CellID(0); int(id) < g.Len(); id++ {
		for _, d := range AllDirections() {
			nid, ok, _ := g.Neighbor(id, d)
			if !ok {
				continue
			}
			back, ok, _ := g.Neighbor(nid, d.Opposite())
			if !ok || back != id {
				t.Fatalf("cell %d %s -> %d does not link back", id, d, nid)
			}
		}
	}
}

func TestGridCellCoordinates(t *testing.T) {
	cat, _ := BuildCatalog(1)
	g, _ := NewGrid(4, cat)

	id, err := g.CellAt(3, 2)
	if err != nil || id != 11 {
		t.Fatalf("CellAt(3, 2) = %d, %v; want 11", id, err)
	}
	c, err := g.Cell(id)
	if err != nil {
		t.Fatalf("Cell() error = %v", err)
	}
	if c.X != 3 || c.Y != 2 {
		t.Errorf("Cell(11) at (%d,%d), want (3,2)", c.X, c.Y)
	}
	if _, err := g.CellAt(4, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("CellAt(4, 0) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := g.Cell(16); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Cell(16) error = %v, want ErrInvalidArgument", err)
	}
}

func TestGridSetCandidates(t *testing.T) {
	cat, _ := BuildCatalog(2)
	g, _ := NewGrid(2, cat)

	if err := g.SetCandidates(0, CandidateSetOf(16, 1, 2, 3)); err != nil {
		t.Fatalf("SetCandidates() error = %v", err)
	}
	if e, _ := g.Entropy(0); e != 3 {
		t.Errorf("Entropy(0) = %d, want 3", e)
	}

	tests := []struct {
		name string
		set  CandidateSet
	}{
		{"empty", NewCandidateSet(16)},
		{"grows", CandidateSetOf(16, 1, 4)},
		{"wrong universe", CandidateSetOf(81, 1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := g.SetCandidates(0, tc.set); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("SetCandidates() error = %v, want ErrInvalidArgument", err)
			}
		})
	}

	if err := g.SetCandidates(0, CandidateSetOf(16, 2)); err != nil {
		t.Fatalf("SetCandidates() error = %v", err)
	}
	p, ok, err := g.Prototype(0)
	if err != nil || !ok || p != 2 {
		t.Errorf("Prototype(0) = %d, %v, %v; want 2, true", p, ok, err)
	}
	if collapsed, _ := g.IsCollapsed(0); !collapsed {
		t.Error("IsCollapsed(0) = false")
	}
	if _, ok, _ := g.Prototype(1); ok {
		t.Error("Prototype(1) reported an uncollapsed cell as collapsed")
	}
}

func TestGridCandidatesReturnsCopy(t *testing.T) {
	cat, _ := BuildCatalog(2)
	g, _ := NewGrid(2, cat)

	set, _ := g.Candidates(0)
	set.Remove(0)
	set.Remove(1)

	if e, _ := g.Entropy(0); e != 16 {
		t.Errorf("Entropy(0) = %d after mutating a copy, want 16", e)
	}
}

func TestGridResetAndFingerprint(t *testing.T) {
	cat, _ := BuildCatalog(2)
	g, _ := NewGrid(3, cat)
	initial := g.Fingerprint()

	if err := g.SetCandidates(4, CandidateSetOf(16, 5)); err != nil {
		t.Fatalf("SetCandidates() error = %v", err)
	}
	if g.Fingerprint() == initial {
		t.Error("Fingerprint() unchanged after narrowing a cell")
	}

	g.Reset()
	if g.Fingerprint() != initial {
		t.Error("Fingerprint() after Reset differs from a fresh grid")
	}
	if g.TotalEntropy() != 9*16 {
		t.Errorf("TotalEntropy() after Reset = %d, want %d", g.TotalEntropy(), 9*16)
	}
}

func TestGridSnapshot(t *testing.T) {
	cat, _ := BuildCatalog(2)
	g, _ := NewGrid(2, cat)
	if err := g.SetCandidates(3, CandidateSetOf(16, 7)); err != nil {
		t.Fatalf("SetCandidates() error = %v", err)
	}

	f := g.Snapshot(5)
	if f.Step != 5 || f.Width != 2 || f.Collapsed != 1 || len(f.Cells) != 4 {
		t.Fatalf("Snapshot() = %+v", f)
	}
	if f.Cells[0].Prototype != Unresolved || f.Cells[0].Entropy != 16 {
		t.Errorf("cell 0 frame = %+v, want unresolved with entropy 16", f.Cells[0])
	}
	if f.Cells[3].Prototype != 7 || f.Cells[3].Entropy != 1 || f.Cells[3].X != 1 || f.Cells[3].Y != 1 {
		t.Errorf("cell 3 frame = %+v, want prototype 7 at (1,1)", f.Cells[3])
	}
}
