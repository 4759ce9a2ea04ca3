package wfc

import "math/rand"

// Rand is the random source used for tie-breaks and collapse.
// *rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// NewRand returns a seeded source so runs can be replayed
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// SelectLowestEntropyCell scans every cell with more than one candidate and
// returns one with the fewest, choosing uniformly among ties.
// Collapsed cells and contradictions are skipped; ok is false when nothing is left.
func SelectLowestEntropyCell(g *Grid, rng Rand) (CellID, bool) {
	lowest := 0
	var ties []CellID

	for i := range g.cells {
		entropy := g.cells[i].Entropy()
		if entropy <= 1 {
			continue
		}
		if len(ties) == 0 || entropy < lowest {
			lowest = entropy
			ties = ties[:0]
		}
		if entropy == lowest {
			ties = append(ties, g.cells[i].ID)
		}
	}

	if len(ties) == 0 {
		return 0, false
	}
	return ties[rng.Intn(len(ties))], true
}
