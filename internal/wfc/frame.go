package wfc

// Unresolved marks a CellFrame whose cell still holds several candidates
const Unresolved = -1

// CellFrame is the per-cell view handed to renderers: the collapsed prototype,
// or Unresolved together with the remaining entropy
type CellFrame struct {
	ID        CellID `json:"id"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Entropy   int    `json:"entropy"`
	Prototype int    `json:"prototype"`
}

// Frame is a read-only snapshot of a grid after a step
type Frame struct {
	Step      int         `json:"step"`
	Width     int         `json:"width"`
	Collapsed int         `json:"collapsed"`
	Cells     []CellFrame `json:"cells"`
}

// Snapshot captures the current state of every cell
func (g *Grid) Snapshot(step int) Frame {
	f := Frame{
		Step:  step,
		Width: g.Width,
		Cells: make([]CellFrame, len(g.cells)),
	}
	for i := range g.cells {
		c := &g.cells[i]
		cf := CellFrame{
			ID:        c.ID,
			X:         c.X,
			Y:         c.Y,
			Entropy:   c.candidates.Len(),
			Prototype: Unresolved,
		}
		if cf.Entropy == 1 {
			p, _ := c.candidates.First()
			cf.Prototype = int(p)
			f.Collapsed++
		}
		f.Cells[i] = cf
	}
	return f
}
