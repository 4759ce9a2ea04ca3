package wfc

// Collapse reduces the cell's candidates to a single member chosen uniformly at random
func Collapse(g *Grid, id CellID, rng Rand) (PrototypeID, error) {
	c, err := g.cell(id)
	if err != nil {
		return 0, err
	}

	n := c.candidates.Len()
	if n == 0 {
		return 0, &ContradictionError{Cell: id}
	}

	choice, _ := c.candidates.Nth(rng.Intn(n))
	c.candidates = CandidateSetOf(c.candidates.Universe(), choice)
	return choice, nil
}
