package wfc

// EdgeValue is a connector label; two tiles may touch only when the touching
// edge values are equal
type EdgeValue int

// MaxUniqueEdgeCount bounds the alphabet so the catalog stays 8^4 = 4096 prototypes
const MaxUniqueEdgeCount = 8

// DefaultUniqueEdgeCount gives 81 prototypes
const DefaultUniqueEdgeCount = 3

// Prototype is a tile definition with four directional edge values
type Prototype struct {
	ID    PrototypeID
	Edges [NumDirections]EdgeValue

	// compatible[d] holds the ids that may sit next to this prototype in direction d.
	// Sets are shared between prototypes with the same edge value and must not be mutated.
	compatible [NumDirections]CandidateSet
}

// Compatible returns the prototypes allowed next to p in direction d
func (p *Prototype) Compatible(d Direction) CandidateSet {
	return p.compatible[d].Clone()
}

// Catalog is the immutable prototype library shared by every grid
type Catalog struct {
	UniqueEdgeCount int
	prototypes      []Prototype
}

// BuildCatalog enumerates every edge combination over an alphabet of
// uniqueEdgeCount values and precomputes directional compatibility.
// Ids follow enumeration order with North varying fastest, then East, South, West.
func BuildCatalog(uniqueEdgeCount int) (*Catalog, error) {
	if uniqueEdgeCount <= 0 {
		return nil, invalidArgf("unique edge count must be positive, got %d", uniqueEdgeCount)
	}
	if uniqueEdgeCount > MaxUniqueEdgeCount {
		return nil, invalidArgf("unique edge count %d exceeds maximum %d", uniqueEdgeCount, MaxUniqueEdgeCount)
	}

	k := uniqueEdgeCount
	edges := make([][NumDirections]EdgeValue, 0, k*k*k*k)
	for w := 0; w < k; w++ {
		for s := 0; s < k; s++ {
			for e := 0; e < k; e++ {
				for n := 0; n < k; n++ {
					edges = append(edges, [NumDirections]EdgeValue{EdgeValue(n), EdgeValue(e), EdgeValue(s), EdgeValue(w)})
				}
			}
		}
	}
	return NewCatalog(k, edges)
}

// NewCatalog builds a catalog from an explicit prototype list. Prototype i
// gets id i; every edge value must lie in [0, uniqueEdgeCount).
func NewCatalog(uniqueEdgeCount int, edges [][NumDirections]EdgeValue) (*Catalog, error) {
	if uniqueEdgeCount <= 0 {
		return nil, invalidArgf("unique edge count must be positive, got %d", uniqueEdgeCount)
	}
	if len(edges) == 0 {
		return nil, invalidArgf("catalog needs at least one prototype")
	}

	c := &Catalog{
		UniqueEdgeCount: uniqueEdgeCount,
		prototypes:      make([]Prototype, len(edges)),
	}
	for i, e := range edges {
		for _, d := range AllDirections() {
			if e[d] < 0 || int(e[d]) >= uniqueEdgeCount {
				return nil, invalidArgf("prototype %d: %s edge %d outside [0, %d)", i, d, e[d], uniqueEdgeCount)
			}
		}
		c.prototypes[i] = Prototype{ID: PrototypeID(i), Edges: e}
	}

	c.computeCompatibility()
	return c, nil
}

// computeCompatibility fills Prototype.compatible.
// A is compatible with B in direction d iff A.Edges[d] == B.Edges[d.Opposite()],
// so the answer only depends on A's edge value: bucket candidates by the edge
// they present towards A, then hand every prototype the bucket for its own edge.
func (c *Catalog) computeCompatibility() {
	n := len(c.prototypes)
	for _, d := range AllDirections() {
		od := d.Opposite()
		buckets := make([]CandidateSet, c.UniqueEdgeCount)
		for v := range buckets {
			buckets[v] = NewCandidateSet(n)
		}
		for i := range c.prototypes {
			buckets[c.prototypes[i].Edges[od]].Add(c.prototypes[i].ID)
		}
		for i := range c.prototypes {
			c.prototypes[i].compatible[d] = buckets[c.prototypes[i].Edges[d]]
		}
	}
}

// Len returns the number of prototypes
func (c *Catalog) Len() int {
	return len(c.prototypes)
}

// Universe returns a fresh set holding every prototype id
func (c *Catalog) Universe() CandidateSet {
	return FullCandidateSet(len(c.prototypes))
}

// Prototype returns the prototype with the given id
func (c *Catalog) Prototype(id PrototypeID) (*Prototype, error) {
	if int(id) < 0 || int(id) >= len(c.prototypes) {
		return nil, invalidArgf("prototype %d out of range [0, %d)", id, len(c.prototypes))
	}
	return &c.prototypes[id], nil
}

// Edges returns the edge values of a prototype
func (c *Catalog) Edges(id PrototypeID) ([NumDirections]EdgeValue, error) {
	p, err := c.Prototype(id)
	if err != nil {
		return [NumDirections]EdgeValue{}, err
	}
	return p.Edges, nil
}

// Compatible returns the prototypes allowed next to id in direction d
func (c *Catalog) Compatible(id PrototypeID, d Direction) (CandidateSet, error) {
	if !d.Valid() {
		return CandidateSet{}, invalidArgf("direction %d", d)
	}
	p, err := c.Prototype(id)
	if err != nil {
		return CandidateSet{}, err
	}
	return p.compatible[d].Clone(), nil
}

// allowedNeighbors unions the compatible sets of every member of cands in direction d.
// Prototypes sharing an edge value share a set, so each value is merged once.
func (c *Catalog) allowedNeighbors(cands CandidateSet, d Direction) CandidateSet {
	allowed := NewCandidateSet(len(c.prototypes))
	seen := make([]bool, c.UniqueEdgeCount)
	cands.Each(func(id PrototypeID) {
		p := &c.prototypes[id]
		v := p.Edges[d]
		if seen[v] {
			return
		}
		seen[v] = true
		allowed.UnionWith(p.compatible[d])
	})
	return allowed
}
